package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"energy-agent/handler"
	"energy-agent/internal/app"
	"energy-agent/internal/config"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	// ---- Clients ----
	clients, err := app.LoadClients(ctx, cfg)
	if err != nil {
		logger.Error("failed to create clients", "err", err)
		os.Exit(1)
	}

	a, err := app.New(cfg, clients, logger)
	if err != nil {
		logger.Error("failed to build app", "err", err)
		os.Exit(1)
	}
	// Warm containers keep the in-memory limiter and the key set; evict idle
	// keys and reload certificates between invocations.
	a.StartJanitor(ctx)
	a.StartKeyRefresh(ctx)

	// ---- Handler ----
	h, err := handler.NewHandler(a.Handler)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
