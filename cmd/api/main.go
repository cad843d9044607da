// Command api serves the energy advisor HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"energy-agent/internal/app"
	"energy-agent/internal/config"
	"energy-agent/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	clients, err := app.LoadClients(ctx, cfg)
	if err != nil {
		logger.Error("failed to create clients", "error", err)
		os.Exit(1)
	}

	a, err := app.New(cfg, clients, logger)
	if err != nil {
		logger.Error("failed to build app", "error", err)
		os.Exit(1)
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	janitorDone := a.StartJanitor(bgCtx)
	refreshDone := a.StartKeyRefresh(bgCtx)

	srv := server.New(a.Handler, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	srv.OnShutdown("redis", a.Close)
	srv.OnShutdown("background", func(ctx context.Context) error {
		stopBackground()
		for _, done := range []<-chan struct{}{janitorDone, refreshDone} {
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"model_endpoint", cfg.ModelEndpoint(),
		"shared_limiter", cfg.RedisURL != "",
	)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
