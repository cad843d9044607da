package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// FallbackMode selects what happens when the primary limiter errors.
type FallbackMode string

const (
	// FallbackMemory consults a process-local limiter instead.
	FallbackMemory FallbackMode = "memory"
	// FallbackOpen allows the request.
	FallbackOpen FallbackMode = "open"
	// FallbackClosed surfaces the error to the caller.
	FallbackClosed FallbackMode = "closed"
)

// ParseFallbackMode accepts memory, open or closed (case-insensitive).
func ParseFallbackMode(s string) (FallbackMode, error) {
	switch mode := FallbackMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case FallbackMemory, FallbackOpen, FallbackClosed:
		return mode, nil
	case "":
		return FallbackMemory, nil
	default:
		return "", fmt.Errorf("ratelimit: unknown fallback mode %q", s)
	}
}

// Fallback wraps a shared limiter and downgrades explicitly when it fails.
// Every downgrade is logged and reported through onFallback.
type Fallback struct {
	primary    Limiter
	secondary  Limiter
	mode       FallbackMode
	logger     *slog.Logger
	onFallback func(mode FallbackMode)
}

// NewFallback builds a Fallback. secondary is required for FallbackMemory.
func NewFallback(primary Limiter, mode FallbackMode, secondary Limiter, logger *slog.Logger, onFallback func(FallbackMode)) (*Fallback, error) {
	if primary == nil {
		return nil, errors.New("ratelimit: primary limiter must not be nil")
	}
	if mode == FallbackMemory && secondary == nil {
		return nil, errors.New("ratelimit: memory fallback requires a secondary limiter")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		primary:    primary,
		secondary:  secondary,
		mode:       mode,
		logger:     logger,
		onFallback: onFallback,
	}, nil
}

func (f *Fallback) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := f.primary.Allow(ctx, key)
	if err == nil {
		return ok, nil
	}

	f.logger.WarnContext(ctx, "ratelimit: shared limiter unavailable",
		slog.String("fallback", string(f.mode)),
		slog.String("error", err.Error()),
	)
	if f.onFallback != nil {
		f.onFallback(f.mode)
	}

	switch f.mode {
	case FallbackOpen:
		return true, nil
	case FallbackMemory:
		return f.secondary.Allow(ctx, key)
	default:
		return false, err
	}
}
