// Package ratelimit enforces per-user request quotas for the chat endpoint.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Limiter decides whether one more request for key fits in its quota.
// A non-nil error means the decision could not be made.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory is a process-local sliding-window limiter. Each key keeps the
// timestamps of its accepted requests inside the window; rejected attempts
// are not recorded.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewMemory creates a limiter allowing limit requests per window.
func NewMemory(limit int, window time.Duration) (*Memory, error) {
	if limit <= 0 {
		return nil, errors.New("ratelimit: limit must be positive")
	}
	if window <= 0 {
		return nil, errors.New("ratelimit: window must be positive")
	}
	return &Memory{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}, nil
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	hits := prune(m.hits[key], now.Add(-m.window))
	if len(hits) >= m.limit {
		m.hits[key] = hits
		return false, nil
	}
	m.hits[key] = append(hits, now)
	return true, nil
}

// Cleanup drops keys with no accepted request inside the window and
// returns how many were removed.
func (m *Memory) Cleanup() int {
	cutoff := m.now().Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, hits := range m.hits {
		hits = prune(hits, cutoff)
		if len(hits) == 0 {
			delete(m.hits, k)
			removed++
			continue
		}
		m.hits[k] = hits
	}
	return removed
}

// Keys reports how many keys are currently tracked.
func (m *Memory) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hits)
}

// StartJanitor runs Cleanup every interval until ctx is cancelled. The
// returned channel is closed once the goroutine has exited.
func (m *Memory) StartJanitor(ctx context.Context, every time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if every <= 0 {
		close(done)
		return done
	}

	t := time.NewTicker(every)
	go func() {
		defer close(done)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Cleanup()
			}
		}
	}()
	return done
}

// prune drops timestamps at or before cutoff. hits is sorted ascending.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}
