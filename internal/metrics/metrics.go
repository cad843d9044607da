// Package metrics provides instrumentation hooks for the API.
package metrics

import (
	"net/http"
	"time"
)

// Recorder captures metric events for the application.
type Recorder interface {
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)

	// outcome is "ok", "rejected" or "failed"; code is the error code, if any.
	IncChatOutcome(outcome, code string)
	IncRateLimited()
	IncLimiterFallback(mode string)

	IncUpstreamRetry(status int)
}

// Exposer is implemented by recorders that can serve a scrape endpoint.
type Exposer interface {
	Handler() http.Handler
}
