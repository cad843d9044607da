// Package middleware provides the HTTP middleware chain for the API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const (
	RequestIDHeader = "X-Request-ID"
	// CorrelationIDHeader is accepted as an alias and echoed back for
	// API Gateway callers.
	CorrelationIDHeader = "X-Correlation-Id"
)

const maxRequestIDLen = 128

// RequestID injects a request id into the context and response headers.
// An inbound X-Request-ID or X-Correlation-Id is reused; otherwise a UUID
// is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := inboundRequestID(r)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		w.Header().Set(CorrelationIDHeader, requestID)

		ctx := WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func inboundRequestID(r *http.Request) string {
	for _, h := range []string{RequestIDHeader, CorrelationIDHeader} {
		v := strings.TrimSpace(r.Header.Get(h))
		if v != "" && len(v) <= maxRequestIDLen {
			return v
		}
	}
	return ""
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
