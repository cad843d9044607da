package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"energy-agent/internal/auth"
)

// Auth verifies the bearer token and stores the identity in the request
// context. Every failure gets the same 401 body.
func Auth(verifier auth.Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			token, ok := bearerToken(r)
			if !ok {
				logger.Warn("authentication failed",
					slog.String("reason", "missing_token"),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", requestID),
				)
				writeAuthError(w, requestID)
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				reason := "invalid_token"
				if !errors.Is(err, auth.ErrUnauthorized) {
					reason = "verifier_error"
				}
				logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", requestID),
					slog.String("error", err.Error()),
				)
				writeAuthError(w, requestID)
				return
			}

			ctx := auth.WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, requestID string) {
	WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", requestID)
}
