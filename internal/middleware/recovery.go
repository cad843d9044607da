package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recoverer recovers from panics, logs them and answers with the standard
// INTERNAL_ERROR body.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := GetRequestID(r.Context())
				logger.Error("panic recovered",
					slog.String("request_id", requestID),
					slog.Any("panic", rvr),
					slog.String("stack", string(debug.Stack())),
				)
				WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", requestID)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
