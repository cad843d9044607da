package middleware

import "net/http"

// MaxBodySize caps request bodies at limit bytes. Handlers see a read error
// once the limit is crossed.
func MaxBodySize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 && r.Body != nil {
				if r.ContentLength > limit {
					WriteError(w, http.StatusRequestEntityTooLarge, "INVALID_INPUT", "Request body too large", GetRequestID(r.Context()))
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
