package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds CORS configuration options.
type CORSConfig struct {
	// AllowedOrigins lists exact origins or "*.example.com" patterns.
	// "*" allows any origin; it is never combined with credentials.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         int
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
			RequestIDHeader,
			CorrelationIDHeader,
			"Accept",
		},
		ExposedHeaders: []string{RequestIDHeader, CorrelationIDHeader},
		MaxAge:         86400,
	}
}

// CORS handles cross-origin requests and answers preflights directly.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")
	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	exact := make(map[string]bool, len(cfg.AllowedOrigins))
	var suffixes []string
	anyOrigin := false
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.ToLower(strings.TrimSpace(origin))
		switch {
		case origin == "*":
			anyOrigin = true
		case strings.HasPrefix(origin, "*."):
			suffixes = append(suffixes, origin[1:])
		case origin != "":
			exact[origin] = true
		}
	}

	allowed := func(origin string) bool {
		if anyOrigin {
			return true
		}
		o := strings.ToLower(origin)
		if exact[o] {
			return true
		}
		for _, suffix := range suffixes {
			// The leading dot in suffix keeps "notexample.com" from matching.
			if strings.HasSuffix(o, suffix) && !strings.HasSuffix(strings.TrimSuffix(o, suffix), "://") {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !allowed(origin) {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			if exposed != "" {
				w.Header().Set("Access-Control-Expose-Headers", exposed)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				if maxAge != "" {
					w.Header().Set("Access-Control-Max-Age", maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
