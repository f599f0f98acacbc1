package middleware

import (
	"net/http"

	"github.com/davidbz/hearth/internal/config"
)

// BodyLimit creates a middleware that caps request body size so one oversized
// payload cannot exhaust memory.
func BodyLimit(cfg *config.ServerConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg != nil && cfg.MaxBodyBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxBodyBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
