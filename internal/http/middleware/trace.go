package middleware

import (
	"net/http"

	"github.com/davidbz/hearth/internal/observability"
)

// Trace creates a middleware that injects trace, span and correlation IDs
// into every request. The correlation ID is echoed back to the client and
// stamped on every streamed chunk for the request.
func Trace() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			traceID := observability.GenerateTraceID()
			ctx = observability.WithTraceID(ctx, traceID)

			spanID := observability.GenerateSpanID()
			ctx = observability.WithSpanID(ctx, spanID)

			correlationID := r.Header.Get("X-Correlation-Id")
			if correlationID == "" {
				correlationID = observability.GenerateCorrelationID()
			}
			ctx = observability.WithCorrelationID(ctx, correlationID)

			w.Header().Set("X-Trace-Id", traceID)
			w.Header().Set("X-Correlation-Id", correlationID)

			contextLogger := observability.FromContext(ctx)
			contextLogger.Info("request started",
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.String("remote_addr", r.RemoteAddr),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
