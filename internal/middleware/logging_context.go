package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"cachegate/pkg/logging"
)

// LoggingContext attaches a request-scoped logger to the context.
func LoggingContext(baseLogger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			reqLogger := baseLogger.With(
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)

			// Request ID from chi middleware (or empty string if not set)
			if reqID := chimw.GetReqID(ctx); reqID != "" {
				reqLogger = reqLogger.With(zap.String("request_id", reqID))
			}

			// Real IP from chi's RealIP middleware (or RemoteAddr fallback)
			if remoteIP := r.RemoteAddr; remoteIP != "" {
				reqLogger = reqLogger.With(zap.String("remote_ip", remoteIP))
			}

			ctx = logging.WithLogger(ctx, reqLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
