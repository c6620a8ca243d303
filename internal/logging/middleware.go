package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// probePaths are polled by orchestrators and scrapers; successful hits are
// logged at debug level only.
var probePaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// Middleware logs one line per request and stores a request-scoped logger
// carrying the chi request ID in the request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			reqLogger := logger.WithFields(map[string]interface{}{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
			})

			ctx := context.WithValue(r.Context(), ctxLoggerKey{}, &CtxLogger{reqLogger})
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := map[string]interface{}{
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"latency_ms": float64(time.Since(start).Microseconds()) / 1000.0,
				"remote":     r.RemoteAddr,
			}
			switch {
			case ww.Status() >= http.StatusInternalServerError:
				fields["error"] = http.StatusText(ww.Status())
				reqLogger.Error("Request failed", fields)
			case ww.Status() >= http.StatusBadRequest:
				fields["error"] = http.StatusText(ww.Status())
				reqLogger.Warn("Request rejected", fields)
			case probePaths[r.URL.Path]:
				reqLogger.Debug("Request completed", fields)
			default:
				reqLogger.Info("Request completed", fields)
			}
		})
	}
}
