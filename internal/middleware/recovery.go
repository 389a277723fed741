package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"crmbridge/internal/metrics"
	"crmbridge/internal/service"
	"crmbridge/internal/tracing"

	"github.com/sirupsen/logrus"
)

// Recovery turns a handler panic into a 500 response so the server keeps serving
func Recovery(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				metrics.IncrementCounter(metrics.HTTPPanicsTotal, map[string]string{"route": routeTemplate(r)}, "Recovered handler panics")
				logger.WithFields(logrus.Fields{
					service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
					service.LogFieldMethod:    r.Method,
					service.LogFieldURL:       r.URL.Path,
					"panic":                   rec,
					"stack":                   string(debug.Stack()),
				}).Error("Recovered from handler panic")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"ok":    false,
					"error": "Internal server error",
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// MaxBody caps the size of request bodies
func MaxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
