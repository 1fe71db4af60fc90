package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/talkbase/talkbase/pkg/composables"
	"github.com/talkbase/talkbase/pkg/configuration"
	"github.com/talkbase/talkbase/pkg/constants"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// WithLogger attaches a per-request logger entry (request id, method,
// path) to the context and logs one line per completed request.
func WithLogger(logger *logrus.Logger) mux.MiddlewareFunc {
	header := configuration.Use().RequestIDHeader
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(header)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			entry := logger.WithFields(logrus.Fields{
				"request_id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			ctx := composables.WithLogger(r.Context(), entry)
			ctx = context.WithValue(ctx, constants.RequestIDKey, requestID)

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r.WithContext(ctx))
			entry.WithFields(logrus.Fields{
				"status":   sw.status,
				"duration": time.Since(start).String(),
			}).Info("request completed")
		})
	}
}
