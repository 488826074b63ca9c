// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LogMiddleware is an HTTP middleware that logs incoming requests using Logrus.
// Logs the method, path, and duration of each request.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := r.URL.Path
			method := r.Method

			next.ServeHTTP(w, r)

			duration := time.Since(start)
			logger.WithFields(logrus.Fields{
				"method":   method,
				"path":     path,
				"duration": duration,
				"remote":   r.RemoteAddr,
			}).Info("HTTP Request")
		})
	}
}

// LogSocketConnect records an authenticated socket attaching.
func LogSocketConnect(logger *logrus.Logger, userID string) {
	logger.WithField("userId", userID).Info("ws: socket connected")
}

// LogSocketDisconnect records a socket going away with the scope it last
// held. Sockets that never subscribed have no scope.
func LogSocketDisconnect(logger *logrus.Logger, userID, scope string) {
	fields := logrus.Fields{"userId": userID}
	if scope != "" {
		fields["scope"] = scope
	}
	logger.WithFields(fields).Info("ws: socket disconnected")
}
