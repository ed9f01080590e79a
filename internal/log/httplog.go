package log

import (
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
)

// HTTPMiddleware logs one line per API request with method, path, status, size and duration
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		LogHTTPRequest(r.Method, r.URL.Path, m.Code, m.Duration, m.Written, r.RemoteAddr, r.UserAgent())
	})
}

// LogHTTPRequest writes an HTTP request/response log entry
func LogHTTPRequest(method, path string, status int, duration time.Duration, size int64, remoteAddr, userAgent string) {
	fields := []any{
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"size", size,
		"remote_addr", remoteAddr,
		"user_agent", userAgent,
	}

	if status >= http.StatusInternalServerError {
		Errorw("http request", fields...)
		return
	}
	Debugw("http request", fields...)
}
