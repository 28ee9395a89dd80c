package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// responseWriter captures the status code written by a handler
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// withTimeout bounds the context of a request so a stuck backend fails
// this request only.
func (s *Server) withTimeout(next http.HandlerFunc) http.HandlerFunc {
	if s.config.RequestTimeout <= 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// withMetrics counts requests per route and status code. pattern is a
// ServeMux pattern such as "GET /game-data/{$}".
func withMetrics(pattern string, next http.HandlerFunc) http.HandlerFunc {
	method, path, _ := strings.Cut(strings.TrimSuffix(pattern, "{$}"), " ")
	labels := fmt.Sprintf(`method=%q,path=%q`, method, path)
	duration := metrics.GetOrCreateHistogram(`phantom_http_request_duration_seconds{` + labels + `}`)
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration.UpdateDuration(start)
		metrics.GetOrCreateCounter(fmt.Sprintf(`phantom_http_requests_total{%s,code="%d"}`, labels, rw.statusCode)).Inc()
	}
}

// loggerMiddleware logs every request at debug level
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	}
}
