// metrics.go — Prometheus HTTP метрики Consult Portal.
// Регистрирует метрики: cp_http_requests_total, cp_http_request_duration_seconds.
// Неизвестные пути сводятся к одному лейблу, чтобы не раздувать кардинальность.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cp_http_requests_total",
			Help: "Общее количество HTTP-запросов к Consult Portal",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cp_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Consult Portal в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// knownPaths — пути, для которых ведутся отдельные лейблы.
var knownPaths = map[string]bool{
	"/health/live":               true,
	"/health/ready":              true,
	"/metrics":                   true,
	"/diagnostics":               true,
	"/api/v1/consultant-clients": true,
	"/api/v1/accounting/lookup":  true,
	"/api/v1/messages/list":      true,
	"/api/v1/diagnostics":        true,
}

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	return "other"
}
