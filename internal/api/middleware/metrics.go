// metrics.go — Prometheus HTTP метрики.
// Регистрирует метрики: vp_http_requests_total, vp_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vp_http_requests_total",
			Help: "Общее количество HTTP-запросов",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — длительность до завершения ответа (для потоков — до последней части).
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vp_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			wrapped := newStatusWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет идентификаторы в пути на шаблоны.
// /download/abc123 → /download/{file_id}
// /api/v1/users/42/stats → /api/v1/users/{user_id}/stats
func normalizePath(path string) string {
	switch path {
	case "/", "/health/live", "/health/ready", "/metrics":
		return path
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(segments) == 2 && segments[0] == "download":
		return "/download/{file_id}"
	case len(segments) == 2 && segments[0] == "stream":
		return "/stream/{file_id}"
	case len(segments) == 4 && segments[0] == "api" && segments[1] == "v1" && segments[2] == "files":
		return "/api/v1/files/{file_id}"
	case len(segments) == 5 && segments[0] == "api" && segments[1] == "v1" && segments[2] == "users":
		switch segments[4] {
		case "stats", "earnings":
			return "/api/v1/users/{user_id}/" + segments[4]
		}
	}
	return "other"
}
