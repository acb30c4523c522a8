// Package server Prometheus 指标导出
package server

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 包含所有 API Server 指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// 限流指标
	RateLimitedTotal prometheus.Counter

	// 商品指标
	ProductsTotal  *prometheus.GaugeVec
	InventoryValue prometheus.Gauge

	// 用户指标
	UsersActive prometheus.Gauge
}

// NewMetrics 创建指标实例
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		RateLimitedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_requests_total",
				Help:      "Total requests rejected by the rate limiter",
			},
		),
		ProductsTotal: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "products_total",
				Help:      "Total products by status",
			},
			[]string{"status"},
		),
		InventoryValue: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inventory_value",
				Help:      "Total inventory value (price times stock)",
			},
		),
		UsersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "users_active",
				Help:      "Number of active users",
			},
		),
	}
}

// MetricsMiddleware 创建 HTTP 指标中间件
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		// 包装 ResponseWriter 以捕获状态码
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)

		if wrapped.statusCode == http.StatusTooManyRequests {
			m.RateLimitedTotal.Inc()
		}
	})
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath 规范化路径，将 ID 替换为占位符
func normalizePath(path string) string {
	// 避免高基数标签
	// 例如 /api/v1/products/prd-123 -> /api/v1/products/{id}
	switch {
	case strings.HasPrefix(path, "/api/v1/products/admin/"):
		return path
	case strings.HasPrefix(path, "/api/v1/products/category/"):
		return "/api/v1/products/category/{category}"
	case strings.HasPrefix(path, "/api/v1/products/") && strings.HasSuffix(path, "/stock"):
		return "/api/v1/products/{id}/stock"
	case strings.HasPrefix(path, "/api/v1/products/") && strings.HasSuffix(path, "/discount"):
		return "/api/v1/products/{id}/discount"
	case strings.HasPrefix(path, "/api/v1/products/") && path != "/api/v1/products/featured":
		return "/api/v1/products/{id}"
	case strings.HasPrefix(path, "/api/v1/users/") && strings.HasSuffix(path, "/stats"):
		return "/api/v1/users/{id}/stats"
	case strings.HasPrefix(path, "/api/v1/users/"):
		return "/api/v1/users/{id}"
	default:
		return path
	}
}

// MetricsHandler 返回 Prometheus HTTP Handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// StartStatsSampler 周期性采样业务指标
//
// 每个周期读取商品统计和活跃用户数写入 Gauge，
// 供 /metrics 端点导出。随 ctx 取消退出。
func (h *Handler) StartStatsSampler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sampleStats(ctx)
		}
	}
}

func (h *Handler) sampleStats(ctx context.Context) {
	stats, err := h.store.GetProductStats(ctx)
	if err != nil {
		log.Printf("[metrics] GetProductStats error: %v", err)
		return
	}
	for status, count := range stats.ByStatus {
		h.metrics.ProductsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
	h.metrics.InventoryValue.Set(stats.InventoryValue)

	users, err := h.store.ListUsers(ctx, false)
	if err != nil {
		log.Printf("[metrics] ListUsers error: %v", err)
		return
	}
	h.metrics.UsersActive.Set(float64(len(users)))
}
