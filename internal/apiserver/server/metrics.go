// Package server Prometheus 指标导出
package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scholarcamp/internal/apiserver/listing"
)

// Metrics 包含所有 API Server 指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// 业务指标
	UploadsTotal         prometheus.Counter
	DownloadsTotal       prometheus.Counter
	BookmarkTogglesTotal prometheus.Counter

	// 对象存储指标
	ObjectOpsTotal *prometheus.CounterVec
}

// NewMetrics 创建指标实例并注册到指定 Registerer
// reg 为 nil 时使用默认全局注册表
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		UploadsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listing_uploads_total",
				Help:      "Total listing uploads",
			},
		),
		DownloadsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listing_downloads_total",
				Help:      "Total listing downloads",
			},
		),
		BookmarkTogglesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bookmark_toggles_total",
				Help:      "Total bookmark toggles",
			},
		),
		ObjectOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "object_store_ops_total",
				Help:      "Total object store operations",
			},
			[]string{"op", "result"},
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

		// 业务计数走同一处出口，避免在各领域包里散布指标依赖
		if wrapped.statusCode < 400 {
			switch {
			case r.Method == http.MethodPost && path == "/api/listings/upload":
				m.UploadsTotal.Inc()
			case r.Method == http.MethodGet && path == "/api/listings/{id}/download":
				m.DownloadsTotal.Inc()
			case r.Method == http.MethodPatch && path == "/api/listings/{id}/bookmark":
				m.BookmarkTogglesTotal.Inc()
			}
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

// normalizePath 规范化路径，将 ID 替换为占位符，避免指标高基数
func normalizePath(path string) string {
	if rest, ok := strings.CutPrefix(path, "/api/listings/"); ok {
		switch {
		case rest == "all", rest == "upload", rest == "my-uploads",
			strings.HasPrefix(rest, "search/"), strings.HasPrefix(rest, "stats/"),
			strings.HasPrefix(rest, "bookmarks/"), rest == "admin/all", rest == "bulk-delete":
			return path
		case strings.HasSuffix(rest, "/download"):
			return "/api/listings/{id}/download"
		case strings.HasSuffix(rest, "/bookmark"):
			return "/api/listings/{id}/bookmark"
		case !strings.Contains(rest, "/"):
			return "/api/listings/{id}"
		}
	}
	if rest, ok := strings.CutPrefix(path, "/api/users/"); ok {
		switch {
		case strings.HasPrefix(rest, "public/"):
			return "/api/users/public/{id}"
		case !strings.Contains(rest, "/") && rest != "all" && rest != "bulk-delete" &&
			rest != "change-password" && rest != "update-socials":
			return "/api/users/{id}"
		}
	}
	if rest, ok := strings.CutPrefix(path, "/api/forum/posts/"); ok {
		if strings.HasSuffix(rest, "/replies") {
			return "/api/forum/posts/{id}/replies"
		}
	}
	if strings.HasPrefix(path, "/api/auth/reset-password/") {
		return "/api/auth/reset-password/{token}"
	}
	return path
}

// MetricsHandler 返回 Prometheus HTTP Handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordObjectOp 记录对象存储操作指标
func (m *Metrics) RecordObjectOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ObjectOpsTotal.WithLabelValues(op, result).Inc()
}

// instrumentedObjectStore 包装对象存储，每次读写记一条操作指标
//
// 领域包只依赖 listing.ObjectStore 接口，指标采集集中在这一层，
// 不往各领域包散布指标依赖。
type instrumentedObjectStore struct {
	inner   listing.ObjectStore
	metrics *Metrics
}

// InstrumentObjectStore 为对象存储套上指标采集
func InstrumentObjectStore(inner listing.ObjectStore, metrics *Metrics) listing.ObjectStore {
	return &instrumentedObjectStore{inner: inner, metrics: metrics}
}

func (o *instrumentedObjectStore) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	err := o.inner.Upload(ctx, key, reader, size, contentType)
	o.metrics.RecordObjectOp("upload", err)
	return err
}

func (o *instrumentedObjectStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := o.inner.Download(ctx, key)
	o.metrics.RecordObjectOp("download", err)
	return rc, err
}

func (o *instrumentedObjectStore) Delete(ctx context.Context, key string) error {
	err := o.inner.Delete(ctx, key)
	o.metrics.RecordObjectOp("delete", err)
	return err
}

func (o *instrumentedObjectStore) PublicURL(key string) string {
	return o.inner.PublicURL(key)
}
