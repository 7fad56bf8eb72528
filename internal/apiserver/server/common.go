// Package server 路由配置与核心基础设施
//
// 本包把各领域包（auth/listing/bookmark/user/forum/admin）的路由装配成
// 一个 http.Handler，并在外层套上指标、认证、限流与 CORS 中间件。
//
// 文件组织：
//   - common.go: Handler 定义与通用工具
//   - handler.go: 路由装配与中间件
//   - metrics.go: Prometheus 指标
package server

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"scholarcamp/internal/apiserver/auth"
	"scholarcamp/internal/apiserver/listing"
	"scholarcamp/internal/config"
	"scholarcamp/internal/shared/storage"
)

// Handler API 处理器
//
// Handler 是所有 HTTP API 的入口，负责：
//   - 将请求分发到各领域处理器
//   - 管理存储层与对象存储连接
//   - 维护 Prometheus 指标
type Handler struct {
	store   storage.PersistentStore // MongoDB 存储层
	objects listing.ObjectStore     // MinIO 对象存储
	limiter auth.Limiter            // 认证入口限流器（可为 nil）
	cfg     *config.Config

	metrics *Metrics
}

// NewHandler 创建 Handler 实例
//
// limiter 为 nil 时禁用认证入口限流。
func NewHandler(store storage.PersistentStore, objects listing.ObjectStore,
	limiter auth.Limiter, cfg *config.Config) *Handler {
	return &Handler{
		store:   store,
		objects: objects,
		limiter: limiter,
		cfg:     cfg,
		metrics: NewMetrics("scholarcamp", prometheus.DefaultRegisterer),
	}
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 用于负载均衡器和监控系统检查服务状态。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
