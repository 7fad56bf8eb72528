package server

import (
	"net/http"

	"scholarcamp/internal/apiserver/admin"
	"scholarcamp/internal/apiserver/auth"
	"scholarcamp/internal/apiserver/bookmark"
	"scholarcamp/internal/apiserver/forum"
	"scholarcamp/internal/apiserver/listing"
	"scholarcamp/internal/apiserver/user"
)

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查:
//   - GET /health - 服务健康检查
//   - GET /metrics - Prometheus 指标
//
// 认证 (Auth):
//   - POST /api/auth/register / login / forgot-password / reset-password/{token}
//   - GET  /api/auth/me
//   - PUT  /api/auth/update
//
// 资料 (Listing):
//   - GET    /api/listings/all | /api/listings/{id} | /api/listings/my-uploads
//   - GET    /api/listings/search/query?q= | /api/listings/{id}/download
//   - POST   /api/listings/upload
//   - PUT    /api/listings/{id}
//   - DELETE /api/listings/{id}
//
// 收藏 (Bookmark):
//   - PATCH /api/listings/{id}/bookmark
//   - GET   /api/listings/bookmarks/my
//
// 用户 (User):
//   - PUT /api/users/change-password | profile/toggle-public | profile/update | update-socials
//   - GET /api/users/profile/stats | /api/users/public/{id}
//
// 论坛 (Forum):
//   - GET/POST /api/forum/posts | /api/forum/posts/{id}/replies
//
// 管理 (Admin, 需 admin 角色):
//   - GET    /api/users/all | /api/users/stats/roles | /api/listings/admin/all
//   - GET    /api/listings/stats/{monthly-uploads,top-uploaders,file-types}
//   - DELETE /api/users/{id}
//   - POST   /api/users/bulk-delete | /api/listings/bulk-delete
//
// 中间件从外到内：CORS → 限流 → 认证 → 指标 → 路由。
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查与 Prometheus 指标端点
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", MetricsHandler())

	authCfg := auth.Config{
		JWTSecret: h.cfg.Auth.JWTSecret,
		TokenTTL:  h.cfg.Auth.TokenTTL,
	}

	// 认证接口
	authHandler := auth.NewHandler(h.store, authCfg, h.cfg.Server.ClientOrigin)
	authHandler.RegisterRoutes(mux)

	// 对象存储读写经指标包装层计数
	objects := InstrumentObjectStore(h.objects, h.metrics)

	// 资料接口
	listingHandler := listing.NewHandler(h.store, objects)
	listingHandler.RegisterRoutes(mux)

	// 收藏接口
	bookmarkHandler := bookmark.NewHandler(h.store)
	bookmarkHandler.RegisterRoutes(mux)

	// 用户接口
	userHandler := user.NewHandler(h.store)
	userHandler.RegisterRoutes(mux)

	// 论坛接口
	forumHandler := forum.NewHandler(h.store)
	forumHandler.RegisterRoutes(mux)

	// 管理接口（路由内部做 admin 角色门禁）
	adminHandler := admin.NewHandler(h.store, objects)
	adminHandler.RegisterRoutes(mux)

	// 应用指标中间件
	handler := h.metrics.MetricsMiddleware(mux)

	// 应用认证中间件
	handler = auth.Middleware(authCfg)(handler)

	// 认证入口限流（limiter 为 nil 或未启用时直接透传）
	if h.limiter != nil && h.cfg.RateLimit.Enabled {
		handler = auth.RateLimit(h.limiter, h.cfg.RateLimit.Limit, h.cfg.RateLimit.Window)(handler)
	}

	// 应用 CORS 中间件
	return corsMiddleware(h.cfg.Server.ClientOrigin, handler)
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
