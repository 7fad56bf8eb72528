package auth

import (
	"context"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"scholarcamp/internal/shared/model"
)

// 免认证路由前缀匹配（method + path 前缀）
var publicPrefixes = []string{
	"POST /api/auth/register",
	"POST /api/auth/login",
	"POST /api/auth/forgot-password",
	"POST /api/auth/reset-password/",
	"GET /api/users/public/",
	"GET /health",
	"GET /metrics",
}

// 免认证路由精确匹配
var publicExact = map[string]bool{
	"GET /api/listings/all":          true,
	"GET /api/listings/search/query": true,
	"GET /api/forum/posts":           true,
}

// isPublicRoute 判断路由是否免认证
func isPublicRoute(method, path string) bool {
	key := method + " " + path
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	if publicExact[key] {
		return true
	}

	// 公开浏览：GET /api/listings/{id}、GET /api/listings/{id}/download、
	// GET /api/forum/posts/{id}/replies
	if method == http.MethodGet {
		if rest, ok := strings.CutPrefix(path, "/api/listings/"); ok {
			// my-uploads 是登录用户的个人视图，不算公开详情
			if rest != "" && rest != "my-uploads" && !strings.Contains(rest, "/") {
				return true
			}
			if strings.HasSuffix(rest, "/download") && strings.Count(rest, "/") == 1 {
				return true
			}
		}
		if rest, ok := strings.CutPrefix(path, "/api/forum/posts/"); ok {
			if strings.HasSuffix(rest, "/replies") && strings.Count(rest, "/") == 1 {
				return true
			}
		}
	}
	return false
}

// Middleware 创建 JWT 认证中间件
//
// 公开路由直接放行；其余路由要求合法 Bearer Token，
// 解析出的 AuthUser 注入 context 供下游使用。
// 如果 cfg.Enabled() == false，直接放行所有请求（无认证模式）。
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 无认证模式：直接放行
			if !cfg.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			// 公开路由：直接放行
			if isPublicRoute(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// 提取 Bearer Token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				http.Error(w, `{"error":"invalid authorization header"}`, http.StatusUnauthorized)
				return
			}

			// 解析 JWT
			claims, err := ParseToken(cfg, parts[1])
			if err != nil {
				log.Printf("[auth] token parse error: %v", err)
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			// 注入 auth user 到 context
			user := &AuthUser{
				ID:    claims.Subject,
				Email: claims.Email,
				Role:  claims.Role,
			}
			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), user)))
		})
	}
}

// UserGetter 管理员校验所需的最小存储接口
type UserGetter interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// AdminOnly 管理员专属路由中间件
//
// 角色以数据库为准：令牌中的角色声明是签发时的快照，降级后仍可能带着
// admin 声明，所以这里重查一次用户记录。
func AdminOnly(store UserGetter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authUser := GetAuthUser(r.Context())
		if authUser == nil {
			http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
			return
		}

		user, err := store.GetUserByID(r.Context(), authUser.ID)
		if err != nil {
			log.Printf("[auth] admin check GetUserByID error: %v", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		if user == nil || !user.IsAdmin() {
			http.Error(w, `{"error":"admin access required"}`, http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// ============================================================================
// 限流
// ============================================================================

// Limiter 固定窗口限流器（Redis 实现）
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) bool
}

// RateLimit 对认证入口（注册/登录/找回密码）做按来源 IP 的固定窗口限流
// limiter 为 nil 时整体禁用
func RateLimit(limiter Limiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || !isThrottledRoute(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			key := "ratelimit:auth:" + clientIP(r)
			if !limiter.Allow(r.Context(), key, limit, window) {
				http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isThrottledRoute 凭据相关的公开入口才限流
func isThrottledRoute(method, path string) bool {
	if method != http.MethodPost {
		return false
	}
	switch path {
	case "/api/auth/register", "/api/auth/login", "/api/auth/forgot-password":
		return true
	}
	return strings.HasPrefix(path, "/api/auth/reset-password/")
}

// clientIP 提取请求来源 IP，优先取 X-Forwarded-For 首项
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
