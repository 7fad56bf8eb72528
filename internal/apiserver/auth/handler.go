package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"time"

	"scholarcamp/internal/shared/model"
	"scholarcamp/internal/shared/storage"
)

// UserStore 用户存储接口（认证域所需的窄接口）
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUserProfile(ctx context.Context, id, name, email string) error
	UpdateUserRole(ctx context.Context, id string, role model.UserRole) error
	SetUserResetToken(ctx context.Context, id, token string, expiry time.Time) error
	GetUserByResetToken(ctx context.Context, token string) (*model.User, error)
	ResetUserPassword(ctx context.Context, id, passwordHash string) error
}

// Handler 认证 HTTP 处理器
type Handler struct {
	store  UserStore
	cfg    Config
	origin string // 前端地址，用于拼接找回密码链接
}

// NewHandler 创建认证处理器
func NewHandler(store UserStore, cfg Config, clientOrigin string) *Handler {
	return &Handler{store: store, cfg: cfg, origin: clientOrigin}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/forgot-password", h.ForgotPassword)
	mux.HandleFunc("POST /api/auth/reset-password/{token}", h.ResetPassword)
	mux.HandleFunc("GET /api/auth/me", h.Me)
	mux.HandleFunc("PUT /api/auth/update", h.UpdateProfile)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type updateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type authResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// ============================================================================
// Handlers
// ============================================================================

// Register 用户注册
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "name, email, password are required")
		return
	}
	if !isValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email format")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	// 检查邮箱是否已注册
	existing, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("[auth.register] GetUserByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}

	// 哈希密码
	hash, err := HashPassword(req.Password)
	if err != nil {
		log.Printf("[auth.register] HashPassword error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	user := &model.User{
		ID:           generateID("usr"),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         model.UserRoleUser,
		Bookmarks:    []string{},
		Settings:     model.UserSettings{PublicProfile: true},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		// 并发注册同一邮箱时唯一索引兜底
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		log.Printf("[auth.register] CreateUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	token, err := GenerateToken(h.cfg, user.ID, user.Email, string(user.Role))
	if err != nil {
		log.Printf("[auth.register] GenerateToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[auth] User registered: %s (%s)", user.Email, user.ID)
	writeJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

// Login 用户登录
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("[auth.login] GetUserByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil || !CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, err := GenerateToken(h.cfg, user.ID, user.Email, string(user.Role))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[auth] User logged in: %s", user.Email)
	writeJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}

// ForgotPassword 签发找回密码令牌
//
// 邮件投递不在范围内，重置链接直接打日志。
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("[auth.forgot] GetUserByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found with this email")
		return
	}

	token := generateResetToken()
	expiry := time.Now().Add(time.Hour)
	if err := h.store.SetUserResetToken(r.Context(), user.ID, token, expiry); err != nil {
		log.Printf("[auth.forgot] SetUserResetToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[auth] Password reset link for %s: %s/reset-password/%s", user.Email, h.origin, token)
	writeJSON(w, http.StatusOK, map[string]string{"message": "password reset link sent"})
}

// ResetPassword 消费找回密码令牌并写入新密码
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := h.store.GetUserByResetToken(r.Context(), token)
	if err != nil {
		log.Printf("[auth.reset] GetUserByResetToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusBadRequest, "invalid or expired token")
		return
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.store.ResetUserPassword(r.Context(), user.ID, hash); err != nil {
		log.Printf("[auth.reset] ResetUserPassword error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	log.Printf("[auth] Password reset for %s", user.Email)
	writeJSON(w, http.StatusOK, map[string]string{"message": "password has been reset"})
}

// Me 获取当前用户信息
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil || user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile 更新姓名/邮箱
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" && req.Email == "" {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.Email != "" && !isValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email format")
		return
	}

	if err := h.store.UpdateUserProfile(r.Context(), authUser.ID, req.Name, req.Email); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "email already in use")
			return
		}
		log.Printf("[auth.update] UpdateUserProfile error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil || user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "profile updated", "user": user})
}

// ============================================================================
// Admin Bootstrap
// ============================================================================

// EnsureAdminUser 确保管理员用户存在（启动时调用）
// 如果配置了 adminEmail 且数据库中不存在该用户，则自动创建；
// 已存在但不是 admin 时升级角色。
func EnsureAdminUser(store UserStore, adminEmail, adminPassword string) error {
	if adminEmail == "" || adminPassword == "" {
		return nil
	}

	ctx := context.Background()
	existing, err := store.GetUserByEmail(ctx, adminEmail)
	if err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if existing != nil {
		if !existing.IsAdmin() {
			log.Printf("[auth] Upgrading user %s to admin role", adminEmail)
			return store.UpdateUserRole(ctx, existing.ID, model.UserRoleAdmin)
		}
		log.Printf("[auth] Admin user already exists: %s (%s)", adminEmail, existing.ID)
		return nil
	}

	hash, err := HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           generateID("usr"),
		Name:         "Admin",
		Email:        adminEmail,
		PasswordHash: hash,
		Role:         model.UserRoleAdmin,
		Bookmarks:    []string{},
		Settings:     model.UserSettings{PublicProfile: false},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Printf("[auth] Created admin user: %s (%s)", adminEmail, user.ID)
	return nil
}

// ============================================================================
// 工具函数
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// generateID 生成带前缀的随机 ID
// 格式：prefix-xxxxxxxxxxxx（prefix + 12 字符 hex）
func generateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}

// generateResetToken 生成找回密码令牌（20 字节 hex）
func generateResetToken() string {
	b := make([]byte, 20)
	rand.Read(b)
	return hex.EncodeToString(b)
}
