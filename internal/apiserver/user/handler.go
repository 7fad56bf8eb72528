// Package user 实现个人资料管理与公开主页
package user

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"scholarcamp/internal/apiserver/auth"
	"scholarcamp/internal/shared/model"
	"scholarcamp/internal/shared/storage"
)

// Store 用户域所需的存储子集
type Store interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUserProfile(ctx context.Context, id, name, email string) error
	UpdateUserSocials(ctx context.Context, id, linkedin, instagram string) error
	SetUserPublicProfile(ctx context.Context, id string, public bool) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	ListListingsByUploader(ctx context.Context, userID string) ([]*model.Listing, error)
}

// Handler 用户 HTTP 处理器
type Handler struct {
	store Store
}

// NewHandler 创建用户处理器
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册用户相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PUT /api/users/change-password", h.ChangePassword)
	mux.HandleFunc("GET /api/users/profile/stats", h.ProfileStats)
	mux.HandleFunc("PUT /api/users/profile/toggle-public", h.TogglePublic)
	mux.HandleFunc("PUT /api/users/profile/update", h.UpdateProfile)
	mux.HandleFunc("PUT /api/users/update-socials", h.UpdateSocials)
	mux.HandleFunc("GET /api/users/public/{id}", h.PublicProfile)
}

// ============================================================================
// 密码修改
// ============================================================================

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword 修改密码（需验证旧密码）
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if !auth.CheckPassword(req.OldPassword, user.PasswordHash) {
		writeError(w, http.StatusBadRequest, "old password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.store.UpdateUserPassword(r.Context(), authUser.ID, hash); err != nil {
		log.Printf("[user.password] UpdateUserPassword error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update password")
		return
	}

	log.Printf("[user] Password changed: %s", authUser.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated successfully"})
}

// ============================================================================
// 个人主页
// ============================================================================

type profileStatsResponse struct {
	TotalUploads  int              `json:"total_uploads"`
	PeopleHelped  int64            `json:"people_helped"`
	PublicProfile bool             `json:"public_profile"`
	Uploads       []*model.Listing `json:"uploads"`
}

// ProfileStats 当前用户的上传统计与列表
func (h *Handler) ProfileStats(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil || user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	uploads, err := h.store.ListListingsByUploader(r.Context(), authUser.ID)
	if err != nil {
		log.Printf("[user.stats] ListListingsByUploader error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}
	if uploads == nil {
		uploads = []*model.Listing{}
	}

	// "帮助人数" 取下载计数之和，至少等于上传数
	var helped int64
	for _, l := range uploads {
		helped += l.DownloadCount
	}
	if helped < int64(len(uploads)) {
		helped = int64(len(uploads))
	}

	writeJSON(w, http.StatusOK, profileStatsResponse{
		TotalUploads:  len(uploads),
		PeopleHelped:  helped,
		PublicProfile: user.Settings.PublicProfile,
		Uploads:       uploads,
	})
}

// TogglePublic 切换个人主页公开状态
func (h *Handler) TogglePublic(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil || user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	next := !user.Settings.PublicProfile
	if err := h.store.SetUserPublicProfile(r.Context(), authUser.ID, next); err != nil {
		log.Printf("[user.visibility] SetUserPublicProfile error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update visibility")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"public_profile": next})
}

type updateProfileRequest struct {
	Name     string `json:"name"`
	Settings *struct {
		PublicProfile *bool `json:"public_profile"`
	} `json:"settings"`
}

// UpdateProfile 更新姓名与主页设置
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != "" {
		if err := h.store.UpdateUserProfile(r.Context(), authUser.ID, req.Name, ""); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, "user not found")
				return
			}
			log.Printf("[user.update] UpdateUserProfile error: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to update profile")
			return
		}
	}
	if req.Settings != nil && req.Settings.PublicProfile != nil {
		if err := h.store.SetUserPublicProfile(r.Context(), authUser.ID, *req.Settings.PublicProfile); err != nil {
			log.Printf("[user.update] SetUserPublicProfile error: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to update profile")
			return
		}
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil || user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "profile updated", "user": user})
}

type updateSocialsRequest struct {
	LinkedIn  string `json:"linkedin"`
	Instagram string `json:"instagram"`
}

// UpdateSocials 更新社交链接
func (h *Handler) UpdateSocials(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req updateSocialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.store.UpdateUserSocials(r.Context(), authUser.ID, req.LinkedIn, req.Instagram); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		log.Printf("[user.socials] UpdateUserSocials error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update social links")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil || user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": user})
}

// ============================================================================
// 公开主页
// ============================================================================

type publicProfileResponse struct {
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	Role      model.UserRole   `json:"role"`
	LinkedIn  string           `json:"linkedin"`
	Instagram string           `json:"instagram"`
	Uploads   []*model.Listing `json:"uploads"`
}

// PublicProfile 查看指定用户的公开主页（免认证）
//
// 用户关闭公开开关后返回 403。
func (h *Handler) PublicProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		log.Printf("[user.public] GetUserByID error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if !user.Settings.PublicProfile {
		writeError(w, http.StatusForbidden, "this profile is private")
		return
	}

	uploads, err := h.store.ListListingsByUploader(r.Context(), id)
	if err != nil {
		log.Printf("[user.public] ListListingsByUploader error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch profile")
		return
	}
	if uploads == nil {
		uploads = []*model.Listing{}
	}

	writeJSON(w, http.StatusOK, publicProfileResponse{
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		LinkedIn:  user.LinkedIn,
		Instagram: user.Instagram,
		Uploads:   uploads,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
