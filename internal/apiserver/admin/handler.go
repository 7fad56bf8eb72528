// Package admin 实现后台管理：用户管理、资料总览与仪表盘统计
//
// 所有路由经 auth.AdminOnly 包装，角色以数据库中的用户记录为准。
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path"
	"sort"
	"strings"

	"scholarcamp/internal/apiserver/auth"
	"scholarcamp/internal/shared/model"
	"scholarcamp/internal/shared/storage"
)

// 仪表盘展示的上传榜名额
const topUploaderLimit = 5

// Store 管理域所需的存储子集
type Store interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	DeleteUser(ctx context.Context, id string) error
	DeleteUsers(ctx context.Context, ids []string) (int64, error)
	CountUsersByRole(ctx context.Context) ([]storage.RoleCount, error)

	ListListings(ctx context.Context) ([]*model.Listing, error)
	ListListingsByUploader(ctx context.Context, userID string) ([]*model.Listing, error)
	GetListingsByIDs(ctx context.Context, ids []string) ([]*model.Listing, error)
	DeleteListings(ctx context.Context, ids []string) (int64, error)
	PullBookmarkFromAllUsers(ctx context.Context, listingID string) error
	ListListingsWithOwner(ctx context.Context) ([]*model.ListingWithOwner, error)
	MonthlyUploadStats(ctx context.Context) ([]storage.MonthlyUploads, error)
	TopUploaders(ctx context.Context, limit int) ([]storage.UploaderCount, error)
}

// ObjectStore 对象存储子集（级联删除文件用）
type ObjectStore interface {
	Delete(ctx context.Context, key string) error
}

// Handler 管理后台 HTTP 处理器
type Handler struct {
	store   Store
	objects ObjectStore
}

// NewHandler 创建管理处理器
func NewHandler(store Store, objects ObjectStore) *Handler {
	return &Handler{store: store, objects: objects}
}

// RegisterRoutes 注册管理路由（全部要求 admin 角色）
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	gate := func(fn http.HandlerFunc) http.HandlerFunc {
		return auth.AdminOnly(h.store, fn)
	}

	mux.HandleFunc("GET /api/users/all", gate(h.ListUsers))
	mux.HandleFunc("DELETE /api/users/{id}", gate(h.DeleteUser))
	mux.HandleFunc("POST /api/users/bulk-delete", gate(h.BulkDeleteUsers))
	mux.HandleFunc("GET /api/users/stats/roles", gate(h.RoleStats))

	mux.HandleFunc("GET /api/listings/admin/all", gate(h.ListListingsWithOwner))
	mux.HandleFunc("POST /api/listings/bulk-delete", gate(h.BulkDeleteListings))
	mux.HandleFunc("GET /api/listings/stats/monthly-uploads", gate(h.MonthlyUploads))
	mux.HandleFunc("GET /api/listings/stats/top-uploaders", gate(h.TopUploaders))
	mux.HandleFunc("GET /api/listings/stats/file-types", gate(h.FileTypes))
}

// ============================================================================
// 用户管理
// ============================================================================

// ListUsers 列出全部用户
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		log.Printf("[admin.users] ListUsers error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch users")
		return
	}
	if users == nil {
		users = []*model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// DeleteUser 删除用户
//
// 级联：删除该用户上传的全部资料（元数据 + MinIO 对象），并把这些资料
// 从所有用户的书签集合里移除。级联步骤失败只打日志。
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	h.cascadeDeleteUploads(r.Context(), id)

	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		log.Printf("[admin.users] DeleteUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	log.Printf("[admin] User deleted: %s (%s)", user.Email, id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// BulkDeleteUsers 批量删除用户
func (h *Handler) BulkDeleteUsers(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDs == nil {
		writeError(w, http.StatusBadRequest, "ids array is required")
		return
	}

	for _, id := range req.IDs {
		h.cascadeDeleteUploads(r.Context(), id)
	}

	deleted, err := h.store.DeleteUsers(r.Context(), req.IDs)
	if err != nil {
		log.Printf("[admin.users] DeleteUsers error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete users")
		return
	}

	log.Printf("[admin] Bulk deleted %d users", deleted)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "users deleted",
		"deleted": deleted,
	})
}

// cascadeDeleteUploads 删除指定用户的全部上传（元数据、对象、书签引用）
func (h *Handler) cascadeDeleteUploads(ctx context.Context, userID string) {
	listings, err := h.store.ListListingsByUploader(ctx, userID)
	if err != nil {
		log.Printf("[admin.cascade] ListListingsByUploader(%s) error: %v", userID, err)
		return
	}
	if len(listings) == 0 {
		return
	}

	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ID)
		if l.FileKey != "" {
			if err := h.objects.Delete(ctx, l.FileKey); err != nil {
				log.Printf("[admin.cascade] object delete failed for %s: %v", l.FileKey, err)
			}
		}
	}
	if _, err := h.store.DeleteListings(ctx, ids); err != nil {
		log.Printf("[admin.cascade] DeleteListings error: %v", err)
	}
	for _, id := range ids {
		if err := h.store.PullBookmarkFromAllUsers(ctx, id); err != nil {
			log.Printf("[admin.cascade] bookmark pull failed for %s: %v", id, err)
		}
	}
}

// ============================================================================
// 资料管理
// ============================================================================

// ListListingsWithOwner 资料总览（附上传者姓名与邮箱）
func (h *Handler) ListListingsWithOwner(w http.ResponseWriter, r *http.Request) {
	listings, err := h.store.ListListingsWithOwner(r.Context())
	if err != nil {
		log.Printf("[admin.listings] ListListingsWithOwner error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch listings")
		return
	}
	if listings == nil {
		listings = []*model.ListingWithOwner{}
	}
	writeJSON(w, http.StatusOK, listings)
}

// BulkDeleteListings 批量删除资料（含对象与书签引用的级联清理）
func (h *Handler) BulkDeleteListings(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDs == nil {
		writeError(w, http.StatusBadRequest, "ids array is required")
		return
	}

	// 删元数据前先取出对象 key
	listings, err := h.store.GetListingsByIDs(r.Context(), req.IDs)
	if err != nil {
		log.Printf("[admin.listings] GetListingsByIDs error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete listings")
		return
	}

	deleted, err := h.store.DeleteListings(r.Context(), req.IDs)
	if err != nil {
		log.Printf("[admin.listings] DeleteListings error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete listings")
		return
	}

	for _, l := range listings {
		if l.FileKey != "" {
			if err := h.objects.Delete(r.Context(), l.FileKey); err != nil {
				log.Printf("[admin.listings] object delete failed for %s: %v", l.FileKey, err)
			}
		}
		if err := h.store.PullBookmarkFromAllUsers(r.Context(), l.ID); err != nil {
			log.Printf("[admin.listings] bookmark pull failed for %s: %v", l.ID, err)
		}
	}

	log.Printf("[admin] Bulk deleted %d listings", deleted)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "listings deleted",
		"deleted": deleted,
	})
}

// ============================================================================
// 仪表盘统计
// ============================================================================

type monthlyBucket struct {
	Month string `json:"month"` // "M-YYYY"
	Count int64  `json:"count"`
}

// MonthlyUploads 按月上传统计（时间升序）
func (h *Handler) MonthlyUploads(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.MonthlyUploadStats(r.Context())
	if err != nil {
		log.Printf("[admin.stats] MonthlyUploadStats error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}

	buckets := make([]monthlyBucket, 0, len(stats))
	for _, s := range stats {
		buckets = append(buckets, monthlyBucket{
			Month: fmt.Sprintf("%d-%d", s.Month, s.Year),
			Count: s.Count,
		})
	}
	writeJSON(w, http.StatusOK, buckets)
}

// RoleStats 按角色统计用户数
func (h *Handler) RoleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountUsersByRole(r.Context())
	if err != nil {
		log.Printf("[admin.stats] CountUsersByRole error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}
	if counts == nil {
		counts = []storage.RoleCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

// TopUploaders 上传数前五的用户
func (h *Handler) TopUploaders(w http.ResponseWriter, r *http.Request) {
	top, err := h.store.TopUploaders(r.Context(), topUploaderLimit)
	if err != nil {
		log.Printf("[admin.stats] TopUploaders error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}
	if top == nil {
		top = []storage.UploaderCount{}
	}
	writeJSON(w, http.StatusOK, top)
}

type fileTypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// FileTypes 按文件扩展名统计资料数（扩展名小写，无扩展名归入 "other"）
func (h *Handler) FileTypes(w http.ResponseWriter, r *http.Request) {
	listings, err := h.store.ListListings(r.Context())
	if err != nil {
		log.Printf("[admin.stats] ListListings error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}

	counts := make(map[string]int64)
	for _, l := range listings {
		counts[fileExtension(l.FileURL)]++
	}

	result := make([]fileTypeCount, 0, len(counts))
	for ext, n := range counts {
		result = append(result, fileTypeCount{Type: ext, Count: n})
	}
	// 数量降序，同数按名称稳定排序
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Type < result[j].Type
	})
	writeJSON(w, http.StatusOK, result)
}

// fileExtension 从文件 URL 提取小写扩展名（不含点号）
func fileExtension(fileURL string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(path.Base(fileURL)), "."))
	if ext == "" {
		return "other"
	}
	return ext
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
