// Package bookmark 实现资料收藏的切换与查询
//
// 收藏关系的权威存储在 User.Bookmarks 集合字段，切换必须走原子集合
// 操作（$addToSet / $pull），同一 (user, listing) 并发切换不产生重复。
package bookmark

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

// Store 收藏域所需的存储子集
type Store interface {
	ToggleBookmark(ctx context.Context, userID, listingID string) (bool, error)
	GetListing(ctx context.Context, id string) (*model.Listing, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetListingsByIDs(ctx context.Context, ids []string) ([]*model.Listing, error)
}

// Handler 收藏 HTTP 处理器
type Handler struct {
	store Store
}

// NewHandler 创建收藏处理器
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册收藏相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PATCH /api/listings/{id}/bookmark", h.Toggle)
	mux.HandleFunc("GET /api/listings/bookmarks/my", h.MyBookmarks)
}

type toggleResponse struct {
	Bookmarked bool   `json:"bookmarked"`
	Message    string `json:"message"`
}

// Toggle 切换当前用户对指定资料的收藏状态
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	listingID := r.PathValue("id")
	listing, err := h.store.GetListing(r.Context(), listingID)
	if err != nil {
		log.Printf("[bookmark.toggle] GetListing error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if listing == nil {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}

	bookmarked, err := h.store.ToggleBookmark(r.Context(), authUser.ID, listingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		log.Printf("[bookmark.toggle] ToggleBookmark error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to toggle bookmark")
		return
	}

	msg := "bookmark removed"
	if bookmarked {
		msg = "bookmark added"
	}
	writeJSON(w, http.StatusOK, toggleResponse{Bookmarked: bookmarked, Message: msg})
}

// MyBookmarks 列出当前用户收藏的资料
//
// 已删除的资料不会出现在结果里（按现存 ID 批量查询天然过滤悬挂引用）。
func (h *Handler) MyBookmarks(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil {
		log.Printf("[bookmark.my] GetUserByID error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	if len(user.Bookmarks) == 0 {
		writeJSON(w, http.StatusOK, []*model.Listing{})
		return
	}

	listings, err := h.store.GetListingsByIDs(r.Context(), user.Bookmarks)
	if err != nil {
		log.Printf("[bookmark.my] GetListingsByIDs error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list bookmarks")
		return
	}
	if listings == nil {
		listings = []*model.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
