// Package forum 实现问答论坛的主题帖与回复
package forum

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"scholarcamp/internal/apiserver/auth"
	"scholarcamp/internal/shared/model"
)

// Store 论坛域所需的存储子集
type Store interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id string) (*model.Post, error)
	ListPosts(ctx context.Context) ([]*model.Post, error)
	CreateReply(ctx context.Context, reply *model.Reply) error
	ListRepliesByPost(ctx context.Context, postID string) ([]*model.Reply, error)
	ListReplies(ctx context.Context) ([]*model.Reply, error)
	GetUserNames(ctx context.Context, ids []string) (map[string]string, error)
}

// Handler 论坛 HTTP 处理器
type Handler struct {
	store Store
}

// NewHandler 创建论坛处理器
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册论坛相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/forum/posts", h.ListPosts)
	mux.HandleFunc("POST /api/forum/posts", h.CreatePost)
	mux.HandleFunc("GET /api/forum/posts/{id}/replies", h.ListReplies)
	mux.HandleFunc("POST /api/forum/posts/{id}/replies", h.CreateReply)
}

// ============================================================================
// 主题帖
// ============================================================================

type createPostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ListPosts 列出全部主题帖（公开，按创建时间倒序，附作者名与回复）
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.store.ListPosts(r.Context())
	if err != nil {
		log.Printf("[forum.posts] ListPosts error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}

	replies, err := h.store.ListReplies(r.Context())
	if err != nil {
		log.Printf("[forum.posts] ListReplies error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}

	// 批量解析作者名，避免逐条查询
	idSet := make(map[string]bool)
	for _, p := range posts {
		idSet[p.UserID] = true
	}
	for _, rp := range replies {
		idSet[rp.UserID] = true
	}
	names := h.resolveNames(r.Context(), idSet)

	writeJSON(w, http.StatusOK, buildPostViews(posts, replies, names))
}

// CreatePost 发布主题帖
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "title and content are required")
		return
	}

	post := &model.Post{
		ID:        generateID("pst"),
		Title:     req.Title,
		Content:   req.Content,
		UserID:    authUser.ID,
		CreatedAt: time.Now(),
	}
	if err := h.store.CreatePost(r.Context(), post); err != nil {
		log.Printf("[forum.post] CreatePost error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create post")
		return
	}

	log.Printf("[forum] Post created: %s by %s", post.ID, authUser.ID)
	writeJSON(w, http.StatusCreated, post)
}

// ============================================================================
// 回复
// ============================================================================

type createReplyRequest struct {
	Content string `json:"content"`
}

// ListReplies 列出指定主题帖的回复（公开，按创建时间升序）
func (h *Handler) ListReplies(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("id")

	post, err := h.store.GetPost(r.Context(), postID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if post == nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}

	replies, err := h.store.ListRepliesByPost(r.Context(), postID)
	if err != nil {
		log.Printf("[forum.replies] ListRepliesByPost error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list replies")
		return
	}

	idSet := make(map[string]bool)
	for _, rp := range replies {
		idSet[rp.UserID] = true
	}
	names := h.resolveNames(r.Context(), idSet)

	views := make([]model.ReplyView, 0, len(replies))
	for _, rp := range replies {
		views = append(views, model.ReplyView{Reply: *rp, AuthorName: names[rp.UserID]})
	}
	writeJSON(w, http.StatusOK, views)
}

// CreateReply 回复主题帖
func (h *Handler) CreateReply(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	postID := r.PathValue("id")
	post, err := h.store.GetPost(r.Context(), postID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if post == nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}

	var req createReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	reply := &model.Reply{
		ID:        generateID("rpl"),
		PostID:    postID,
		Content:   req.Content,
		UserID:    authUser.ID,
		CreatedAt: time.Now(),
	}
	if err := h.store.CreateReply(r.Context(), reply); err != nil {
		log.Printf("[forum.reply] CreateReply error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create reply")
		return
	}

	writeJSON(w, http.StatusCreated, reply)
}

// ============================================================================
// 工具函数
// ============================================================================

// resolveNames 批量查询用户名，失败时降级为空映射（作者名显示为空而非报错）
func (h *Handler) resolveNames(ctx context.Context, idSet map[string]bool) map[string]string {
	if len(idSet) == 0 {
		return map[string]string{}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	names, err := h.store.GetUserNames(ctx, ids)
	if err != nil {
		log.Printf("[forum] GetUserNames error: %v", err)
		return map[string]string{}
	}
	return names
}

// buildPostViews 组装帖子视图：每帖挂上作者名与按时间排好序的回复
func buildPostViews(posts []*model.Post, replies []*model.Reply, names map[string]string) []model.PostView {
	byPost := make(map[string][]model.ReplyView)
	for _, rp := range replies {
		byPost[rp.PostID] = append(byPost[rp.PostID], model.ReplyView{
			Reply: *rp, AuthorName: names[rp.UserID],
		})
	}

	views := make([]model.PostView, 0, len(posts))
	for _, p := range posts {
		rv := byPost[p.ID]
		if rv == nil {
			rv = []model.ReplyView{}
		}
		views = append(views, model.PostView{
			Post:       *p,
			AuthorName: names[p.UserID],
			Replies:    rv,
		})
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// generateID 生成带前缀的随机 ID
func generateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
