// Package listing 实现学习资料的上传、浏览、搜索与生命周期管理
//
// 文件本体存 MinIO，元数据存 MongoDB。上传遵循"先传对象、后写元数据"：
// 对象写入成功但元数据落库失败时回收对象，保证不会出现指向空对象的记录。
package listing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"scholarcamp/internal/apiserver/auth"
	"scholarcamp/internal/shared/model"
	"scholarcamp/internal/shared/storage"
)

// 单个文件上限 25MB（与前端约定一致）
const maxUploadSize = 25 << 20

// Store 资料域所需的存储子集
type Store interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	CreateListing(ctx context.Context, listing *model.Listing) error
	GetListing(ctx context.Context, id string) (*model.Listing, error)
	ListListings(ctx context.Context) ([]*model.Listing, error)
	ListListingsByUploader(ctx context.Context, userID string) ([]*model.Listing, error)
	SearchListings(ctx context.Context, query string) ([]*model.Listing, error)
	UpdateListing(ctx context.Context, id string, upd storage.ListingUpdate) error
	DeleteListing(ctx context.Context, id string) error
	IncrementDownloadCount(ctx context.Context, id string) error
	PullBookmarkFromAllUsers(ctx context.Context, listingID string) error
}

// ObjectStore 对象存储子集（MinIO 封装）
type ObjectStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// Handler 资料 HTTP 处理器
type Handler struct {
	store   Store
	objects ObjectStore
}

// NewHandler 创建资料处理器
func NewHandler(store Store, objects ObjectStore) *Handler {
	return &Handler{store: store, objects: objects}
}

// RegisterRoutes 注册资料相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/listings/upload", h.Upload)
	mux.HandleFunc("GET /api/listings/all", h.ListAll)
	mux.HandleFunc("GET /api/listings/my-uploads", h.MyUploads)
	mux.HandleFunc("GET /api/listings/search/query", h.Search)
	mux.HandleFunc("GET /api/listings/{id}", h.Get)
	mux.HandleFunc("PUT /api/listings/{id}", h.Update)
	mux.HandleFunc("DELETE /api/listings/{id}", h.Delete)
	mux.HandleFunc("GET /api/listings/{id}/download", h.Download)
}

// ============================================================================
// 上传
// ============================================================================

// Upload 上传学习资料（multipart/form-data）
//
// 顺序：对象先写入 MinIO，成功后再落元数据；落库失败时尽力删除已传对象。
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form or file too large")
		return
	}

	title := r.FormValue("title")
	subject := r.FormValue("subject")
	if title == "" || subject == "" {
		writeError(w, http.StatusBadRequest, "title and subject are required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	key := objectKey(header.Filename)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := h.objects.Upload(r.Context(), key, file, header.Size, contentType); err != nil {
		log.Printf("[listing.upload] object upload failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	now := time.Now()
	listing := &model.Listing{
		ID:              generateID("lst"),
		Title:           title,
		Subject:         subject,
		Description:     r.FormValue("description"),
		Category:        r.FormValue("category"),
		Format:          r.FormValue("format"),
		Availability:    r.FormValue("availability"),
		LendingDuration: r.FormValue("lending_duration"),
		FileURL:         h.objects.PublicURL(key),
		FileKey:         key,
		UploadedBy:      authUser.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.store.CreateListing(r.Context(), listing); err != nil {
		log.Printf("[listing.upload] CreateListing failed: %v", err)
		// 元数据未落库，回收已上传的对象
		if delErr := h.objects.Delete(context.Background(), key); delErr != nil {
			log.Printf("[listing.upload] orphan object cleanup failed for %s: %v", key, delErr)
		}
		writeError(w, http.StatusInternalServerError, "failed to create listing")
		return
	}

	log.Printf("[listing] Uploaded: %s (%s) by %s", listing.Title, listing.ID, authUser.ID)
	writeJSON(w, http.StatusCreated, listing)
}

// ============================================================================
// 浏览与搜索
// ============================================================================

// ListAll 列出全部资料（公开）
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	listings, err := h.store.ListListings(r.Context())
	if err != nil {
		log.Printf("[listing.all] ListListings error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}
	if listings == nil {
		listings = []*model.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

// Get 获取单个资料（公开）
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	listing, err := h.store.GetListing(r.Context(), id)
	if err != nil {
		log.Printf("[listing.get] GetListing error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if listing == nil {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// MyUploads 列出当前用户上传的资料
func (h *Handler) MyUploads(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	listings, err := h.store.ListListingsByUploader(r.Context(), authUser.ID)
	if err != nil {
		log.Printf("[listing.my] ListListingsByUploader error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list uploads")
		return
	}
	if listings == nil {
		listings = []*model.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

// Search 按关键词搜索资料（公开，匹配标题/学科/描述）
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	listings, err := h.store.SearchListings(r.Context(), query)
	if err != nil {
		log.Printf("[listing.search] SearchListings error: %v", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if listings == nil {
		listings = []*model.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

// ============================================================================
// 更新与删除
// ============================================================================

type updateRequest struct {
	Title           *string `json:"title"`
	Subject         *string `json:"subject"`
	Description     *string `json:"description"`
	Category        *string `json:"category"`
	Format          *string `json:"format"`
	Availability    *string `json:"availability"`
	LendingDuration *string `json:"lending_duration"`
}

// Update 更新资料元数据（仅上传者本人）
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	id := r.PathValue("id")
	listing, err := h.store.GetListing(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if listing == nil {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if !listing.OwnedBy(authUser.ID) {
		writeError(w, http.StatusForbidden, "not the owner of this listing")
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title != nil && *req.Title == "" {
		writeError(w, http.StatusBadRequest, "title cannot be empty")
		return
	}

	upd := storage.ListingUpdate{
		Title:           req.Title,
		Subject:         req.Subject,
		Description:     req.Description,
		Category:        req.Category,
		Format:          req.Format,
		Availability:    req.Availability,
		LendingDuration: req.LendingDuration,
	}
	if err := h.store.UpdateListing(r.Context(), id, upd); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		log.Printf("[listing.update] UpdateListing error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update listing")
		return
	}

	updated, err := h.store.GetListing(r.Context(), id)
	if err != nil || updated == nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete 删除资料（上传者本人或管理员）
//
// 级联：删除 MinIO 对象、从所有用户书签中移除该资料。
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	id := r.PathValue("id")
	listing, err := h.store.GetListing(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if listing == nil {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if !listing.OwnedBy(authUser.ID) {
		// 管理员身份以数据库为准：令牌里的角色可能是降级前的快照
		caller, err := h.store.GetUserByID(r.Context(), authUser.ID)
		if err != nil {
			log.Printf("[listing.delete] GetUserByID error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if caller == nil || !caller.IsAdmin() {
			writeError(w, http.StatusForbidden, "not the owner of this listing")
			return
		}
	}

	if err := h.store.DeleteListing(r.Context(), id); err != nil {
		log.Printf("[listing.delete] DeleteListing error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete listing")
		return
	}

	// 级联清理，失败只打日志
	if listing.FileKey != "" {
		if err := h.objects.Delete(r.Context(), listing.FileKey); err != nil {
			log.Printf("[listing.delete] object cleanup failed for %s: %v", listing.FileKey, err)
		}
	}
	if err := h.store.PullBookmarkFromAllUsers(r.Context(), id); err != nil {
		log.Printf("[listing.delete] bookmark cleanup failed for %s: %v", id, err)
	}

	log.Printf("[listing] Deleted: %s by %s", id, authUser.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "listing deleted"})
}

// ============================================================================
// 下载
// ============================================================================

// Download 下载资料文件并累加下载计数（公开）
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	listing, err := h.store.GetListing(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if listing == nil {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}

	reader, err := h.objects.Download(r.Context(), listing.FileKey)
	if err != nil {
		log.Printf("[listing.download] object fetch failed for %s: %v", listing.FileKey, err)
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer reader.Close()

	// 计数失败不影响下载
	if err := h.store.IncrementDownloadCount(r.Context(), id); err != nil {
		log.Printf("[listing.download] IncrementDownloadCount error: %v", err)
	}

	filename := path.Base(listing.FileKey)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", url.PathEscape(filename)))
	if _, err := io.Copy(w, reader); err != nil {
		log.Printf("[listing.download] stream error for %s: %v", id, err)
	}
}

// ============================================================================
// 工具函数
// ============================================================================

// objectKey 生成 MinIO 对象 key
// 格式：{unix_ms}-{文件名，空格转下划线}
func objectKey(filename string) string {
	base := path.Base(filename)
	base = strings.ReplaceAll(base, " ", "_")
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), base)
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
