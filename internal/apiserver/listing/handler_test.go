package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scholarcamp/internal/apiserver/auth"
	"scholarcamp/internal/shared/model"
	"scholarcamp/internal/shared/storage"
)

// ============================================================================
// Mock Store
// ============================================================================

type mockStore struct {
	users    map[string]*model.User
	listings map[string]*model.Listing
	pulled   []string // PullBookmarkFromAllUsers 被调用的 listing ID

	createErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		users:    make(map[string]*model.User),
		listings: make(map[string]*model.Listing),
	}
}

func (m *mockStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return m.users[id], nil
}

func (m *mockStore) CreateListing(_ context.Context, l *model.Listing) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.listings[l.ID] = l
	return nil
}

func (m *mockStore) GetListing(_ context.Context, id string) (*model.Listing, error) {
	return m.listings[id], nil
}

func (m *mockStore) ListListings(_ context.Context) ([]*model.Listing, error) {
	var result []*model.Listing
	for _, l := range m.listings {
		result = append(result, l)
	}
	return result, nil
}

func (m *mockStore) ListListingsByUploader(_ context.Context, userID string) ([]*model.Listing, error) {
	var result []*model.Listing
	for _, l := range m.listings {
		if l.UploadedBy == userID {
			result = append(result, l)
		}
	}
	return result, nil
}

func (m *mockStore) SearchListings(_ context.Context, query string) ([]*model.Listing, error) {
	q := strings.ToLower(query)
	var result []*model.Listing
	for _, l := range m.listings {
		if strings.Contains(strings.ToLower(l.Title), q) ||
			strings.Contains(strings.ToLower(l.Subject), q) ||
			strings.Contains(strings.ToLower(l.Description), q) {
			result = append(result, l)
		}
	}
	return result, nil
}

func (m *mockStore) UpdateListing(_ context.Context, id string, upd storage.ListingUpdate) error {
	l, ok := m.listings[id]
	if !ok {
		return storage.ErrNotFound
	}
	if upd.Title != nil {
		l.Title = *upd.Title
	}
	if upd.Subject != nil {
		l.Subject = *upd.Subject
	}
	if upd.Description != nil {
		l.Description = *upd.Description
	}
	return nil
}

func (m *mockStore) DeleteListing(_ context.Context, id string) error {
	if _, ok := m.listings[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.listings, id)
	return nil
}

func (m *mockStore) IncrementDownloadCount(_ context.Context, id string) error {
	if l, ok := m.listings[id]; ok {
		l.DownloadCount++
	}
	return nil
}

func (m *mockStore) PullBookmarkFromAllUsers(_ context.Context, listingID string) error {
	m.pulled = append(m.pulled, listingID)
	return nil
}

// ============================================================================
// Mock ObjectStore
// ============================================================================

type mockObjects struct {
	objects map[string][]byte
}

func newMockObjects() *mockObjects {
	return &mockObjects{objects: make(map[string][]byte)}
}

func (m *mockObjects) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *mockObjects) Download(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockObjects) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *mockObjects) PublicURL(key string) string {
	return "http://minio.test/scholarcamp-notes/" + key
}

// ============================================================================
// 测试辅助
// ============================================================================

func authedRequest(method, target string, body io.Reader, user *auth.AuthUser) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if user != nil {
		req = req.WithContext(auth.WithAuthUser(req.Context(), user))
	}
	return req
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

// ============================================================================
// 上传
// ============================================================================

func TestUpload_Success(t *testing.T) {
	store := newMockStore()
	objects := newMockObjects()
	h := NewHandler(store, objects)

	body, contentType := multipartUpload(t, map[string]string{
		"title":   "Calculus Notes",
		"subject": "Math",
	}, "calc notes.pdf", "pdf-bytes")

	req := authedRequest("POST", "/api/listings/upload", body, &auth.AuthUser{ID: "usr-1", Role: "user"})
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.Upload(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp model.Listing
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Title != "Calculus Notes" {
		t.Errorf("Title = %q", resp.Title)
	}
	if resp.UploadedBy != "usr-1" {
		t.Errorf("UploadedBy = %q, want usr-1", resp.UploadedBy)
	}
	if !strings.HasPrefix(resp.FileURL, "http://minio.test/") {
		t.Errorf("FileURL = %q", resp.FileURL)
	}

	// 对象已写入，key 中空格转下划线
	if len(objects.objects) != 1 {
		t.Fatalf("expected 1 object, got %d", len(objects.objects))
	}
	for key := range objects.objects {
		if !strings.HasSuffix(key, "-calc_notes.pdf") {
			t.Errorf("object key %q should end with -calc_notes.pdf", key)
		}
	}
	if len(store.listings) != 1 {
		t.Errorf("expected 1 listing, got %d", len(store.listings))
	}
}

func TestUpload_MetadataFailureCleansUpObject(t *testing.T) {
	store := newMockStore()
	store.createErr = errors.New("db down")
	objects := newMockObjects()
	h := NewHandler(store, objects)

	body, contentType := multipartUpload(t, map[string]string{
		"title":   "Notes",
		"subject": "Math",
	}, "notes.pdf", "data")

	req := authedRequest("POST", "/api/listings/upload", body, &auth.AuthUser{ID: "usr-1", Role: "user"})
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.Upload(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	// 已上传的对象被回收
	if len(objects.objects) != 0 {
		t.Errorf("expected orphan object cleanup, %d objects remain", len(objects.objects))
	}
}

func TestUpload_Validation(t *testing.T) {
	h := NewHandler(newMockStore(), newMockObjects())

	t.Run("unauthenticated", func(t *testing.T) {
		body, contentType := multipartUpload(t, map[string]string{"title": "x", "subject": "y"}, "f.pdf", "d")
		req := authedRequest("POST", "/api/listings/upload", body, nil)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		h.Upload(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("missing title", func(t *testing.T) {
		body, contentType := multipartUpload(t, map[string]string{"subject": "Math"}, "f.pdf", "d")
		req := authedRequest("POST", "/api/listings/upload", body, &auth.AuthUser{ID: "usr-1"})
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		h.Upload(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("title", "Notes")
		mw.WriteField("subject", "Math")
		mw.Close()
		req := authedRequest("POST", "/api/listings/upload", &buf, &auth.AuthUser{ID: "usr-1"})
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		h.Upload(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

// ============================================================================
// 更新与删除的归属检查
// ============================================================================

func seedListing(store *mockStore, id, owner string) *model.Listing {
	l := &model.Listing{
		ID: id, Title: "Notes", Subject: "Math",
		FileKey: "123-notes.pdf", UploadedBy: owner,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	store.listings[id] = l
	return l
}

func TestUpdate_OwnerOnly(t *testing.T) {
	store := newMockStore()
	seedListing(store, "lst-1", "usr-owner")
	h := NewHandler(store, newMockObjects())

	t.Run("owner can update", func(t *testing.T) {
		req := authedRequest("PUT", "/api/listings/lst-1",
			strings.NewReader(`{"title":"Better Notes"}`), &auth.AuthUser{ID: "usr-owner", Role: "user"})
		req.SetPathValue("id", "lst-1")
		w := httptest.NewRecorder()
		h.Update(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if store.listings["lst-1"].Title != "Better Notes" {
			t.Errorf("Title = %q", store.listings["lst-1"].Title)
		}
	})

	t.Run("non-owner forbidden", func(t *testing.T) {
		req := authedRequest("PUT", "/api/listings/lst-1",
			strings.NewReader(`{"title":"Hijacked"}`), &auth.AuthUser{ID: "usr-other", Role: "user"})
		req.SetPathValue("id", "lst-1")
		w := httptest.NewRecorder()
		h.Update(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
		if store.listings["lst-1"].Title == "Hijacked" {
			t.Error("listing must not be modified by non-owner")
		}
	})

	t.Run("missing listing", func(t *testing.T) {
		req := authedRequest("PUT", "/api/listings/lst-404",
			strings.NewReader(`{"title":"x"}`), &auth.AuthUser{ID: "usr-owner", Role: "user"})
		req.SetPathValue("id", "lst-404")
		w := httptest.NewRecorder()
		h.Update(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})
}

func TestDelete_Cascade(t *testing.T) {
	store := newMockStore()
	objects := newMockObjects()
	seedListing(store, "lst-1", "usr-owner")
	objects.objects["123-notes.pdf"] = []byte("data")
	h := NewHandler(store, objects)

	req := authedRequest("DELETE", "/api/listings/lst-1", nil, &auth.AuthUser{ID: "usr-owner", Role: "user"})
	req.SetPathValue("id", "lst-1")
	w := httptest.NewRecorder()
	h.Delete(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, ok := store.listings["lst-1"]; ok {
		t.Error("listing should be deleted")
	}
	if _, ok := objects.objects["123-notes.pdf"]; ok {
		t.Error("object should be deleted")
	}
	if len(store.pulled) != 1 || store.pulled[0] != "lst-1" {
		t.Errorf("expected bookmark pull for lst-1, got %v", store.pulled)
	}
}

func TestDelete_Permissions(t *testing.T) {
	t.Run("non-owner forbidden", func(t *testing.T) {
		store := newMockStore()
		seedListing(store, "lst-1", "usr-owner")
		h := NewHandler(store, newMockObjects())

		req := authedRequest("DELETE", "/api/listings/lst-1", nil, &auth.AuthUser{ID: "usr-other", Role: "user"})
		req.SetPathValue("id", "lst-1")
		w := httptest.NewRecorder()
		h.Delete(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
	})

	t.Run("admin can delete any", func(t *testing.T) {
		store := newMockStore()
		seedListing(store, "lst-1", "usr-owner")
		store.users["usr-admin"] = &model.User{ID: "usr-admin", Role: model.UserRoleAdmin}
		h := NewHandler(store, newMockObjects())

		req := authedRequest("DELETE", "/api/listings/lst-1", nil, &auth.AuthUser{ID: "usr-admin", Role: "admin"})
		req.SetPathValue("id", "lst-1")
		w := httptest.NewRecorder()
		h.Delete(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
	})

	// 角色以数据库为准：令牌仍带 admin 声明但已被降级的用户不能删除他人资料
	t.Run("demoted admin forbidden despite admin claim", func(t *testing.T) {
		store := newMockStore()
		seedListing(store, "lst-1", "usr-owner")
		store.users["usr-demoted"] = &model.User{ID: "usr-demoted", Role: model.UserRoleUser}
		h := NewHandler(store, newMockObjects())

		req := authedRequest("DELETE", "/api/listings/lst-1", nil, &auth.AuthUser{ID: "usr-demoted", Role: "admin"})
		req.SetPathValue("id", "lst-1")
		w := httptest.NewRecorder()
		h.Delete(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
		if _, ok := store.listings["lst-1"]; !ok {
			t.Error("listing should not have been deleted")
		}
	})
}

// ============================================================================
// 搜索与下载
// ============================================================================

func TestSearch(t *testing.T) {
	store := newMockStore()
	store.listings["lst-1"] = &model.Listing{ID: "lst-1", Title: "Calculus I", Subject: "Math"}
	store.listings["lst-2"] = &model.Listing{ID: "lst-2", Title: "Biology", Subject: "Science", Description: "cell calculus"}
	store.listings["lst-3"] = &model.Listing{ID: "lst-3", Title: "History", Subject: "Humanities"}
	h := NewHandler(store, newMockObjects())

	req := httptest.NewRequest("GET", "/api/listings/search/query?q=calculus", nil)
	w := httptest.NewRecorder()
	h.Search(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var results []*model.Listing
	json.Unmarshal(w.Body.Bytes(), &results)
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}

	t.Run("missing query", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/listings/search/query", nil)
		w := httptest.NewRecorder()
		h.Search(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestDownload(t *testing.T) {
	store := newMockStore()
	objects := newMockObjects()
	seedListing(store, "lst-1", "usr-owner")
	objects.objects["123-notes.pdf"] = []byte("pdf-content")
	h := NewHandler(store, objects)

	req := httptest.NewRequest("GET", "/api/listings/lst-1/download", nil)
	req.SetPathValue("id", "lst-1")
	w := httptest.NewRecorder()
	h.Download(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "pdf-content" {
		t.Errorf("body = %q, want pdf-content", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "123-notes.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if store.listings["lst-1"].DownloadCount != 1 {
		t.Errorf("DownloadCount = %d, want 1", store.listings["lst-1"].DownloadCount)
	}

	t.Run("missing listing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/listings/lst-404/download", nil)
		req.SetPathValue("id", "lst-404")
		w := httptest.NewRecorder()
		h.Download(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})
}

// TestObjectKey key 生成规则
func TestObjectKey(t *testing.T) {
	key := objectKey("my lecture notes.pdf")
	if !strings.HasSuffix(key, "-my_lecture_notes.pdf") {
		t.Errorf("key = %q, want suffix -my_lecture_notes.pdf", key)
	}
	// 路径穿越防护
	key = objectKey("../../etc/passwd")
	if strings.Contains(key, "/") {
		t.Errorf("key %q must not contain path separators", key)
	}
}
