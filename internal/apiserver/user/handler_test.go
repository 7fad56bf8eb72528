package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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

func (m *mockStore) UpdateUserProfile(_ context.Context, id, name, email string) error {
	u, ok := m.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	if name != "" {
		u.Name = name
	}
	if email != "" {
		u.Email = email
	}
	return nil
}

func (m *mockStore) UpdateUserSocials(_ context.Context, id, linkedin, instagram string) error {
	u, ok := m.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.LinkedIn = linkedin
	u.Instagram = instagram
	return nil
}

func (m *mockStore) SetUserPublicProfile(_ context.Context, id string, public bool) error {
	u, ok := m.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.Settings.PublicProfile = public
	return nil
}

func (m *mockStore) UpdateUserPassword(_ context.Context, id, passwordHash string) error {
	u, ok := m.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
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

func authed(req *http.Request, userID string) *http.Request {
	return req.WithContext(auth.WithAuthUser(req.Context(),
		&auth.AuthUser{ID: userID, Role: "user"}))
}

// ============================================================================
// 密码修改
// ============================================================================

func TestChangePassword(t *testing.T) {
	store := newMockStore()
	hash, _ := auth.HashPassword("oldpassword")
	store.users["usr-1"] = &model.User{ID: "usr-1", PasswordHash: hash}
	h := NewHandler(store)

	t.Run("success", func(t *testing.T) {
		req := authed(httptest.NewRequest("PUT", "/api/users/change-password",
			strings.NewReader(`{"old_password":"oldpassword","new_password":"newpassword1"}`)), "usr-1")
		w := httptest.NewRecorder()
		h.ChangePassword(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if !auth.CheckPassword("newpassword1", store.users["usr-1"].PasswordHash) {
			t.Error("new password should verify")
		}
	})

	t.Run("wrong old password", func(t *testing.T) {
		req := authed(httptest.NewRequest("PUT", "/api/users/change-password",
			strings.NewReader(`{"old_password":"wrong","new_password":"anotherpass1"}`)), "usr-1")
		w := httptest.NewRecorder()
		h.ChangePassword(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("short new password", func(t *testing.T) {
		req := authed(httptest.NewRequest("PUT", "/api/users/change-password",
			strings.NewReader(`{"old_password":"newpassword1","new_password":"short"}`)), "usr-1")
		w := httptest.NewRecorder()
		h.ChangePassword(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

// ============================================================================
// 主页统计与可见性
// ============================================================================

func TestProfileStats(t *testing.T) {
	store := newMockStore()
	store.users["usr-1"] = &model.User{ID: "usr-1", Settings: model.UserSettings{PublicProfile: true}}
	store.listings["lst-1"] = &model.Listing{ID: "lst-1", UploadedBy: "usr-1", DownloadCount: 5}
	store.listings["lst-2"] = &model.Listing{ID: "lst-2", UploadedBy: "usr-1", DownloadCount: 2}
	store.listings["lst-3"] = &model.Listing{ID: "lst-3", UploadedBy: "usr-other"}
	h := NewHandler(store)

	req := authed(httptest.NewRequest("GET", "/api/users/profile/stats", nil), "usr-1")
	w := httptest.NewRecorder()
	h.ProfileStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp profileStatsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.TotalUploads != 2 {
		t.Errorf("TotalUploads = %d, want 2", resp.TotalUploads)
	}
	if resp.PeopleHelped != 7 {
		t.Errorf("PeopleHelped = %d, want 7", resp.PeopleHelped)
	}
	if !resp.PublicProfile {
		t.Error("expected PublicProfile=true")
	}
	if len(resp.Uploads) != 2 {
		t.Errorf("Uploads = %d, want 2", len(resp.Uploads))
	}
}

func TestTogglePublic(t *testing.T) {
	store := newMockStore()
	store.users["usr-1"] = &model.User{ID: "usr-1", Settings: model.UserSettings{PublicProfile: true}}
	h := NewHandler(store)

	// 公开 -> 私密
	req := authed(httptest.NewRequest("PUT", "/api/users/profile/toggle-public", nil), "usr-1")
	w := httptest.NewRecorder()
	h.TogglePublic(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]bool
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["public_profile"] {
		t.Error("expected public_profile=false after toggle")
	}
	if store.users["usr-1"].Settings.PublicProfile {
		t.Error("store should reflect private profile")
	}

	// 私密 -> 公开
	req = authed(httptest.NewRequest("PUT", "/api/users/profile/toggle-public", nil), "usr-1")
	w = httptest.NewRecorder()
	h.TogglePublic(w, req)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp["public_profile"] {
		t.Error("expected public_profile=true after second toggle")
	}
}

func TestUpdateSocials(t *testing.T) {
	store := newMockStore()
	store.users["usr-1"] = &model.User{ID: "usr-1"}
	h := NewHandler(store)

	req := authed(httptest.NewRequest("PUT", "/api/users/update-socials",
		strings.NewReader(`{"linkedin":"https://linkedin.com/in/alice","instagram":"@alice"}`)), "usr-1")
	w := httptest.NewRecorder()
	h.UpdateSocials(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if store.users["usr-1"].LinkedIn != "https://linkedin.com/in/alice" {
		t.Errorf("LinkedIn = %q", store.users["usr-1"].LinkedIn)
	}
	if store.users["usr-1"].Instagram != "@alice" {
		t.Errorf("Instagram = %q", store.users["usr-1"].Instagram)
	}
}

// ============================================================================
// 公开主页
// ============================================================================

func TestPublicProfile(t *testing.T) {
	store := newMockStore()
	store.users["usr-pub"] = &model.User{
		ID: "usr-pub", Name: "Alice", Email: "alice@example.com",
		Role: model.UserRoleUser, LinkedIn: "li",
		Settings: model.UserSettings{PublicProfile: true},
	}
	store.users["usr-priv"] = &model.User{
		ID: "usr-priv", Name: "Bob",
		Settings: model.UserSettings{PublicProfile: false},
	}
	store.listings["lst-1"] = &model.Listing{ID: "lst-1", UploadedBy: "usr-pub"}
	h := NewHandler(store)

	t.Run("public profile visible", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/users/public/usr-pub", nil)
		req.SetPathValue("id", "usr-pub")
		w := httptest.NewRecorder()
		h.PublicProfile(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var resp publicProfileResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Name != "Alice" {
			t.Errorf("Name = %q", resp.Name)
		}
		if len(resp.Uploads) != 1 {
			t.Errorf("Uploads = %d, want 1", len(resp.Uploads))
		}
		// 不泄露密码哈希
		if strings.Contains(w.Body.String(), "password") {
			t.Error("response must not contain password fields")
		}
	})

	t.Run("private profile forbidden", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/users/public/usr-priv", nil)
		req.SetPathValue("id", "usr-priv")
		w := httptest.NewRecorder()
		h.PublicProfile(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
	})

	t.Run("missing user", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/users/public/usr-404", nil)
		req.SetPathValue("id", "usr-404")
		w := httptest.NewRecorder()
		h.PublicProfile(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})
}
