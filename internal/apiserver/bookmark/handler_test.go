package bookmark

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
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

func (m *mockStore) ToggleBookmark(_ context.Context, userID, listingID string) (bool, error) {
	u, ok := m.users[userID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if i := slices.Index(u.Bookmarks, listingID); i >= 0 {
		u.Bookmarks = slices.Delete(u.Bookmarks, i, i+1)
		if l, ok := m.listings[listingID]; ok && l.BookmarkCount > 0 {
			l.BookmarkCount--
		}
		return false, nil
	}
	u.Bookmarks = append(u.Bookmarks, listingID)
	if l, ok := m.listings[listingID]; ok {
		l.BookmarkCount++
	}
	return true, nil
}

func (m *mockStore) GetListing(_ context.Context, id string) (*model.Listing, error) {
	return m.listings[id], nil
}

func (m *mockStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return m.users[id], nil
}

func (m *mockStore) GetListingsByIDs(_ context.Context, ids []string) ([]*model.Listing, error) {
	var result []*model.Listing
	for _, id := range ids {
		if l, ok := m.listings[id]; ok {
			result = append(result, l)
		}
	}
	return result, nil
}

func toggleRequest(userID, listingID string) *http.Request {
	req := httptest.NewRequest("PATCH", "/api/listings/"+listingID+"/bookmark", nil)
	req.SetPathValue("id", listingID)
	if userID != "" {
		req = req.WithContext(auth.WithAuthUser(req.Context(),
			&auth.AuthUser{ID: userID, Role: "user"}))
	}
	return req
}

// ============================================================================
// Toggle
// ============================================================================

// TestToggle_Involution 连续两次切换回到原状态
func TestToggle_Involution(t *testing.T) {
	store := newMockStore()
	store.users["usr-1"] = &model.User{ID: "usr-1", Bookmarks: []string{}}
	store.listings["lst-1"] = &model.Listing{ID: "lst-1", Title: "Notes"}
	h := NewHandler(store)

	// 第一次：加入收藏
	w := httptest.NewRecorder()
	h.Toggle(w, toggleRequest("usr-1", "lst-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp toggleResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Bookmarked {
		t.Error("first toggle: expected bookmarked=true")
	}
	if len(store.users["usr-1"].Bookmarks) != 1 {
		t.Errorf("expected 1 bookmark, got %d", len(store.users["usr-1"].Bookmarks))
	}
	if store.listings["lst-1"].BookmarkCount != 1 {
		t.Errorf("BookmarkCount = %d, want 1", store.listings["lst-1"].BookmarkCount)
	}

	// 第二次：移除收藏
	w = httptest.NewRecorder()
	h.Toggle(w, toggleRequest("usr-1", "lst-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Bookmarked {
		t.Error("second toggle: expected bookmarked=false")
	}
	if len(store.users["usr-1"].Bookmarks) != 0 {
		t.Errorf("expected 0 bookmarks, got %d", len(store.users["usr-1"].Bookmarks))
	}
	if store.listings["lst-1"].BookmarkCount != 0 {
		t.Errorf("BookmarkCount = %d, want 0", store.listings["lst-1"].BookmarkCount)
	}
}

func TestToggle_Errors(t *testing.T) {
	store := newMockStore()
	store.users["usr-1"] = &model.User{ID: "usr-1"}
	store.listings["lst-1"] = &model.Listing{ID: "lst-1"}
	h := NewHandler(store)

	t.Run("unauthenticated", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Toggle(w, toggleRequest("", "lst-1"))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("listing not found", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Toggle(w, toggleRequest("usr-1", "lst-404"))
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	t.Run("user not found", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Toggle(w, toggleRequest("usr-ghost", "lst-1"))
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})
}

// ============================================================================
// MyBookmarks
// ============================================================================

func TestMyBookmarks(t *testing.T) {
	store := newMockStore()
	store.users["usr-1"] = &model.User{ID: "usr-1", Bookmarks: []string{"lst-1", "lst-gone", "lst-2"}}
	store.listings["lst-1"] = &model.Listing{ID: "lst-1", Title: "Calculus"}
	store.listings["lst-2"] = &model.Listing{ID: "lst-2", Title: "Biology"}
	h := NewHandler(store)

	req := httptest.NewRequest("GET", "/api/listings/bookmarks/my", nil)
	req = req.WithContext(auth.WithAuthUser(req.Context(), &auth.AuthUser{ID: "usr-1", Role: "user"}))
	w := httptest.NewRecorder()
	h.MyBookmarks(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var listings []*model.Listing
	json.Unmarshal(w.Body.Bytes(), &listings)

	// 已删除的 lst-gone 被过滤
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}
}

func TestMyBookmarks_Empty(t *testing.T) {
	store := newMockStore()
	store.users["usr-1"] = &model.User{ID: "usr-1"}
	h := NewHandler(store)

	req := httptest.NewRequest("GET", "/api/listings/bookmarks/my", nil)
	req = req.WithContext(auth.WithAuthUser(req.Context(), &auth.AuthUser{ID: "usr-1", Role: "user"}))
	w := httptest.NewRecorder()
	h.MyBookmarks(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("expected empty JSON array, got %q", body)
	}
}
