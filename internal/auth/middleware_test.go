package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/medix/medix-server/pkg/models"
)

type fakeUserStore struct {
	users map[string]*models.User
}

func (f *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := f.users[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return user, nil
}

func newMiddlewareFixture(t *testing.T) (*TokenManager, http.Handler, *models.User) {
	t.Helper()

	user := &models.User{ID: 1, Email: "pat@example.com", IsActive: true}
	store := &fakeUserStore{users: map[string]*models.User{user.Email: user}}
	tm := NewTokenManager("test-secret", 30*time.Minute)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := UserFromContext(r.Context())
		if !ok {
			t.Error("Expected user in request context")
		} else if got.ID != user.ID {
			t.Errorf("Expected user %d in context, got %d", user.ID, got.ID)
		}
		w.WriteHeader(http.StatusOK)
	})

	return tm, Middleware(tm, store)(next), user
}

func TestMiddleware_ValidBearerHeader(t *testing.T) {
	tm, handler, user := newMiddlewareFixture(t)

	token, err := tm.Issue(user.Email)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/disease/models", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestMiddleware_TokenQueryFallback(t *testing.T) {
	tm, handler, user := newMiddlewareFixture(t)

	token, err := tm.Issue(user.Email)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/ws/results?token="+token, nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 via query token, got %d", rec.Code)
	}
}

func TestMiddleware_Rejections(t *testing.T) {
	tm, handler, _ := newMiddlewareFixture(t)

	unknownUser, err := tm.Issue("ghost@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	cases := map[string]string{
		"missing token":   "",
		"malformed token": "Bearer not-a-jwt",
		"unknown subject": "Bearer " + unknownUser,
	}

	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/disease/models", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestMiddleware_InactiveUser(t *testing.T) {
	user := &models.User{ID: 2, Email: "gone@example.com", IsActive: false}
	store := &fakeUserStore{users: map[string]*models.User{user.Email: user}}
	tm := NewTokenManager("test-secret", 30*time.Minute)
	handler := Middleware(tm, store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not run for inactive user")
	}))

	token, err := tm.Issue(user.Email)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/disease/models", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for inactive user, got %d", rec.Code)
	}
}
