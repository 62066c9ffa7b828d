package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/medix/medix-server/pkg/models"
)

type fakeAccountStore struct {
	fakeUserStore
	nextID int64
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{
		fakeUserStore: fakeUserStore{users: make(map[string]*models.User)},
		nextID:        1,
	}
}

func (f *fakeAccountStore) CreateUser(ctx context.Context, user *models.User) error {
	if _, exists := f.users[user.Email]; exists {
		return models.E(models.KindConflict, "email already registered")
	}
	user.ID = f.nextID
	f.nextID++
	f.users[user.Email] = user
	return nil
}

func (f *fakeAccountStore) UpdateUser(ctx context.Context, user *models.User) error {
	f.users[user.Email] = user
	return nil
}

func newAuthRouter(store AccountStore, tm *TokenManager) *mux.Router {
	handler := NewHTTPHandler(store, tm)
	router := mux.NewRouter()
	public := router.PathPrefix("/api/auth").Subrouter()
	authed := router.PathPrefix("/api/auth").Subrouter()
	authed.Use(Middleware(tm, store))
	handler.RegisterRoutes(public, authed)
	return router
}

func postJSON(t *testing.T, router *mux.Router, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSignupPatient_ThenLogin(t *testing.T) {
	store := newFakeAccountStore()
	tm := NewTokenManager("test-secret", 30*time.Minute)
	router := newAuthRouter(store, tm)

	rec := postJSON(t, router, "/api/auth/signup/patient", map[string]interface{}{
		"email":     "Pat@Example.com",
		"password":  "secret123",
		"full_name": "Pat Doe",
		"city":      "Berlin",
		"age":       30,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var signupResp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &signupResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if signupResp["access_token"] == "" {
		t.Error("Expected an access token on signup")
	}

	// Email is normalized to lower case on signup and login.
	rec = postJSON(t, router, "/api/auth/login", map[string]string{
		"email":    "pat@example.com",
		"password": "secret123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on login, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	store := newFakeAccountStore()
	tm := NewTokenManager("test-secret", 30*time.Minute)
	router := newAuthRouter(store, tm)

	body := map[string]interface{}{
		"email": "dup@example.com", "password": "x12345", "full_name": "A", "city": "B",
	}
	if rec := postJSON(t, router, "/api/auth/signup/patient", body); rec.Code != http.StatusCreated {
		t.Fatalf("First signup failed: %d", rec.Code)
	}
	if rec := postJSON(t, router, "/api/auth/signup/patient", body); rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate email, got %d", rec.Code)
	}
}

func TestSignup_MissingFields(t *testing.T) {
	store := newFakeAccountStore()
	tm := NewTokenManager("test-secret", 30*time.Minute)
	router := newAuthRouter(store, tm)

	rec := postJSON(t, router, "/api/auth/signup/doctor", map[string]string{
		"email": "d@example.com",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing fields, got %d", rec.Code)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	store := newFakeAccountStore()
	tm := NewTokenManager("test-secret", 30*time.Minute)
	router := newAuthRouter(store, tm)

	postJSON(t, router, "/api/auth/signup/patient", map[string]interface{}{
		"email": "p@example.com", "password": "right-pass", "full_name": "P", "city": "C",
	})

	rec := postJSON(t, router, "/api/auth/login", map[string]string{
		"email": "p@example.com", "password": "wrong-pass",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong password, got %d", rec.Code)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	store := newFakeAccountStore()
	tm := NewTokenManager("test-secret", 30*time.Minute)
	router := newAuthRouter(store, tm)

	rec := postJSON(t, router, "/api/auth/login", map[string]string{
		"email": "ghost@example.com", "password": "whatever",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for unknown email, got %d", rec.Code)
	}
}

func TestMe_ReturnsProfile(t *testing.T) {
	store := newFakeAccountStore()
	tm := NewTokenManager("test-secret", 30*time.Minute)
	router := newAuthRouter(store, tm)

	postJSON(t, router, "/api/auth/signup/doctor", map[string]interface{}{
		"email": "doc@example.com", "password": "secret123", "full_name": "Dr. Doe",
		"city": "Berlin", "specialty": "Dermatology",
	})

	token, err := tm.Issue("doc@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var profile models.User
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("Failed to decode profile: %v", err)
	}
	if profile.Specialty != "Dermatology" || profile.UserType != models.UserTypeDoctor {
		t.Errorf("Unexpected profile: %+v", profile)
	}
}

func TestUpdateProfile_PartialUpdate(t *testing.T) {
	store := newFakeAccountStore()
	tm := NewTokenManager("test-secret", 30*time.Minute)
	router := newAuthRouter(store, tm)

	postJSON(t, router, "/api/auth/signup/patient", map[string]interface{}{
		"email": "p@example.com", "password": "secret123", "full_name": "Old Name",
		"city": "Berlin", "age": 30,
	})

	token, err := tm.Issue("p@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	body, _ := json.Marshal(map[string]interface{}{"full_name": "New Name"})
	req := httptest.NewRequest(http.MethodPut, "/api/auth/profile", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var profile models.User
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("Failed to decode profile: %v", err)
	}
	if profile.FullName != "New Name" {
		t.Errorf("Expected updated name, got %q", profile.FullName)
	}
	if profile.City != "Berlin" || profile.Age != 30 {
		t.Errorf("Expected untouched fields preserved, got %+v", profile)
	}
}
