package auth

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/medix/medix-server/internal/api"
	"github.com/medix/medix-server/pkg/models"
)

// AccountStore is the persistence surface the auth handlers need.
type AccountStore interface {
	UserStore
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
}

type HTTPHandler struct {
	store  AccountStore
	tokens *TokenManager
}

func NewHTTPHandler(store AccountStore, tokens *TokenManager) *HTTPHandler {
	return &HTTPHandler{store: store, tokens: tokens}
}

// RegisterRoutes registers the public auth routes. /me and /profile are
// registered on the authenticated subrouter by the caller.
func (h *HTTPHandler) RegisterRoutes(public, authed *mux.Router) {
	public.HandleFunc("/signup/patient", h.SignupPatient).Methods("POST")
	public.HandleFunc("/signup/doctor", h.SignupDoctor).Methods("POST")
	public.HandleFunc("/login", h.Login).Methods("POST")
	authed.HandleFunc("/me", h.Me).Methods("GET")
	authed.HandleFunc("/profile", h.UpdateProfile).Methods("PUT")
}

type signupPatientRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	City     string `json:"city"`
	Phone    string `json:"phone"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
}

type signupDoctorRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	FullName        string `json:"full_name"`
	City            string `json:"city"`
	Phone           string `json:"phone"`
	Specialty       string `json:"specialty"`
	LicenseNumber   string `json:"license_number"`
	ExperienceYears int    `json:"experience_years"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupPatient registers a new patient account
// @Summary Register a patient account
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body signupPatientRequest true "Patient details"
// @Success 201 {object} map[string]interface{}
// @Router /api/auth/signup/patient [post]
func (h *HTTPHandler) SignupPatient(w http.ResponseWriter, r *http.Request) {
	var req signupPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user := &models.User{
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		FullName: req.FullName,
		UserType: models.UserTypePatient,
		City:     req.City,
		Phone:    req.Phone,
		Age:      req.Age,
		Gender:   req.Gender,
		IsActive: true,
	}
	h.signup(w, r, user, req.Password)
}

// SignupDoctor registers a new doctor account
// @Summary Register a doctor account
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body signupDoctorRequest true "Doctor details"
// @Success 201 {object} map[string]interface{}
// @Router /api/auth/signup/doctor [post]
func (h *HTTPHandler) SignupDoctor(w http.ResponseWriter, r *http.Request) {
	var req signupDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user := &models.User{
		Email:           strings.ToLower(strings.TrimSpace(req.Email)),
		FullName:        req.FullName,
		UserType:        models.UserTypeDoctor,
		City:            req.City,
		Phone:           req.Phone,
		Specialty:       req.Specialty,
		LicenseNumber:   req.LicenseNumber,
		ExperienceYears: req.ExperienceYears,
		IsActive:        true,
	}
	h.signup(w, r, user, req.Password)
}

func (h *HTTPHandler) signup(w http.ResponseWriter, r *http.Request, user *models.User, password string) {
	if user.Email == "" || password == "" || user.FullName == "" || user.City == "" {
		api.RespondAppError(w, models.E(models.KindValidation, "email, password, full_name and city are required"))
		return
	}

	if existing, err := h.store.GetUserByEmail(r.Context(), user.Email); err == nil && existing != nil {
		api.RespondAppError(w, models.E(models.KindConflict, "email already registered"))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[ERROR] Failed to hash password: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}
	user.HashedPassword = string(hashed)

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		log.Printf("[ERROR] Failed to create user: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	token, err := h.tokens.Issue(user.Email)
	if err != nil {
		log.Printf("[ERROR] Failed to issue token: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	log.Printf("[AUTH] Registered %s account: %s", user.UserType, user.Email)
	api.RespondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":      "Registered successfully",
		"access_token": token,
		"token_type":   "bearer",
		"user":         user,
	})
}

// Login verifies credentials and issues a bearer token
// @Summary Log in and receive a bearer token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body loginRequest true "Credentials"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/auth/login [post]
func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		api.RespondAppError(w, models.E(models.KindAuth, "incorrect email or password"))
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)) != nil {
		api.RespondAppError(w, models.E(models.KindAuth, "incorrect email or password"))
		return
	}
	if !user.IsActive {
		api.RespondAppError(w, models.E(models.KindAuth, "account is deactivated"))
		return
	}

	token, err := h.tokens.Issue(user.Email)
	if err != nil {
		log.Printf("[ERROR] Failed to issue token: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Login successful",
		"access_token": token,
		"token_type":   "bearer",
		"user":         user,
	})
}

// Me returns the authenticated user's profile.
// GET /api/auth/me
func (h *HTTPHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		api.RespondAppError(w, models.ErrUnauthorized)
		return
	}
	api.RespondJSON(w, http.StatusOK, user)
}

type profileUpdateRequest struct {
	FullName *string `json:"full_name"`
	City     *string `json:"city"`
	Phone    *string `json:"phone"`
	Age      *int    `json:"age"`
	Gender   *string `json:"gender"`
}

// UpdateProfile updates the mutable profile fields of the current user.
// PUT /api/auth/profile
func (h *HTTPHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		api.RespondAppError(w, models.ErrUnauthorized)
		return
	}

	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.City != nil {
		user.City = *req.City
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Age != nil {
		user.Age = *req.Age
	}
	if req.Gender != nil {
		user.Gender = *req.Gender
	}

	if err := h.store.UpdateUser(r.Context(), user); err != nil {
		log.Printf("[ERROR] Failed to update profile for %s: %v", user.Email, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	api.RespondJSON(w, http.StatusOK, user)
}
