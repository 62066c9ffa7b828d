package detect

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/medix/medix-server/internal/api"
	"github.com/medix/medix-server/internal/auth"
	"github.com/medix/medix-server/pkg/models"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// RegisterRoutes registers the disease routes on an authenticated router.
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/detect", h.Detect).Methods("POST")
	router.HandleFunc("/models", h.Models).Methods("GET")
	router.HandleFunc("/history", h.History).Methods("GET")
	router.HandleFunc("/result/{id}", h.Result).Methods("GET")
	router.HandleFunc("/emergency-assessment", h.EmergencyAssessment).Methods("POST")
	router.HandleFunc("/info", h.Info).Methods("GET")
}

type detectRequest struct {
	DiseaseType string `json:"disease_type"`
	ImageBase64 string `json:"image_base64"`
	Symptoms    string `json:"symptoms"`
}

// Detect runs the detection pipeline for an uploaded image
// @Summary Detect disease from a medical image
// @Tags Disease
// @Accept json
// @Produce json
// @Param request body detectRequest true "Detection request"
// @Success 200 {object} models.DetectionResult
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/disease/detect [post]
func (h *HTTPHandler) Detect(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.RespondAppError(w, models.ErrUnauthorized)
		return
	}

	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DiseaseType == "" {
		api.RespondAppError(w, models.E(models.KindValidation, "disease_type is required"))
		return
	}

	result, err := h.service.Detect(r.Context(), user, req.DiseaseType, req.ImageBase64, req.Symptoms)
	if err != nil {
		log.Printf("[ERROR] Detection failed for %s: %v", req.DiseaseType, err)
		api.RespondAppError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, result)
}

// Models lists the available disease domains
// @Summary List available classification models
// @Tags Disease
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/disease/models [get]
func (h *HTTPHandler) Models(w http.ResponseWriter, r *http.Request) {
	registry := h.service.Registry()
	available := registry.Available()

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"available_models":   available,
		"model_descriptions": registry.Descriptions(),
		"model_info":         registry.Info(),
		"total_models":       len(available),
	})
}

// History returns the user's recent detection results
// GET /api/disease/history
func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.RespondAppError(w, models.ErrUnauthorized)
		return
	}

	results, err := h.service.History(r.Context(), user.ID, 20)
	if err != nil {
		log.Printf("[ERROR] Failed to load history for user %d: %v", user.ID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{"history": results})
}

// Result returns one stored detection result, owner-only
// GET /api/disease/result/{id}
func (h *HTTPHandler) Result(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.RespondAppError(w, models.ErrUnauthorized)
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		api.RespondAppError(w, models.E(models.KindValidation, "invalid result id"))
		return
	}

	result, err := h.service.Result(r.Context(), user.ID, id)
	if err != nil {
		api.RespondAppError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, result)
}

// Info returns general information about a disease
// @Summary Get disease information
// @Tags Disease
// @Produce json
// @Param disease query string true "Disease name"
// @Param detail_level query string false "Detail level"
// @Success 200 {object} map[string]interface{}
// @Router /api/disease/info [get]
func (h *HTTPHandler) Info(w http.ResponseWriter, r *http.Request) {
	disease := r.URL.Query().Get("disease")
	detailLevel := r.URL.Query().Get("detail_level")

	info, err := h.service.DiseaseInfo(r.Context(), disease, detailLevel)
	if err != nil {
		api.RespondAppError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"disease":     disease,
		"information": info,
	})
}

type emergencyRequest struct {
	Symptoms string `json:"symptoms"`
}

// EmergencyAssessment grades symptom urgency
// @Summary Assess whether symptoms require emergency attention
// @Tags Disease
// @Accept json
// @Produce json
// @Param request body emergencyRequest true "Symptom text"
// @Success 200 {object} models.EmergencyAssessment
// @Router /api/disease/emergency-assessment [post]
func (h *HTTPHandler) EmergencyAssessment(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.RespondAppError(w, models.ErrUnauthorized)
		return
	}

	var req emergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	assessment, err := h.service.EmergencyAssess(r.Context(), user, req.Symptoms)
	if err != nil {
		api.RespondAppError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, assessment)
}
