package chat

import (
	"encoding/json"
	"log"
	"net/http"

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

// RegisterRoutes registers the chat routes on an authenticated router.
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/start", h.Start).Methods("POST")
	router.HandleFunc("/continue", h.Continue).Methods("POST")
	router.HandleFunc("/history/{session_id}", h.History).Methods("GET")
	router.HandleFunc("/sessions", h.Sessions).Methods("GET")
}

type messageRequest struct {
	SessionID   string `json:"session_id"`
	Message     string `json:"message"`
	ContextType string `json:"context_type"`
}

// Start opens a new chat session with an initial message
// @Summary Start a medical chat session
// @Tags Chat
// @Accept json
// @Produce json
// @Param request body messageRequest true "Initial message"
// @Success 200 {object} Reply
// @Router /api/chat/start [post]
func (h *HTTPHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, true)
}

// Continue appends a message to an existing session
// @Summary Continue a medical chat session
// @Tags Chat
// @Accept json
// @Produce json
// @Param request body messageRequest true "Follow-up message"
// @Success 200 {object} Reply
// @Router /api/chat/continue [post]
func (h *HTTPHandler) Continue(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, false)
}

func (h *HTTPHandler) send(w http.ResponseWriter, r *http.Request, fresh bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.RespondAppError(w, models.ErrUnauthorized)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sessionID := req.SessionID
	if fresh {
		sessionID = ""
	} else if sessionID == "" {
		api.RespondAppError(w, models.E(models.KindValidation, "session_id is required"))
		return
	}

	reply, err := h.service.Send(r.Context(), user, sessionID, req.Message, req.ContextType)
	if err != nil {
		log.Printf("[ERROR] Chat turn failed for user %d: %v", user.ID, err)
		api.RespondAppError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, reply)
}

// History returns a session transcript
// GET /api/chat/history/{session_id}
func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.RespondAppError(w, models.ErrUnauthorized)
		return
	}

	sessionID := mux.Vars(r)["session_id"]
	messages, err := h.service.History(r.Context(), user.ID, sessionID)
	if err != nil {
		api.RespondAppError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"messages":   messages,
	})
}

// Sessions lists the user's chat sessions
// GET /api/chat/sessions
func (h *HTTPHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.RespondAppError(w, models.ErrUnauthorized)
		return
	}

	sessions, err := h.service.Sessions(r.Context(), user.ID)
	if err != nil {
		log.Printf("[ERROR] Failed to list chat sessions for user %d: %v", user.ID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}
