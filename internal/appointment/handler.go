package appointment

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

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

// RegisterRoutes registers the appointment routes on an authenticated router.
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/doctors/search", h.SearchDoctors).Methods("GET")
	router.HandleFunc("/doctors/specialties", h.Specialties).Methods("GET")
	router.HandleFunc("/slots", h.Slots).Methods("GET")
	router.HandleFunc("/book", h.Book).Methods("POST")
	router.HandleFunc("/my-appointments", h.MyAppointments).Methods("GET")
	router.HandleFunc("/appointments/{id}/status", h.UpdateStatus).Methods("PUT")
}

// SearchDoctors filters doctors by city and specialty
// @Summary Search for doctors
// @Tags Appointments
// @Produce json
// @Param city query string false "City filter"
// @Param specialty query string false "Specialty filter"
// @Success 200 {object} map[string]interface{}
// @Router /api/appointments/doctors/search [get]
func (h *HTTPHandler) SearchDoctors(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	specialty := r.URL.Query().Get("specialty")

	doctors, err := h.service.SearchDoctors(r.Context(), city, specialty)
	if err != nil {
		log.Printf("[ERROR] Doctor search failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to search doctors")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"doctors": doctors,
		"total":   len(doctors),
	})
}

// Specialties lists distinct doctor specialties
// GET /api/appointments/doctors/specialties
func (h *HTTPHandler) Specialties(w http.ResponseWriter, r *http.Request) {
	specialties, err := h.service.Specialties(r.Context())
	if err != nil {
		log.Printf("[ERROR] Failed to list specialties: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list specialties")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{"specialties": specialties})
}

// Slots lists a doctor's free slots for a day
// @Summary List available appointment slots
// @Tags Appointments
// @Produce json
// @Param doctor_id query int true "Doctor id"
// @Param date query string true "Day in YYYY-MM-DD"
// @Success 200 {object} map[string]interface{}
// @Router /api/appointments/slots [get]
func (h *HTTPHandler) Slots(w http.ResponseWriter, r *http.Request) {
	doctorID, err := strconv.ParseInt(r.URL.Query().Get("doctor_id"), 10, 64)
	if err != nil {
		api.RespondAppError(w, models.E(models.KindValidation, "doctor_id is required"))
		return
	}

	day, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		api.RespondAppError(w, models.E(models.KindValidation, "date must be YYYY-MM-DD"))
		return
	}

	slots, err := h.service.AvailableSlots(r.Context(), doctorID, day)
	if err != nil {
		api.RespondAppError(w, err)
		return
	}

	formatted := make([]string, 0, len(slots))
	for _, slot := range slots {
		formatted = append(formatted, slot.Format(time.RFC3339))
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"doctor_id":       doctorID,
		"date":            day.Format("2006-01-02"),
		"available_slots": formatted,
	})
}

// Book schedules an appointment for the authenticated patient
// @Summary Book an appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param request body BookRequest true "Booking request"
// @Success 201 {object} models.Appointment
// @Failure 409 {object} map[string]interface{}
// @Router /api/appointments/book [post]
func (h *HTTPHandler) Book(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.RespondAppError(w, models.ErrUnauthorized)
		return
	}

	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	appt, err := h.service.Book(r.Context(), user, req)
	if err != nil {
		api.RespondAppError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusCreated, appt)
}

// MyAppointments lists the caller's appointments
// GET /api/appointments/my-appointments
func (h *HTTPHandler) MyAppointments(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.RespondAppError(w, models.ErrUnauthorized)
		return
	}

	appointments, err := h.service.List(r.Context(), user)
	if err != nil {
		log.Printf("[ERROR] Failed to list appointments for user %d: %v", user.ID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list appointments")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"appointments": appointments,
		"total":        len(appointments),
	})
}

type statusRequest struct {
	Status models.AppointmentStatus `json:"status"`
	Notes  string                   `json:"notes"`
}

// UpdateStatus advances the appointment lifecycle
// @Summary Update appointment status
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path int true "Appointment id"
// @Param request body statusRequest true "Target status"
// @Success 200 {object} models.Appointment
// @Failure 409 {object} map[string]interface{}
// @Router /api/appointments/appointments/{id}/status [put]
func (h *HTTPHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.RespondAppError(w, models.ErrUnauthorized)
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		api.RespondAppError(w, models.E(models.KindValidation, "invalid appointment id"))
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	appt, err := h.service.UpdateStatus(r.Context(), user, id, req.Status, req.Notes)
	if err != nil {
		api.RespondAppError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, appt)
}
