// Package api holds the HTTP response helpers shared by every handler.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/medix/medix-server/pkg/models"
)

func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[ERROR] Failed to encode JSON response: %v", err)
	}
}

func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}

// RespondAppError maps the error taxonomy onto HTTP status codes. Callers
// keep their prior state on failure: the body carries kind and message
// only, never a partial result.
func RespondAppError(w http.ResponseWriter, err error) {
	kind := models.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case models.KindValidation:
		status = http.StatusBadRequest
	case models.KindNotFound:
		status = http.StatusNotFound
	case models.KindInvalidTransition, models.KindConflict:
		status = http.StatusConflict
	case models.KindAuth:
		status = http.StatusUnauthorized
	case models.KindUpstream:
		status = http.StatusBadGateway
	}

	message := err.Error()
	var appErr *models.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	RespondJSON(w, status, map[string]interface{}{
		"error":   string(kind),
		"details": message,
		"status":  status,
	})
}
