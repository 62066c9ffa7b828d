package detect

import (
	"strings"

	"github.com/medix/medix-server/pkg/models"
)

// emergencyKeywords trigger an emergency triage level on plain substring
// containment. No negation handling: "no chest pain" still matches
// "chest pain" and escalates.
var emergencyKeywords = []string{
	"chest pain",
	"difficulty breathing",
	"shortness of breath",
	"severe bleeding",
	"unconscious",
	"suicide",
	"stroke",
	"heart attack",
	"seizure",
	"choking",
}

// Assess scans free-text symptoms against the emergency keyword list.
// Pure function: no context awareness beyond lower-cased containment.
func Assess(text string) models.TriageLevel {
	lowered := strings.ToLower(text)
	for _, keyword := range emergencyKeywords {
		if strings.Contains(lowered, keyword) {
			return models.TriageEmergency
		}
	}
	return models.TriageNone
}
