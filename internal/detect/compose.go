package detect

import (
	"time"

	"github.com/medix/medix-server/pkg/models"
)

const fallbackRecommendation = "Please consult with a healthcare professional for proper evaluation."

// Compose merges ranked predictions, the optional refinement, and the
// triage level into a single DetectionResult. Pure aggregation: no
// persistence, no side effects.
//
// When the refiner produced nothing, the top prediction becomes the
// final diagnosis and the narrative fields stay empty. A top confidence
// below advisoryThreshold escalates a non-emergency triage level to
// advisory, signaling low-confidence uncertainty to the caller.
func Compose(requestID, diseaseType string, predictions []models.Prediction, refinement *models.Refinement, triage models.TriageLevel, advisoryThreshold float64) *models.DetectionResult {
	result := &models.DetectionResult{
		RequestID:   requestID,
		DiseaseType: diseaseType,
		Predictions: predictions,
		TriageLevel: triage,
		CreatedAt:   time.Now().UTC(),
	}

	if len(predictions) > 0 {
		result.FinalDiagnosis = predictions[0].Disease
		if triage == models.TriageNone && predictions[0].Confidence < advisoryThreshold {
			result.TriageLevel = models.TriageAdvisory
		}
	}

	if refinement != nil {
		if refinement.LikelyDiagnosis != "" {
			result.FinalDiagnosis = refinement.LikelyDiagnosis
		}
		result.GeminiAnalysis = refinement.FollowUpQuestions
		result.Recommendations = refinement.Recommendations
	}
	if result.Recommendations == "" {
		result.Recommendations = fallbackRecommendation
	}

	return result
}
