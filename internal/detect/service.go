package detect

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/medix/medix-server/pkg/models"
)

// Refiner is the external generative service used for best-effort
// symptom refinement.
type Refiner interface {
	AnalyzeSymptoms(ctx context.Context, predictions []models.Prediction, symptoms string, user *models.User) (*models.Refinement, error)
	DiseaseInfo(ctx context.Context, disease, detailLevel string) (string, error)
	EmergencyAssessment(ctx context.Context, symptoms string) (*models.EmergencyAssessment, error)
}

// HistoryStore persists completed detection results.
type HistoryStore interface {
	SaveDetection(ctx context.Context, result *models.DetectionResult) error
	ListDetections(ctx context.Context, userID int64, limit int) ([]*models.DetectionResult, error)
	GetDetection(ctx context.Context, userID, resultID int64) (*models.DetectionResult, error)
}

// Broadcaster pushes completed results and alerts to live subscribers.
type Broadcaster interface {
	BroadcastResult(userID int64, result *models.DetectionResult)
	BroadcastAlert(userID int64, level models.TriageLevel, message string)
}

// Service orchestrates the detection pipeline:
// preprocess -> infer -> rank -> refine (optional) -> triage -> compose -> persist.
type Service struct {
	registry     *Registry
	preprocessor *Preprocessor
	refiner      Refiner
	store        HistoryStore
	hub          Broadcaster

	advisoryThreshold float64
}

func NewService(registry *Registry, preprocessor *Preprocessor, refiner Refiner, store HistoryStore, hub Broadcaster, advisoryThreshold float64) *Service {
	return &Service{
		registry:          registry,
		preprocessor:      preprocessor,
		refiner:           refiner,
		store:             store,
		hub:               hub,
		advisoryThreshold: advisoryThreshold,
	}
}

func (s *Service) Registry() *Registry { return s.registry }

// Detect runs the full pipeline for one uploaded image. The refinement
// step is best-effort: a refiner failure is logged and the result is
// still composed and returned without the narrative fields.
func (s *Service) Detect(ctx context.Context, user *models.User, diseaseType, imageBase64, symptoms string) (*models.DetectionResult, error) {
	classifier, spec, err := s.registry.Resolve(diseaseType)
	if err != nil {
		return nil, err
	}

	raw, err := decodeImagePayload(imageBase64)
	if err != nil {
		return nil, err
	}

	tensor, err := s.preprocessor.Prepare(raw, spec)
	if err != nil {
		return nil, err
	}

	logits, err := classifier.Predict(tensor)
	if err != nil {
		return nil, fmt.Errorf("inference failed for %s: %w", diseaseType, err)
	}

	var predictions []models.Prediction
	if spec.MultiLabel {
		predictions, err = RankMultiLabel(Sigmoid(logits), spec.Labels, spec.Threshold, spec.TopK)
	} else {
		predictions, err = Rank(Softmax(logits), spec.Labels, spec.TopK)
	}
	if err != nil {
		return nil, err
	}

	symptoms = strings.TrimSpace(symptoms)

	var refinement *models.Refinement
	if symptoms != "" && s.refiner != nil {
		// Single attempt, no retry. Failure degrades to the bare
		// prediction result instead of surfacing to the caller.
		refinement, err = s.refiner.AnalyzeSymptoms(ctx, predictions, symptoms, user)
		if err != nil {
			log.Printf("[WARN] Gemini symptom analysis failed: %v", err)
			refinement = nil
		}
	}

	triage := Assess(symptoms)

	result := Compose(uuid.New().String(), diseaseType, predictions, refinement, triage, s.advisoryThreshold)
	result.UserID = user.ID
	result.SymptomsProvided = symptoms

	// Without symptoms there is no refinement to draw on, so a brief
	// condition blurb stands in as the recommendation. Best-effort.
	if symptoms == "" && s.refiner != nil && len(predictions) > 0 {
		info, err := s.refiner.DiseaseInfo(ctx, predictions[0].Disease, "brief")
		if err != nil {
			log.Printf("[WARN] Gemini disease info failed: %v", err)
		} else if info != "" {
			result.Recommendations = info
		}
	}

	// History write failure is logged, not returned: the prediction
	// already succeeded and the caller should still see it.
	if err := s.store.SaveDetection(ctx, result); err != nil {
		log.Printf("[WARN] Failed to save detection result: %v", err)
	}

	if s.hub != nil {
		s.hub.BroadcastResult(user.ID, result)
		if result.TriageLevel == models.TriageEmergency {
			s.hub.BroadcastAlert(user.ID, result.TriageLevel, "Emergency symptoms reported with detection request")
		}
	}

	log.Printf("[DETECT] %s detection for user %d: %s (triage=%s)", diseaseType, user.ID, result.FinalDiagnosis, result.TriageLevel)
	return result, nil
}

// History returns the user's most recent detection results, newest first.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]*models.DetectionResult, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.ListDetections(ctx, userID, limit)
}

// Result returns one stored detection, owner-scoped.
func (s *Service) Result(ctx context.Context, userID, resultID int64) (*models.DetectionResult, error) {
	return s.store.GetDetection(ctx, userID, resultID)
}

// EmergencyAssess grades symptom urgency. The keyword screen runs first
// and short-circuits Gemini on a match; on upstream failure the
// conservative "urgent" fallback is returned rather than an error.
func (s *Service) EmergencyAssess(ctx context.Context, user *models.User, symptoms string) (*models.EmergencyAssessment, error) {
	symptoms = strings.TrimSpace(symptoms)
	if symptoms == "" {
		return nil, models.E(models.KindValidation, "symptoms text is required")
	}

	if Assess(symptoms) == models.TriageEmergency {
		if s.hub != nil {
			s.hub.BroadcastAlert(user.ID, models.TriageEmergency, "Emergency keywords matched in symptom report")
		}
		return &models.EmergencyAssessment{
			UrgencyLevel:     "emergency",
			Reasoning:        "Reported symptoms match known emergency indicators",
			ImmediateActions: "Call emergency services now",
			Timeline:         "Immediately",
		}, nil
	}

	if s.refiner == nil {
		return conservativeAssessment(), nil
	}

	assessment, err := s.refiner.EmergencyAssessment(ctx, symptoms)
	if err != nil {
		log.Printf("[WARN] Gemini emergency assessment failed: %v", err)
		return conservativeAssessment(), nil
	}
	return assessment, nil
}

// DiseaseInfo returns general information about a condition from the
// generative backend.
func (s *Service) DiseaseInfo(ctx context.Context, disease, detailLevel string) (string, error) {
	disease = strings.TrimSpace(disease)
	if disease == "" {
		return "", models.E(models.KindValidation, "disease name is required")
	}
	if s.refiner == nil {
		return "", models.E(models.KindUpstream, "disease information service is not configured")
	}
	return s.refiner.DiseaseInfo(ctx, disease, detailLevel)
}

func conservativeAssessment() *models.EmergencyAssessment {
	return &models.EmergencyAssessment{
		UrgencyLevel:     "urgent",
		Reasoning:        "Unable to assess - please seek medical attention",
		ImmediateActions: "Contact healthcare provider or emergency services",
		Timeline:         "Seek medical attention promptly",
	}
}

// decodeImagePayload accepts plain base64 or a data URL
// ("data:image/jpeg;base64,...") and returns the raw image bytes.
func decodeImagePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, models.E(models.KindValidation, "image_base64 is required")
	}
	if strings.HasPrefix(payload, "data:image") {
		idx := strings.Index(payload, ",")
		if idx < 0 {
			return nil, models.ErrInvalidImage
		}
		payload = payload[idx+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64: %v", models.ErrInvalidImage, err)
	}
	return raw, nil
}
