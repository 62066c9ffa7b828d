package models

import (
	"errors"
	"fmt"
	"time"
)

// TriageLevel classifies how urgently a detection result should be acted on.
type TriageLevel string

const (
	TriageNone      TriageLevel = "none"
	TriageAdvisory  TriageLevel = "advisory"
	TriageEmergency TriageLevel = "emergency"
)

// AppointmentStatus represents the lifecycle state of an appointment.
// Transitions are forward-only: scheduled -> completed or scheduled -> cancelled.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// UserType distinguishes the two account roles.
const (
	UserTypePatient = "patient"
	UserTypeDoctor  = "doctor"
)

type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	FullName       string    `json:"full_name"`
	UserType       string    `json:"user_type"`
	City           string    `json:"city"`
	Phone          string    `json:"phone,omitempty"`

	// Doctor fields
	Specialty       string `json:"specialty,omitempty"`
	LicenseNumber   string `json:"license_number,omitempty"`
	ExperienceYears int    `json:"experience_years,omitempty"`

	// Patient fields
	Age    int    `json:"age,omitempty"`
	Gender string `json:"gender,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

// Prediction is one labeled classifier output. Confidence is in [0,1].
type Prediction struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
}

// Refinement is the optional output of the Gemini symptom analysis.
type Refinement struct {
	LikelyDiagnosis   string `json:"likely_diagnosis"`
	FollowUpQuestions string `json:"follow_up_questions"`
	Recommendations   string `json:"recommendations"`
	EmergencySigns    string `json:"emergency_signs"`
}

// DetectionResult is the composed outcome of one detection request.
// It is persisted to history and never mutated afterwards.
type DetectionResult struct {
	ID               int64        `json:"id,omitempty"`
	RequestID        string       `json:"request_id"`
	UserID           int64        `json:"-"`
	DiseaseType      string       `json:"disease_type"`
	Predictions      []Prediction `json:"predictions"`
	FinalDiagnosis   string       `json:"final_diagnosis"`
	Recommendations  string       `json:"recommendations,omitempty"`
	GeminiAnalysis   string       `json:"gemini_analysis,omitempty"`
	SymptomsProvided string       `json:"symptoms_provided,omitempty"`
	TriageLevel      TriageLevel  `json:"triage_level"`
	CreatedAt        time.Time    `json:"created_at"`
}

// ChatMessage is one turn of a chat session transcript.
type ChatMessage struct {
	SessionID   string    `json:"session_id"`
	UserID      int64     `json:"-"`
	MessageType string    `json:"type"` // "user" or "assistant"
	Content     string    `json:"content"`
	ContextType string    `json:"context_type,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type Appointment struct {
	ID              int64             `json:"id"`
	PatientID       int64             `json:"patient_id"`
	DoctorID        int64             `json:"doctor_id"`
	AppointmentDate time.Time         `json:"appointment_date"`
	Status          AppointmentStatus `json:"status"`
	DiseaseType     string            `json:"disease_type,omitempty"`
	Symptoms        string            `json:"symptoms,omitempty"`
	MeetLink        string            `json:"meet_link,omitempty"`
	MeetingID       string            `json:"meeting_id,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// EmergencyAssessment is the payload of the emergency-assessment endpoint.
type EmergencyAssessment struct {
	UrgencyLevel     string `json:"urgency_level"`
	Reasoning        string `json:"reasoning"`
	ImmediateActions string `json:"immediate_actions"`
	Timeline         string `json:"timeline"`
}

// Kind identifies the error category surfaced at the HTTP boundary.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindUpstream          Kind = "upstream_service_error"
	KindAuth              Kind = "auth_error"
	KindConflict          Kind = "conflict"
	KindInternal          Kind = "internal_error"
)

// Error carries an error kind together with a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a kinded error with a formatted message.
func E(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, or KindInternal for unkinded errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Sentinel errors shared across layers.
var (
	ErrUnknownDomain     = E(KindNotFound, "unknown disease domain")
	ErrInvalidImage      = E(KindValidation, "image bytes could not be decoded")
	ErrImageTooLarge     = E(KindValidation, "image payload exceeds the configured limit")
	ErrNotFound          = E(KindNotFound, "record not found")
	ErrInvalidTransition = E(KindInvalidTransition, "appointment status change not permitted from current state")
	ErrUpstreamService   = E(KindUpstream, "upstream generative service failed")
	ErrUnauthorized      = E(KindAuth, "missing or invalid credentials")
)
