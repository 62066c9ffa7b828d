package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medix/medix-server/pkg/models"
)

const (
	slotInterval   = 30 * time.Minute
	workdayStart   = 9  // 09:00 local
	workdayEnd     = 17 // exclusive, last slot 16:30
	conflictWindow = 30 * time.Minute
	maxDaysAhead   = 30
)

// Store is the persistence surface the service needs.
type Store interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	SearchDoctors(ctx context.Context, city, specialty string) ([]*models.User, error)
	ListSpecialties(ctx context.Context) ([]string, error)
	CreateAppointment(ctx context.Context, appt *models.Appointment) error
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	ListDoctorAppointments(ctx context.Context, doctorID int64, from, to time.Time) ([]*models.Appointment, error)
	ListUserAppointments(ctx context.Context, userID int64, userType string) ([]*models.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id int64, status models.AppointmentStatus, notes string) error
}

// Service implements doctor search, slot enumeration, booking and the
// appointment status lifecycle.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SearchDoctors returns active doctors matching the optional filters.
func (s *Service) SearchDoctors(ctx context.Context, city, specialty string) ([]*models.User, error) {
	doctors, err := s.store.SearchDoctors(ctx, city, specialty)
	if err != nil {
		return nil, fmt.Errorf("failed to search doctors: %w", err)
	}
	return doctors, nil
}

func (s *Service) Specialties(ctx context.Context) ([]string, error) {
	return s.store.ListSpecialties(ctx)
}

// AvailableSlots enumerates the doctor's free 30-minute slots for one day.
// The day must lie between tomorrow and 30 days ahead. Slots already
// booked, or within the conflict window of a booking, are excluded.
func (s *Service) AvailableSlots(ctx context.Context, doctorID int64, day time.Time) ([]time.Time, error) {
	doctor, err := s.store.GetUserByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if doctor.UserType != models.UserTypeDoctor {
		return nil, models.E(models.KindNotFound, "doctor %d not found", doctorID)
	}

	today := s.today()
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	if !day.After(today) {
		return nil, models.E(models.KindValidation, "slots are only available from tomorrow onwards")
	}
	if day.After(today.AddDate(0, 0, maxDaysAhead)) {
		return nil, models.E(models.KindValidation, "slots can be booked at most %d days ahead", maxDaysAhead)
	}

	booked, err := s.store.ListDoctorAppointments(ctx, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to load booked appointments: %w", err)
	}

	var free []time.Time
	for hour := workdayStart; hour < workdayEnd; hour++ {
		for _, minute := range []int{0, 30} {
			slot := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
			if !hasConflict(booked, slot) {
				free = append(free, slot)
			}
		}
	}
	return free, nil
}

// BookRequest carries the booking parameters.
type BookRequest struct {
	DoctorID        int64     `json:"doctor_id"`
	AppointmentDate time.Time `json:"appointment_date"`
	DiseaseType     string    `json:"disease_type"`
	Symptoms        string    `json:"symptoms"`
	Notes           string    `json:"notes"`
}

// Book creates a scheduled appointment for the patient. The requested
// time must be in the future and clear of the doctor's existing bookings
// by the conflict window. A video meeting link is generated per booking.
func (s *Service) Book(ctx context.Context, patient *models.User, req BookRequest) (*models.Appointment, error) {
	if patient.UserType != models.UserTypePatient {
		return nil, models.E(models.KindValidation, "only patients can book appointments")
	}
	if req.DoctorID == 0 {
		return nil, models.E(models.KindValidation, "doctor_id is required")
	}

	doctor, err := s.store.GetUserByID(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if doctor.UserType != models.UserTypeDoctor || !doctor.IsActive {
		return nil, models.E(models.KindNotFound, "doctor %d not found", req.DoctorID)
	}

	when := req.AppointmentDate.UTC()
	if !when.After(s.now().UTC()) {
		return nil, models.E(models.KindValidation, "appointment date must be in the future")
	}

	day := time.Date(when.Year(), when.Month(), when.Day(), 0, 0, 0, 0, time.UTC)
	booked, err := s.store.ListDoctorAppointments(ctx, req.DoctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to check booking conflicts: %w", err)
	}
	if hasConflict(booked, when) {
		return nil, models.E(models.KindConflict, "the doctor already has an appointment around that time")
	}

	meetingID := uuid.New().String()[:8]
	appt := &models.Appointment{
		PatientID:       patient.ID,
		DoctorID:        req.DoctorID,
		AppointmentDate: when,
		Status:          models.StatusScheduled,
		DiseaseType:     req.DiseaseType,
		Symptoms:        req.Symptoms,
		MeetLink:        "https://meet.google.com/" + meetingID,
		MeetingID:       meetingID,
		Notes:           req.Notes,
		CreatedAt:       s.now().UTC(),
	}

	if err := s.store.CreateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	return appt, nil
}

// List returns the user's appointments, shaped by their role.
func (s *Service) List(ctx context.Context, user *models.User) ([]*models.Appointment, error) {
	appointments, err := s.store.ListUserAppointments(ctx, user.ID, user.UserType)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// UpdateStatus advances the appointment lifecycle. Transitions are
// forward-only: a scheduled appointment can be completed or cancelled,
// and terminal states never change again. Only the doctor may complete;
// either participant may cancel. Non-empty notes replace the stored ones.
func (s *Service) UpdateStatus(ctx context.Context, user *models.User, appointmentID int64, status models.AppointmentStatus, notes string) (*models.Appointment, error) {
	if status != models.StatusCompleted && status != models.StatusCancelled {
		return nil, models.E(models.KindValidation, "status must be %q or %q", models.StatusCompleted, models.StatusCancelled)
	}

	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != user.ID && appt.DoctorID != user.ID {
		return nil, models.ErrNotFound
	}

	if appt.Status != models.StatusScheduled {
		return nil, models.ErrInvalidTransition
	}
	if status == models.StatusCompleted && user.ID != appt.DoctorID {
		return nil, models.E(models.KindValidation, "only the doctor can mark an appointment completed")
	}

	if err := s.store.UpdateAppointmentStatus(ctx, appointmentID, status, notes); err != nil {
		return nil, fmt.Errorf("failed to update appointment status: %w", err)
	}
	appt.Status = status
	if notes != "" {
		appt.Notes = notes
	}
	return appt, nil
}

func (s *Service) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func hasConflict(booked []*models.Appointment, when time.Time) bool {
	for _, appt := range booked {
		diff := appt.AppointmentDate.Sub(when)
		if diff < 0 {
			diff = -diff
		}
		if diff < conflictWindow {
			return true
		}
	}
	return false
}
