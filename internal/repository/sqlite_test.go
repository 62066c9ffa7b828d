package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/medix/medix-server/pkg/models"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestUser(email, userType string) *models.User {
	return &models.User{
		Email:          email,
		HashedPassword: "hashed",
		FullName:       "Test User",
		UserType:       userType,
		City:           "Berlin",
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestUsers_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	user := newTestUser("a@example.com", models.UserTypePatient)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("Expected assigned user id")
	}

	byEmail, err := repo.GetUserByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.ID != user.ID || byEmail.FullName != "Test User" {
		t.Errorf("Unexpected user: %+v", byEmail)
	}

	byID, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if byID.Email != "a@example.com" {
		t.Errorf("Unexpected email: %q", byID.Email)
	}
}

func TestUsers_DuplicateEmail(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateUser(ctx, newTestUser("dup@example.com", models.UserTypePatient)); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	err := repo.CreateUser(ctx, newTestUser("dup@example.com", models.UserTypePatient))
	if models.KindOf(err) != models.KindConflict {
		t.Errorf("Expected conflict for duplicate email, got %v", err)
	}
}

func TestUsers_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.GetUserByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSearchDoctors(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	derm := newTestUser("derm@example.com", models.UserTypeDoctor)
	derm.Specialty = "Dermatology"
	cardio := newTestUser("cardio@example.com", models.UserTypeDoctor)
	cardio.Specialty = "Cardiology"
	cardio.City = "Munich"
	patient := newTestUser("p@example.com", models.UserTypePatient)

	for _, u := range []*models.User{derm, cardio, patient} {
		if err := repo.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	doctors, err := repo.SearchDoctors(ctx, "berlin", "derma")
	if err != nil {
		t.Fatalf("SearchDoctors failed: %v", err)
	}
	if len(doctors) != 1 || doctors[0].Email != "derm@example.com" {
		t.Errorf("Expected only the Berlin dermatologist, got %v", doctors)
	}

	all, err := repo.SearchDoctors(ctx, "", "")
	if err != nil {
		t.Fatalf("SearchDoctors failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 doctors with empty filters, got %d", len(all))
	}

	specialties, err := repo.ListSpecialties(ctx)
	if err != nil {
		t.Fatalf("ListSpecialties failed: %v", err)
	}
	if len(specialties) != 2 || specialties[0] != "Cardiology" {
		t.Errorf("Expected sorted specialties, got %v", specialties)
	}
}

func TestDetections_Roundtrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	user := newTestUser("p@example.com", models.UserTypePatient)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	result := &models.DetectionResult{
		RequestID:   "req-1",
		UserID:      user.ID,
		DiseaseType: "skin",
		Predictions: []models.Prediction{
			{Disease: "Eczema", Confidence: 0.8},
			{Disease: "Acne", Confidence: 0.1},
		},
		FinalDiagnosis:  "Eczema",
		Recommendations: "Moisturize.",
		TriageLevel:     models.TriageNone,
		CreatedAt:       time.Now().UTC(),
	}
	if err := repo.SaveDetection(ctx, result); err != nil {
		t.Fatalf("SaveDetection failed: %v", err)
	}

	loaded, err := repo.GetDetection(ctx, user.ID, result.ID)
	if err != nil {
		t.Fatalf("GetDetection failed: %v", err)
	}
	if loaded.FinalDiagnosis != "Eczema" || len(loaded.Predictions) != 2 {
		t.Errorf("Unexpected result: %+v", loaded)
	}
	if loaded.Predictions[0].Confidence != 0.8 {
		t.Errorf("Expected confidence preserved, got %f", loaded.Predictions[0].Confidence)
	}

	// Owner scoping: another user cannot read the result.
	if _, err := repo.GetDetection(ctx, user.ID+1, result.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for foreign result, got %v", err)
	}

	history, err := repo.ListDetections(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("ListDetections failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected 1 history entry, got %d", len(history))
	}
}

func TestChatMessages_RecentWindow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	user := newTestUser("p@example.com", models.UserTypePatient)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		msg := &models.ChatMessage{
			SessionID:   "s1",
			UserID:      user.ID,
			MessageType: "user",
			Content:     string(rune('a' + i)),
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.SaveChatMessage(ctx, msg); err != nil {
			t.Fatalf("SaveChatMessage failed: %v", err)
		}
	}

	messages, err := repo.ListChatMessages(ctx, user.ID, "s1", 3)
	if err != nil {
		t.Fatalf("ListChatMessages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("Expected last 3 messages, got %d", len(messages))
	}
	if messages[0].Content != "c" || messages[2].Content != "e" {
		t.Errorf("Expected chronological tail [c d e], got [%s .. %s]", messages[0].Content, messages[2].Content)
	}

	sessions, err := repo.ListChatSessions(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListChatSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].MessageCount != 5 {
		t.Errorf("Unexpected session summary: %+v", sessions)
	}
	// The aggregate timestamp comes back as text and must decode.
	wantLast := base.Add(4 * time.Minute)
	if !sessions[0].LastActivity.Equal(wantLast) {
		t.Errorf("Expected last activity %v, got %v", wantLast, sessions[0].LastActivity)
	}
}

func TestAppointments_Roundtrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	patient := newTestUser("p@example.com", models.UserTypePatient)
	doctor := newTestUser("d@example.com", models.UserTypeDoctor)
	for _, u := range []*models.User{patient, doctor} {
		if err := repo.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	when := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	appt := &models.Appointment{
		PatientID:       patient.ID,
		DoctorID:        doctor.ID,
		AppointmentDate: when,
		Status:          models.StatusScheduled,
		MeetLink:        "https://meet.google.com/abcd1234",
		MeetingID:       "abcd1234",
		CreatedAt:       time.Now().UTC(),
	}
	if err := repo.CreateAppointment(ctx, appt); err != nil {
		t.Fatalf("CreateAppointment failed: %v", err)
	}

	dayStart := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	booked, err := repo.ListDoctorAppointments(ctx, doctor.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("ListDoctorAppointments failed: %v", err)
	}
	if len(booked) != 1 {
		t.Fatalf("Expected 1 booked appointment, got %d", len(booked))
	}
	if !booked[0].AppointmentDate.Equal(when) {
		t.Errorf("Expected appointment at %v, got %v", when, booked[0].AppointmentDate)
	}

	if err := repo.UpdateAppointmentStatus(ctx, appt.ID, models.StatusCancelled, "patient requested cancellation"); err != nil {
		t.Fatalf("UpdateAppointmentStatus failed: %v", err)
	}

	cancelled, err := repo.GetAppointment(ctx, appt.ID)
	if err != nil {
		t.Fatalf("GetAppointment failed: %v", err)
	}
	if cancelled.Notes != "patient requested cancellation" {
		t.Errorf("Expected notes stored with status update, got %q", cancelled.Notes)
	}

	// Cancelled appointments no longer block the doctor's calendar.
	booked, err = repo.ListDoctorAppointments(ctx, doctor.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("ListDoctorAppointments failed: %v", err)
	}
	if len(booked) != 0 {
		t.Errorf("Expected no scheduled appointments after cancel, got %d", len(booked))
	}

	mine, err := repo.ListUserAppointments(ctx, patient.ID, models.UserTypePatient)
	if err != nil {
		t.Fatalf("ListUserAppointments failed: %v", err)
	}
	if len(mine) != 1 || mine[0].Status != models.StatusCancelled {
		t.Errorf("Unexpected patient appointments: %+v", mine)
	}
}
