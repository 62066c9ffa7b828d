package appointment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/medix/medix-server/pkg/models"
)

type fakeStore struct {
	users        map[int64]*models.User
	appointments []*models.Appointment
	nextID       int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[int64]*models.User), nextID: 1}
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) SearchDoctors(ctx context.Context, city, specialty string) ([]*models.User, error) {
	var out []*models.User
	for _, u := range f.users {
		if u.UserType != models.UserTypeDoctor {
			continue
		}
		if city != "" && !strings.EqualFold(u.City, city) {
			continue
		}
		if specialty != "" && !strings.EqualFold(u.Specialty, specialty) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeStore) ListSpecialties(ctx context.Context) ([]string, error) {
	return []string{"Dermatology"}, nil
}

func (f *fakeStore) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	appt.ID = f.nextID
	f.nextID++
	f.appointments = append(f.appointments, appt)
	return nil
}

func (f *fakeStore) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	for _, a := range f.appointments {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeStore) ListDoctorAppointments(ctx context.Context, doctorID int64, from, to time.Time) ([]*models.Appointment, error) {
	var out []*models.Appointment
	for _, a := range f.appointments {
		if a.DoctorID == doctorID && a.Status == models.StatusScheduled &&
			!a.AppointmentDate.Before(from) && a.AppointmentDate.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListUserAppointments(ctx context.Context, userID int64, userType string) ([]*models.Appointment, error) {
	var out []*models.Appointment
	for _, a := range f.appointments {
		if (userType == models.UserTypeDoctor && a.DoctorID == userID) ||
			(userType == models.UserTypePatient && a.PatientID == userID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateAppointmentStatus(ctx context.Context, id int64, status models.AppointmentStatus, notes string) error {
	for _, a := range f.appointments {
		if a.ID == id {
			a.Status = status
			if notes != "" {
				a.Notes = notes
			}
			return nil
		}
	}
	return models.ErrNotFound
}

func newTestService(store *fakeStore) *Service {
	svc := NewService(store)
	svc.now = func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func seedUsers(store *fakeStore) (patient, doctor *models.User) {
	patient = &models.User{ID: 1, UserType: models.UserTypePatient, IsActive: true}
	doctor = &models.User{ID: 2, UserType: models.UserTypeDoctor, Specialty: "Dermatology", City: "Berlin", IsActive: true}
	store.users[1] = patient
	store.users[2] = doctor
	return patient, doctor
}

func TestBook_Success(t *testing.T) {
	store := newFakeStore()
	patient, doctor := seedUsers(store)
	svc := newTestService(store)

	when := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	appt, err := svc.Book(context.Background(), patient, BookRequest{
		DoctorID:        doctor.ID,
		AppointmentDate: when,
		DiseaseType:     "skin",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	if appt.Status != models.StatusScheduled {
		t.Errorf("Expected scheduled status, got %q", appt.Status)
	}
	if !strings.HasPrefix(appt.MeetLink, "https://meet.google.com/") {
		t.Errorf("Expected a meet link, got %q", appt.MeetLink)
	}
	if len(appt.MeetingID) != 8 {
		t.Errorf("Expected 8-char meeting id, got %q", appt.MeetingID)
	}
}

func TestBook_DoctorCannotBook(t *testing.T) {
	store := newFakeStore()
	_, doctor := seedUsers(store)
	svc := newTestService(store)

	_, err := svc.Book(context.Background(), doctor, BookRequest{
		DoctorID:        doctor.ID,
		AppointmentDate: time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC),
	})
	if models.KindOf(err) != models.KindValidation {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestBook_PastDateRejected(t *testing.T) {
	store := newFakeStore()
	patient, doctor := seedUsers(store)
	svc := newTestService(store)

	_, err := svc.Book(context.Background(), patient, BookRequest{
		DoctorID:        doctor.ID,
		AppointmentDate: time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC),
	})
	if models.KindOf(err) != models.KindValidation {
		t.Errorf("Expected validation error for past date, got %v", err)
	}
}

func TestBook_ConflictWithinWindow(t *testing.T) {
	store := newFakeStore()
	patient, doctor := seedUsers(store)
	svc := newTestService(store)

	first := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	if _, err := svc.Book(context.Background(), patient, BookRequest{DoctorID: doctor.ID, AppointmentDate: first}); err != nil {
		t.Fatalf("First booking failed: %v", err)
	}

	// 15 minutes later falls inside the 30-minute conflict window.
	_, err := svc.Book(context.Background(), patient, BookRequest{
		DoctorID:        doctor.ID,
		AppointmentDate: first.Add(15 * time.Minute),
	})
	if models.KindOf(err) != models.KindConflict {
		t.Errorf("Expected conflict error, got %v", err)
	}

	// 30 minutes later is the adjacent slot and must succeed.
	if _, err := svc.Book(context.Background(), patient, BookRequest{
		DoctorID:        doctor.ID,
		AppointmentDate: first.Add(30 * time.Minute),
	}); err != nil {
		t.Errorf("Adjacent slot booking failed: %v", err)
	}
}

func TestAvailableSlots_ExcludesBooked(t *testing.T) {
	store := newFakeStore()
	patient, doctor := seedUsers(store)
	svc := newTestService(store)

	day := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	booked := time.Date(2026, 3, 12, 9, 30, 0, 0, time.UTC)
	if _, err := svc.Book(context.Background(), patient, BookRequest{DoctorID: doctor.ID, AppointmentDate: booked}); err != nil {
		t.Fatalf("Booking failed: %v", err)
	}

	slots, err := svc.AvailableSlots(context.Background(), doctor.ID, day)
	if err != nil {
		t.Fatalf("AvailableSlots failed: %v", err)
	}

	// 16 half-hour slots between 09:00 and 17:00, minus the booked one.
	if len(slots) != 15 {
		t.Errorf("Expected 15 free slots, got %d", len(slots))
	}
	for _, slot := range slots {
		if slot.Equal(booked) {
			t.Errorf("Booked slot %v still listed as free", slot)
		}
	}
}

func TestAvailableSlots_RejectsToday(t *testing.T) {
	store := newFakeStore()
	_, doctor := seedUsers(store)
	svc := newTestService(store)

	_, err := svc.AvailableSlots(context.Background(), doctor.ID, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if models.KindOf(err) != models.KindValidation {
		t.Errorf("Expected validation error for same-day slots, got %v", err)
	}
}

func TestAvailableSlots_RejectsTooFarAhead(t *testing.T) {
	store := newFakeStore()
	_, doctor := seedUsers(store)
	svc := newTestService(store)

	_, err := svc.AvailableSlots(context.Background(), doctor.ID, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	if models.KindOf(err) != models.KindValidation {
		t.Errorf("Expected validation error beyond the booking horizon, got %v", err)
	}
}

func TestUpdateStatus_ForwardOnly(t *testing.T) {
	store := newFakeStore()
	patient, doctor := seedUsers(store)
	svc := newTestService(store)

	appt, err := svc.Book(context.Background(), patient, BookRequest{
		DoctorID:        doctor.ID,
		AppointmentDate: time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Booking failed: %v", err)
	}

	updated, err := svc.UpdateStatus(context.Background(), doctor, appt.ID, models.StatusCompleted, "")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Status != models.StatusCompleted {
		t.Errorf("Expected completed, got %q", updated.Status)
	}

	// A terminal appointment never changes again.
	_, err = svc.UpdateStatus(context.Background(), doctor, appt.ID, models.StatusCancelled, "")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
	_, err = svc.UpdateStatus(context.Background(), doctor, appt.ID, models.StatusCompleted, "")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition on repeat complete, got %v", err)
	}
}

func TestUpdateStatus_PersistsNotes(t *testing.T) {
	store := newFakeStore()
	patient, doctor := seedUsers(store)
	svc := newTestService(store)

	appt, err := svc.Book(context.Background(), patient, BookRequest{
		DoctorID:        doctor.ID,
		AppointmentDate: time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC),
		Notes:           "initial consult",
	})
	if err != nil {
		t.Fatalf("Booking failed: %v", err)
	}

	updated, err := svc.UpdateStatus(context.Background(), doctor, appt.ID, models.StatusCompleted, "prescribed topical treatment")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Notes != "prescribed topical treatment" {
		t.Errorf("Expected updated notes, got %q", updated.Notes)
	}

	stored, err := store.GetAppointment(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("GetAppointment failed: %v", err)
	}
	if stored.Notes != "prescribed topical treatment" {
		t.Errorf("Expected notes persisted, got %q", stored.Notes)
	}
}

func TestUpdateStatus_OnlyDoctorCompletes(t *testing.T) {
	store := newFakeStore()
	patient, doctor := seedUsers(store)
	svc := newTestService(store)

	appt, err := svc.Book(context.Background(), patient, BookRequest{
		DoctorID:        doctor.ID,
		AppointmentDate: time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Booking failed: %v", err)
	}

	if _, err := svc.UpdateStatus(context.Background(), patient, appt.ID, models.StatusCompleted, ""); err == nil {
		t.Error("Expected patient to be unable to complete")
	}

	// The patient may still cancel.
	updated, err := svc.UpdateStatus(context.Background(), patient, appt.ID, models.StatusCancelled, "")
	if err != nil {
		t.Fatalf("Patient cancel failed: %v", err)
	}
	if updated.Status != models.StatusCancelled {
		t.Errorf("Expected cancelled, got %q", updated.Status)
	}
}

func TestUpdateStatus_StrangerSeesNotFound(t *testing.T) {
	store := newFakeStore()
	patient, doctor := seedUsers(store)
	stranger := &models.User{ID: 99, UserType: models.UserTypePatient}
	svc := newTestService(store)

	appt, err := svc.Book(context.Background(), patient, BookRequest{
		DoctorID:        doctor.ID,
		AppointmentDate: time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Booking failed: %v", err)
	}

	_, err = svc.UpdateStatus(context.Background(), stranger, appt.ID, models.StatusCancelled, "")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected not found for non-participant, got %v", err)
	}
}

func TestSearchDoctors_Filters(t *testing.T) {
	store := newFakeStore()
	seedUsers(store)
	store.users[3] = &models.User{ID: 3, UserType: models.UserTypeDoctor, Specialty: "Cardiology", City: "Munich", IsActive: true}
	svc := newTestService(store)

	doctors, err := svc.SearchDoctors(context.Background(), "Berlin", "Dermatology")
	if err != nil {
		t.Fatalf("SearchDoctors failed: %v", err)
	}
	if len(doctors) != 1 || doctors[0].ID != 2 {
		t.Errorf("Expected only the Berlin dermatologist, got %v", doctors)
	}
}
