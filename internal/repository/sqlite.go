package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/medix/medix-server/pkg/models"
)

// SQLiteRepository is the primary persistent store. A single file-backed
// database holds users, detection history, chat transcripts and appointments.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	// SQLite serializes writes; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	createTableSQL := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        email TEXT NOT NULL UNIQUE,
        hashed_password TEXT NOT NULL,
        full_name TEXT NOT NULL,
        user_type TEXT NOT NULL,
        city TEXT NOT NULL DEFAULT '',
        phone TEXT NOT NULL DEFAULT '',
        specialty TEXT NOT NULL DEFAULT '',
        license_number TEXT NOT NULL DEFAULT '',
        experience_years INTEGER NOT NULL DEFAULT 0,
        age INTEGER NOT NULL DEFAULT 0,
        gender TEXT NOT NULL DEFAULT '',
        is_active INTEGER NOT NULL DEFAULT 1,
        created_at TIMESTAMP NOT NULL
    );

    CREATE TABLE IF NOT EXISTS disease_results (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT NOT NULL,
        user_id INTEGER NOT NULL REFERENCES users(id),
        disease_type TEXT NOT NULL,
        predictions TEXT NOT NULL,
        final_diagnosis TEXT NOT NULL,
        recommendations TEXT NOT NULL DEFAULT '',
        gemini_analysis TEXT NOT NULL DEFAULT '',
        symptoms_provided TEXT NOT NULL DEFAULT '',
        triage_level TEXT NOT NULL,
        created_at TIMESTAMP NOT NULL
    );

    CREATE TABLE IF NOT EXISTS chat_messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        user_id INTEGER NOT NULL REFERENCES users(id),
        message_type TEXT NOT NULL,
        content TEXT NOT NULL,
        context_type TEXT NOT NULL DEFAULT '',
        timestamp TIMESTAMP NOT NULL
    );

    CREATE TABLE IF NOT EXISTS appointments (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        patient_id INTEGER NOT NULL REFERENCES users(id),
        doctor_id INTEGER NOT NULL REFERENCES users(id),
        appointment_date TIMESTAMP NOT NULL,
        status TEXT NOT NULL,
        disease_type TEXT NOT NULL DEFAULT '',
        symptoms TEXT NOT NULL DEFAULT '',
        meet_link TEXT NOT NULL DEFAULT '',
        meeting_id TEXT NOT NULL DEFAULT '',
        notes TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMP NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_results_user ON disease_results(user_id, created_at);
    CREATE INDEX IF NOT EXISTS idx_chat_session ON chat_messages(session_id, timestamp);
    CREATE INDEX IF NOT EXISTS idx_appointments_doctor ON appointments(doctor_id, appointment_date);
    CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments(patient_id, appointment_date);
    `

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// ---- users ----

const userColumns = `id, email, hashed_password, full_name, user_type, city, phone,
    specialty, license_number, experience_years, age, gender, is_active, created_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.FullName, &u.UserType,
		&u.City, &u.Phone, &u.Specialty, &u.LicenseNumber, &u.ExperienceYears,
		&u.Age, &u.Gender, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
    INSERT INTO users (email, hashed_password, full_name, user_type, city, phone,
        specialty, license_number, experience_years, age, gender, is_active, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	res, err := r.db.ExecContext(ctx, query,
		user.Email, user.HashedPassword, user.FullName, user.UserType,
		user.City, user.Phone, user.Specialty, user.LicenseNumber,
		user.ExperienceYears, user.Age, user.Gender, user.IsActive, user.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return models.E(models.KindConflict, "email already registered")
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}
	user.ID = id
	return nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	return user, nil
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user by id: %w", err)
	}
	return user, nil
}

func (r *SQLiteRepository) UpdateUser(ctx context.Context, user *models.User) error {
	query := `
    UPDATE users SET full_name = ?, city = ?, phone = ?, specialty = ?,
        license_number = ?, experience_years = ?, age = ?, gender = ?, is_active = ?
    WHERE id = ?
    `

	_, err := r.db.ExecContext(ctx, query,
		user.FullName, user.City, user.Phone, user.Specialty,
		user.LicenseNumber, user.ExperienceYears, user.Age, user.Gender,
		user.IsActive, user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// SearchDoctors filters active doctors by city and specialty.
// Empty filters match everything; matching is case-insensitive substring.
func (r *SQLiteRepository) SearchDoctors(ctx context.Context, city, specialty string) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
    WHERE user_type = ? AND is_active = 1
      AND (? = '' OR LOWER(city) LIKE '%' || LOWER(?) || '%')
      AND (? = '' OR LOWER(specialty) LIKE '%' || LOWER(?) || '%')
    ORDER BY experience_years DESC, full_name
    LIMIT 20`

	rows, err := r.db.QueryContext(ctx, query,
		models.UserTypeDoctor, city, city, specialty, specialty)
	if err != nil {
		return nil, fmt.Errorf("failed to search doctors: %w", err)
	}
	defer rows.Close()

	var doctors []*models.User
	for rows.Next() {
		doctor, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan doctor row: %w", err)
		}
		doctors = append(doctors, doctor)
	}
	return doctors, rows.Err()
}

func (r *SQLiteRepository) ListSpecialties(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT specialty FROM users
         WHERE user_type = ? AND is_active = 1 AND specialty != ''
         ORDER BY specialty`, models.UserTypeDoctor)
	if err != nil {
		return nil, fmt.Errorf("failed to list specialties: %w", err)
	}
	defer rows.Close()

	var specialties []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan specialty: %w", err)
		}
		specialties = append(specialties, s)
	}
	return specialties, rows.Err()
}

// ---- detection history ----

func (r *SQLiteRepository) SaveDetection(ctx context.Context, result *models.DetectionResult) error {
	predictionsJSON, err := json.Marshal(result.Predictions)
	if err != nil {
		return fmt.Errorf("failed to marshal predictions: %w", err)
	}

	query := `
    INSERT INTO disease_results (request_id, user_id, disease_type, predictions,
        final_diagnosis, recommendations, gemini_analysis, symptoms_provided,
        triage_level, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	res, err := r.db.ExecContext(ctx, query,
		result.RequestID, result.UserID, result.DiseaseType, string(predictionsJSON),
		result.FinalDiagnosis, result.Recommendations, result.GeminiAnalysis,
		result.SymptomsProvided, result.TriageLevel, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert detection result: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read result id: %w", err)
	}
	result.ID = id
	return nil
}

const resultColumns = `id, request_id, user_id, disease_type, predictions,
    final_diagnosis, recommendations, gemini_analysis, symptoms_provided,
    triage_level, created_at`

func scanDetection(row interface{ Scan(...interface{}) error }) (*models.DetectionResult, error) {
	var res models.DetectionResult
	var predictionsJSON string
	err := row.Scan(&res.ID, &res.RequestID, &res.UserID, &res.DiseaseType,
		&predictionsJSON, &res.FinalDiagnosis, &res.Recommendations,
		&res.GeminiAnalysis, &res.SymptomsProvided, &res.TriageLevel, &res.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(predictionsJSON), &res.Predictions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal predictions: %w", err)
	}
	return &res, nil
}

func (r *SQLiteRepository) ListDetections(ctx context.Context, userID int64, limit int) ([]*models.DetectionResult, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM disease_results
         WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query detection history: %w", err)
	}
	defer rows.Close()

	var results []*models.DetectionResult
	for rows.Next() {
		res, err := scanDetection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection row: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *SQLiteRepository) GetDetection(ctx context.Context, userID, resultID int64) (*models.DetectionResult, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM disease_results WHERE id = ? AND user_id = ?`,
		resultID, userID)
	res, err := scanDetection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query detection result: %w", err)
	}
	return res, nil
}

// ---- chat ----

func (r *SQLiteRepository) SaveChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	query := `
    INSERT INTO chat_messages (session_id, user_id, message_type, content, context_type, timestamp)
    VALUES (?, ?, ?, ?, ?, ?)
    `

	_, err := r.db.ExecContext(ctx, query,
		msg.SessionID, msg.UserID, msg.MessageType, msg.Content, msg.ContextType, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListChatMessages(ctx context.Context, userID int64, sessionID string, limit int) ([]*models.ChatMessage, error) {
	// Most recent messages, returned oldest first.
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id, user_id, message_type, content, context_type, timestamp FROM (
             SELECT id, session_id, user_id, message_type, content, context_type, timestamp
             FROM chat_messages WHERE session_id = ? AND user_id = ?
             ORDER BY timestamp DESC, id DESC LIMIT ?
         ) ORDER BY timestamp, id`, sessionID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.SessionID, &m.UserID, &m.MessageType,
			&m.Content, &m.ContextType, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// ChatSessionSummary is one row of the session list view.
type ChatSessionSummary struct {
	SessionID    string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	LastActivity time.Time `json:"last_activity"`
}

func (r *SQLiteRepository) ListChatSessions(ctx context.Context, userID int64) ([]*ChatSessionSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id, COUNT(*), MAX(timestamp)
         FROM chat_messages WHERE user_id = ?
         GROUP BY session_id ORDER BY MAX(timestamp) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*ChatSessionSummary
	for rows.Next() {
		var s ChatSessionSummary
		var lastActivity string
		if err := rows.Scan(&s.SessionID, &s.MessageCount, &lastActivity); err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		// MAX(timestamp) is an expression column with no declared type, so
		// the driver returns the stored text instead of a time.Time.
		s.LastActivity, err = parseStoredTime(lastActivity)
		if err != nil {
			return nil, fmt.Errorf("failed to parse session timestamp: %w", err)
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// parseStoredTime decodes a timestamp the sqlite driver wrote as text.
func parseStoredTime(value string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// ---- appointments ----

func (r *SQLiteRepository) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	query := `
    INSERT INTO appointments (patient_id, doctor_id, appointment_date, status,
        disease_type, symptoms, meet_link, meeting_id, notes, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	res, err := r.db.ExecContext(ctx, query,
		appt.PatientID, appt.DoctorID, appt.AppointmentDate, appt.Status,
		appt.DiseaseType, appt.Symptoms, appt.MeetLink, appt.MeetingID,
		appt.Notes, appt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read appointment id: %w", err)
	}
	appt.ID = id
	return nil
}

const appointmentColumns = `id, patient_id, doctor_id, appointment_date, status,
    disease_type, symptoms, meet_link, meeting_id, notes, created_at`

func scanAppointment(row interface{ Scan(...interface{}) error }) (*models.Appointment, error) {
	var a models.Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.AppointmentDate, &a.Status,
		&a.DiseaseType, &a.Symptoms, &a.MeetLink, &a.MeetingID, &a.Notes, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *SQLiteRepository) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query appointment: %w", err)
	}
	return appt, nil
}

// ListDoctorAppointments returns the doctor's scheduled appointments
// inside [from, to). Used for slot enumeration and conflict checks.
func (r *SQLiteRepository) ListDoctorAppointments(ctx context.Context, doctorID int64, from, to time.Time) ([]*models.Appointment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments
         WHERE doctor_id = ? AND status = ? AND appointment_date >= ? AND appointment_date < ?
         ORDER BY appointment_date`, doctorID, models.StatusScheduled, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query doctor appointments: %w", err)
	}
	defer rows.Close()

	return collectAppointments(rows)
}

// ListUserAppointments returns every appointment the user participates in,
// as patient or doctor depending on their role.
func (r *SQLiteRepository) ListUserAppointments(ctx context.Context, userID int64, userType string) ([]*models.Appointment, error) {
	column := "patient_id"
	if userType == models.UserTypeDoctor {
		column = "doctor_id"
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments
         WHERE `+column+` = ? ORDER BY appointment_date DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user appointments: %w", err)
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *SQLiteRepository) UpdateAppointmentStatus(ctx context.Context, id int64, status models.AppointmentStatus, notes string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE appointments SET status = ?, notes = CASE WHEN ? = '' THEN notes ELSE ? END WHERE id = ?`,
		status, notes, notes, id)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	return nil
}

func collectAppointments(rows *sql.Rows) ([]*models.Appointment, error) {
	var appointments []*models.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		appointments = append(appointments, appt)
	}
	return appointments, rows.Err()
}
