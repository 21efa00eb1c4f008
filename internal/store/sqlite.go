// Package store provides storage backends for KamustaBot.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/kapwa-labs/KamustaBot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	slog.Debug("SQLite database opened")

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLite ping successful")

	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveSession stores or replaces a session snapshot.
func (s *SQLiteStore) SaveSession(sess *models.Session) error {
	collected, flags, transcript, err := sessionColumns(sess)
	if err != nil {
		slog.Error("SQLiteStore SaveSession marshal failed", "error", err, "session", sess.ID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO sessions (id, flow_type, current_step, collected, flags, transcript, completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Flow, sess.CurrentStep, collected, flags, transcript,
		sess.Completed, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "session", sess.ID)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "session", sess.ID, "step", sess.CurrentStep)
	return nil
}

// GetSession retrieves a session snapshot, or nil when it does not exist.
func (s *SQLiteStore) GetSession(id string) (*models.Session, error) {
	var sess models.Session
	var collected, flags, transcript sql.NullString
	err := s.db.QueryRow(
		`SELECT id, flow_type, current_step, collected, flags, transcript, completed, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Flow, &sess.CurrentStep, &collected, &flags, &transcript,
		&sess.Completed, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "session", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "session", id)
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	if err := restoreSession(&sess, collected.String, flags.String, transcript.String); err != nil {
		slog.Error("SQLiteStore GetSession restore failed", "error", err, "session", id)
		return nil, err
	}
	slog.Debug("SQLiteStore GetSession found", "session", id, "step", sess.CurrentStep)
	return &sess, nil
}

// DeleteSession removes a session snapshot.
func (s *SQLiteStore) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "session", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "session", id)
	return nil
}

// SaveEvent stores or replaces an event record.
func (s *SQLiteStore) SaveEvent(ev models.Event) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO events
		 (id, title, category, is_recurring, recurrence_pattern, recurrence_days, recurrence_interval,
		  start_date, end_date, start_time, end_time, location, venue, description, has_registration,
		  created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Title, ev.Category, ev.IsRecurring,
		nilIfEmpty(ev.RecurrencePattern), recurrenceDaysColumn(ev.RecurrenceDays), ev.RecurrenceInterval,
		ev.StartDate, ev.EndDate, nilIfEmpty(ev.StartTime), nilIfEmpty(ev.EndTime),
		ev.Location, nilIfEmpty(ev.Venue), nilIfEmpty(ev.Description), ev.HasRegistration,
		ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveEvent failed", "error", err, "event", ev.ID)
		return fmt.Errorf("failed to save event %s: %w", ev.ID, err)
	}
	slog.Debug("SQLiteStore SaveEvent succeeded", "event", ev.ID, "title", ev.Title)
	return nil
}

// GetEvent retrieves an event by id, or nil when it does not exist.
func (s *SQLiteStore) GetEvent(id string) (*models.Event, error) {
	row := s.db.QueryRow(
		`SELECT id, title, category, is_recurring, recurrence_pattern, recurrence_days, recurrence_interval,
		        start_date, end_date, start_time, end_time, location, venue, description, has_registration,
		        created_at, updated_at
		 FROM events WHERE id = ?`, id,
	)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetEvent not found", "event", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetEvent failed", "error", err, "event", id)
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	return &ev, nil
}

// ListEvents retrieves all events, optionally filtered by category.
func (s *SQLiteStore) ListEvents(category string) ([]models.Event, error) {
	query := `SELECT id, title, category, is_recurring, recurrence_pattern, recurrence_days, recurrence_interval,
	                 start_date, end_date, start_time, end_time, location, venue, description, has_registration,
	                 created_at, updated_at
	          FROM events`
	var rows *sql.Rows
	var err error
	if category != "" {
		rows, err = s.db.Query(query+` WHERE category = ? ORDER BY start_date, id`, category)
	} else {
		rows, err = s.db.Query(query + ` ORDER BY start_date, id`)
	}
	if err != nil {
		slog.Error("SQLiteStore ListEvents query failed", "error", err, "category", category)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			slog.Error("SQLiteStore ListEvents scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListEvents rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	slog.Debug("SQLiteStore ListEvents succeeded", "count", len(events), "category", category)
	return events, nil
}

// DeleteEvent removes an event record.
func (s *SQLiteStore) DeleteEvent(id string) error {
	_, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteEvent failed", "error", err, "event", id)
		return fmt.Errorf("failed to delete event %s: %w", id, err)
	}
	slog.Debug("SQLiteStore DeleteEvent succeeded", "event", id)
	return nil
}

// AddCheckin stores an attendance record.
func (s *SQLiteStore) AddCheckin(rec models.CheckinRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO checkins (id, event_id, member_ref, checked_in_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.EventID, nilIfEmpty(rec.MemberRef), rec.CheckedInAt,
	)
	if err != nil {
		slog.Error("SQLiteStore AddCheckin failed", "error", err, "event", rec.EventID)
		return fmt.Errorf("failed to insert check-in for event %s: %w", rec.EventID, err)
	}
	slog.Debug("SQLiteStore AddCheckin succeeded", "event", rec.EventID, "member", rec.MemberRef)
	return nil
}

// GetCheckins retrieves all attendance records for an event.
func (s *SQLiteStore) GetCheckins(eventID string) ([]models.CheckinRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, event_id, member_ref, checked_in_at FROM checkins WHERE event_id = ? ORDER BY checked_in_at`,
		eventID,
	)
	if err != nil {
		slog.Error("SQLiteStore GetCheckins query failed", "error", err, "event", eventID)
		return nil, fmt.Errorf("failed to query check-ins: %w", err)
	}
	defer rows.Close()

	var records []models.CheckinRecord
	for rows.Next() {
		var rec models.CheckinRecord
		var memberRef sql.NullString
		if err := rows.Scan(&rec.ID, &rec.EventID, &memberRef, &rec.CheckedInAt); err != nil {
			slog.Error("SQLiteStore GetCheckins scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan check-in row: %w", err)
		}
		rec.MemberRef = memberRef.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetCheckins rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate check-in rows: %w", err)
	}
	slog.Debug("SQLiteStore GetCheckins succeeded", "event", eventID, "count", len(records))
	return records, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	} else {
		slog.Debug("SQLite database connection closed successfully")
	}
	return err
}
