// Package store provides storage backends for KamustaBot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/kapwa-labs/KamustaBot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	slog.Debug("Postgres database opened")

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Postgres ping successful")

	// Run migrations to ensure tables exist
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// SaveSession stores or updates a session snapshot.
func (s *PostgresStore) SaveSession(sess *models.Session) error {
	collected, flags, transcript, err := sessionColumns(sess)
	if err != nil {
		slog.Error("PostgresStore SaveSession marshal failed", "error", err, "session", sess.ID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, flow_type, current_step, collected, flags, transcript, completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   flow_type = EXCLUDED.flow_type,
		   current_step = EXCLUDED.current_step,
		   collected = EXCLUDED.collected,
		   flags = EXCLUDED.flags,
		   transcript = EXCLUDED.transcript,
		   completed = EXCLUDED.completed,
		   updated_at = EXCLUDED.updated_at`,
		sess.ID, sess.Flow, sess.CurrentStep, collected, flags, transcript,
		sess.Completed, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "session", sess.ID)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "session", sess.ID, "step", sess.CurrentStep)
	return nil
}

// GetSession retrieves a session snapshot, or nil when it does not exist.
func (s *PostgresStore) GetSession(id string) (*models.Session, error) {
	var sess models.Session
	var collected, flags, transcript sql.NullString
	err := s.db.QueryRow(
		`SELECT id, flow_type, current_step, collected, flags, transcript, completed, created_at, updated_at
		 FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Flow, &sess.CurrentStep, &collected, &flags, &transcript,
		&sess.Completed, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "session", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "session", id)
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	if err := restoreSession(&sess, collected.String, flags.String, transcript.String); err != nil {
		slog.Error("PostgresStore GetSession restore failed", "error", err, "session", id)
		return nil, err
	}
	slog.Debug("PostgresStore GetSession found", "session", id, "step", sess.CurrentStep)
	return &sess, nil
}

// DeleteSession removes a session snapshot.
func (s *PostgresStore) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "session", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	slog.Debug("PostgresStore DeleteSession succeeded", "session", id)
	return nil
}

// SaveEvent stores or updates an event record.
func (s *PostgresStore) SaveEvent(ev models.Event) error {
	_, err := s.db.Exec(
		`INSERT INTO events
		 (id, title, category, is_recurring, recurrence_pattern, recurrence_days, recurrence_interval,
		  start_date, end_date, start_time, end_time, location, venue, description, has_registration,
		  created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title,
		   category = EXCLUDED.category,
		   is_recurring = EXCLUDED.is_recurring,
		   recurrence_pattern = EXCLUDED.recurrence_pattern,
		   recurrence_days = EXCLUDED.recurrence_days,
		   recurrence_interval = EXCLUDED.recurrence_interval,
		   start_date = EXCLUDED.start_date,
		   end_date = EXCLUDED.end_date,
		   start_time = EXCLUDED.start_time,
		   end_time = EXCLUDED.end_time,
		   location = EXCLUDED.location,
		   venue = EXCLUDED.venue,
		   description = EXCLUDED.description,
		   has_registration = EXCLUDED.has_registration,
		   updated_at = EXCLUDED.updated_at`,
		ev.ID, ev.Title, ev.Category, ev.IsRecurring,
		nilIfEmpty(ev.RecurrencePattern), recurrenceDaysColumn(ev.RecurrenceDays), ev.RecurrenceInterval,
		ev.StartDate, ev.EndDate, nilIfEmpty(ev.StartTime), nilIfEmpty(ev.EndTime),
		ev.Location, nilIfEmpty(ev.Venue), nilIfEmpty(ev.Description), ev.HasRegistration,
		ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveEvent failed", "error", err, "event", ev.ID)
		return fmt.Errorf("failed to save event %s: %w", ev.ID, err)
	}
	slog.Debug("PostgresStore SaveEvent succeeded", "event", ev.ID, "title", ev.Title)
	return nil
}

// GetEvent retrieves an event by id, or nil when it does not exist.
func (s *PostgresStore) GetEvent(id string) (*models.Event, error) {
	row := s.db.QueryRow(
		`SELECT id, title, category, is_recurring, recurrence_pattern, recurrence_days, recurrence_interval,
		        start_date, end_date, start_time, end_time, location, venue, description, has_registration,
		        created_at, updated_at
		 FROM events WHERE id = $1`, id,
	)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetEvent not found", "event", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetEvent failed", "error", err, "event", id)
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	return &ev, nil
}

// ListEvents retrieves all events, optionally filtered by category.
func (s *PostgresStore) ListEvents(category string) ([]models.Event, error) {
	query := `SELECT id, title, category, is_recurring, recurrence_pattern, recurrence_days, recurrence_interval,
	                 start_date, end_date, start_time, end_time, location, venue, description, has_registration,
	                 created_at, updated_at
	          FROM events`
	var rows *sql.Rows
	var err error
	if category != "" {
		rows, err = s.db.Query(query+` WHERE category = $1 ORDER BY start_date, id`, category)
	} else {
		rows, err = s.db.Query(query + ` ORDER BY start_date, id`)
	}
	if err != nil {
		slog.Error("PostgresStore ListEvents query failed", "error", err, "category", category)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			slog.Error("PostgresStore ListEvents scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListEvents rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	slog.Debug("PostgresStore ListEvents succeeded", "count", len(events), "category", category)
	return events, nil
}

// DeleteEvent removes an event record.
func (s *PostgresStore) DeleteEvent(id string) error {
	_, err := s.db.Exec(`DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteEvent failed", "error", err, "event", id)
		return fmt.Errorf("failed to delete event %s: %w", id, err)
	}
	slog.Debug("PostgresStore DeleteEvent succeeded", "event", id)
	return nil
}

// AddCheckin stores an attendance record.
func (s *PostgresStore) AddCheckin(rec models.CheckinRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO checkins (id, event_id, member_ref, checked_in_at) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.EventID, nilIfEmpty(rec.MemberRef), rec.CheckedInAt,
	)
	if err != nil {
		slog.Error("PostgresStore AddCheckin failed", "error", err, "event", rec.EventID)
		return fmt.Errorf("failed to insert check-in for event %s: %w", rec.EventID, err)
	}
	slog.Debug("PostgresStore AddCheckin succeeded", "event", rec.EventID, "member", rec.MemberRef)
	return nil
}

// GetCheckins retrieves all attendance records for an event.
func (s *PostgresStore) GetCheckins(eventID string) ([]models.CheckinRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, event_id, member_ref, checked_in_at FROM checkins WHERE event_id = $1 ORDER BY checked_in_at`,
		eventID,
	)
	if err != nil {
		slog.Error("PostgresStore GetCheckins query failed", "error", err, "event", eventID)
		return nil, fmt.Errorf("failed to query check-ins: %w", err)
	}
	defer rows.Close()

	var records []models.CheckinRecord
	for rows.Next() {
		var rec models.CheckinRecord
		var memberRef sql.NullString
		if err := rows.Scan(&rec.ID, &rec.EventID, &memberRef, &rec.CheckedInAt); err != nil {
			slog.Error("PostgresStore GetCheckins scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan check-in row: %w", err)
		}
		rec.MemberRef = memberRef.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetCheckins rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate check-in rows: %w", err)
	}
	slog.Debug("PostgresStore GetCheckins succeeded", "event", eventID, "count", len(records))
	return records, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	} else {
		slog.Debug("Postgres database connection closed successfully")
	}
	return err
}
