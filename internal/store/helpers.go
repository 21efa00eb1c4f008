package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kapwa-labs/KamustaBot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// recurrenceDaysColumn joins a day list for storage in one text column.
func recurrenceDaysColumn(days []string) interface{} {
	if len(days) == 0 {
		return nil
	}
	return strings.Join(days, ",")
}

// sessionColumns serializes the session's structured parts for storage.
func sessionColumns(s *models.Session) (collected, flags, transcript string, err error) {
	c, err := json.Marshal(s.Collected)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal session collected failed: %w", err)
	}
	f, err := json.Marshal(s.Flags)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal session flags failed: %w", err)
	}
	tr, err := json.Marshal(s.Transcript)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal session transcript failed: %w", err)
	}
	return string(c), string(f), string(tr), nil
}

// restoreSession deserializes the JSON columns back into the session.
func restoreSession(s *models.Session, collected, flags, transcript string) error {
	s.Collected = make(map[models.FieldKey]string)
	if collected != "" {
		if err := json.Unmarshal([]byte(collected), &s.Collected); err != nil {
			return fmt.Errorf("unmarshal session collected failed: %w", err)
		}
	}
	if flags != "" {
		if err := json.Unmarshal([]byte(flags), &s.Flags); err != nil {
			return fmt.Errorf("unmarshal session flags failed: %w", err)
		}
	}
	if transcript != "" {
		if err := json.Unmarshal([]byte(transcript), &s.Transcript); err != nil {
			return fmt.Errorf("unmarshal session transcript failed: %w", err)
		}
	}
	return nil
}

// eventScanner abstracts sql.Row and sql.Rows for the event scan helpers.
type eventScanner interface {
	Scan(dest ...interface{}) error
}

// scanEvent scans an Event row in the canonical column order.
func scanEvent(row eventScanner) (models.Event, error) {
	var ev models.Event
	var pattern, days, startTime, endTime, venue, description sql.NullString
	var interval sql.NullInt64
	err := row.Scan(
		&ev.ID, &ev.Title, &ev.Category, &ev.IsRecurring, &pattern, &days, &interval,
		&ev.StartDate, &ev.EndDate, &startTime, &endTime,
		&ev.Location, &venue, &description, &ev.HasRegistration,
		&ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return ev, err
	}
	ev.RecurrencePattern = pattern.String
	if days.Valid && days.String != "" {
		ev.RecurrenceDays = strings.Split(days.String, ",")
	}
	ev.RecurrenceInterval = int(interval.Int64)
	ev.StartTime = startTime.String
	ev.EndTime = endTime.String
	ev.Venue = venue.String
	ev.Description = description.String
	return ev, nil
}

// scanOutboxMessage scans an OutboxMessage from sql.Rows.
func scanOutboxMessage(rows *sql.Rows) (OutboxMessage, error) {
	var m OutboxMessage
	var payloadJSON, dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := rows.Scan(
		&m.ID, &m.Recipient, &m.Kind, &payloadJSON, &m.Status, &m.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.PayloadJSON = payloadJSON.String
	m.DedupeKey = dedupeKey.String
	m.LastError = lastError.String
	if nextAttemptAt.Valid {
		m.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		m.LockedAt = &lockedAt.Time
	}
	return m, nil
}
