// Package store provides storage backends for KamustaBot.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backed stores selected by DSN shape.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kapwa-labs/KamustaBot/internal/models"
	"github.com/kapwa-labs/KamustaBot/internal/util"
)

// Opts holds configuration for store construction.
type Opts struct {
	// DSN is the database connection string. For SQLite this is a file path;
	// for PostgreSQL a postgres:// URL or key=value DSN.
	DSN string
}

// Option defines a configuration option for store construction.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL-shaped DSNs and "sqlite3"
// otherwise. A bare file path is treated as SQLite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Store is the persistence surface the caller layers (API, messaging) use:
// session snapshots, the event directory, attendance records, and the
// durable outbox for outgoing replies.
type Store interface {
	SaveSession(s *models.Session) error
	GetSession(id string) (*models.Session, error)
	DeleteSession(id string) error

	SaveEvent(ev models.Event) error
	GetEvent(id string) (*models.Event, error)
	ListEvents(category string) ([]models.Event, error)
	DeleteEvent(id string) error

	AddCheckin(rec models.CheckinRecord) error
	GetCheckins(eventID string) ([]models.CheckinRecord, error)

	OutboxRepo

	Close() error
}

// Compile-time checks that all three stores satisfy Store.
var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// InMemoryStore is a simple in-memory store for tests and development.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	events   map[string]models.Event
	checkins []models.CheckinRecord
	outbox   []OutboxMessage
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*models.Session),
		events:   make(map[string]models.Event),
	}
}

func (s *InMemoryStore) SaveSession(sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sess
	s.sessions[sess.ID] = &copied
	return nil
}

func (s *InMemoryStore) GetSession(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *sess
	return &copied, nil
}

func (s *InMemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *InMemoryStore) SaveEvent(ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev
	return nil
}

func (s *InMemoryStore) GetEvent(id string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (s *InMemoryStore) ListEvents(category string) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, ev := range s.events {
		if category == "" || ev.Category == category {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) DeleteEvent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, id)
	return nil
}

func (s *InMemoryStore) AddCheckin(rec models.CheckinRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkins = append(s.checkins, rec)
	return nil
}

func (s *InMemoryStore) GetCheckins(eventID string) ([]models.CheckinRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CheckinRecord
	for _, rec := range s.checkins {
		if rec.EventID == eventID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *InMemoryStore) EnqueueOutboxMessage(recipient, kind, payloadJSON, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, m := range s.outbox {
			if m.DedupeKey == dedupeKey && m.Status != OutboxStatusSent && m.Status != OutboxStatusCanceled {
				return m.ID, nil
			}
		}
	}
	now := time.Now()
	m := OutboxMessage{
		ID:          util.GenerateRandomID("outbox_", 32),
		Recipient:   recipient,
		Kind:        kind,
		PayloadJSON: payloadJSON,
		Status:      OutboxStatusQueued,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.outbox = append(s.outbox, m)
	return m.ID, nil
}

func (s *InMemoryStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []OutboxMessage
	for i := range s.outbox {
		if len(claimed) >= limit {
			break
		}
		m := &s.outbox[i]
		if m.Status != OutboxStatusQueued {
			continue
		}
		if m.NextAttemptAt != nil && m.NextAttemptAt.After(now) {
			continue
		}
		m.Status = OutboxStatusSending
		locked := now
		m.LockedAt = &locked
		m.UpdatedAt = now
		claimed = append(claimed, *m)
	}
	return claimed, nil
}

func (s *InMemoryStore) MarkOutboxMessageSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox[i].Status = OutboxStatusSent
			s.outbox[i].LockedAt = nil
			s.outbox[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return nil
}

func (s *InMemoryStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox[i].Status = OutboxStatusQueued
			s.outbox[i].LastError = errMsg
			next := nextAttemptAt
			s.outbox[i].NextAttemptAt = &next
			s.outbox[i].LockedAt = nil
			s.outbox[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return nil
}

func (s *InMemoryStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.outbox {
		m := &s.outbox[i]
		if m.Status == OutboxStatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = OutboxStatusQueued
			m.LockedAt = nil
			m.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Close() error { return nil }
