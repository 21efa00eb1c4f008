package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/kapwa-labs/KamustaBot/internal/models"
)

// Directory answers event lookups for the check-in flow from a Store.
type Directory struct {
	store Store
}

// NewDirectory creates a Directory backed by the given store.
func NewDirectory(st Store) *Directory {
	return &Directory{store: st}
}

// FindByDate returns events of the category occurring on an ISO date.
func (d *Directory) FindByDate(ctx context.Context, category, date string) ([]models.Event, error) {
	events, err := d.store.ListEvents(category)
	if err != nil {
		slog.Error("Directory.FindByDate: list events failed", "error", err, "category", category)
		return nil, err
	}
	var matches []models.Event
	for _, ev := range events {
		if ev.OccursOn(date) {
			matches = append(matches, ev)
		}
	}
	slog.Debug("Directory.FindByDate", "category", category, "date", date, "matches", len(matches))
	return matches, nil
}

// Ongoing returns events of the category whose check-in window is open.
func (d *Directory) Ongoing(ctx context.Context, category string, now time.Time) ([]models.Event, error) {
	events, err := d.store.ListEvents(category)
	if err != nil {
		slog.Error("Directory.Ongoing: list events failed", "error", err, "category", category)
		return nil, err
	}
	var open []models.Event
	for _, ev := range events {
		if ev.CheckinOpen(now) {
			open = append(open, ev)
		}
	}
	slog.Debug("Directory.Ongoing", "category", category, "open", len(open))
	return open, nil
}

// GetEvent returns one event by id, or nil when it does not exist.
func (d *Directory) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	return d.store.GetEvent(id)
}
