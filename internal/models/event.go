// Package models defines the persisted event record consulted by check-in.
package models

import (
	"strings"
	"time"
)

// CheckinGraceBefore is how long before an event's start time its check-in
// window opens.
const CheckinGraceBefore = time.Hour

// Event is a stored event record, created from an EventPayload by the caller
// and searched by the check-in flow through an EventDirectory.
type Event struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Category           string    `json:"category"`
	IsRecurring        bool      `json:"is_recurring"`
	RecurrencePattern  string    `json:"recurrence_pattern,omitempty"`
	RecurrenceDays     []string  `json:"recurrence_days,omitempty"`
	RecurrenceInterval int       `json:"recurrence_interval,omitempty"`
	StartDate          string    `json:"start_date"` // YYYY-MM-DD
	EndDate            string    `json:"end_date"`   // YYYY-MM-DD
	StartTime          string    `json:"start_time,omitempty"` // HH:MM, empty means unscheduled
	EndTime            string    `json:"end_time,omitempty"`
	Location           string    `json:"location"`
	Venue              string    `json:"venue,omitempty"`
	Description        string    `json:"description,omitempty"`
	HasRegistration    bool      `json:"has_registration"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// weekdayAbbrevs maps time.Weekday to the canonical three-letter form used in
// RecurrenceDays.
var weekdayAbbrevs = map[time.Weekday]string{
	time.Monday:    "Mon",
	time.Tuesday:   "Tue",
	time.Wednesday: "Wed",
	time.Thursday:  "Thu",
	time.Friday:    "Fri",
	time.Saturday:  "Sat",
	time.Sunday:    "Sun",
}

// OccursOn reports whether the event has an occurrence on the given date.
func (e *Event) OccursOn(date string) bool {
	if !e.IsRecurring {
		return e.StartDate == date
	}
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return false
	}
	start, err := time.Parse("2006-01-02", e.StartDate)
	if err != nil {
		return false
	}
	if d.Before(start) {
		return false
	}
	if e.EndDate != "" {
		end, err := time.Parse("2006-01-02", e.EndDate)
		if err == nil && d.After(end) {
			return false
		}
	}
	switch e.RecurrencePattern {
	case RecurrenceDaily:
		return true
	case RecurrenceWeekly:
		abbrev := weekdayAbbrevs[d.Weekday()]
		for _, day := range e.RecurrenceDays {
			if strings.EqualFold(day, abbrev) {
				return true
			}
		}
		return false
	case RecurrenceMonthly:
		return d.Day() == start.Day()
	default:
		return false
	}
}

// CheckinOpen reports whether the check-in window is open at the given
// moment. The window opens CheckinGraceBefore ahead of the start time and
// closes at the end time, or at end of day when the event has no end time.
func (e *Event) CheckinOpen(now time.Time) bool {
	today := now.Format("2006-01-02")
	if !e.OccursOn(today) {
		return false
	}
	if e.StartTime == "" {
		// Unscheduled events accept check-ins all day.
		return true
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", today+" "+e.StartTime, now.Location())
	if err != nil {
		return false
	}
	opens := start.Add(-CheckinGraceBefore)
	closes, _ := time.ParseInLocation("2006-01-02 15:04", today+" 23:59", now.Location())
	if e.EndTime != "" {
		if end, err := time.ParseInLocation("2006-01-02 15:04", today+" "+e.EndTime, now.Location()); err == nil {
			closes = end
		}
	}
	return !now.Before(opens) && !now.After(closes)
}

// WhenLabel renders the date/time portion of a candidate list row.
func (e *Event) WhenLabel() string {
	label := e.StartDate
	if e.IsRecurring {
		label = e.RecurrencePattern
		if len(e.RecurrenceDays) > 0 {
			label += " " + strings.Join(e.RecurrenceDays, "/")
		}
	}
	if e.StartTime != "" {
		label += " " + e.StartTime
	}
	return label
}

// Candidate converts the event into a disambiguation list entry.
func (e *Event) Candidate() Candidate {
	return Candidate{EventID: e.ID, Title: e.Title, When: e.WhenLabel()}
}

// CheckinRecord is a stored attendance record, written by the caller after a
// check-in completion payload was accepted.
type CheckinRecord struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	MemberRef   string    `json:"member_ref"`
	CheckedInAt time.Time `json:"checked_in_at"`
}
