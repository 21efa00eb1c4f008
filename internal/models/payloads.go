// Package models defines completion payload shapes for the three flows.
package models

import (
	"errors"
	"regexp"
	"time"
)

// Validation constants for completion payloads.
const (
	MinPasswordLength = 6
	MaxSuffixLength   = 10
)

// Error variables for payload validation.
var (
	ErrMissingRequiredField  = errors.New("required field missing")
	ErrNoContactChannel      = errors.New("exactly one of email or phone must be set")
	ErrBothContactChannels   = errors.New("exactly one of email or phone must be set")
	ErrPasswordTooShort      = errors.New("password must be at least 6 characters")
	ErrMissingRecurrence     = errors.New("recurring event requires a recurrence pattern")
	ErrEmptyRecurrenceDays   = errors.New("weekly recurrence requires at least one day")
	ErrBadRecurrenceInterval = errors.New("recurrence interval must be at least 1")
	ErrMissingEventID        = errors.New("event id is required")
)

var isoDateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// SignupPayload is the validated record handed to account creation.
// All values are in their normalized forms.
type SignupPayload struct {
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
	MiddleName      *string `json:"middle_name"`
	Suffix          *string `json:"suffix"`
	Nickname        string  `json:"nickname"`
	EncounterType   string  `json:"encounter_type"`
	Location        string  `json:"location"`
	EncounterNumber string  `json:"encounter_number"`
	Email           *string `json:"email"`
	Phone           *string `json:"phone"`
	Password        string  `json:"password"`
}

// Validate re-checks the sign-up invariants before the payload leaves the engine.
func (p *SignupPayload) Validate() error {
	if p.FirstName == "" || p.LastName == "" || p.Nickname == "" ||
		p.EncounterType == "" || p.Location == "" || p.EncounterNumber == "" {
		return ErrMissingRequiredField
	}
	if p.Email == nil && p.Phone == nil {
		return ErrNoContactChannel
	}
	if p.Email != nil && p.Phone != nil {
		return ErrBothContactChannels
	}
	if len(p.Password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// Recurrence pattern constants for event payloads.
const (
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

// IsValidRecurrencePattern checks if the given pattern is supported.
func IsValidRecurrencePattern(p string) bool {
	switch p {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	default:
		return false
	}
}

// Event category constants. Regular events recur; special events are one-time.
const (
	CategoryRegular = "regular"
	CategorySpecial = "special"
)

// EventPayload is the validated record handed to event creation.
type EventPayload struct {
	Title              string   `json:"title"`
	Category           string   `json:"category"`
	IsRecurring        bool     `json:"is_recurring"`
	RecurrencePattern  *string  `json:"recurrence_pattern"`
	RecurrenceDays     []string `json:"recurrence_days"`
	RecurrenceInterval int      `json:"recurrence_interval"`
	StartDate          string   `json:"start_date"` // YYYY-MM-DD
	EndDate            string   `json:"end_date"`   // YYYY-MM-DD
	StartTime          *string  `json:"start_time"` // HH:MM, 24-hour
	EndTime            *string  `json:"end_time"`
	Location           string   `json:"location"`
	Venue              *string  `json:"venue"`
	Description        *string  `json:"description"`
	HasRegistration    bool     `json:"has_registration"`
}

// Validate re-checks the event-authoring invariants before emission.
func (p *EventPayload) Validate() error {
	if p.Title == "" || p.Category == "" || p.Location == "" {
		return ErrMissingRequiredField
	}
	if !isoDateRegex.MatchString(p.StartDate) || !isoDateRegex.MatchString(p.EndDate) {
		return ErrMissingRequiredField
	}
	if p.IsRecurring {
		if p.RecurrencePattern == nil || !IsValidRecurrencePattern(*p.RecurrencePattern) {
			return ErrMissingRecurrence
		}
		if *p.RecurrencePattern == RecurrenceWeekly && len(p.RecurrenceDays) == 0 {
			return ErrEmptyRecurrenceDays
		}
		if p.RecurrenceInterval < 1 {
			return ErrBadRecurrenceInterval
		}
	}
	return nil
}

// ToEvent converts a validated payload into a stored event record under the
// given id. Optional fields collapse to their zero values.
func (p *EventPayload) ToEvent(id string) Event {
	now := time.Now()
	ev := Event{
		ID:                 id,
		Title:              p.Title,
		Category:           p.Category,
		IsRecurring:        p.IsRecurring,
		RecurrenceDays:     p.RecurrenceDays,
		RecurrenceInterval: p.RecurrenceInterval,
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		Location:           p.Location,
		HasRegistration:    p.HasRegistration,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if p.RecurrencePattern != nil {
		ev.RecurrencePattern = *p.RecurrencePattern
	}
	if p.StartTime != nil {
		ev.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		ev.EndTime = *p.EndTime
	}
	if p.Venue != nil {
		ev.Venue = *p.Venue
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	return ev
}

// CheckinPayload is the validated record handed to attendance submission.
// Member identity is held by the caller, not the engine.
type CheckinPayload struct {
	EventID string `json:"event_id"`
}

// Validate re-checks the check-in invariants before emission.
func (p *CheckinPayload) Validate() error {
	if p.EventID == "" {
		return ErrMissingEventID
	}
	return nil
}
