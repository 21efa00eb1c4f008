// Package models defines the core data structures for KamustaBot.
//
// It includes the flow, step, and turn types shared by the dialogue engine,
// the HTTP API, and the storage backends.
package models

import (
	"errors"
	"time"
)

// FlowType identifies one of the guided conversation flows.
type FlowType string

const (
	// FlowTypeSignup collects a new member registration.
	FlowTypeSignup FlowType = "signup"
	// FlowTypeEventCreate collects a new event record.
	FlowTypeEventCreate FlowType = "event_create"
	// FlowTypeCheckin resolves an event and confirms attendance.
	FlowTypeCheckin FlowType = "checkin"
)

// IsValidFlowType checks if the given flow type is supported.
func IsValidFlowType(ft FlowType) bool {
	switch ft {
	case FlowTypeSignup, FlowTypeEventCreate, FlowTypeCheckin:
		return true
	default:
		return false
	}
}

// StepID identifies a single step in a flow's graph. The concrete values are
// declared per flow in the flow package so each definition stays a closed set.
type StepID string

// FieldKey identifies a collected field inside a session.
type FieldKey string

// Field keys shared across flows. A value stored under one of these keys has
// always passed its validator; raw input is never written to a session.
const (
	FieldFirstName       FieldKey = "first_name"
	FieldLastName        FieldKey = "last_name"
	FieldMiddleName      FieldKey = "middle_name"
	FieldSuffix          FieldKey = "suffix"
	FieldNickname        FieldKey = "nickname"
	FieldEncounterType   FieldKey = "encounter_type"
	FieldEncounterNumber FieldKey = "encounter_number"
	FieldLocation        FieldKey = "location"
	FieldEmail           FieldKey = "email"
	FieldPhone           FieldKey = "phone"
	FieldPassword        FieldKey = "password"

	FieldTitle              FieldKey = "title"
	FieldCategory           FieldKey = "category"
	FieldRecurrencePattern  FieldKey = "recurrence_pattern"
	FieldRecurrenceDays     FieldKey = "recurrence_days"
	FieldRecurrenceInterval FieldKey = "recurrence_interval"
	FieldStartDate          FieldKey = "start_date"
	FieldEndDate            FieldKey = "end_date"
	FieldStartTime          FieldKey = "start_time"
	FieldEndTime            FieldKey = "end_time"
	FieldVenue              FieldKey = "venue"
	FieldDescription        FieldKey = "description"
	FieldHasRegistration    FieldKey = "has_registration"

	FieldEventID FieldKey = "event_id"
	// FieldEventTitle and FieldEventWhen cache display labels for the
	// resolved check-in event so the confirm prompt needs no directory call.
	FieldEventTitle FieldKey = "event_title"
	FieldEventWhen  FieldKey = "event_when"
)

// NullValue marks a field the user explicitly skipped ("none"/"skip").
// It is distinct from the field being absent: a skipped field counts as
// collected and serializes to null in completion payloads.
const NullValue = "\x00none"

// Speaker identifies who produced a Turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// EditTarget is attached to assistant turns that collected a re-editable
// field, letting a UI offer an "Edit" affordance that jumps the session back.
type EditTarget struct {
	Step       StepID `json:"step"`
	PriorValue string `json:"prior_value"`
}

// Turn is one utterance in a session transcript.
type Turn struct {
	Speaker    Speaker     `json:"speaker"`
	Text       string      `json:"text"`
	Timestamp  time.Time   `json:"timestamp"`
	Completion *Completion `json:"completion,omitempty"`
	EditTarget *EditTarget `json:"edit_target,omitempty"`
}

// Completion carries the final, invariant-checked record of a finished flow.
// Exactly one of the payload fields is set, matching Flow.
type Completion struct {
	Flow    FlowType       `json:"flow"`
	Signup  *SignupPayload `json:"signup,omitempty"`
	Event   *EventPayload  `json:"event,omitempty"`
	Checkin *CheckinPayload `json:"checkin,omitempty"`
}

// Candidate is one entry of a numbered disambiguation list.
type Candidate struct {
	EventID string `json:"event_id"`
	Title   string `json:"title"`
	When    string `json:"when"` // rendered date/time portion of the list row
}

// MaxCandidatesShown caps how many candidates a numbered list displays.
const MaxCandidatesShown = 5

// ChannelKind identifies the contact channel chosen during sign-up.
type ChannelKind string

const (
	ChannelNone  ChannelKind = ""
	ChannelEmail ChannelKind = "email"
	ChannelPhone ChannelKind = "phone"
)

// ControlFlags holds the per-session routing context that is not expressible
// as "current step + input" alone.
type ControlFlags struct {
	// InReviewMode is set when the user jumped back from the review screen;
	// a successful field edit reconverges onto review instead of continuing
	// the default chain.
	InReviewMode bool `json:"in_review_mode"`
	// AwaitingChannel records which secondary contact channel is being
	// collected after the channel-choice step.
	AwaitingChannel ChannelKind `json:"awaiting_channel,omitempty"`
	// Candidates is the exact numbered list most recently shown to the user.
	// A numeric reply resolves against this list, never a recomputed one.
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Session is the complete state of one guided conversation. Sessions are
// owned values: one per conversation, never shared, never a singleton.
type Session struct {
	ID          string               `json:"id"`
	Flow        FlowType             `json:"flow"`
	CurrentStep StepID               `json:"current_step"`
	Collected   map[FieldKey]string  `json:"collected"`
	Flags       ControlFlags         `json:"flags"`
	Transcript  []Turn               `json:"transcript"`
	Completed   bool                 `json:"completed"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Progress summarizes how far a session has advanced through its required
// fields. Email/phone count as a single slot; password confirmation is not
// counted separately.
type Progress struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ExternalResult is the outcome of the external action a caller performed
// after receiving a completion payload. The engine consumes it purely as
// routing information.
type ExternalResult string

const (
	ExternalResultSuccess        ExternalResult = "success"
	ExternalResultDuplicateEmail ExternalResult = "duplicate_email"
	ExternalResultDuplicatePhone ExternalResult = "duplicate_phone"
	ExternalResultGenericFailure ExternalResult = "generic_failure"
)

// IsValidExternalResult checks if the given external result is supported.
func IsValidExternalResult(r ExternalResult) bool {
	switch r {
	case ExternalResultSuccess, ExternalResultDuplicateEmail, ExternalResultDuplicatePhone, ExternalResultGenericFailure:
		return true
	default:
		return false
	}
}

// Error variables shared across the engine and its callers.
var (
	ErrUnknownFlow      = errors.New("unknown flow type")
	ErrUnknownStep      = errors.New("unknown step for flow")
	ErrSessionCompleted = errors.New("session already completed")
	ErrInvalidResult    = errors.New("invalid external result")
)
