// Package flow provides the session engine driving the per-turn transitions.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kapwa-labs/KamustaBot/internal/models"
	"github.com/kapwa-labs/KamustaBot/internal/util"
)

// EventDirectory is the engine's only view of stored events. The check-in
// flow searches it; the engine itself performs no other I/O.
type EventDirectory interface {
	// FindByDate returns events of the category occurring on an ISO date.
	FindByDate(ctx context.Context, category, date string) ([]models.Event, error)

	// Ongoing returns events of the category whose check-in window is open.
	Ongoing(ctx context.Context, category string, now time.Time) ([]models.Event, error)

	// GetEvent returns one event by id, or nil when it does not exist.
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

// Engine drives sessions through their flow definitions. It is stateless
// across sessions; all conversation state lives in the Session value.
type Engine struct {
	directory EventDirectory
	now       clock
}

// Option defines a configuration option for the engine.
type Option func(*Engine)

// WithDirectory sets the event directory consulted by the check-in flow.
func WithDirectory(dir EventDirectory) Option {
	return func(e *Engine) { e.directory = dir }
}

// WithClock overrides the engine clock, used by tests and window checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine with the given options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewSession creates a fresh session for the flow and records the greeting
// as the first assistant turn.
func (e *Engine) NewSession(ft models.FlowType) (*models.Session, error) {
	def, ok := Get(ft)
	if !ok {
		slog.Error("Engine.NewSession: unknown flow", "flow", ft)
		return nil, models.ErrUnknownFlow
	}
	now := e.now()
	s := &models.Session{
		ID:          util.GenerateSessionID(),
		Flow:        ft,
		CurrentStep: def.Order[0],
		Collected:   make(map[models.FieldKey]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.appendAssistant(s, def.Greeting(e, s), nil, nil)
	slog.Debug("Engine.NewSession: session created", "session", s.ID, "flow", ft)
	return s, nil
}

// Greeting returns the first assistant message for a flow without creating
// a session.
func (e *Engine) Greeting(ft models.FlowType) (models.Turn, error) {
	def, ok := Get(ft)
	if !ok {
		return models.Turn{}, models.ErrUnknownFlow
	}
	scratch := &models.Session{Flow: ft, Collected: make(map[models.FieldKey]string)}
	return models.Turn{
		Speaker:   models.SpeakerAssistant,
		Text:      def.Greeting(e, scratch),
		Timestamp: e.now(),
	}, nil
}

// ProcessTurn advances the session by exactly one user turn and returns the
// assistant's reply. Validation failures never change the current step, the
// collected data, or the flags.
func (e *Engine) ProcessTurn(ctx context.Context, s *models.Session, rawInput string) (models.Turn, error) {
	if s.Completed {
		slog.Debug("Engine.ProcessTurn: session already completed", "session", s.ID)
		return models.Turn{}, models.ErrSessionCompleted
	}
	def, ok := Get(s.Flow)
	if !ok {
		return models.Turn{}, models.ErrUnknownFlow
	}
	step, ok := def.Steps[s.CurrentStep]
	if !ok {
		slog.Error("Engine.ProcessTurn: no handler for step", "session", s.ID, "flow", s.Flow, "step", s.CurrentStep)
		return models.Turn{}, fmt.Errorf("%w: %s", models.ErrUnknownStep, s.CurrentStep)
	}

	now := e.now()
	s.Transcript = append(s.Transcript, models.Turn{
		Speaker:   models.SpeakerUser,
		Text:      rawInput,
		Timestamp: now,
	})
	s.UpdatedAt = now

	res := step.Handle(ctx, e, s, rawInput)

	if !res.Advanced {
		// Self-loop: restate the constraint, leave everything else alone.
		return e.appendAssistant(s, res.Reply, res.EditTarget, res.Completion), nil
	}

	from := s.CurrentStep
	reply := res.Reply

	if res.Completion != nil {
		s.CurrentStep = def.CompleteStep
		s.Completed = true
		logTransition(s, from, s.CurrentStep)
		return e.appendAssistant(s, reply, res.EditTarget, res.Completion), nil
	}

	// Review-mode override: once the user has been to the review screen, a
	// successful edit reconverges there as soon as the record is complete.
	// This check is deliberately outside the default transition table.
	if s.Flags.InReviewMode && def.Missing(s) == "" {
		s.CurrentStep = def.ReviewStep
		reply = reviewSummary(def, s)
		s.Flags.InReviewMode = false // cleared only after the summary is rendered
		logTransition(s, from, s.CurrentStep)
		return e.appendAssistant(s, reply, res.EditTarget, nil), nil
	}

	next := res.Next
	if next == "" {
		next = e.defaultNext(def, s, from)
	}
	s.CurrentStep = next
	logTransition(s, from, next)

	if reply == "" {
		reply = def.Steps[next].Prompt(e, s)
	}
	return e.appendAssistant(s, reply, res.EditTarget, nil), nil
}

// defaultNext walks the flow order past the current step, skipping steps
// whose field the session already collected. This is what lets one utterance
// that filled several fields advance past all of them in a single turn.
func (e *Engine) defaultNext(def *Definition, s *models.Session, from models.StepID) models.StepID {
	idx := def.indexOf(from)
	if idx < 0 || idx+1 >= len(def.Order) {
		return def.CompleteStep
	}
	for _, id := range def.Order[idx+1:] {
		st := def.Steps[id]
		if st.Field == "" {
			return id
		}
		if _, filled := s.Collected[st.Field]; !filled {
			return id
		}
	}
	return def.CompleteStep
}

// Reset clears all fields, flags, and transcript and returns the session to
// its greeting.
func (e *Engine) Reset(s *models.Session) error {
	def, ok := Get(s.Flow)
	if !ok {
		return models.ErrUnknownFlow
	}
	s.CurrentStep = def.Order[0]
	s.Collected = make(map[models.FieldKey]string)
	s.Flags = models.ControlFlags{}
	s.Transcript = nil
	s.Completed = false
	s.UpdatedAt = e.now()
	e.appendAssistant(s, def.Greeting(e, s), nil, nil)
	slog.Info("Engine.Reset: session reset", "session", s.ID, "flow", s.Flow)
	return nil
}

// GoBackToStep re-enters an earlier collecting step, as triggered by an
// "Edit" affordance on a prior assistant turn. The transcript is truncated
// to that turn and the prior value is offered as a suggested default. The
// session reconverges onto review (or the first unfilled step) afterwards.
func (e *Engine) GoBackToStep(s *models.Session, step models.StepID, priorValue string) (models.Turn, error) {
	def, ok := Get(s.Flow)
	if !ok {
		return models.Turn{}, models.ErrUnknownFlow
	}
	target, ok := def.Steps[step]
	if !ok || target.Field == "" {
		return models.Turn{}, fmt.Errorf("%w: %s", models.ErrUnknownStep, step)
	}

	// Truncate the transcript to the turn that collected this field.
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		et := s.Transcript[i].EditTarget
		if et != nil && et.Step == step {
			s.Transcript = s.Transcript[:i+1]
			break
		}
	}

	def.clearField(s, target.Field)
	s.CurrentStep = step
	s.Flags.InReviewMode = true
	s.Flags.Candidates = nil
	s.Completed = false
	s.UpdatedAt = e.now()

	prompt := target.Prompt(e, s)
	if priorValue != "" {
		prompt = fmt.Sprintf("%s (currently %q)", prompt, priorValue)
	}
	slog.Debug("Engine.GoBackToStep: re-entering step", "session", s.ID, "step", step)
	return e.appendAssistant(s, prompt, nil, nil), nil
}

// Progress reports how many required slots the session has filled.
func (e *Engine) Progress(s *models.Session) (models.Progress, error) {
	def, ok := Get(s.Flow)
	if !ok {
		return models.Progress{}, models.ErrUnknownFlow
	}
	completed, total := def.Slots(s)
	p := models.Progress{Completed: completed, Total: total}
	if total > 0 {
		p.Percentage = float64(completed) / float64(total) * 100
	}
	return p, nil
}

// ReportExternalResult feeds back the outcome of the external action the
// caller performed with a completion payload. The engine uses it purely as
// routing information: a conflict clears only the offending field and
// re-enters its collection step with everything else preserved.
func (e *Engine) ReportExternalResult(s *models.Session, result models.ExternalResult) (models.Turn, error) {
	if !models.IsValidExternalResult(result) {
		return models.Turn{}, models.ErrInvalidResult
	}
	def, ok := Get(s.Flow)
	if !ok {
		return models.Turn{}, models.ErrUnknownFlow
	}
	slog.Info("Engine.ReportExternalResult: routing external outcome", "session", s.ID, "flow", s.Flow, "result", result)
	reply := def.ExternalResult(e, s, result)
	s.UpdatedAt = e.now()
	return e.appendAssistant(s, reply, nil, nil), nil
}

// appendAssistant records and returns one assistant turn.
func (e *Engine) appendAssistant(s *models.Session, text string, et *models.EditTarget, completion *models.Completion) models.Turn {
	turn := models.Turn{
		Speaker:    models.SpeakerAssistant,
		Text:       text,
		Timestamp:  e.now(),
		EditTarget: et,
		Completion: completion,
	}
	s.Transcript = append(s.Transcript, turn)
	return turn
}
