// Package flow implements the dialogue state machine behind the guided
// conversation flows: per-turn transitions, review-and-edit reconvergence,
// numbered-list disambiguation, and completion emission.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/kapwa-labs/KamustaBot/internal/models"
)

// Step bundles everything one node of a flow graph needs: the question it
// asks on entry and the handler that interprets the user's reply.
type Step struct {
	// Field is the collected-data key this step owns, or "" for steps that
	// collect nothing (review, confirm, complete). Steps whose field is
	// already collected are skipped during default advancement.
	Field models.FieldKey
	// Prompt renders the question asked when the session enters this step.
	Prompt func(e *Engine, s *models.Session) string
	// Handle interprets one user reply at this step.
	Handle StepHandler
}

// StepHandler interprets one user utterance. A handler never mutates the
// session on validation failure; it reports the violated constraint through
// Result.Reply with Advanced left false so the resolver self-loops.
type StepHandler func(ctx context.Context, e *Engine, s *models.Session, input string) Result

// Result is what a step handler produced for one turn.
type Result struct {
	// Reply is the assistant text to emit. When empty and the turn advanced,
	// the engine renders the next step's prompt instead.
	Reply string
	// Advanced is true when the step's field was filled (or the step's
	// purpose otherwise succeeded) and the session should move on.
	Advanced bool
	// Next overrides default order-based advancement, encoding flow forks.
	Next models.StepID
	// EditTarget marks the emitted assistant turn as re-editable.
	EditTarget *models.EditTarget
	// Completion carries the final payload when the flow finished.
	Completion *models.Completion
}

// reviewAlias maps one user keyword to the step that collects the targeted
// field. Aliases are matched exactly against the normalized input, in order,
// so specific aliases ("me number", "nickname") shadow generic ones ("name",
// "number") by position rather than by substring accident.
type reviewAlias struct {
	Alias string
	Step  models.StepID
}

// Definition is the ordered step graph of one flow.
type Definition struct {
	Type  models.FlowType
	Order []models.StepID
	Steps map[models.StepID]*Step
	// ReviewStep and CompleteStep anchor the review sub-graph and the
	// terminal state.
	ReviewStep   models.StepID
	CompleteStep models.StepID
	// Greeting renders the first assistant message of a fresh session.
	Greeting func(e *Engine, s *models.Session) string
	// Aliases is the ordered review-edit keyword table.
	Aliases []reviewAlias
	// Dependents lists fields that must be cleared alongside a field when it
	// is edited (e.g. encounter number depends on encounter type).
	Dependents map[models.FieldKey][]models.FieldKey
	// Missing returns the first step whose required field is not collected,
	// or "" when the record is complete. Conditional requirements (e.g. the
	// recurrence sub-sequence) are encoded here.
	Missing func(s *models.Session) models.StepID
	// Slots counts required-field progress; paired channels count once.
	Slots func(s *models.Session) (completed, total int)
	// Emit re-validates the full invariant set and builds the completion
	// payload. It returns the violating step when emission must be refused.
	Emit func(ctx context.Context, e *Engine, s *models.Session) (*models.Completion, models.StepID)
	// ExternalResult routes a caller-reported outcome of the external action.
	ExternalResult func(e *Engine, s *models.Session, result models.ExternalResult) string
}

var registry = make(map[models.FlowType]*Definition)

// Register associates a flow type with its definition.
func Register(def *Definition) {
	registry[def.Type] = def
}

// Get retrieves the definition for a flow type.
func Get(ft models.FlowType) (*Definition, bool) {
	def, ok := registry[ft]
	return def, ok
}

// indexOf returns the position of a step in the definition order, or -1.
func (d *Definition) indexOf(step models.StepID) int {
	for i, id := range d.Order {
		if id == step {
			return i
		}
	}
	return -1
}

// stepFor returns the step that collects the given field, or "".
func (d *Definition) stepFor(key models.FieldKey) models.StepID {
	for _, id := range d.Order {
		if st := d.Steps[id]; st != nil && st.Field == key {
			return id
		}
	}
	return ""
}

// clearField removes a field and its direct dependents from the session.
// Dependents are cleared one level deep; definitions list every affected
// field explicitly so paired fields may depend on each other.
func (d *Definition) clearField(s *models.Session, key models.FieldKey) {
	delete(s.Collected, key)
	for _, dep := range d.Dependents[key] {
		delete(s.Collected, dep)
	}
}

// Register default flow definitions.
func init() {
	Register(signupDefinition())
	Register(eventDefinition())
	Register(checkinDefinition())
}

// logTransition records one resolved transition for debugging.
func logTransition(s *models.Session, from, to models.StepID) {
	slog.Debug("flow transition", "session", s.ID, "flow", s.Flow, "from", from, "to", to)
}

// timestamp is a small indirection so tests can pin the clock on the engine.
type clock func() time.Time
