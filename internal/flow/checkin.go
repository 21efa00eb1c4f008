// Package flow defines the event check-in flow.
package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kapwa-labs/KamustaBot/internal/field"
	"github.com/kapwa-labs/KamustaBot/internal/models"
)

// Step identifiers for the check-in flow.
const (
	StepCheckinCategory models.StepID = "CHECKIN_CATEGORY"
	StepCheckinSearch   models.StepID = "CHECKIN_SEARCH"
	StepCheckinConfirm  models.StepID = "CHECKIN_CONFIRM"
	StepCheckinComplete models.StepID = "CHECKIN_COMPLETE"
)

const checkinSearchPrompt = "Which event are you checking in for? Send a date " +
	"(e.g. \"Feb 15\" or \"today\"), or say \"ongoing\" for events happening right now."

func checkinDefinition() *Definition {
	def := &Definition{
		Type:         models.FlowTypeCheckin,
		ReviewStep:   StepCheckinConfirm,
		CompleteStep: StepCheckinComplete,
		Order: []models.StepID{
			StepCheckinCategory,
			StepCheckinSearch,
			StepCheckinConfirm,
			StepCheckinComplete,
		},
		Greeting: staticPrompt("Welcome! Let's get you checked in. 🙌 " +
			"Is it a regular (recurring) event or a special one-time event?"),
		Aliases: []reviewAlias{
			{"event", StepCheckinSearch},
			{"date", StepCheckinSearch},
			{"category", StepCheckinCategory},
		},
		Dependents: map[models.FieldKey][]models.FieldKey{
			models.FieldCategory: {models.FieldEventID, models.FieldEventTitle, models.FieldEventWhen},
			models.FieldEventID:  {models.FieldEventTitle, models.FieldEventWhen},
		},
	}

	def.Missing = checkinMissing
	def.Slots = checkinSlots
	def.Emit = checkinEmit
	def.ExternalResult = checkinExternalResult

	def.Steps = map[models.StepID]*Step{
		StepCheckinCategory: {
			Field:  models.FieldCategory,
			Prompt: staticPrompt("Is it a regular (recurring) event or a special one-time event?"),
			Handle: checkinCategoryHandler,
		},
		StepCheckinSearch: {
			Field:  models.FieldEventID,
			Prompt: staticPrompt(checkinSearchPrompt),
			Handle: checkinSearchHandler,
		},
		StepCheckinConfirm: {
			Prompt: checkinConfirmPrompt,
			Handle: checkinConfirmHandler,
		},
		StepCheckinComplete: {
			Prompt: staticPrompt("You're already checked in — enjoy the event!"),
			Handle: func(context.Context, *Engine, *models.Session, string) Result {
				return Result{Reply: "You're already checked in — enjoy the event!"}
			},
		},
	}

	return def
}

func checkinCategoryHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	prior := s.Collected[models.FieldCategory]
	v := strings.ToLower(strings.TrimSpace(input))
	var category string
	switch {
	case strings.Contains(v, "regular") || strings.Contains(v, "recurring"):
		category = models.CategoryRegular
	case strings.Contains(v, "special") || strings.Contains(v, "one-time") || strings.Contains(v, "one time") || strings.Contains(v, "onetime"):
		category = models.CategorySpecial
	default:
		return Result{Reply: "Please answer \"regular\" for a recurring event or \"special\" for a one-time event."}
	}
	if category != prior {
		def, _ := Get(models.FlowTypeCheckin)
		def.clearField(s, models.FieldCategory)
		s.Flags.Candidates = nil
	}
	s.Collected[models.FieldCategory] = category
	return Result{Advanced: true, Next: StepCheckinSearch, EditTarget: &models.EditTarget{Step: StepCheckinCategory, PriorValue: prior}}
}

// checkinSearchHandler resolves the user's input to one event. A pending
// numbered list is consulted first; a number outside the shown list falls
// through and is treated like any other search input.
func checkinSearchHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	if c, ok := resolveCandidate(s, input); ok {
		return selectEvent(s, c)
	}

	if e.directory == nil {
		slog.Error("Flow.checkinSearchHandler: no event directory configured", "session", s.ID)
		return Result{Reply: "Event lookup isn't available right now — please try again later."}
	}

	category := s.Collected[models.FieldCategory]
	v := strings.ToLower(strings.TrimSpace(input))

	if v == "ongoing" || v == "now" || v == "happening now" {
		events, err := e.directory.Ongoing(ctx, category, e.now())
		if err != nil {
			slog.Error("Flow.checkinSearchHandler: ongoing lookup failed", "session", s.ID, "error", err)
			return Result{Reply: "I couldn't look up events just now — please try again."}
		}
		return searchOutcome(s, events, "Here's what's happening right now:")
	}

	date, err := field.SearchDate(models.FieldEventID, input, e.now())
	if err != nil {
		if len(s.Flags.Candidates) > 0 {
			return Result{Reply: "Please reply with one of the numbers shown, or send a different date."}
		}
		return Result{Reply: constraintReply(err)}
	}

	events, err := e.directory.FindByDate(ctx, category, date)
	if err != nil {
		slog.Error("Flow.checkinSearchHandler: date lookup failed", "session", s.ID, "date", date, "error", err)
		return Result{Reply: "I couldn't look up events just now — please try again."}
	}
	return searchOutcome(s, events, "I found these events on "+date+":")
}

// searchOutcome routes a search result set: zero loops, one selects, many
// become a numbered list.
func searchOutcome(s *models.Session, events []models.Event, header string) Result {
	switch len(events) {
	case 0:
		s.Flags.Candidates = nil
		return Result{Reply: "I couldn't find any matching events. " + checkinSearchPrompt}
	case 1:
		return selectEvent(s, events[0].Candidate())
	default:
		candidates := make([]models.Candidate, len(events))
		for i := range events {
			candidates[i] = events[i].Candidate()
		}
		return Result{Reply: showCandidates(s, header, candidates)}
	}
}

func selectEvent(s *models.Session, c models.Candidate) Result {
	prior := s.Collected[models.FieldEventID]
	s.Collected[models.FieldEventID] = c.EventID
	s.Collected[models.FieldEventTitle] = c.Title
	s.Collected[models.FieldEventWhen] = c.When
	return Result{Advanced: true, Next: StepCheckinConfirm, EditTarget: &models.EditTarget{Step: StepCheckinSearch, PriorValue: prior}}
}

func checkinConfirmPrompt(_ *Engine, s *models.Session) string {
	return "Check in to \"" + s.Collected[models.FieldEventTitle] + "\" (" +
		s.Collected[models.FieldEventWhen] + ")? (yes/no)"
}

func checkinConfirmHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	yes, err := field.YesNo(models.FieldEventID, input)
	if err != nil {
		return Result{Reply: "Please answer yes or no. " + checkinConfirmPrompt(e, s)}
	}
	def, _ := Get(models.FlowTypeCheckin)
	if !yes {
		def.clearField(s, models.FieldEventID)
		return Result{Advanced: true, Next: StepCheckinSearch, Reply: "No problem. " + checkinSearchPrompt}
	}

	// The window is re-checked at confirmation time, not at search time, so
	// a list left open across the window boundary cannot check in late.
	if e.directory != nil {
		ev, err := e.directory.GetEvent(ctx, s.Collected[models.FieldEventID])
		if err != nil {
			slog.Error("Flow.checkinConfirmHandler: event lookup failed", "session", s.ID, "error", err)
			return Result{Reply: "I couldn't verify the event just now — please try again."}
		}
		if ev == nil || !ev.CheckinOpen(e.now()) {
			title := s.Collected[models.FieldEventTitle]
			def.clearField(s, models.FieldEventID)
			return Result{
				Advanced: true,
				Next:     StepCheckinSearch,
				Reply:    "Check-in for \"" + title + "\" isn't open right now. " + checkinSearchPrompt,
			}
		}
	}

	completion, owner := def.Emit(ctx, e, s)
	if owner != "" {
		return Result{Advanced: true, Next: owner, Reply: def.Steps[owner].Prompt(e, s)}
	}
	return Result{Advanced: true, Completion: completion, Reply: completionReply(models.FlowTypeCheckin)}
}

func checkinMissing(s *models.Session) models.StepID {
	if _, ok := s.Collected[models.FieldCategory]; !ok {
		return StepCheckinCategory
	}
	if _, ok := s.Collected[models.FieldEventID]; !ok {
		return StepCheckinSearch
	}
	return ""
}

func checkinSlots(s *models.Session) (int, int) {
	completed := 0
	if _, ok := s.Collected[models.FieldCategory]; ok {
		completed++
	}
	if _, ok := s.Collected[models.FieldEventID]; ok {
		completed++
	}
	return completed, 2
}

func checkinEmit(ctx context.Context, e *Engine, s *models.Session) (*models.Completion, models.StepID) {
	payload := &models.CheckinPayload{EventID: s.Collected[models.FieldEventID]}
	if err := payload.Validate(); err != nil {
		return nil, StepCheckinSearch
	}
	return &models.Completion{Flow: models.FlowTypeCheckin, Checkin: payload}, ""
}

func checkinExternalResult(e *Engine, s *models.Session, result models.ExternalResult) string {
	def, _ := Get(models.FlowTypeCheckin)
	switch result {
	case models.ExternalResultSuccess:
		return "Attendance recorded for \"" + s.Collected[models.FieldEventTitle] + "\" — salamat! 🙏"
	default:
		s.Completed = false
		def.clearField(s, models.FieldEventID)
		s.CurrentStep = StepCheckinSearch
		return "Something went wrong while recording your attendance — let's try again. " + checkinSearchPrompt
	}
}
