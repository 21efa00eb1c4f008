// Package flow defines the event authoring flow.
package flow

import (
	"context"
	"strings"

	"github.com/kapwa-labs/KamustaBot/internal/field"
	"github.com/kapwa-labs/KamustaBot/internal/models"
)

// Step identifiers for the event authoring flow.
const (
	StepEventTitle        models.StepID = "EVENT_TITLE"
	StepEventCategory     models.StepID = "EVENT_CATEGORY"
	StepEventPattern      models.StepID = "EVENT_PATTERN"
	StepEventDays         models.StepID = "EVENT_DAYS"
	StepEventInterval     models.StepID = "EVENT_INTERVAL"
	StepEventStartDate    models.StepID = "EVENT_START_DATE"
	StepEventEndDate      models.StepID = "EVENT_END_DATE"
	StepEventStartTime    models.StepID = "EVENT_START_TIME"
	StepEventEndTime      models.StepID = "EVENT_END_TIME"
	StepEventLocation     models.StepID = "EVENT_LOCATION"
	StepEventVenue        models.StepID = "EVENT_VENUE"
	StepEventDescription  models.StepID = "EVENT_DESCRIPTION"
	StepEventRegistration models.StepID = "EVENT_REGISTRATION"
	StepEventReview       models.StepID = "EVENT_REVIEW"
	StepEventComplete     models.StepID = "EVENT_COMPLETE"
)

// daysSeparator joins stored recurrence days so the review summary reads
// naturally without a per-field formatter.
const daysSeparator = ", "

var eventSummaryLines = []summaryLine{
	{Label: "Title", Key: models.FieldTitle},
	{Label: "Category", Key: models.FieldCategory},
	{Label: "Repeats", Key: models.FieldRecurrencePattern},
	{Label: "Days", Key: models.FieldRecurrenceDays},
	{Label: "Interval", Key: models.FieldRecurrenceInterval},
	{Label: "Start date", Key: models.FieldStartDate},
	{Label: "End date", Key: models.FieldEndDate},
	{Label: "Start time", Key: models.FieldStartTime},
	{Label: "End time", Key: models.FieldEndTime},
	{Label: "Location", Key: models.FieldLocation},
	{Label: "Venue", Key: models.FieldVenue},
	{Label: "Description", Key: models.FieldDescription},
	{Label: "Registration", Key: models.FieldHasRegistration},
}

const eventConfirmHint = `Reply "create" (or "yes") to save the event, or send a field name (e.g. "start date") to change it.`

func eventDefinition() *Definition {
	def := &Definition{
		Type:         models.FlowTypeEventCreate,
		ReviewStep:   StepEventReview,
		CompleteStep: StepEventComplete,
		Order: []models.StepID{
			StepEventTitle,
			StepEventCategory,
			StepEventPattern,
			StepEventDays,
			StepEventInterval,
			StepEventStartDate,
			StepEventEndDate,
			StepEventStartTime,
			StepEventEndTime,
			StepEventLocation,
			StepEventVenue,
			StepEventDescription,
			StepEventRegistration,
			StepEventReview,
			StepEventComplete,
		},
		Greeting: staticPrompt("Let's set up your event! 📅 What's the event title?"),
		Aliases: []reviewAlias{
			{"start date", StepEventStartDate},
			{"end date", StepEventEndDate},
			{"start time", StepEventStartTime},
			{"end time", StepEventEndTime},
			{"title", StepEventTitle},
			{"name", StepEventTitle},
			{"category", StepEventCategory},
			{"pattern", StepEventPattern},
			{"recurrence", StepEventPattern},
			{"schedule", StepEventPattern},
			{"repeats", StepEventPattern},
			{"days", StepEventDays},
			{"interval", StepEventInterval},
			{"frequency", StepEventInterval},
			{"date", StepEventStartDate},
			{"time", StepEventStartTime},
			{"location", StepEventLocation},
			{"city", StepEventLocation},
			{"venue", StepEventVenue},
			{"description", StepEventDescription},
			{"details", StepEventDescription},
			{"registration", StepEventRegistration},
		},
		Dependents: map[models.FieldKey][]models.FieldKey{
			models.FieldCategory: {
				models.FieldRecurrencePattern,
				models.FieldRecurrenceDays,
				models.FieldRecurrenceInterval,
			},
			models.FieldRecurrencePattern: {models.FieldRecurrenceDays},
		},
	}

	def.Missing = eventMissing
	def.Slots = eventSlots
	def.Emit = eventEmit
	def.ExternalResult = eventExternalResult

	def.Steps = map[models.StepID]*Step{
		StepEventTitle: {
			Field:  models.FieldTitle,
			Prompt: staticPrompt("What's the event title?"),
			Handle: collect(StepEventTitle, models.FieldTitle, false, func(_ *Engine, _ *models.Session, in string) (string, error) {
				return field.FreeText(models.FieldTitle, in)
			}),
		},
		StepEventCategory: {
			Field:  models.FieldCategory,
			Prompt: staticPrompt("Is this a regular (recurring) event or a special one-time event?"),
			Handle: eventCategoryHandler,
		},
		StepEventPattern: {
			Field:  models.FieldRecurrencePattern,
			Prompt: staticPrompt("How often does it repeat — daily, weekly, or monthly?"),
			Handle: eventPatternHandler,
		},
		StepEventDays: {
			Field:  models.FieldRecurrenceDays,
			Prompt: staticPrompt("Which days does it happen? (e.g. \"Wed\", \"Mon and Fri\", or \"weekends\")"),
			Handle: eventDaysHandler,
		},
		StepEventInterval: {
			Field:  models.FieldRecurrenceInterval,
			Prompt: eventIntervalPrompt,
			Handle: collect(StepEventInterval, models.FieldRecurrenceInterval, false, func(_ *Engine, _ *models.Session, in string) (string, error) {
				return field.Interval(in)
			}),
		},
		StepEventStartDate: {
			Field:  models.FieldStartDate,
			Prompt: staticPrompt("When does it start? (e.g. 2026-03-01, 03/01/2026, or \"tomorrow\")"),
			Handle: eventStartDateHandler,
		},
		StepEventEndDate: {
			Field:  models.FieldEndDate,
			Prompt: staticPrompt("And the end date? (say \"same day\" for a one-day event)"),
			Handle: eventEndDateHandler,
		},
		StepEventStartTime: {
			Field:  models.FieldStartTime,
			Prompt: staticPrompt("What time does it start? (e.g. 18:30 or 6:30 PM — say \"skip\" if unscheduled)"),
			Handle: clockHandler(StepEventStartTime, models.FieldStartTime),
		},
		StepEventEndTime: {
			Field:  models.FieldEndTime,
			Prompt: staticPrompt("And the end time? (say \"skip\" if open-ended)"),
			Handle: clockHandler(StepEventEndTime, models.FieldEndTime),
		},
		StepEventLocation: {
			Field:  models.FieldLocation,
			Prompt: staticPrompt("Where will it be held? (city or chapter)"),
			Handle: collect(StepEventLocation, models.FieldLocation, false, func(_ *Engine, _ *models.Session, in string) (string, error) {
				return field.FreeText(models.FieldLocation, in)
			}),
		},
		StepEventVenue: {
			Field:  models.FieldVenue,
			Prompt: staticPrompt("Any specific venue? (say \"none\" to skip)"),
			Handle: collect(StepEventVenue, models.FieldVenue, true, func(_ *Engine, _ *models.Session, in string) (string, error) {
				return field.FreeText(models.FieldVenue, in)
			}),
		},
		StepEventDescription: {
			Field:  models.FieldDescription,
			Prompt: staticPrompt("Add a short description? (say \"none\" to skip)"),
			Handle: collect(StepEventDescription, models.FieldDescription, true, func(_ *Engine, _ *models.Session, in string) (string, error) {
				return field.FreeText(models.FieldDescription, in)
			}),
		},
		StepEventRegistration: {
			Field:  models.FieldHasRegistration,
			Prompt: staticPrompt("Does this event need pre-registration? (yes/no)"),
			Handle: eventRegistrationHandler,
		},
		StepEventReview: {
			Prompt: func(_ *Engine, s *models.Session) string {
				return renderSummary(s, eventSummaryLines, eventConfirmHint)
			},
			Handle: reviewHandler("Sorry, I didn't get that."),
		},
		StepEventComplete: {
			Prompt: staticPrompt("The event is saved — see you there!"),
			Handle: func(context.Context, *Engine, *models.Session, string) Result {
				return Result{Reply: "The event is saved — see you there!"}
			},
		},
	}

	return def
}

func eventCategoryHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
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
		// Switching category invalidates the recurrence answers.
		def, _ := Get(models.FlowTypeEventCreate)
		def.clearField(s, models.FieldCategory)
	}
	s.Collected[models.FieldCategory] = category
	res := Result{Advanced: true, EditTarget: &models.EditTarget{Step: StepEventCategory, PriorValue: prior}}
	if category == models.CategorySpecial {
		res.Next = StepEventStartDate
	} else {
		res.Next = StepEventPattern
	}
	return res
}

func eventPatternHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	prior := s.Collected[models.FieldRecurrencePattern]
	v := strings.ToLower(strings.TrimSpace(input))
	var pattern string
	switch {
	case strings.Contains(v, "daily") || strings.Contains(v, "every day") || strings.Contains(v, "everyday"):
		pattern = models.RecurrenceDaily
	case strings.Contains(v, "weekly") || strings.Contains(v, "every week"):
		pattern = models.RecurrenceWeekly
	case strings.Contains(v, "monthly") || strings.Contains(v, "every month"):
		pattern = models.RecurrenceMonthly
	default:
		return Result{Reply: "Please answer daily, weekly, or monthly."}
	}
	if pattern != prior {
		def, _ := Get(models.FlowTypeEventCreate)
		def.clearField(s, models.FieldRecurrencePattern)
	}
	s.Collected[models.FieldRecurrencePattern] = pattern
	res := Result{Advanced: true, EditTarget: &models.EditTarget{Step: StepEventPattern, PriorValue: prior}}
	if pattern == models.RecurrenceWeekly {
		res.Next = StepEventDays
	} else {
		// Daily and monthly patterns have no day-of-week sub-question.
		res.Next = StepEventInterval
	}
	return res
}

func eventDaysHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	prior := s.Collected[models.FieldRecurrenceDays]
	days, err := field.Weekdays(input)
	if err != nil {
		return Result{Reply: constraintReply(err)}
	}
	s.Collected[models.FieldRecurrenceDays] = strings.Join(days, daysSeparator)
	return Result{Advanced: true, EditTarget: &models.EditTarget{Step: StepEventDays, PriorValue: prior}}
}

func eventIntervalPrompt(_ *Engine, s *models.Session) string {
	switch s.Collected[models.FieldRecurrencePattern] {
	case models.RecurrenceDaily:
		return "Repeat every how many days? (1 = every day)"
	case models.RecurrenceMonthly:
		return "Repeat every how many months? (1 = every month)"
	default:
		return "Repeat every how many weeks? (1 = every week)"
	}
}

func eventStartDateHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	prior := s.Collected[models.FieldStartDate]
	v, err := field.Date(models.FieldStartDate, input, e.now())
	if err != nil {
		return Result{Reply: constraintReply(err)}
	}
	s.Collected[models.FieldStartDate] = v
	return Result{Advanced: true, EditTarget: &models.EditTarget{Step: StepEventStartDate, PriorValue: prior}}
}

// eventEndDateHandler accepts a date or "same day", which copies the start
// date for one-day events.
func eventEndDateHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	prior := s.Collected[models.FieldEndDate]
	v := strings.ToLower(strings.TrimSpace(input))
	if v == "same" || v == "same day" || field.IsSkipWord(v) {
		s.Collected[models.FieldEndDate] = s.Collected[models.FieldStartDate]
		return Result{Advanced: true, EditTarget: &models.EditTarget{Step: StepEventEndDate, PriorValue: prior}}
	}
	date, err := field.Date(models.FieldEndDate, input, e.now())
	if err != nil {
		return Result{Reply: constraintReply(err)}
	}
	if start := s.Collected[models.FieldStartDate]; start != "" && date < start {
		return Result{Reply: "The end date can't be before the start date (" + start + ") — please pick a later date."}
	}
	s.Collected[models.FieldEndDate] = date
	return Result{Advanced: true, EditTarget: &models.EditTarget{Step: StepEventEndDate, PriorValue: prior}}
}

// clockHandler builds the handler for an optional time-of-day step.
func clockHandler(stepID models.StepID, key models.FieldKey) StepHandler {
	return func(ctx context.Context, e *Engine, s *models.Session, input string) Result {
		prior := s.Collected[key]
		if prior == models.NullValue {
			prior = ""
		}
		v, skipped, err := field.Clock(key, input)
		if err != nil {
			return Result{Reply: constraintReply(err)}
		}
		if skipped {
			s.Collected[key] = models.NullValue
		} else {
			s.Collected[key] = v
		}
		return Result{Advanced: true, EditTarget: &models.EditTarget{Step: stepID, PriorValue: prior}}
	}
}

func eventRegistrationHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	prior := s.Collected[models.FieldHasRegistration]
	yes, err := field.YesNo(models.FieldHasRegistration, input)
	if err != nil {
		return Result{Reply: "Please answer yes or no — does this event need pre-registration?"}
	}
	if yes {
		s.Collected[models.FieldHasRegistration] = "yes"
	} else {
		s.Collected[models.FieldHasRegistration] = "no"
	}
	return Result{Advanced: true, EditTarget: &models.EditTarget{Step: StepEventRegistration, PriorValue: prior}}
}

// eventMissing returns the first unanswered required step. The recurrence
// steps are required only for regular events, and the days step only for a
// weekly pattern.
func eventMissing(s *models.Session) models.StepID {
	if _, ok := s.Collected[models.FieldTitle]; !ok {
		return StepEventTitle
	}
	category, ok := s.Collected[models.FieldCategory]
	if !ok {
		return StepEventCategory
	}
	if category == models.CategoryRegular {
		pattern, ok := s.Collected[models.FieldRecurrencePattern]
		if !ok {
			return StepEventPattern
		}
		if pattern == models.RecurrenceWeekly {
			if _, ok := s.Collected[models.FieldRecurrenceDays]; !ok {
				return StepEventDays
			}
		}
		if _, ok := s.Collected[models.FieldRecurrenceInterval]; !ok {
			return StepEventInterval
		}
	}
	checks := []struct {
		key  models.FieldKey
		step models.StepID
	}{
		{models.FieldStartDate, StepEventStartDate},
		{models.FieldEndDate, StepEventEndDate},
		{models.FieldStartTime, StepEventStartTime},
		{models.FieldEndTime, StepEventEndTime},
		{models.FieldLocation, StepEventLocation},
		{models.FieldHasRegistration, StepEventRegistration},
	}
	for _, c := range checks {
		if _, ok := s.Collected[c.key]; !ok {
			return c.step
		}
	}
	return ""
}

func eventSlots(s *models.Session) (int, int) {
	required := []models.FieldKey{
		models.FieldTitle, models.FieldCategory,
		models.FieldStartDate, models.FieldEndDate,
		models.FieldStartTime, models.FieldEndTime,
		models.FieldLocation, models.FieldHasRegistration,
	}
	if s.Collected[models.FieldCategory] == models.CategoryRegular {
		required = append(required, models.FieldRecurrencePattern, models.FieldRecurrenceInterval)
		if s.Collected[models.FieldRecurrencePattern] == models.RecurrenceWeekly {
			required = append(required, models.FieldRecurrenceDays)
		}
	}
	completed := 0
	for _, key := range required {
		if _, ok := s.Collected[key]; ok {
			completed++
		}
	}
	return completed, len(required)
}

func eventEmit(ctx context.Context, e *Engine, s *models.Session) (*models.Completion, models.StepID) {
	if owner := eventMissing(s); owner != "" {
		return nil, owner
	}
	category := s.Collected[models.FieldCategory]
	payload := &models.EventPayload{
		Title:           s.Collected[models.FieldTitle],
		Category:        category,
		IsRecurring:     category == models.CategoryRegular,
		StartDate:       s.Collected[models.FieldStartDate],
		EndDate:         s.Collected[models.FieldEndDate],
		StartTime:       nullable(s, models.FieldStartTime),
		EndTime:         nullable(s, models.FieldEndTime),
		Location:        s.Collected[models.FieldLocation],
		Venue:           nullable(s, models.FieldVenue),
		Description:     nullable(s, models.FieldDescription),
		HasRegistration: s.Collected[models.FieldHasRegistration] == "yes",
	}
	if payload.IsRecurring {
		pattern := s.Collected[models.FieldRecurrencePattern]
		payload.RecurrencePattern = &pattern
		if days := s.Collected[models.FieldRecurrenceDays]; days != "" {
			payload.RecurrenceDays = strings.Split(days, daysSeparator)
		}
		payload.RecurrenceInterval = 1
		if iv := s.Collected[models.FieldRecurrenceInterval]; iv != "" {
			payload.RecurrenceInterval = atoiInterval(iv)
		}
	}
	if err := payload.Validate(); err != nil {
		switch err {
		case models.ErrMissingRecurrence:
			return nil, StepEventPattern
		case models.ErrEmptyRecurrenceDays:
			return nil, StepEventDays
		case models.ErrBadRecurrenceInterval:
			return nil, StepEventInterval
		default:
			return nil, StepEventTitle
		}
	}
	return &models.Completion{Flow: models.FlowTypeEventCreate, Event: payload}, ""
}

// atoiInterval converts a validated interval string. The validator only
// stores plain digit runs, so parse failures cannot occur here.
func atoiInterval(v string) int {
	n := 0
	for _, r := range v {
		n = n*10 + int(r-'0')
	}
	return n
}

func eventExternalResult(e *Engine, s *models.Session, result models.ExternalResult) string {
	def, _ := Get(models.FlowTypeEventCreate)
	switch result {
	case models.ExternalResultSuccess:
		return "Your event \"" + s.Collected[models.FieldTitle] + "\" is live. 🎉"
	default:
		s.Completed = false
		s.CurrentStep = StepEventReview
		return "Something went wrong while saving the event — sorry about that.\n" + reviewSummary(def, s)
	}
}
