// Package flow defines the account sign-up flow.
package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/kapwa-labs/KamustaBot/internal/field"
	"github.com/kapwa-labs/KamustaBot/internal/models"
)

// Step identifiers for the sign-up flow.
const (
	StepSignupGreeting  models.StepID = "SIGNUP_GREETING"
	StepFirstName       models.StepID = "FIRST_NAME"
	StepLastName        models.StepID = "LAST_NAME"
	StepMiddleName      models.StepID = "MIDDLE_NAME"
	StepSuffix          models.StepID = "SUFFIX"
	StepNickname        models.StepID = "NICKNAME"
	StepEncounterType   models.StepID = "ENCOUNTER_TYPE"
	StepLocation        models.StepID = "LOCATION"
	StepEncounterNumber models.StepID = "ENCOUNTER_NUMBER"
	StepChannelChoice   models.StepID = "CHANNEL_CHOICE"
	StepEmail           models.StepID = "EMAIL"
	StepPhone           models.StepID = "PHONE"
	StepPhoneConfirm    models.StepID = "PHONE_CONFIRM"
	StepPassword        models.StepID = "PASSWORD"
	StepPasswordConfirm models.StepID = "PASSWORD_CONFIRM"
	StepSignupReview    models.StepID = "SIGNUP_REVIEW"
	StepSignupComplete  models.StepID = "SIGNUP_COMPLETE"
)

// constraintReply turns a validation error into the re-prompt text. The
// violated constraint is always restated; there is no generic "invalid
// input" message.
func constraintReply(err error) string {
	var ve *field.ValidationError
	if errors.As(err, &ve) {
		return "Hmm — " + ve.Message + "."
	}
	return "Sorry, I couldn't make sense of that — please try again."
}

// collect builds the standard handler for a step that validates one field.
// Optional steps store an explicit null when the user skips.
func collect(stepID models.StepID, key models.FieldKey, optional bool,
	validate func(e *Engine, s *models.Session, input string) (string, error)) StepHandler {
	return func(ctx context.Context, e *Engine, s *models.Session, input string) Result {
		prior := s.Collected[key]
		if prior == models.NullValue {
			prior = ""
		}
		if optional && field.IsSkipWord(input) {
			s.Collected[key] = models.NullValue
			return Result{Advanced: true, EditTarget: &models.EditTarget{Step: stepID, PriorValue: prior}}
		}
		v, err := validate(e, s, input)
		if err != nil {
			return Result{Reply: constraintReply(err)}
		}
		s.Collected[key] = v
		return Result{Advanced: true, EditTarget: &models.EditTarget{Step: stepID, PriorValue: prior}}
	}
}

// staticPrompt wraps a fixed prompt string.
func staticPrompt(text string) func(*Engine, *models.Session) string {
	return func(*Engine, *models.Session) string { return text }
}

var signupSummaryLines = []summaryLine{
	{Label: "First name", Key: models.FieldFirstName},
	{Label: "Last name", Key: models.FieldLastName},
	{Label: "Middle name", Key: models.FieldMiddleName},
	{Label: "Suffix", Key: models.FieldSuffix},
	{Label: "Nickname", Key: models.FieldNickname},
	{Label: "Encounter type", Key: models.FieldEncounterType},
	{Label: "Encounter class number", Key: models.FieldEncounterNumber},
	{Label: "Location", Key: models.FieldLocation},
	{Label: "Email", Key: models.FieldEmail},
	{Label: "Mobile number", Key: models.FieldPhone},
	{Label: "Password", Key: models.FieldPassword, Mask: true},
}

const signupConfirmHint = `If everything looks right, reply "yes" to register. To change something, send the field name (e.g. "nickname" or "phone").`

func signupDefinition() *Definition {
	def := &Definition{
		Type:         models.FlowTypeSignup,
		ReviewStep:   StepSignupReview,
		CompleteStep: StepSignupComplete,
		Order: []models.StepID{
			StepSignupGreeting,
			StepFirstName,
			StepLastName,
			StepMiddleName,
			StepSuffix,
			StepNickname,
			StepEncounterType,
			StepLocation,
			StepEncounterNumber,
			StepChannelChoice,
			StepEmail,
			StepPhone,
			StepPhoneConfirm,
			StepPassword,
			StepPasswordConfirm,
			StepSignupReview,
			StepSignupComplete,
		},
		Greeting: staticPrompt("Kamusta! 👋 I'll walk you through registering your account. " +
			"First, what's your first name? (You can also say \"My name is Juan Dela Cruz\".)"),
		Aliases: []reviewAlias{
			// Order encodes priority: specific aliases shadow generic ones.
			{"nickname", StepNickname},
			{"nick name", StepNickname},
			{"me number", StepEncounterNumber},
			{"encounter number", StepEncounterNumber},
			{"class number", StepEncounterNumber},
			{"number", StepEncounterNumber},
			{"middle name", StepMiddleName},
			{"middle", StepMiddleName},
			{"suffix", StepSuffix},
			{"first name", StepFirstName},
			{"last name", StepLastName},
			{"family name", StepLastName},
			{"name", StepFirstName},
			{"encounter type", StepEncounterType},
			{"encounter", StepEncounterType},
			{"type", StepEncounterType},
			{"location", StepLocation},
			{"city", StepLocation},
			{"email", StepEmail},
			{"e-mail", StepEmail},
			{"phone", StepPhone},
			{"phone number", StepPhone},
			{"mobile", StepPhone},
			{"password", StepPassword},
		},
		Dependents: map[models.FieldKey][]models.FieldKey{
			models.FieldEncounterType: {models.FieldEncounterNumber},
		},
	}

	def.Missing = signupMissing
	def.Slots = signupSlots
	def.Emit = signupEmit
	def.ExternalResult = signupExternalResult

	def.Steps = map[models.StepID]*Step{
		StepSignupGreeting: {
			Field:  models.FieldFirstName,
			Prompt: staticPrompt("What's your first name?"),
			Handle: signupGreetingHandler,
		},
		StepFirstName: {
			Field:  models.FieldFirstName,
			Prompt: staticPrompt("What's your first name?"),
			Handle: collect(StepFirstName, models.FieldFirstName, false, func(_ *Engine, _ *models.Session, in string) (string, error) {
				return field.Name(models.FieldFirstName, in)
			}),
		},
		StepLastName: {
			Field:  models.FieldLastName,
			Prompt: staticPrompt("And your last name?"),
			Handle: collect(StepLastName, models.FieldLastName, false, func(_ *Engine, _ *models.Session, in string) (string, error) {
				return field.Name(models.FieldLastName, in)
			}),
		},
		StepMiddleName: {
			Field:  models.FieldMiddleName,
			Prompt: staticPrompt("Middle name? (say \"none\" to skip)"),
			Handle: collect(StepMiddleName, models.FieldMiddleName, true, func(_ *Engine, _ *models.Session, in string) (string, error) {
				return field.Name(models.FieldMiddleName, in)
			}),
		},
		StepSuffix: {
			Field:  models.FieldSuffix,
			Prompt: staticPrompt("Any suffix, like Jr or III? (say \"none\" to skip)"),
			Handle: collect(StepSuffix, models.FieldSuffix, true, func(_ *Engine, _ *models.Session, in string) (string, error) {
				return field.Suffix(in)
			}),
		},
		StepNickname: {
			Field:  models.FieldNickname,
			Prompt: staticPrompt("What should we call you? (your nickname)"),
			Handle: collect(StepNickname, models.FieldNickname, false, func(_ *Engine, _ *models.Session, in string) (string, error) {
				return field.Name(models.FieldNickname, in)
			}),
		},
		StepEncounterType: {
			Field:  models.FieldEncounterType,
			Prompt: staticPrompt("Which encounter did you attend? Valid codes: " + field.EncounterTypeCodes() + "."),
			Handle: collect(StepEncounterType, models.FieldEncounterType, false, func(_ *Engine, _ *models.Session, in string) (string, error) {
				return field.EncounterType(in)
			}),
		},
		StepLocation: {
			Field:  models.FieldLocation,
			Prompt: staticPrompt("Where was it held? (city or chapter)"),
			Handle: collect(StepLocation, models.FieldLocation, false, func(_ *Engine, _ *models.Session, in string) (string, error) {
				return field.FreeText(models.FieldLocation, in)
			}),
		},
		StepEncounterNumber: {
			Field:  models.FieldEncounterNumber,
			Prompt: staticPrompt("What was your encounter class number? (e.g. 1801)"),
			Handle: collect(StepEncounterNumber, models.FieldEncounterNumber, false, func(_ *Engine, _ *models.Session, in string) (string, error) {
				return field.EncounterNumber(in)
			}),
		},
		StepChannelChoice: {
			Prompt: staticPrompt("How should we reach you — email or phone? You can also just send the address or number."),
			Handle: channelChoiceHandler,
		},
		StepEmail: {
			Field:  models.FieldEmail,
			Prompt: staticPrompt("What's your email address?"),
			Handle: emailHandler,
		},
		StepPhone: {
			Field:  models.FieldPhone,
			Prompt: staticPrompt("What's your mobile number? (09XXXXXXXXX or +639XXXXXXXXX)"),
			Handle: phoneHandler,
		},
		StepPhoneConfirm: {
			Prompt: phoneConfirmPrompt,
			Handle: phoneConfirmHandler,
		},
		StepPassword: {
			Field:  models.FieldPassword,
			Prompt: staticPrompt("Pick a password (at least 6 characters)."),
			Handle: passwordHandler,
		},
		StepPasswordConfirm: {
			Prompt: staticPrompt("Type the same password once more to confirm."),
			Handle: passwordConfirmHandler,
		},
		StepSignupReview: {
			Prompt: func(_ *Engine, s *models.Session) string {
				return renderSummary(s, signupSummaryLines, signupConfirmHint)
			},
			Handle: reviewHandler("Sorry, I didn't get that."),
		},
		StepSignupComplete: {
			Prompt: staticPrompt("We're all done here — start a new conversation anytime."),
			Handle: func(context.Context, *Engine, *models.Session, string) Result {
				return Result{Reply: "We're all done here — start a new conversation anytime."}
			},
		},
	}

	return def
}

// signupGreetingHandler is the one step that attempts combined first+last
// name extraction; every other step extracts only its own field.
func signupGreetingHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	if first, last, ok := field.FullName(input); ok {
		s.Collected[models.FieldFirstName] = first
		if last != "" {
			s.Collected[models.FieldLastName] = last
		}
		return Result{Advanced: true, EditTarget: &models.EditTarget{Step: StepFirstName}}
	}
	v, err := field.Name(models.FieldFirstName, input)
	if err != nil {
		return Result{Reply: constraintReply(err)}
	}
	s.Collected[models.FieldFirstName] = v
	return Result{Advanced: true, EditTarget: &models.EditTarget{Step: StepFirstName}}
}

func channelChoiceHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	kind, value, ok := field.ChannelChoice(input)
	if !ok {
		return Result{Reply: "Please choose \"email\" or \"phone\" — or just send the address or number directly."}
	}
	s.Flags.AwaitingChannel = kind
	switch kind {
	case models.ChannelEmail:
		if value == "" {
			return Result{Advanced: true, Next: StepEmail}
		}
		delete(s.Collected, models.FieldPhone)
		s.Collected[models.FieldEmail] = value
		return Result{Advanced: true, Next: StepPassword, EditTarget: &models.EditTarget{Step: StepEmail}}
	default:
		if value == "" {
			return Result{Advanced: true, Next: StepPhone}
		}
		delete(s.Collected, models.FieldEmail)
		s.Collected[models.FieldPhone] = value
		return Result{Advanced: true, Next: StepPhoneConfirm, EditTarget: &models.EditTarget{Step: StepPhone}}
	}
}

func emailHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	prior := s.Collected[models.FieldEmail]
	v, err := field.Email(input)
	if err != nil {
		return Result{Reply: constraintReply(err)}
	}
	// Exactly one contact channel may be set; switching to email drops any
	// previously collected phone.
	delete(s.Collected, models.FieldPhone)
	s.Collected[models.FieldEmail] = v
	s.Flags.AwaitingChannel = models.ChannelEmail
	return Result{Advanced: true, Next: StepPassword, EditTarget: &models.EditTarget{Step: StepEmail, PriorValue: prior}}
}

func phoneHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	prior := s.Collected[models.FieldPhone]
	v, err := field.Phone(input)
	if err != nil {
		return Result{Reply: constraintReply(err)}
	}
	delete(s.Collected, models.FieldEmail)
	s.Collected[models.FieldPhone] = v
	s.Flags.AwaitingChannel = models.ChannelPhone
	return Result{Advanced: true, Next: StepPhoneConfirm, EditTarget: &models.EditTarget{Step: StepPhone, PriorValue: prior}}
}

func phoneConfirmPrompt(_ *Engine, s *models.Session) string {
	return fmt.Sprintf("I have %s — is that right? (yes/no)", s.Collected[models.FieldPhone])
}

func phoneConfirmHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	yes, err := field.YesNo(models.FieldPhone, input)
	if err != nil {
		return Result{Reply: "Please answer yes or no. " + phoneConfirmPrompt(e, s)}
	}
	if !yes {
		delete(s.Collected, models.FieldPhone)
		return Result{Advanced: true, Next: StepPhone, Reply: "No problem — what's the right number? (09XXXXXXXXX or +639XXXXXXXXX)"}
	}
	return Result{Advanced: true, Next: StepPassword}
}

func passwordHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	v, err := field.Password(input)
	if err != nil {
		return Result{Reply: constraintReply(err)}
	}
	s.Collected[models.FieldPassword] = v
	return Result{Advanced: true, Next: StepPasswordConfirm}
}

// passwordConfirmHandler requires a byte-for-byte match with the stored
// password. On mismatch only the confirmation is re-asked; the stored
// password is untouched.
func passwordConfirmHandler(ctx context.Context, e *Engine, s *models.Session, input string) Result {
	if input != s.Collected[models.FieldPassword] {
		return Result{Reply: "Those don't match — please type the same password again."}
	}
	return Result{Advanced: true, Next: StepSignupReview}
}

// signupMissing returns the first required sign-up step whose field is not
// collected. Email and phone are one slot: either satisfies the contact
// requirement.
func signupMissing(s *models.Session) models.StepID {
	checks := []struct {
		key  models.FieldKey
		step models.StepID
	}{
		{models.FieldFirstName, StepFirstName},
		{models.FieldLastName, StepLastName},
		{models.FieldNickname, StepNickname},
		{models.FieldEncounterType, StepEncounterType},
		{models.FieldLocation, StepLocation},
		{models.FieldEncounterNumber, StepEncounterNumber},
	}
	for _, c := range checks {
		if _, ok := s.Collected[c.key]; !ok {
			return c.step
		}
	}
	_, hasEmail := s.Collected[models.FieldEmail]
	_, hasPhone := s.Collected[models.FieldPhone]
	if !hasEmail && !hasPhone {
		return StepChannelChoice
	}
	if _, ok := s.Collected[models.FieldPassword]; !ok {
		return StepPassword
	}
	return ""
}

func signupSlots(s *models.Session) (int, int) {
	total := 8
	completed := 0
	for _, key := range []models.FieldKey{
		models.FieldFirstName, models.FieldLastName, models.FieldNickname,
		models.FieldEncounterType, models.FieldLocation, models.FieldEncounterNumber,
		models.FieldPassword,
	} {
		if _, ok := s.Collected[key]; ok {
			completed++
		}
	}
	_, hasEmail := s.Collected[models.FieldEmail]
	_, hasPhone := s.Collected[models.FieldPhone]
	if hasEmail || hasPhone {
		completed++
	}
	return completed, total
}

// nullable converts a collected value to a payload pointer: absent and
// explicitly skipped fields both become nil.
func nullable(s *models.Session, key models.FieldKey) *string {
	v, ok := s.Collected[key]
	if !ok || v == models.NullValue {
		return nil
	}
	return &v
}

func signupEmit(ctx context.Context, e *Engine, s *models.Session) (*models.Completion, models.StepID) {
	if owner := signupMissing(s); owner != "" {
		return nil, owner
	}
	payload := &models.SignupPayload{
		FirstName:       s.Collected[models.FieldFirstName],
		LastName:        s.Collected[models.FieldLastName],
		MiddleName:      nullable(s, models.FieldMiddleName),
		Suffix:          nullable(s, models.FieldSuffix),
		Nickname:        s.Collected[models.FieldNickname],
		EncounterType:   s.Collected[models.FieldEncounterType],
		Location:        s.Collected[models.FieldLocation],
		EncounterNumber: s.Collected[models.FieldEncounterNumber],
		Email:           nullable(s, models.FieldEmail),
		Phone:           nullable(s, models.FieldPhone),
		Password:        s.Collected[models.FieldPassword],
	}
	if err := payload.Validate(); err != nil {
		switch err {
		case models.ErrNoContactChannel, models.ErrBothContactChannels:
			return nil, StepChannelChoice
		case models.ErrPasswordTooShort:
			return nil, StepPassword
		default:
			return nil, StepSignupGreeting
		}
	}
	return &models.Completion{Flow: models.FlowTypeSignup, Signup: payload}, ""
}

// signupExternalResult routes a caller-reported registration outcome. A
// duplicate conflict clears only the offending contact field and re-enters
// its collection step; everything else the user confirmed stays intact.
func signupExternalResult(e *Engine, s *models.Session, result models.ExternalResult) string {
	def, _ := Get(models.FlowTypeSignup)
	switch result {
	case models.ExternalResultSuccess:
		return fmt.Sprintf("Welcome aboard, %s! Your account is ready. 🎉", s.Collected[models.FieldNickname])
	case models.ExternalResultDuplicateEmail:
		def.clearField(s, models.FieldEmail)
		s.Completed = false
		s.Flags.InReviewMode = true
		s.CurrentStep = def.stepFor(models.FieldEmail)
		return "That email is already registered. What other email address should I use?"
	case models.ExternalResultDuplicatePhone:
		def.clearField(s, models.FieldPhone)
		s.Completed = false
		s.Flags.InReviewMode = true
		s.CurrentStep = def.stepFor(models.FieldPhone)
		return "That mobile number is already registered. What other number should I use? (09XXXXXXXXX or +639XXXXXXXXX)"
	default:
		s.Completed = false
		s.CurrentStep = StepSignupReview
		return "Something went wrong on our end while registering — sorry about that.\n" + reviewSummary(def, s)
	}
}
