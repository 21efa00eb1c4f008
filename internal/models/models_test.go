package models

import "testing"

func TestIsValidFlowType(t *testing.T) {
	for _, ft := range []FlowType{FlowTypeSignup, FlowTypeEventCreate, FlowTypeCheckin} {
		if !IsValidFlowType(ft) {
			t.Errorf("expected %q to be valid", ft)
		}
	}
	if IsValidFlowType("survey") {
		t.Errorf("expected unknown flow type to be invalid")
	}
}

func TestIsValidExternalResult(t *testing.T) {
	if !IsValidExternalResult(ExternalResultDuplicatePhone) {
		t.Errorf("expected duplicate_phone to be valid")
	}
	if IsValidExternalResult("timeout") {
		t.Errorf("expected unknown result to be invalid")
	}
}

func strPtr(s string) *string { return &s }

func TestSignupPayloadValidate(t *testing.T) {
	valid := SignupPayload{
		FirstName:       "Juan",
		LastName:        "Dela Cruz",
		Nickname:        "Jun",
		EncounterType:   "ME",
		Location:        "Cebu City",
		EncounterNumber: "1801",
		Phone:           strPtr("+639171234567"),
		Password:        "secret1",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	noChannel := valid
	noChannel.Phone = nil
	if err := noChannel.Validate(); err != ErrNoContactChannel {
		t.Errorf("expected ErrNoContactChannel, got %v", err)
	}

	both := valid
	both.Email = strPtr("juan@example.com")
	if err := both.Validate(); err != ErrBothContactChannels {
		t.Errorf("expected ErrBothContactChannels, got %v", err)
	}

	short := valid
	short.Password = "abc"
	if err := short.Validate(); err != ErrPasswordTooShort {
		t.Errorf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestEventPayloadValidate(t *testing.T) {
	pattern := RecurrenceWeekly
	valid := EventPayload{
		Title:              "Household Prayer Meeting",
		Category:           CategoryRegular,
		IsRecurring:        true,
		RecurrencePattern:  &pattern,
		RecurrenceDays:     []string{"Wed"},
		RecurrenceInterval: 1,
		StartDate:          "2026-02-04",
		EndDate:            "2026-12-30",
		Location:           "Cebu City",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	noDays := valid
	noDays.RecurrenceDays = nil
	if err := noDays.Validate(); err != ErrEmptyRecurrenceDays {
		t.Errorf("expected ErrEmptyRecurrenceDays, got %v", err)
	}

	noPattern := valid
	noPattern.RecurrencePattern = nil
	if err := noPattern.Validate(); err != ErrMissingRecurrence {
		t.Errorf("expected ErrMissingRecurrence, got %v", err)
	}

	badDate := valid
	badDate.StartDate = "02/04/2026"
	if err := badDate.Validate(); err == nil {
		t.Errorf("expected non-ISO start date to be rejected")
	}
}

func TestCheckinPayloadValidate(t *testing.T) {
	if err := (&CheckinPayload{}).Validate(); err != ErrMissingEventID {
		t.Errorf("expected ErrMissingEventID, got %v", err)
	}
	if err := (&CheckinPayload{EventID: "ev_1"}).Validate(); err != nil {
		t.Errorf("valid payload rejected: %v", err)
	}
}
