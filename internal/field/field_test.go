package field

import (
	"strings"
	"testing"
	"time"

	"github.com/kapwa-labs/KamustaBot/internal/models"
)

func TestName(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Juan", "Juan", false},
		{"  Dela Cruz  ", "Dela Cruz", false},
		{"O'Brien", "O'Brien", false},
		{"Anne-Marie", "Anne-Marie", false},
		{"J", "", true},
		{"Ju4n", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		got, err := Name(models.FieldFirstName, c.in)
		if c.wantErr != (err != nil) {
			t.Errorf("Name(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
			continue
		}
		if !c.wantErr && got != c.want {
			t.Errorf("Name(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSuffix(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"jr", "Jr.", false},
		{"Jr.", "Jr.", false},
		{"sr", "Sr.", false},
		{"iii", "III", false},
		{"phd", "PHD", false},
		{"abcdefghijk", "", true},
		{"j r!", "", true},
	}
	for _, c := range cases {
		got, err := Suffix(c.in)
		if c.wantErr != (err != nil) {
			t.Errorf("Suffix(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
			continue
		}
		if !c.wantErr && got != c.want {
			t.Errorf("Suffix(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEncounterType(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ME", "ME", false},
		{"me", "ME", false},
		{"Marriage Encounter", "ME", false},
		{"marriage", "ME", false},
		{"singles", "SE", false},
		{"Youth Encounter", "YE", false},
		{"kids", "KE", false},
		{"XX", "", true},
		{"retreat", "", true},
	}
	for _, c := range cases {
		got, err := EncounterType(c.in)
		if c.wantErr != (err != nil) {
			t.Errorf("EncounterType(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
			continue
		}
		if !c.wantErr && got != c.want {
			t.Errorf("EncounterType(%q) = %q, want %q", c.in, got, c.want)
		}
	}
	// The rejection message lists the valid codes.
	_, err := EncounterType("nope")
	if err == nil || !strings.Contains(err.Error(), "ME (Marriage Encounter)") {
		t.Errorf("expected error listing valid codes, got %v", err)
	}
}

func TestPhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"09171234567", "+639171234567", false},
		{"+639171234567", "+639171234567", false},
		{"0917-123-4567", "+639171234567", false},
		{"0917 123 4567", "+639171234567", false},
		{"639171234567", "", true},
		{"0917123456", "", true},
		{"+15551234567", "", true},
	}
	for _, c := range cases {
		got, err := Phone(c.in)
		if c.wantErr != (err != nil) {
			t.Errorf("Phone(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
			continue
		}
		if !c.wantErr && got != c.want {
			t.Errorf("Phone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEmail(t *testing.T) {
	if _, err := Email("juan@example.com"); err != nil {
		t.Errorf("valid email rejected: %v", err)
	}
	if got, _ := Email("Juan@Example.COM"); got != "juan@example.com" {
		t.Errorf("email not lower-cased: %q", got)
	}
	if _, err := Email("not-an-email"); err == nil {
		t.Errorf("invalid email accepted")
	}
}

func TestDate(t *testing.T) {
	ref := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2026-02-15", "2026-02-15", false},
		{"02/15/2026", "2026-02-15", false},
		{"2/5/2026", "2026-02-05", false},
		{"today", "2026-02-14", false},
		{"Tomorrow", "2026-02-15", false},
		{"2026-02-30", "", true},
		{"15/02/2026", "", true},
		{"next week", "", true},
	}
	for _, c := range cases {
		got, err := Date(models.FieldStartDate, c.in, ref)
		if c.wantErr != (err != nil) {
			t.Errorf("Date(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
			continue
		}
		if !c.wantErr && got != c.want {
			t.Errorf("Date(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSearchDate(t *testing.T) {
	ref := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want string
	}{
		{"Feb 15", "2026-02-15"},
		{"february 15", "2026-02-15"},
		{"February 15, 2027", "2027-02-15"},
		{"2026-02-15", "2026-02-15"},
	}
	for _, c := range cases {
		got, err := SearchDate(models.FieldStartDate, c.in, ref)
		if err != nil {
			t.Errorf("SearchDate(%q) error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("SearchDate(%q) = %q, want %q", c.in, got, c.want)
		}
	}
	if _, err := SearchDate(models.FieldStartDate, "sometime soon", ref); err == nil {
		t.Errorf("expected error for unparseable date")
	}
}

func TestClock(t *testing.T) {
	cases := []struct {
		in       string
		want     string
		skipped  bool
		wantErr  bool
	}{
		{"18:00", "18:00", false, false},
		{"6:00 PM", "18:00", false, false},
		{"6:00pm", "18:00", false, false},
		{"12:00 AM", "00:00", false, false},
		{"12:30 PM", "12:30", false, false},
		{"9:05", "09:05", false, false},
		{"skip", "", true, false},
		{"none", "", true, false},
		{"25:00", "", false, true},
		{"13:00 PM", "", false, true},
		{"evening", "", false, true},
	}
	for _, c := range cases {
		got, skipped, err := Clock(models.FieldStartTime, c.in)
		if c.wantErr != (err != nil) {
			t.Errorf("Clock(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
			continue
		}
		if skipped != c.skipped {
			t.Errorf("Clock(%q) skipped = %v, want %v", c.in, skipped, c.skipped)
		}
		if !c.wantErr && got != c.want {
			t.Errorf("Clock(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestWeekdays(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Mon and Wed", []string{"Mon", "Wed"}},
		{"every tuesday and thursday", []string{"Tue", "Thu"}},
		{"weekdays", []string{"Mon", "Tue", "Wed", "Thu", "Fri"}},
		{"weekend", []string{"Sat", "Sun"}},
		{"daily", []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}},
		{"every day", []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}},
		{"sat, sun, and mon", []string{"Mon", "Sat", "Sun"}},
	}
	for _, c := range cases {
		got, err := Weekdays(c.in)
		if err != nil {
			t.Errorf("Weekdays(%q) error: %v", c.in, err)
			continue
		}
		if len(got) != len(c.want) {
			t.Errorf("Weekdays(%q) = %v, want %v", c.in, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("Weekdays(%q) = %v, want %v", c.in, got, c.want)
				break
			}
		}
	}
	if _, err := Weekdays("whenever"); err == nil {
		t.Errorf("expected error when no day is named")
	}
}

func TestYesNo(t *testing.T) {
	if v, err := YesNo(models.FieldHasRegistration, "Yes"); err != nil || !v {
		t.Errorf("YesNo(Yes) = %v, %v", v, err)
	}
	if v, err := YesNo(models.FieldHasRegistration, "nope"); err != nil || v {
		t.Errorf("YesNo(nope) = %v, %v", v, err)
	}
	if _, err := YesNo(models.FieldHasRegistration, "maybe"); err == nil {
		t.Errorf("expected error for ambiguous reply")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	_, err := Phone("12345")
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Field != models.FieldPhone {
		t.Errorf("unexpected field %q", ve.Field)
	}
	if ve.Message == "" {
		t.Errorf("expected constraint message")
	}
}
