// Package field provides per-field validators and normalizers for the guided
// conversation flows, plus a best-effort extractor that scans a whole
// utterance for several field shapes at once.
//
// Validators return the normalized value or a *ValidationError restating the
// violated constraint; a value that passed a validator is safe to store in a
// session's collected data.
package field

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kapwa-labs/KamustaBot/internal/models"
)

// Validation constants.
const (
	MinNameLength     = 2
	MaxSuffixLength   = 10
	MinPasswordLength = 6
)

// ValidationError reports a constraint violation for a single field. The
// message restates the constraint so the flow can re-prompt with it verbatim.
type ValidationError struct {
	Field   models.FieldKey
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError for the given field.
func Invalid(field models.FieldKey, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

var (
	nameRegex      = regexp.MustCompile(`^[A-Za-z][A-Za-z' -]*$`)
	suffixRegex    = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)
	emailRegex     = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	digitsRegex    = regexp.MustCompile(`^[0-9]+$`)
	localPHRegex   = regexp.MustCompile(`^09[0-9]{9}$`)
	intlPHRegex    = regexp.MustCompile(`^\+639[0-9]{9}$`)
	isoDateRegex   = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}$`)
	slashDateRegex = regexp.MustCompile(`^([0-9]{1,2})/([0-9]{1,2})/([0-9]{4})$`)
	clockRegex     = regexp.MustCompile(`^([0-9]{1,2}):([0-9]{2})\s*([AaPp][Mm])?$`)
)

// Name validates a name-like field: at least two characters, letters, spaces,
// hyphens, and apostrophes only.
func Name(key models.FieldKey, input string) (string, error) {
	v := strings.TrimSpace(input)
	if len(v) < MinNameLength || !nameRegex.MatchString(v) {
		return "", Invalid(key, "please use at least 2 characters with letters, spaces, hyphens, or apostrophes only")
	}
	return v, nil
}

// FreeText validates a free-form field such as a location or event title.
func FreeText(key models.FieldKey, input string) (string, error) {
	v := strings.TrimSpace(input)
	if len(v) < 2 {
		return "", Invalid(key, "please give at least 2 characters")
	}
	return v, nil
}

// Suffix validates a name suffix: up to 10 characters of letters, digits,
// periods, and hyphens. "Jr" and "Sr" are normalized to "Jr." and "Sr.";
// anything else is upper-cased as given.
func Suffix(input string) (string, error) {
	v := strings.TrimSpace(input)
	if v == "" || len(v) > MaxSuffixLength || !suffixRegex.MatchString(v) {
		return "", Invalid(models.FieldSuffix, "suffix must be at most 10 characters of letters, digits, periods, or hyphens")
	}
	switch strings.ToLower(strings.TrimSuffix(v, ".")) {
	case "jr":
		return "Jr.", nil
	case "sr":
		return "Sr.", nil
	default:
		return strings.ToUpper(v), nil
	}
}

// encounterTypes maps canonical codes to their full English names.
var encounterTypes = []struct {
	Code string
	Name string
}{
	{"ME", "Marriage Encounter"},
	{"SE", "Singles Encounter"},
	{"YE", "Youth Encounter"},
	{"KE", "Kids Encounter"},
}

// encounterKeywords maps bare keywords to encounter type codes.
var encounterKeywords = map[string]string{
	"marriage": "ME",
	"married":  "ME",
	"couples":  "ME",
	"single":   "SE",
	"singles":  "SE",
	"youth":    "YE",
	"teens":    "YE",
	"kids":     "KE",
	"kid":      "KE",
	"children": "KE",
}

// EncounterTypeCodes renders the valid codes for error messages and prompts.
func EncounterTypeCodes() string {
	parts := make([]string, 0, len(encounterTypes))
	for _, et := range encounterTypes {
		parts = append(parts, fmt.Sprintf("%s (%s)", et.Code, et.Name))
	}
	return strings.Join(parts, ", ")
}

// EncounterType validates an encounter type. It accepts the 2-3 letter code,
// the full English name, or a bare keyword such as "marriage".
func EncounterType(input string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(input))
	for _, et := range encounterTypes {
		if v == strings.ToLower(et.Code) || v == strings.ToLower(et.Name) {
			return et.Code, nil
		}
	}
	if code, ok := encounterKeywords[v]; ok {
		return code, nil
	}
	return "", Invalid(models.FieldEncounterType, "that is not an encounter type I know. Valid codes: "+EncounterTypeCodes())
}

// EncounterNumber validates an encounter class number: a numeric string,
// stored as given.
func EncounterNumber(input string) (string, error) {
	v := strings.TrimSpace(input)
	if !digitsRegex.MatchString(v) {
		return "", Invalid(models.FieldEncounterNumber, "the class number must be digits only, e.g. 1801")
	}
	return v, nil
}

// Email validates a standard email address shape and lower-cases it.
func Email(input string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(input))
	if !emailRegex.MatchString(v) {
		return "", Invalid(models.FieldEmail, "that doesn't look like an email address, e.g. juan@example.com")
	}
	return v, nil
}

// Phone validates a Philippine mobile number in local (09XXXXXXXXX) or
// international (+639XXXXXXXXX) form and normalizes to the international form.
func Phone(input string) (string, error) {
	v := strings.TrimSpace(input)
	v = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(v)
	switch {
	case localPHRegex.MatchString(v):
		return "+63" + v[1:], nil
	case intlPHRegex.MatchString(v):
		return v, nil
	default:
		return "", Invalid(models.FieldPhone, "please use a PH mobile number like 09171234567 or +639171234567")
	}
}

// Password validates a password: at least 6 characters, kept byte-for-byte.
func Password(input string) (string, error) {
	if len(input) < MinPasswordLength {
		return "", Invalid(models.FieldPassword, "the password must be at least 6 characters")
	}
	return input, nil
}

// Date validates a date as YYYY-MM-DD or MM/DD/YYYY (converted to ISO), or
// the literal words "today"/"tomorrow" resolved against ref.
func Date(key models.FieldKey, input string, ref time.Time) (string, error) {
	v := strings.ToLower(strings.TrimSpace(input))
	switch v {
	case "today":
		return ref.Format("2006-01-02"), nil
	case "tomorrow":
		return ref.AddDate(0, 0, 1).Format("2006-01-02"), nil
	}
	if isoDateRegex.MatchString(v) {
		if _, err := time.Parse("2006-01-02", v); err == nil {
			return v, nil
		}
	}
	if m := slashDateRegex.FindStringSubmatch(v); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		candidate := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
		if _, err := time.Parse("2006-01-02", candidate); err == nil {
			return candidate, nil
		}
	}
	return "", Invalid(key, "please give a date like 2026-02-15, 02/15/2026, or \"today\"")
}

// monthNames maps month names and abbreviations to month numbers.
var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var monthDayRegex = regexp.MustCompile(`^([a-z]+)\.?\s+([0-9]{1,2})(?:\s*,?\s*([0-9]{4}))?$`)

// SearchDate validates a date for event search. On top of the formats Date
// accepts, it understands month-name dates such as "Feb 15" or
// "February 15, 2026"; a missing year defaults to ref's year.
func SearchDate(key models.FieldKey, input string, ref time.Time) (string, error) {
	if v, err := Date(key, input, ref); err == nil {
		return v, nil
	}
	v := strings.ToLower(strings.TrimSpace(input))
	if m := monthDayRegex.FindStringSubmatch(v); m != nil {
		if month, ok := monthNames[m[1]]; ok {
			day, _ := strconv.Atoi(m[2])
			year := ref.Year()
			if m[3] != "" {
				year, _ = strconv.Atoi(m[3])
			}
			candidate := fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
			if _, err := time.Parse("2006-01-02", candidate); err == nil {
				return candidate, nil
			}
		}
	}
	return "", Invalid(key, "please give a date like 2026-02-15, 02/15/2026, or \"Feb 15\"")
}

// Clock validates a time of day as HH:MM or H:MM AM/PM and normalizes to
// 24-hour HH:MM. A bare "skip" or "none" yields skipped=true with no error.
func Clock(key models.FieldKey, input string) (value string, skipped bool, err error) {
	v := strings.TrimSpace(input)
	switch strings.ToLower(v) {
	case "skip", "none":
		return "", true, nil
	}
	m := clockRegex.FindStringSubmatch(v)
	if m == nil {
		return "", false, Invalid(key, "please give a time like 18:00 or 6:00 PM, or \"skip\"")
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	meridiem := strings.ToLower(m[3])
	if minute > 59 {
		return "", false, Invalid(key, "minutes must be between 00 and 59")
	}
	switch meridiem {
	case "am":
		if hour < 1 || hour > 12 {
			return "", false, Invalid(key, "hours with AM/PM must be between 1 and 12")
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return "", false, Invalid(key, "hours with AM/PM must be between 1 and 12")
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return "", false, Invalid(key, "hours must be between 00 and 23")
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), false, nil
}

// weekdayOrder fixes the canonical Mon..Sun rendering of a day list.
var weekdayOrder = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// weekdayAliases maps weekday names and abbreviations to canonical form.
var weekdayAliases = map[string]string{
	"mon": "Mon", "monday": "Mon",
	"tue": "Tue", "tues": "Tue", "tuesday": "Tue",
	"wed": "Wed", "weds": "Wed", "wednesday": "Wed",
	"thu": "Thu", "thur": "Thu", "thurs": "Thu", "thursday": "Thu",
	"fri": "Fri", "friday": "Fri",
	"sat": "Sat", "saturday": "Sat",
	"sun": "Sun", "sunday": "Sun",
}

var wordRegex = regexp.MustCompile(`[a-z]+`)

// Weekdays scans an utterance for weekday names and the keywords
// "weekday(s)" (Mon-Fri), "weekend(s)" (Sat/Sun), and "daily"/"every day"/
// "all days" (all seven). It must find at least one day.
func Weekdays(input string) ([]string, error) {
	v := strings.ToLower(strings.TrimSpace(input))
	found := make(map[string]bool)
	if strings.Contains(v, "every day") || strings.Contains(v, "all days") {
		for _, d := range weekdayOrder {
			found[d] = true
		}
	}
	for _, word := range wordRegex.FindAllString(v, -1) {
		switch word {
		case "daily", "everyday":
			for _, d := range weekdayOrder {
				found[d] = true
			}
		case "weekday", "weekdays":
			for _, d := range weekdayOrder[:5] {
				found[d] = true
			}
		case "weekend", "weekends":
			found["Sat"] = true
			found["Sun"] = true
		default:
			if d, ok := weekdayAliases[word]; ok {
				found[d] = true
			}
		}
	}
	if len(found) == 0 {
		return nil, Invalid(models.FieldRecurrenceDays, "please name at least one day, e.g. \"Mon and Wed\", \"weekends\", or \"daily\"")
	}
	days := make([]string, 0, len(found))
	for _, d := range weekdayOrder {
		if found[d] {
			days = append(days, d)
		}
	}
	return days, nil
}

// Interval validates a recurrence interval: a small positive integer.
func Interval(input string) (string, error) {
	v := strings.TrimSpace(input)
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 52 {
		return "", Invalid(models.FieldRecurrenceInterval, "please give a number between 1 and 52, e.g. 1 for every week")
	}
	return strconv.Itoa(n), nil
}

// yesTokens and noTokens are the controlled vocabulary for YesNo.
var (
	yesTokens = map[string]bool{"yes": true, "y": true, "yeah": true, "yep": true, "sure": true, "oo": true, "opo": true}
	noTokens  = map[string]bool{"no": true, "n": true, "nope": true, "none": true, "hindi": true}
)

// YesNo interprets a yes/no reply. An unrecognized token returns an error so
// the flow can re-prompt without changing state.
func YesNo(key models.FieldKey, input string) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(input))
	if yesTokens[v] {
		return true, nil
	}
	if noTokens[v] {
		return false, nil
	}
	return false, Invalid(key, "please answer yes or no")
}

// IsSkipWord reports whether the input is an explicit skip for an optional
// field.
func IsSkipWord(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "none", "skip", "n/a", "na", "wala":
		return true
	default:
		return false
	}
}
