// Package field provides the utterance extractor used for skip-ahead.
package field

import (
	"regexp"
	"strings"

	"github.com/kapwa-labs/KamustaBot/internal/models"
)

// Name lead-in phrases that allow a greeting utterance to fill first and last
// name in one turn. Only the greeting step uses this; every other step
// extracts its own field only.
var nameLeadIns = []string{
	"my name is ",
	"the name is ",
	"name is ",
	"i am ",
	"i'm ",
	"this is ",
}

// FullName scans a greeting utterance for a lead-in phrase followed by a
// name. When the remainder holds two or more words, the first becomes the
// first name and the rest the last name. With a single word only the first
// name is filled. Without a lead-in phrase ok is false and the utterance
// should be treated as the current field's value alone.
func FullName(utterance string) (first, last string, ok bool) {
	v := strings.TrimSpace(utterance)
	lower := strings.ToLower(v)
	for _, lead := range nameLeadIns {
		if !strings.HasPrefix(lower, lead) {
			continue
		}
		rest := strings.TrimSpace(v[len(lead):])
		words := strings.Fields(rest)
		if len(words) == 0 {
			return "", "", false
		}
		f, err := Name(models.FieldFirstName, words[0])
		if err != nil {
			return "", "", false
		}
		if len(words) == 1 {
			return f, "", true
		}
		l, err := Name(models.FieldLastName, strings.Join(words[1:], " "))
		if err != nil {
			return f, "", true
		}
		return f, l, true
	}
	return "", "", false
}

var tokenRegex = regexp.MustCompile(`[^\s,;]+`)

// ContactValue scans an utterance for an email address or a PH mobile number
// so the channel-choice step can accept a direct value instead of a channel
// keyword. When both shapes appear, the first token wins.
func ContactValue(utterance string) (kind models.ChannelKind, value string, ok bool) {
	for _, token := range tokenRegex.FindAllString(utterance, -1) {
		if v, err := Email(token); err == nil {
			return models.ChannelEmail, v, true
		}
		if v, err := Phone(token); err == nil {
			return models.ChannelPhone, v, true
		}
	}
	return models.ChannelNone, "", false
}

// ChannelChoice interprets the channel-choice reply: either a channel keyword
// ("email"/"phone") or a direct contact value.
func ChannelChoice(utterance string) (kind models.ChannelKind, value string, ok bool) {
	switch strings.ToLower(strings.TrimSpace(utterance)) {
	case "email", "e-mail", "mail":
		return models.ChannelEmail, "", true
	case "phone", "mobile", "sms", "text", "cellphone", "cp":
		return models.ChannelPhone, "", true
	}
	return ContactValue(utterance)
}
