// Package flow provides the review-and-edit sub-graph shared by the flows.
package flow

import (
	"context"
	"strings"

	"github.com/kapwa-labs/KamustaBot/internal/models"
)

// confirmTokens is the controlled vocabulary that confirms a review summary.
var confirmTokens = map[string]bool{
	"yes":      true,
	"confirm":  true,
	"register": true,
	"create":   true,
	"submit":   true,
	"ok":       true,
}

// summaryLine is one rendered row of a review summary.
type summaryLine struct {
	Label string
	Key   models.FieldKey
	// Mask hides the stored value (passwords).
	Mask bool
}

// renderSummary renders the collected fields of a session as a review
// screen. Fields explicitly skipped by the user render as "(none)".
func renderSummary(s *models.Session, lines []summaryLine, confirmHint string) string {
	var sb strings.Builder
	sb.WriteString("Here's what I have:\n")
	for _, line := range lines {
		v, ok := s.Collected[line.Key]
		if !ok {
			continue
		}
		switch {
		case v == models.NullValue:
			v = "(none)"
		case line.Mask:
			v = strings.Repeat("*", 8)
		}
		sb.WriteString(line.Label)
		sb.WriteString(": ")
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	sb.WriteString(confirmHint)
	return sb.String()
}

// reviewSummary renders the review screen for the session's flow.
func reviewSummary(def *Definition, s *models.Session) string {
	return def.Steps[def.ReviewStep].Prompt(nil, s)
}

// matchAlias resolves a review keyword against the definition's ordered
// alias table. Matching is exact on the normalized input; the table order
// encodes priority so "nickname" and "me number" can never be swallowed by
// "name" or "number".
func matchAlias(def *Definition, input string) (models.StepID, bool) {
	v := strings.ToLower(strings.TrimSpace(input))
	for _, a := range def.Aliases {
		if v == a.Alias {
			return a.Step, true
		}
	}
	return "", false
}

// reviewHandler builds the shared review-step handler: a confirmation token
// triggers emission, a field keyword jumps back to that field's collecting
// step in review mode, anything else re-renders the summary with a short
// "didn't understand" prefix.
func reviewHandler(didntGet string) StepHandler {
	return func(ctx context.Context, e *Engine, s *models.Session, input string) Result {
		def, _ := Get(s.Flow)
		v := strings.ToLower(strings.TrimSpace(input))

		if confirmTokens[v] {
			completion, owner := def.Emit(ctx, e, s)
			if owner != "" {
				// Incomplete record: silently redirect to the owning step.
				return Result{Advanced: true, Next: owner, Reply: def.Steps[owner].Prompt(e, s)}
			}
			return Result{Advanced: true, Completion: completion, Reply: completionReply(s.Flow)}
		}

		if step, ok := matchAlias(def, v); ok {
			target := def.Steps[step]
			prior := s.Collected[target.Field]
			def.clearField(s, target.Field)
			s.Flags.InReviewMode = true
			if prior == models.NullValue {
				prior = ""
			}
			prompt := target.Prompt(e, s)
			if prior != "" && target.Field != models.FieldPassword {
				prompt += " (currently " + prior + ")"
			}
			return Result{Advanced: true, Next: step, Reply: prompt}
		}

		return Result{Reply: didntGet + "\n" + reviewSummary(def, s)}
	}
}

// completionReply is the closing assistant text sent with a completion turn.
func completionReply(ft models.FlowType) string {
	switch ft {
	case models.FlowTypeSignup:
		return "All set! I'm sending your registration now — give me a moment."
	case models.FlowTypeEventCreate:
		return "Great, creating your event now — give me a moment."
	case models.FlowTypeCheckin:
		return "You're checked in — salamat! 🎉"
	default:
		return "Done!"
	}
}
