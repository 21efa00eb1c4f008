// Package flow provides the numbered-list disambiguation mechanism.
package flow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kapwa-labs/KamustaBot/internal/models"
)

// showCandidates renders at most MaxCandidatesShown entries as a numbered
// list and stores exactly the shown entries in the session's flags. A later
// numeric reply resolves against this stored list, never a recomputed one,
// so the selection cannot race with changing event data. Storing also
// supersedes any earlier list: only the most recently shown one is active.
func showCandidates(s *models.Session, header string, candidates []models.Candidate) string {
	shown := candidates
	if len(shown) > models.MaxCandidatesShown {
		shown = shown[:models.MaxCandidatesShown]
	}
	s.Flags.Candidates = append([]models.Candidate(nil), shown...)

	var sb strings.Builder
	sb.WriteString(header)
	for i, c := range shown {
		sb.WriteString(fmt.Sprintf("\n%d. %s — %s", i+1, c.Title, c.When))
	}
	if len(candidates) > len(shown) {
		sb.WriteString(fmt.Sprintf("\n(and %d more — try a more specific date)", len(candidates)-len(shown)))
	}
	sb.WriteString("\nReply with a number to pick one.")
	return sb.String()
}

// resolveCandidate matches a numeric reply against the active candidate
// list. A number outside [1, shown] or a non-numeric reply does not resolve;
// the caller falls through to the step's normal input handling. On a match
// the list is cleared so a stale reference is never consulted again.
func resolveCandidate(s *models.Session, input string) (models.Candidate, bool) {
	if len(s.Flags.Candidates) == 0 {
		return models.Candidate{}, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > len(s.Flags.Candidates) {
		return models.Candidate{}, false
	}
	c := s.Flags.Candidates[n-1]
	s.Flags.Candidates = nil
	return c, true
}
