package funnel

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/intake-engine/internal/domain"
)

// StableKeys assigns each non-contact question a payload key derived from its text, so that
// reordering questions does not change what the webhook sees. Questions without text fall back
// to their id; repeated keys get " (2)", " (3)" suffixes in question order.
func StableKeys(questions []domain.Question) map[string]string {
	keys := make(map[string]string, len(questions))
	seen := make(map[string]int)
	for _, q := range questions {
		if q.IsContact() {
			continue
		}
		base := strings.TrimSpace(q.Question)
		if base == "" {
			base = q.ID
		}
		seen[base]++
		if n := seen[base]; n > 1 {
			keys[q.ID] = fmt.Sprintf("%s (%d)", base, n)
		} else {
			keys[q.ID] = base
		}
	}
	return keys
}

// StableAnswers re-keys the answered non-contact questions by their stable key.
func StableAnswers(questions []domain.Question, answers domain.Answers) domain.Answers {
	keys := StableKeys(questions)
	out := make(domain.Answers, len(answers))
	for _, q := range questions {
		key, ok := keys[q.ID]
		if !ok {
			continue
		}
		if v, answered := answers[q.ID]; answered {
			out[key] = v
		}
	}
	return out
}
