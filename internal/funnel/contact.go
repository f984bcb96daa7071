package funnel

import (
	"strings"

	"github.com/tjfontaine/intake-engine/internal/domain"
)

// Canonical contact payload keys.
const (
	KeyEmail     = "email"
	KeyPhone     = "phone"
	KeyInstagram = "instagram"
	KeyText      = "text"
)

// ContactKey maps a contact kind to its payload key.
func ContactKey(kind domain.ContactKind) string {
	switch kind {
	case domain.ContactTel:
		return KeyPhone
	case domain.ContactInstagram:
		return KeyInstagram
	case domain.ContactText:
		return KeyText
	default:
		return KeyEmail
	}
}

// ContactPayload re-keys contact answers by kind. When several questions share a kind the
// first non-empty value in question order wins; empty answers are omitted.
func ContactPayload(questions []domain.Question, answers domain.Answers) map[string]string {
	out := make(map[string]string)
	for _, q := range questions {
		if !q.IsContact() {
			continue
		}
		v := strings.TrimSpace(answers[q.ID].Text)
		if v == "" {
			continue
		}
		key := ContactKey(q.Kind())
		if _, ok := out[key]; !ok {
			out[key] = v
		}
	}
	return out
}

// Redact returns a copy of contact with every value replaced by domain.RedactedValue.
func Redact(contact map[string]string) map[string]string {
	out := make(map[string]string, len(contact))
	for k := range contact {
		out[k] = domain.RedactedValue
	}
	return out
}
