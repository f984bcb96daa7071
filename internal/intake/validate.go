package intake

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/funnel"
)

// Server-side contact messages.
const (
	msgInvalidEmail     = "Invalid email address"
	msgInvalidPhone     = "Invalid phone number"
	msgInvalidInstagram = "Invalid Instagram handle"
)

// ValidateContact checks a submitted contact payload against the tenant's contact questions.
// Every contact question maps to its canonical key; required questions need a non-empty
// value and present values must match their kind. Format checks are skipped for redacted
// payloads, whose values are placeholders.
func ValidateContact(questions []domain.Question, contact map[string]string, redacted bool) error {
	for _, q := range questions {
		if !q.IsContact() {
			continue
		}
		key := funnel.ContactKey(q.Kind())
		value := strings.TrimSpace(contact[key])
		if value == "" {
			if q.IsRequired() {
				return domain.ErrValidation(fmt.Sprintf("Missing required field: %s", key)).WithField("contact." + key)
			}
			continue
		}
		if redacted {
			continue
		}
		switch q.Kind() {
		case domain.ContactEmail:
			if !funnel.ValidEmail(value) {
				return domain.ErrValidation(msgInvalidEmail).WithField("contact." + key)
			}
		case domain.ContactInstagram:
			if !funnel.ValidInstagram(value) {
				return domain.ErrValidation(msgInvalidInstagram).WithField("contact." + key)
			}
		case domain.ContactTel:
			if !funnel.ValidPhone(value) {
				return domain.ErrValidation(msgInvalidPhone).WithField("contact." + key)
			}
		}
	}
	return nil
}
