package funnel

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tjfontaine/intake-engine/internal/domain"
)

var (
	emailPattern     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	instagramPattern = regexp.MustCompile(`^[a-zA-Z0-9._]+$`)
)

const maxInstagramHandle = 30

// Field messages shown next to inputs.
const (
	MsgRequired         = "This field is required."
	MsgChooseOne        = "Please choose an option."
	MsgChooseAtLeastOne = "Please choose at least one option."
	MsgInvalidEmail     = "Please enter a valid email."
	MsgInvalidPhone     = "Please enter a valid phone number."
	MsgMissingInstagram = "Please enter your Instagram handle."
	MsgInvalidInstagram = "Please enter a valid Instagram handle (letters, numbers, dots, underscores only)."
)

// FieldErrors maps question id to a user-facing message.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	ids := make([]string, 0, len(e))
	for id := range e {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+": "+e[id])
	}
	return "invalid answers: " + strings.Join(parts, "; ")
}

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ValidPhone reports whether s carries at least ten digits once everything else is stripped.
func ValidPhone(s string) bool {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n >= 10
}

// InstagramHandle strips one leading "@" and surrounding space.
func InstagramHandle(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}

// ValidInstagram reports whether s is a handle of 1-30 letters, digits, dots or underscores.
func ValidInstagram(s string) bool {
	h := InstagramHandle(s)
	return h != "" && len(h) <= maxInstagramHandle && instagramPattern.MatchString(h)
}

// ValidateContactValue returns the message for an invalid contact answer, or "".
func ValidateContactValue(q domain.Question, value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		if q.IsRequired() {
			return MsgRequired
		}
		return ""
	}
	switch q.Kind() {
	case domain.ContactEmail:
		if !ValidEmail(v) {
			return MsgInvalidEmail
		}
	case domain.ContactTel:
		if !ValidPhone(v) {
			return MsgInvalidPhone
		}
	case domain.ContactInstagram:
		if InstagramHandle(v) == "" {
			return MsgMissingInstagram
		}
		if !ValidInstagram(v) {
			return MsgInvalidInstagram
		}
	}
	return ""
}

// ValidateAnswer checks a non-contact answer against its question.
func ValidateAnswer(q domain.Question, v domain.AnswerValue) string {
	switch q.Type {
	case domain.QuestionSingle:
		if v.Multi || !q.HasOption(v.Text) {
			return MsgChooseOne
		}
	case domain.QuestionMulti:
		if len(v.Values) == 0 {
			return MsgChooseAtLeastOne
		}
		for _, s := range v.Values {
			if !q.HasOption(s) {
				return MsgChooseAtLeastOne
			}
		}
	case domain.QuestionText:
		if q.IsRequired() && strings.TrimSpace(v.Text) == "" {
			return MsgRequired
		}
	case domain.QuestionContact:
		return ValidateContactValue(q, v.Text)
	}
	return ""
}

// ValidateGroup checks every member of a contact block. It returns nil when all pass.
func ValidateGroup(questions []domain.Question, answers domain.Answers) FieldErrors {
	var errs FieldErrors
	for _, q := range questions {
		if msg := ValidateContactValue(q, answers[q.ID].Text); msg != "" {
			if errs == nil {
				errs = FieldErrors{}
			}
			errs[q.ID] = msg
		}
	}
	return errs
}
