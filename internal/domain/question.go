package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QuestionType is the closed set of question kinds a funnel can render.
type QuestionType string

const (
	QuestionSingle  QuestionType = "single"
	QuestionMulti   QuestionType = "multi"
	QuestionText    QuestionType = "text"
	QuestionContact QuestionType = "contact"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingle, QuestionMulti, QuestionText, QuestionContact:
		return true
	}
	return false
}

// ContactKind selects the input and validation rule of a contact question.
type ContactKind string

const (
	ContactEmail     ContactKind = "email"
	ContactTel       ContactKind = "tel"
	ContactInstagram ContactKind = "instagram"
	ContactText      ContactKind = "text"
)

// Valid reports whether k is one of the known contact kinds.
func (k ContactKind) Valid() bool {
	switch k {
	case ContactEmail, ContactTel, ContactInstagram, ContactText:
		return true
	}
	return false
}

// Question is one page of the questionnaire.
type Question struct {
	ID                string       `json:"id"`
	Type              QuestionType `json:"type"`
	Question          string       `json:"question"`
	Options           []string     `json:"options,omitempty"`
	ImageURL          string       `json:"imageUrl,omitempty"`
	SubmitButtonLabel string       `json:"submitButtonLabel,omitempty"`

	// Contact-only fields.
	ContactKind      ContactKind `json:"contactKind,omitempty"`
	Label            string      `json:"label,omitempty"`
	Placeholder      string      `json:"placeholder,omitempty"`
	Required         *bool       `json:"required,omitempty"`
	ShowConsentUnder bool        `json:"showConsentUnder,omitempty"`
}

// IsContact reports whether the question collects a contact field.
func (q Question) IsContact() bool {
	return q.Type == QuestionContact
}

// IsRequired reports whether an answer is mandatory. Absence means required.
func (q Question) IsRequired() bool {
	return q.Required == nil || *q.Required
}

// Kind returns the contact kind, defaulting to email.
func (q Question) Kind() ContactKind {
	if q.ContactKind == "" {
		return ContactEmail
	}
	return q.ContactKind
}

// HasOption reports whether v is one of the question's choice labels.
func (q Question) HasOption(v string) bool {
	for _, o := range q.Options {
		if o == v {
			return true
		}
	}
	return false
}

// AnswerValue holds either a single string answer or an ordered list (multi-choice).
type AnswerValue struct {
	Text   string
	Values []string
	Multi  bool
}

// TextAnswer builds a single-valued answer.
func TextAnswer(s string) AnswerValue {
	return AnswerValue{Text: s}
}

// MultiAnswer builds a list-valued answer.
func MultiAnswer(values ...string) AnswerValue {
	return AnswerValue{Values: append([]string(nil), values...), Multi: true}
}

// String returns the single value, or the list joined by ", ".
func (v AnswerValue) String() string {
	if v.Multi {
		return strings.Join(v.Values, ", ")
	}
	return v.Text
}

// IsEmpty reports whether the answer carries no content.
func (v AnswerValue) IsEmpty() bool {
	if v.Multi {
		return len(v.Values) == 0
	}
	return strings.TrimSpace(v.Text) == ""
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.Multi {
		values := v.Values
		if values == nil {
			values = []string{}
		}
		return json.Marshal(values)
	}
	return json.Marshal(v.Text)
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = AnswerValue{Text: s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("answer must be a string or a list of strings")
	}
	*v = AnswerValue{Values: list, Multi: true}
	return nil
}

// Answers maps question id to answer. Stable keys are applied only when transmitting.
type Answers map[string]AnswerValue

// Clone returns a copy that shares no slices with a.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		if v.Multi {
			v.Values = append([]string(nil), v.Values...)
		}
		out[k] = v
	}
	return out
}
