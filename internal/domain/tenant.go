package domain

import (
	"fmt"
	"time"
)

// Tenant is one customer funnel: its config, its questions and the hostnames that serve it.
type Tenant struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Config    AppConfig  `json:"config"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TenantSummary is a list row with the tenant's primary domain.
type TenantSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	PrimaryDomain string    `json:"primary_domain,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Domain maps a hostname to a tenant.
type Domain struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Domain    string    `json:"domain"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the structural rules a tenant must satisfy before it is stored.
func (t *Tenant) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	return ValidateQuestions(t.Questions, t.Config.CTA)
}

// ValidateQuestions checks question ids, types and options, and the CTA's sub-choice lists.
func ValidateQuestions(questions []Question, cta CTA) error {
	seen := make(map[string]bool, len(questions))
	for i, q := range questions {
		if q.ID == "" {
			return fmt.Errorf("question %d: id is required", i+1)
		}
		if seen[q.ID] {
			return fmt.Errorf("question %q: duplicate id", q.ID)
		}
		seen[q.ID] = true
		if !q.Type.Valid() {
			return fmt.Errorf("question %q: unknown type %q", q.ID, q.Type)
		}
		switch q.Type {
		case QuestionSingle, QuestionMulti:
			if len(q.Options) == 0 {
				return fmt.Errorf("question %q: options are required", q.ID)
			}
		case QuestionContact:
			if q.ContactKind != "" && !q.ContactKind.Valid() {
				return fmt.Errorf("question %q: unknown contact kind %q", q.ID, q.ContactKind)
			}
		}
	}
	if m, ok := cta.(MultiChoiceCTA); ok {
		for _, o := range m.Options {
			if sc, ok := o.(VideoSubChoiceOption); ok && len(sc.Choices) == 0 {
				return fmt.Errorf("cta option %q: sub_choice needs at least one choice", sc.ID)
			}
		}
	}
	return nil
}

// NormalizeQuestions fills defaults the editor would: ids q1.., type single, and for contact
// questions kind email and required true.
func NormalizeQuestions(questions []Question) []Question {
	out := make([]Question, len(questions))
	for i, q := range questions {
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		if q.Type == "" {
			q.Type = QuestionSingle
		}
		if q.Type == QuestionContact {
			if q.ContactKind == "" {
				q.ContactKind = ContactEmail
			}
			if q.Required == nil {
				required := true
				q.Required = &required
			}
		}
		out[i] = q
	}
	return out
}
