// Package funnel implements the per-visitor questionnaire: logical step grouping, answer
// validation, webhook payload assembly and the state machine that drives a funnel from the
// hero screen to its call-to-action.
package funnel

import "github.com/tjfontaine/intake-engine/internal/domain"

// LogicalStep is one screen of the questionnaire: a single non-contact question, or a run of
// contiguous contact questions shown together.
type LogicalStep struct {
	Question *domain.Question
	Contacts []domain.Question
}

// IsGroup reports whether the step is a contact block. A lone contact question is still a group.
func (s LogicalStep) IsGroup() bool {
	return s.Question == nil
}

// Questions returns the members of the step in display order.
func (s LogicalStep) Questions() []domain.Question {
	if s.Question != nil {
		return []domain.Question{*s.Question}
	}
	return s.Contacts
}

// First returns the representative question used to label the step.
func (s LogicalStep) First() domain.Question {
	if s.Question != nil {
		return *s.Question
	}
	return s.Contacts[0]
}

// ComputeLogicalSteps groups contiguous contact questions into one step and keeps every other
// question on its own. Flattening the result yields the input unchanged.
func ComputeLogicalSteps(questions []domain.Question) []LogicalStep {
	steps := make([]LogicalStep, 0, len(questions))
	for i := 0; i < len(questions); {
		if !questions[i].IsContact() {
			q := questions[i]
			steps = append(steps, LogicalStep{Question: &q})
			i++
			continue
		}
		var block []domain.Question
		for i < len(questions) && questions[i].IsContact() {
			block = append(block, questions[i])
			i++
		}
		steps = append(steps, LogicalStep{Contacts: block})
	}
	return steps
}

// FirstQuestionOfLogicalStep returns the first question of the step at index.
func FirstQuestionOfLogicalStep(questions []domain.Question, index int) (*domain.Question, bool) {
	steps := ComputeLogicalSteps(questions)
	if index < 0 || index >= len(steps) {
		return nil, false
	}
	q := steps[index].First()
	return &q, true
}
