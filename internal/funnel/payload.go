package funnel

import (
	"time"

	"github.com/tjfontaine/intake-engine/internal/domain"
)

// PayloadBuilder assembles intake requests for one funnel session.
type PayloadBuilder struct {
	AppID     string
	SessionID string
	UTM       map[string]string
	Config    domain.AppConfig
	Questions []domain.Question
	Now       func() time.Time
}

func (b *PayloadBuilder) base(event domain.IntakeEvent, answers domain.Answers, consent *bool) *domain.IntakeRequest {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	contact := ContactPayload(b.Questions, answers)
	req := &domain.IntakeRequest{
		AppID:        b.AppID,
		Event:        event,
		SessionID:    b.SessionID,
		Answers:      StableAnswers(b.Questions, answers),
		Contact:      ApplyConsent(b.Config, b.Questions, contact, consent),
		ConsentGiven: consent,
	}
	if len(b.UTM) > 0 {
		req.UTM = make(map[string]string, len(b.UTM))
		for k, v := range b.UTM {
			req.UTM[k] = v
		}
	}
	req.Stamp(now())
	return req
}

// Progress builds the beacon for arriving at the logical step at index.
func (b *PayloadBuilder) Progress(index int, answers domain.Answers, consent *bool) *domain.IntakeRequest {
	req := b.base(domain.EventProgress, answers, consent)
	req.Step = string(domain.StepQuestions)
	req.QuestionIndex = &index
	if q, ok := FirstQuestionOfLogicalStep(b.Questions, index); ok {
		req.QuestionID = q.ID
		req.StepQuestion = q.Question
	}
	return req
}

// Submit builds the final submission.
func (b *PayloadBuilder) Submit(answers domain.Answers, consent *bool) *domain.IntakeRequest {
	return b.base(domain.EventSubmit, answers, consent)
}

// CTAAction builds the follow-up sent when a webhook_then_message option is chosen.
func (b *PayloadBuilder) CTAAction(answers domain.Answers, consent *bool, tag, webhookURL string) *domain.IntakeRequest {
	req := b.base(domain.EventSubmit, answers, consent)
	req.CTATag = tag
	req.CTAWebhookURL = webhookURL
	return req
}
