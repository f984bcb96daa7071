package domain

import (
	"encoding/json"
	"time"
)

// IntakeEvent distinguishes telemetry beacons from final submissions.
type IntakeEvent string

const (
	EventProgress IntakeEvent = "progress"
	EventSubmit   IntakeEvent = "submit"
)

// RedactedValue replaces contact values when consent is required but not given.
const RedactedValue = "hidden"

// UTMKeys are the campaign parameters captured from the landing URL.
var UTMKeys = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}

// IntakeRequest is the body of POST /api/intake and the payload relayed to the webhook.
type IntakeRequest struct {
	AppID         string            `json:"app_id" validate:"required,max=128"`
	Event         IntakeEvent       `json:"event" validate:"required,oneof=progress submit"`
	Timestamp     string            `json:"timestamp,omitempty"`
	SessionID     string            `json:"session_id,omitempty" validate:"omitempty,max=128"`
	Answers       Answers           `json:"answers" validate:"required"`
	Contact       map[string]string `json:"contact" validate:"required,dive,keys,oneof=email phone instagram text,endkeys"`
	UTM           map[string]string `json:"utm,omitempty" validate:"omitempty,dive,keys,startswith=utm_,endkeys"`
	Step          string            `json:"step,omitempty"`
	QuestionIndex *int              `json:"question_index,omitempty" validate:"omitempty,min=0"`
	QuestionID    string            `json:"question_id,omitempty"`
	StepQuestion  string            `json:"step_question,omitempty"`
	ConsentGiven  *bool             `json:"consent_given,omitempty"`
	CTATag        string            `json:"cta_tag,omitempty" validate:"omitempty,max=64"`
	CTAWebhookURL string            `json:"cta_webhook_url,omitempty" validate:"omitempty,url"`
}

// Stamp fills the timestamp with now when the client left it empty.
func (r *IntakeRequest) Stamp(now time.Time) {
	if r.Timestamp == "" {
		r.Timestamp = now.UTC().Format(time.RFC3339Nano)
	}
}

// IsCTAAction reports whether the request is a webhook_then_message follow-up.
func (r *IntakeRequest) IsCTAAction() bool {
	return r.Event == EventSubmit && r.CTATag != ""
}

// IntakeResponse is the success body of POST /api/intake.
type IntakeResponse struct {
	OK           bool          `json:"ok,omitempty"`
	UseCTAConfig bool          `json:"useCtaConfig,omitempty"`
	Result       *IntakeResult `json:"result,omitempty"`
}

// Envelope is the response shape expected from the automation webhook.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// IsError reports whether the webhook flagged the request as failed.
func (e *Envelope) IsError() bool {
	return e != nil && e.Status == "error"
}

// Result modes returned by the webhook in synchronous relay mode.
const (
	ResultThankYou = "thank_you"
	ResultLink     = "link"
	ResultEmbed    = "embed"
)

// IntakeResult is a webhook-determined outcome. Exactly one of Mode or JobID is set.
type IntakeResult struct {
	Mode      string  `json:"mode,omitempty"`
	Message   string  `json:"message,omitempty"`
	Label     string  `json:"label,omitempty"`
	URL       string  `json:"url,omitempty"`
	Title     string  `json:"title,omitempty"`
	Subtitle  string  `json:"subtitle,omitempty"`
	TextBelow string  `json:"textBelow,omitempty"`
	Button    *Button `json:"button,omitempty"`
	HTML      string  `json:"html,omitempty"`
	JobID     string  `json:"job_id,omitempty"`
}

// IsPending reports whether the result only carries a job id to poll.
func (r *IntakeResult) IsPending() bool {
	return r != nil && r.JobID != ""
}

// NormaliseResult extracts a usable result from an envelope. It returns nil for error
// envelopes, missing results and unknown modes.
func NormaliseResult(env *Envelope) *IntakeResult {
	if env == nil || env.IsError() || len(env.Result) == 0 {
		return nil
	}
	var r IntakeResult
	if err := json.Unmarshal(env.Result, &r); err != nil {
		return nil
	}
	if r.JobID != "" {
		return &IntakeResult{JobID: r.JobID}
	}
	switch r.Mode {
	case ResultThankYou, ResultLink, ResultEmbed:
		return &r
	}
	return nil
}

// StatusResponse is the body of GET /api/intake/status.
type StatusResponse struct {
	Status string        `json:"status,omitempty"`
	JobID  string        `json:"job_id,omitempty"`
	Result *IntakeResult `json:"result,omitempty"`
}
