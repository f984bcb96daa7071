package funnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/intake-engine/internal/cta"
	"github.com/tjfontaine/intake-engine/internal/domain"
)

var (
	// ErrSubmitInFlight is returned when the final step is completed again while a submission
	// is still running.
	ErrSubmitInFlight = errors.New("funnel: submission already in progress")
	// ErrWrongStage is returned when an action does not apply to the current stage.
	ErrWrongStage = errors.New("funnel: action not valid in current stage")
)

// Generic message shown when a submission fails for a reason the visitor cannot act on.
const msgSubmitFailed = "Something went wrong. Please try again."

// Transport carries intake requests. SendProgress and SendCTAAction are fire-and-forget: they
// must return promptly and their errors are ignored.
type Transport interface {
	SendProgress(ctx context.Context, req *domain.IntakeRequest) error
	Submit(ctx context.Context, req *domain.IntakeRequest) (*domain.IntakeResponse, error)
	SendCTAAction(ctx context.Context, req *domain.IntakeRequest) error
	Status(ctx context.Context, appID, jobID string) (*domain.StatusResponse, error)
}

// Stage is the top-level position of a funnel.
type Stage = domain.FlowStep

// Options configures a Machine.
type Options struct {
	AppID     string
	SessionID string
	Config    domain.AppConfig
	Questions []domain.Question
	UTM       map[string]string
	Transport Transport
	Logger    *slog.Logger
	Now       func() time.Time
}

// Input is the visitor's answer to the active logical step. Value is used by single and text
// questions, Values by multi questions and Contact (question id → value) by contact blocks.
type Input struct {
	Value        string
	Values       []string
	Contact      map[string]string
	ConsentGiven *bool
}

// Machine is the state of one funnel instance. It is not safe for concurrent use.
type Machine struct {
	appID     string
	sessionID string
	cfg       domain.AppConfig
	questions []domain.Question
	steps     []LogicalStep
	flow      []domain.FlowStep
	transport Transport
	logger    *slog.Logger
	payloads  PayloadBuilder

	stageIdx   int
	logicalIdx int
	answers    domain.Answers
	consent    *bool
	fieldErrs  FieldErrors
	lastErr    string
	submitting bool

	resolver   *cta.Resolver
	syncResult *domain.IntakeResult
	pendingJob string
}

// New creates a funnel positioned at its first stage.
func New(opts Options) *Machine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine{
		appID:     opts.AppID,
		sessionID: opts.SessionID,
		cfg:       opts.Config,
		questions: opts.Questions,
		steps:     ComputeLogicalSteps(opts.Questions),
		transport: opts.Transport,
		logger:    logger.With("app_id", opts.AppID, "session_id", opts.SessionID),
		answers:   domain.Answers{},
		resolver:  cta.NewResolver(opts.Config.CTA, opts.Config.ThankYouFallback()),
	}
	m.payloads = PayloadBuilder{
		AppID:     opts.AppID,
		SessionID: opts.SessionID,
		UTM:       opts.UTM,
		Config:    opts.Config,
		Questions: opts.Questions,
		Now:       opts.Now,
	}
	for _, s := range opts.Config.EffectiveSteps() {
		if s == domain.StepHero && opts.Config.Hero != nil {
			m.flow = append(m.flow, domain.StepHero)
		}
	}
	m.flow = append(m.flow, domain.StepQuestions, domain.StepResult)
	return m
}

// SessionID returns the id attached to every request of this funnel.
func (m *Machine) SessionID() string { return m.sessionID }

// AppID returns the tenant id.
func (m *Machine) AppID() string { return m.appID }

// Config returns the tenant configuration the funnel was built with.
func (m *Machine) Config() domain.AppConfig { return m.cfg }

// Stage returns the current top-level stage.
func (m *Machine) Stage() Stage {
	return m.flow[m.stageIdx]
}

// HasHero reports whether the funnel opens on a hero screen.
func (m *Machine) HasHero() bool {
	return m.indexOf(domain.StepHero) >= 0
}

// Steps returns the logical steps of the questionnaire.
func (m *Machine) Steps() []LogicalStep { return m.steps }

// LogicalIndex returns the position within the questionnaire.
func (m *Machine) LogicalIndex() int { return m.logicalIdx }

// CurrentStep returns the active logical step while in the questions stage.
func (m *Machine) CurrentStep() (LogicalStep, bool) {
	if m.Stage() != domain.StepQuestions || m.logicalIdx >= len(m.steps) {
		return LogicalStep{}, false
	}
	return m.steps[m.logicalIdx], true
}

// Progress returns the 1-based position and the number of logical steps.
func (m *Machine) Progress() (int, int) {
	return m.logicalIdx + 1, len(m.steps)
}

// Answers returns a copy of the answers given so far.
func (m *Machine) Answers() domain.Answers { return m.answers.Clone() }

// FieldErrors returns the validation errors of the last Answer call.
func (m *Machine) FieldErrors() FieldErrors { return m.fieldErrs }

// Error returns the visitor-facing error of the last failed submission.
func (m *Machine) Error() string { return m.lastErr }

// Submitting reports whether the final submission is running.
func (m *Machine) Submitting() bool { return m.submitting }

// ConsentGiven returns the explicit consent choice, or nil if none was made.
func (m *Machine) ConsentGiven() *bool { return m.consent }

// ShowConsent reports whether a contact block must render the consent checkbox.
func (m *Machine) ShowConsent(step LogicalStep) bool {
	if !step.IsGroup() || !ConsentEnabled(m.cfg) {
		return false
	}
	for _, q := range step.Contacts {
		if q.ShowConsentUnder {
			return true
		}
	}
	return false
}

// Start leaves the hero screen and reports arrival at the first logical step.
func (m *Machine) Start(ctx context.Context) error {
	if m.Stage() != domain.StepHero {
		return ErrWrongStage
	}
	m.logicalIdx = 0
	m.fieldErrs = nil
	m.enter(domain.StepQuestions)
	if len(m.steps) == 0 {
		return m.submit(ctx)
	}
	m.beacon(ctx)
	return nil
}

// Answer completes the active logical step. On validation failure it returns FieldErrors and
// stays put. Completing the last step submits, and the funnel only reaches the result stage
// when the submission succeeds.
func (m *Machine) Answer(ctx context.Context, in Input) error {
	if m.submitting {
		return ErrSubmitInFlight
	}
	if m.Stage() == domain.StepQuestions && len(m.steps) == 0 {
		return m.submit(ctx)
	}
	step, ok := m.CurrentStep()
	if !ok {
		return ErrWrongStage
	}

	if step.IsGroup() {
		for _, q := range step.Contacts {
			m.answers[q.ID] = domain.TextAnswer(in.Contact[q.ID])
		}
		if m.ShowConsent(step) {
			given := in.ConsentGiven != nil && *in.ConsentGiven
			m.consent = &given
		}
		if errs := ValidateGroup(step.Contacts, m.answers); errs != nil {
			m.fieldErrs = errs
			return errs
		}
	} else {
		q := *step.Question
		var v domain.AnswerValue
		if q.Type == domain.QuestionMulti {
			v = domain.MultiAnswer(in.Values...)
		} else {
			v = domain.TextAnswer(in.Value)
		}
		if msg := ValidateAnswer(q, v); msg != "" {
			m.fieldErrs = FieldErrors{q.ID: msg}
			return m.fieldErrs
		}
		m.answers[q.ID] = v
	}
	m.fieldErrs = nil

	if m.logicalIdx < len(m.steps)-1 {
		m.logicalIdx++
		m.beacon(ctx)
		return nil
	}
	return m.submit(ctx)
}

// Back moves to the previous logical step, or to the hero from the first one. It never
// reports progress.
func (m *Machine) Back() error {
	if m.Stage() != domain.StepQuestions || m.submitting {
		return ErrWrongStage
	}
	m.fieldErrs = nil
	m.lastErr = ""
	if m.logicalIdx > 0 {
		m.logicalIdx--
		return nil
	}
	if m.HasHero() {
		m.enter(domain.StepHero)
	}
	return nil
}

func (m *Machine) submit(ctx context.Context) error {
	// Every contact answer is re-checked before anything is sent.
	var contacts []domain.Question
	for _, q := range m.questions {
		if q.IsContact() {
			contacts = append(contacts, q)
		}
	}
	if errs := ValidateGroup(contacts, m.answers); errs != nil {
		m.fieldErrs = errs
		return errs
	}

	m.submitting = true
	m.lastErr = ""
	defer func() { m.submitting = false }()

	req := m.payloads.Submit(m.answers, m.consent)
	resp, err := m.transport.Submit(ctx, req)
	if err != nil {
		m.lastErr = visitorMessage(err)
		m.logger.WarnContext(ctx, "submission failed", "error", err)
		return fmt.Errorf("submit: %w", err)
	}

	m.syncResult = nil
	m.pendingJob = ""
	if resp != nil && resp.Result != nil {
		if resp.Result.IsPending() {
			m.pendingJob = resp.Result.JobID
		} else {
			m.syncResult = resp.Result
		}
	}
	m.resolver.Reset()
	m.enter(domain.StepResult)
	return nil
}

// Pending reports whether the result is still being determined by the webhook.
func (m *Machine) Pending() bool { return m.pendingJob != "" }

// Poll checks a pending webhook job once.
func (m *Machine) Poll(ctx context.Context) error {
	if m.pendingJob == "" {
		return nil
	}
	resp, err := m.transport.Status(ctx, m.appID, m.pendingJob)
	if err != nil {
		return fmt.Errorf("poll %s: %w", m.pendingJob, err)
	}
	if resp != nil && resp.Result != nil && !resp.Result.IsPending() {
		m.syncResult = resp.Result
		m.pendingJob = ""
	}
	return nil
}

// View returns what the result stage shows.
func (m *Machine) View() cta.View {
	if m.pendingJob != "" {
		return cta.PendingView{JobID: m.pendingJob}
	}
	if m.syncResult != nil {
		return cta.FromResult(m.syncResult, m.cfg.ThankYouFallback())
	}
	return m.resolver.Current()
}

// SelectCTA resolves a multi-choice option. A webhook_then_message option sends its tagged
// follow-up without waiting for it.
func (m *Machine) SelectCTA(ctx context.Context, optionID string) (cta.Outcome, error) {
	if m.Stage() != domain.StepResult || m.syncResult != nil || m.pendingJob != "" {
		return cta.Outcome{}, ErrWrongStage
	}
	out, err := m.resolver.Select(optionID)
	if err != nil {
		return out, err
	}
	if out.Webhook != nil {
		req := m.payloads.CTAAction(m.answers, m.consent, out.Webhook.Tag, out.Webhook.URL)
		if err := m.transport.SendCTAAction(ctx, req); err != nil {
			m.logger.DebugContext(ctx, "cta webhook dropped", "tag", out.Webhook.Tag, "error", err)
		}
	}
	return out, nil
}

// SelectSubChoice resolves a choice of the open sub-choice picker.
func (m *Machine) SelectSubChoice(index int) (cta.Outcome, error) {
	if m.Stage() != domain.StepResult {
		return cta.Outcome{}, ErrWrongStage
	}
	return m.resolver.SelectSubChoice(index)
}

// ResetCTA returns to the option list.
func (m *Machine) ResetCTA() {
	m.resolver.Reset()
}

func (m *Machine) beacon(ctx context.Context) {
	req := m.payloads.Progress(m.logicalIdx, m.answers, m.consent)
	if err := m.transport.SendProgress(ctx, req); err != nil {
		m.logger.DebugContext(ctx, "progress beacon dropped", "error", err)
	}
}

func (m *Machine) enter(s domain.FlowStep) {
	if i := m.indexOf(s); i >= 0 {
		m.stageIdx = i
	}
}

func (m *Machine) indexOf(s domain.FlowStep) int {
	for i, f := range m.flow {
		if f == s {
			return i
		}
	}
	return -1
}

func visitorMessage(err error) string {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case domain.ErrorTypeWebhookUnavailable, domain.ErrorTypeValidation:
			if apiErr.Message != "" {
				return apiErr.Message
			}
		}
	}
	return msgSubmitFailed
}
