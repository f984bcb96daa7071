// Package intake accepts funnel beacons and submissions, validates them against the tenant's
// questions and relays them to the tenant's automation webhook.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/funnel"
	"github.com/tjfontaine/intake-engine/internal/pkg/safehttp"
	"github.com/tjfontaine/intake-engine/internal/relay"
	"github.com/tjfontaine/intake-engine/internal/storage"
)

// Mode selects how submissions are relayed.
type Mode string

const (
	// ModeAsync queues the webhook call and lets the funnel show its configured CTA.
	ModeAsync Mode = "async"
	// ModeSync waits for the webhook and returns the result it determines.
	ModeSync Mode = "sync"
)

const (
	msgUnknownApp       = "Unknown app_id"
	msgMissingJobID     = "Missing job_id"
	msgNotConfigured    = "Webhook not configured"
	msgRequestFailed    = "Request failed. Please try again."
	msgUpstreamFallback = "n8n returned an error"
	msgInvalidResponse  = "Invalid response from n8n"
)

// TenantResolver looks tenants up by app id.
type TenantResolver interface {
	ByID(ctx context.Context, id string) (*domain.Tenant, error)
}

// Forwarder posts payloads to webhook URLs.
type Forwarder interface {
	Forward(ctx context.Context, url string, payload any) (*domain.Envelope, error)
	Status(ctx context.Context, url, jobID string) (*domain.Envelope, error)
}

// Service handles intake requests.
type Service struct {
	tenants    TenantResolver
	dispatcher *relay.Dispatcher
	operator   Forwarder
	tenantHook Forwarder
	webhookURL string
	mode       Mode
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMode sets the relay mode. Unknown modes are treated as async.
func WithMode(mode Mode) Option {
	return func(s *Service) {
		if mode == ModeSync {
			s.mode = ModeSync
		}
	}
}

// WithWebhookURL sets the operator-configured webhook used when a tenant has none.
func WithWebhookURL(url string) Option {
	return func(s *Service) {
		s.webhookURL = strings.TrimSpace(url)
	}
}

// WithOperatorClient sets the client used for the operator-configured webhook.
func WithOperatorClient(f Forwarder) Option {
	return func(s *Service) {
		s.operator = f
	}
}

// WithTenantClient sets the client used for tenant-authored webhook URLs.
func WithTenantClient(f Forwarder) Option {
	return func(s *Service) {
		s.tenantHook = f
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source used to stamp requests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an intake service. Relayed calls run on dispatcher.
func NewService(tenants TenantResolver, dispatcher *relay.Dispatcher, opts ...Option) *Service {
	s := &Service{
		tenants:    tenants,
		dispatcher: dispatcher,
		mode:       ModeAsync,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.operator == nil {
		s.operator = relay.NewClient(relay.Config{Name: "webhook"})
	}
	if s.tenantHook == nil {
		s.tenantHook = relay.NewClient(relay.Config{Name: "tenant-webhook", Transport: safehttp.SafeTransport})
	}
	return s
}

// Mode returns the relay mode.
func (s *Service) Mode() Mode {
	return s.mode
}

type target struct {
	url    string
	client Forwarder
}

// webhookFor picks the tenant's own webhook, then the operator default.
func (s *Service) webhookFor(t *domain.Tenant) (target, bool) {
	if u := strings.TrimSpace(t.Config.WebhookURL); u != "" {
		return target{url: u, client: s.tenantHook}, true
	}
	if s.webhookURL != "" {
		return target{url: s.webhookURL, client: s.operator}, true
	}
	return target{}, false
}

func (s *Service) tenant(ctx context.Context, appID string) (*domain.Tenant, error) {
	t, err := s.tenants.ByID(ctx, appID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrValidation(msgUnknownApp).WithCode(domain.ErrorCodeUnknownApp).WithField("app_id")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}
	return t, nil
}

// Handle validates req against its tenant and relays it. Progress beacons and CTA actions are
// always queued; submissions are queued in async mode and awaited in sync mode.
func (s *Service) Handle(ctx context.Context, req *domain.IntakeRequest) (*domain.IntakeResponse, error) {
	t, err := s.tenant(ctx, req.AppID)
	if err != nil {
		return nil, err
	}
	req.Stamp(s.now())
	req.CTATag = strings.TrimSpace(req.CTATag)
	req.CTAWebhookURL = strings.TrimSpace(req.CTAWebhookURL)

	withheld := funnel.ConsentRequired(t.Config, t.Questions) && (req.ConsentGiven == nil || !*req.ConsentGiven)
	if req.Event == domain.EventSubmit {
		if err := ValidateContact(t.Questions, req.Contact, withheld); err != nil {
			return nil, err
		}
	}
	if withheld {
		req.Contact = funnel.Redact(req.Contact)
	}

	switch {
	case req.Event == domain.EventProgress:
		if tgt, ok := s.webhookFor(t); ok {
			s.enqueue(ctx, t, tgt, req)
		}
		return &domain.IntakeResponse{OK: true}, nil

	case req.IsCTAAction():
		tgt, ok, err := s.ctaTarget(t, req)
		if err != nil {
			return nil, err
		}
		if ok {
			payload := *req
			payload.CTAWebhookURL = ""
			s.enqueue(ctx, t, tgt, &payload)
		}
		return &domain.IntakeResponse{OK: true}, nil
	}

	tgt, ok := s.webhookFor(t)
	if !ok {
		s.logger.WarnContext(ctx, "no webhook configured: submission not relayed", slog.String("tenant_id", t.ID))
		return &domain.IntakeResponse{OK: true, UseCTAConfig: true}, nil
	}
	if s.mode == ModeSync {
		return s.forward(ctx, t, tgt, req)
	}
	s.enqueue(ctx, t, tgt, req)
	return &domain.IntakeResponse{OK: true, UseCTAConfig: true}, nil
}

// ctaTarget resolves where a CTA action goes. An override URL is only honoured when it is the
// one configured on the tenant's webhook option for the tag.
func (s *Service) ctaTarget(t *domain.Tenant, req *domain.IntakeRequest) (target, bool, error) {
	if req.CTAWebhookURL == "" {
		tgt, ok := s.webhookFor(t)
		return tgt, ok, nil
	}
	if m, ok := t.Config.CTA.(domain.MultiChoiceCTA); ok {
		for _, o := range m.Options {
			w, ok := o.(domain.WebhookOption)
			if ok && w.WebhookTag == req.CTATag && strings.TrimSpace(w.WebhookURL) == req.CTAWebhookURL {
				return target{url: req.CTAWebhookURL, client: s.tenantHook}, true, nil
			}
		}
	}
	return target{}, false, domain.ErrValidation("cta_webhook_url is not configured for this tag").WithField("cta_webhook_url")
}

func (s *Service) enqueue(ctx context.Context, t *domain.Tenant, tgt target, payload *domain.IntakeRequest) {
	parent := trace.SpanContextFromContext(ctx)
	logger := s.logger.With(
		slog.String("tenant_id", t.ID),
		slog.String("event", string(payload.Event)),
		slog.String("session_id", payload.SessionID),
	)
	if payload.CTATag != "" {
		logger = logger.With(slog.String("cta_tag", payload.CTATag))
	}

	queued := s.dispatcher.Enqueue(func(ctx context.Context) {
		if parent.IsValid() {
			ctx = trace.ContextWithRemoteSpanContext(ctx, parent)
		}
		env, err := tgt.client.Forward(ctx, tgt.url, payload)
		if err != nil {
			logger.WarnContext(ctx, "webhook relay failed", slog.String("error", err.Error()))
			return
		}
		if env.IsError() {
			logger.WarnContext(ctx, "webhook returned error", slog.String("message", env.Message))
		}
	})
	if !queued {
		logger.WarnContext(ctx, "webhook relay dropped")
	}
}

func (s *Service) forward(ctx context.Context, t *domain.Tenant, tgt target, payload *domain.IntakeRequest) (*domain.IntakeResponse, error) {
	env, err := tgt.client.Forward(ctx, tgt.url, payload)
	if err != nil {
		s.logger.WarnContext(ctx, "webhook relay failed",
			slog.String("tenant_id", t.ID),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, relay.ErrTimeout) {
			return nil, domain.ErrWebhookTimeout()
		}
		return nil, domain.ErrWebhookUnavailable(msgRequestFailed)
	}
	if env.IsError() {
		return nil, domain.ErrUpstream(firstNonEmpty(env.Message, msgUpstreamFallback))
	}
	res := domain.NormaliseResult(env)
	if res == nil {
		s.logger.WarnContext(ctx, "webhook reply has no usable result", slog.String("tenant_id", t.ID))
		return nil, domain.ErrUpstream(msgInvalidResponse)
	}
	return &domain.IntakeResponse{Result: res}, nil
}

// Status asks the webhook for the outcome of a job. appID selects the tenant's webhook and may
// be empty to use the operator default.
func (s *Service) Status(ctx context.Context, appID, jobID string) (*domain.StatusResponse, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, domain.ErrValidation(msgMissingJobID).WithField("job_id")
	}

	var (
		tgt target
		ok  bool
	)
	if appID != "" {
		t, err := s.tenant(ctx, appID)
		if err != nil {
			return nil, err
		}
		tgt, ok = s.webhookFor(t)
	} else if s.webhookURL != "" {
		tgt, ok = target{url: s.webhookURL, client: s.operator}, true
	}
	if !ok {
		return nil, domain.ErrWebhookUnavailable(msgNotConfigured).WithCode(domain.ErrorCodeNotConfigured)
	}

	env, err := tgt.client.Status(ctx, tgt.url, jobID)
	if err != nil {
		s.logger.WarnContext(ctx, "webhook status failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
		return nil, domain.ErrWebhookUnavailable(msgRequestFailed)
	}
	if env.IsError() {
		return nil, domain.ErrUpstream(firstNonEmpty(env.Message, msgUpstreamFallback))
	}
	res := domain.NormaliseResult(env)
	if res == nil || res.IsPending() {
		return &domain.StatusResponse{Status: "pending", JobID: jobID}, nil
	}
	return &domain.StatusResponse{Result: res}, nil
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
