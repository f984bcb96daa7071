package intake

import (
	"context"

	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/funnel"
)

// LocalTransport feeds funnel requests straight into a Service in the same process.
type LocalTransport struct {
	service *Service
}

var _ funnel.Transport = (*LocalTransport)(nil)

// NewLocalTransport creates an in-process transport.
func NewLocalTransport(service *Service) *LocalTransport {
	return &LocalTransport{service: service}
}

// SendProgress runs the intake checks inline and queues the webhook call on the relay
// dispatcher. The inline part is a cached tenant lookup plus validation; only the webhook call
// is deferred.
func (t *LocalTransport) SendProgress(ctx context.Context, req *domain.IntakeRequest) error {
	_, err := t.service.Handle(context.WithoutCancel(ctx), req)
	return err
}

func (t *LocalTransport) Submit(ctx context.Context, req *domain.IntakeRequest) (*domain.IntakeResponse, error) {
	return t.service.Handle(ctx, req)
}

// SendCTAAction behaves like SendProgress: checks inline, webhook call queued.
func (t *LocalTransport) SendCTAAction(ctx context.Context, req *domain.IntakeRequest) error {
	_, err := t.service.Handle(context.WithoutCancel(ctx), req)
	return err
}

func (t *LocalTransport) Status(ctx context.Context, appID, jobID string) (*domain.StatusResponse, error) {
	return t.service.Status(ctx, appID, jobID)
}
