// Package relay forwards intake payloads to automation webhooks and queues fire-and-forget
// deliveries on a bounded worker pool.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/intake-engine/internal/domain"
)

// ErrTimeout marks a webhook call that ran out of time.
var ErrTimeout = errors.New("relay: webhook timed out")

// Default timeouts for forwards and status polls.
const (
	DefaultTimeout       = 15 * time.Second
	DefaultStatusTimeout = 10 * time.Second
)

const maxResponseBytes = 1 << 20

var tracer = otel.Tracer("github.com/tjfontaine/intake-engine/internal/relay")

// Config configures a webhook client.
type Config struct {
	Name          string
	Timeout       time.Duration
	StatusTimeout time.Duration
	Retries       int
	APIKey        string
	Headers       map[string]string
	// Transport is the base round tripper; nil uses http.DefaultTransport.
	Transport http.RoundTripper
}

// Client posts JSON to webhook URLs and decodes their response envelopes.
type Client struct {
	name          string
	timeout       time.Duration
	statusTimeout time.Duration
	retries       int
	apiKey        string
	headers       map[string]string
	client        *http.Client
}

// NewClient creates a webhook client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	statusTimeout := cfg.StatusTimeout
	if statusTimeout <= 0 {
		statusTimeout = DefaultStatusTimeout
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	name := cfg.Name
	if name == "" {
		name = "webhook"
	}

	return &Client{
		name:          name,
		timeout:       timeout,
		statusTimeout: statusTimeout,
		retries:       cfg.Retries,
		apiKey:        cfg.APIKey,
		headers:       cfg.Headers,
		client:        &http.Client{Transport: otelhttp.NewTransport(base)},
	}
}

// Forward posts payload to url within the forward timeout. An empty 2xx body is an ok envelope.
func (c *Client) Forward(ctx context.Context, url string, payload any) (*domain.Envelope, error) {
	return c.post(ctx, "relay.forward", url, payload, c.timeout)
}

// Status asks the webhook for the outcome of a job using the status timeout.
func (c *Client) Status(ctx context.Context, url, jobID string) (*domain.Envelope, error) {
	return c.post(ctx, "relay.status", url, map[string]string{"job_id": jobID}, c.statusTimeout)
}

func (c *Client) post(ctx context.Context, span, url string, payload any, timeout time.Duration) (*domain.Envelope, error) {
	ctx, sp := tracer.Start(ctx, span)
	defer sp.End()
	sp.SetAttributes(attribute.String("relay.client", c.name))

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	attempts := c.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		env, err := c.doRequest(ctx, url, body, timeout)
		if err == nil {
			return env, nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			break
		}
	}
	sp.RecordError(lastErr)
	sp.SetStatus(codes.Error, lastErr.Error())
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, url string, body []byte, timeout time.Duration) (*domain.Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%s: %w", c.name, ErrTimeout)
		}
		return nil, fmt.Errorf("%s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%s: %w", c.name, ErrTimeout)
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned status %d", c.name, resp.StatusCode)
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return &domain.Envelope{Status: "ok"}, nil
	}
	var env domain.Envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
