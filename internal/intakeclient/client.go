// Package intakeclient is a funnel transport that talks to a remote intake API over HTTP.
package intakeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/funnel"
)

const (
	intakePath = "/api/intake"
	statusPath = "/api/intake/status"

	// DefaultTimeout bounds every call, including background beacons.
	DefaultTimeout = 20 * time.Second

	maxResponseBytes = 1 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Transport is the base round tripper; nil uses http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Client implements funnel.Transport against POST /api/intake and GET /api/intake/status.
type Client struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
	wg      sync.WaitGroup
}

var _ funnel.Transport = (*Client)(nil)

// New creates a client for the intake API at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("intakeclient: invalid base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		client:  &http.Client{Transport: otelhttp.NewTransport(base)},
		logger:  logger,
	}, nil
}

// SendProgress posts a beacon in the background.
func (c *Client) SendProgress(ctx context.Context, req *domain.IntakeRequest) error {
	c.background(ctx, "progress", req)
	return nil
}

// SendCTAAction posts a tagged follow-up in the background.
func (c *Client) SendCTAAction(ctx context.Context, req *domain.IntakeRequest) error {
	c.background(ctx, "cta action", req)
	return nil
}

// Submit posts the final submission and waits for the response.
func (c *Client) Submit(ctx context.Context, req *domain.IntakeRequest) (*domain.IntakeResponse, error) {
	var resp domain.IntakeResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+intakePath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status polls a pending job.
func (c *Client) Status(ctx context.Context, appID, jobID string) (*domain.StatusResponse, error) {
	q := url.Values{"app_id": {appID}, "job_id": {jobID}}
	var resp domain.StatusResponse
	if err := c.do(ctx, http.MethodGet, c.baseURL+statusPath+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Close waits for background requests to finish or ctx to end.
func (c *Client) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) background(ctx context.Context, kind string, req *domain.IntakeRequest) {
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.do(ctx, http.MethodPost, c.baseURL+intakePath, req, nil); err != nil {
			c.logger.DebugContext(ctx, kind+" dropped", "app_id", req.AppID, "error", err)
		}
	}()
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.ErrWebhookTimeout()
		}
		return fmt.Errorf("intake request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError turns an error body into the *domain.APIError the server wrote.
func decodeError(status int, data []byte) error {
	var apiErr domain.APIError
	if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Type == "" {
		return domain.ErrServer(fmt.Sprintf("intake API returned status %d", status)).WithStatusCode(status)
	}
	apiErr.StatusCode = status
	return &apiErr
}
