// Package controlplane implements the persistence and services boundary as
// an HTTP/JSON client against the internal assistants API. One Client
// satisfies store.Backend, store.ToolService, store.VectorService and
// store.SandboxService.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/projectdavid/orchestrator/internal/backoff"
	"github.com/projectdavid/orchestrator/internal/observability"
	"github.com/projectdavid/orchestrator/internal/store"
)

// Client talks to the control-plane API. Server errors and transport
// failures are retried with exponential backoff; 4xx responses are not.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     backoff.Policy
	attempts   int
	logger     *observability.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry overrides the retry policy and attempt budget.
func WithRetry(policy backoff.Policy, attempts int) Option {
	return func(c *Client) {
		c.policy = policy
		c.attempts = attempts
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *observability.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for baseURL, authenticating every request with apiKey.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     backoff.DefaultPolicy(),
		attempts:   3,
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiError is a non-2xx response, preserved so callers can map statuses to
// the store sentinels.
type apiError struct {
	Status int
	Path   string
	Body   string
}

func (e *apiError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("control plane %s: status %d (%s)", e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("control plane %s: status %d", e.Path, e.Status)
}

func retryable(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.Status >= 500
	}
	// Transport-level failures are worth another attempt.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// doJSON issues one request with retries, decoding a JSON response into out
// when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}
	return backoff.Retry(ctx, c.policy, c.attempts, retryable, func(attempt int) error {
		if attempt > 1 {
			c.logger.Warn(ctx, "retrying control-plane request", "method", method, "path", path, "attempt", attempt)
		}
		resp, err := c.send(ctx, method, path, body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return readAPIError(resp, path)
		}
		if out == nil {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	})
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return c.httpClient.Do(req)
}

func readAPIError(resp *http.Response, path string) error {
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	ae := &apiError{Status: resp.StatusCode, Path: path}
	if readErr == nil {
		ae.Body = strings.TrimSpace(string(raw))
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ae, store.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%w: %w", ae, store.ErrTerminal)
	}
	return ae
}
