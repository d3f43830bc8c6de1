// Package client fetches chart update payloads from the dashboard backend.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/raykavin/rsdash/pkg/core"
	"github.com/raykavin/rsdash/pkg/logger"
)

// Route is the backend path serving update payloads
const Route = "/update_charts"

// maxBodySize bounds the response body; map renderings are large but finite
const maxBodySize = 64 << 20

// StatusError is returned for non 2xx responses
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Client implements core.Fetcher over HTTP
type Client struct {
	base       *url.URL
	httpClient *http.Client
	timeout    time.Duration
	retries    int
	backoff    *backoff.Backoff
	log        logger.Logger
}

// Option defines a function type for configuring a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets a timeout for every request, zero disables it
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRetries sets how many extra attempts are made after a transport
// failure or a 5xx response. The default is none.
func WithRetries(retries int) Option {
	return func(c *Client) {
		c.retries = max(retries, 0)
	}
}

// WithBackoff replaces the delay policy between retries
func WithBackoff(b *backoff.Backoff) Option {
	return func(c *Client) {
		c.backoff = b
	}
}

// WithLogger sets the client logger
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a client for the backend at baseURL
func New(baseURL string, options ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q: scheme and host are required", baseURL)
	}

	c := &Client{
		base:       base,
		httpClient: &http.Client{},
		backoff:    setupBackoffRetry(),
		log:        logger.Nop(),
	}

	for _, option := range options {
		option(c)
	}

	if c.timeout > 0 {
		httpClient := *c.httpClient
		httpClient.Timeout = c.timeout
		c.httpClient = &httpClient
	}

	return c, nil
}

// setupBackoffRetry creates a backoff with sensible defaults
func setupBackoffRetry() *backoff.Backoff {
	return &backoff.Backoff{
		Min: 100 * time.Millisecond,
		Max: 1 * time.Second,
	}
}

// URL returns the update route for year with the year query-encoded
func (c *Client) URL(year string) string {
	u := *c.base
	u.Path += Route
	u.RawQuery = url.Values{"year": []string{year}}.Encode()
	return u.String()
}

// Fetch implements core.Fetcher. It issues one GET per attempt and decodes
// the body into a validated payload.
func (c *Client) Fetch(ctx context.Context, year string) (*core.Payload, error) {
	target := c.URL(year)
	c.backoff.Reset()

	for attempt := 0; ; attempt++ {
		body, err := c.get(ctx, target)
		if err == nil {
			return Decode(body)
		}

		if attempt >= c.retries || !retryable(ctx, err) {
			return nil, err
		}

		wait := c.backoff.Duration()
		c.log.WithFields(map[string]any{
			"url":     target,
			"attempt": attempt + 1,
			"wait":    wait.String(),
		}).WithError(err).Warn("update request failed, retrying")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch %s: %w", target, ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &StatusError{Code: resp.StatusCode, URL: target}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", target, err)
	}

	return body, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusInternalServerError
	}
	return true
}
