// Package client is a small HTTP client for the folio API server, used by
// the CLI commands.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/folio/api"
	"github.com/papercomputeco/folio/pkg/pipeline"
)

const defaultTimeout = 3 * time.Minute

// Error is a non-2xx response from the server.
type Error struct {
	StatusCode int
	api.ErrorResponse
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("folio API error (HTTP %d, %s during %s): %s", e.StatusCode, e.Kind, e.Stage, e.ErrorResponse.Error)
	}
	if e.Kind != "" {
		return fmt.Sprintf("folio API error (HTTP %d, %s): %s", e.StatusCode, e.Kind, e.ErrorResponse.Error)
	}
	return fmt.Sprintf("folio API error (HTTP %d): %s", e.StatusCode, e.ErrorResponse.Error)
}

// Client talks to a folio API server.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends "Authorization: Bearer <key>" on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the server at target.
func New(target string, opts ...Option) (*Client, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API target URL %q: scheme and host are required", target)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Answer asks one question.
func (c *Client) Answer(ctx context.Context, req api.AnswerRequest) (*api.AnswerResponse, error) {
	var out api.AnswerResponse
	if err := c.do(ctx, http.MethodPost, "/v1/answer", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transform rewrites a batch of fragments into standalone queries.
func (c *Client) Transform(ctx context.Context, req api.TransformRequest) (*api.TransformResponse, error) {
	var out api.TransformResponse
	if err := c.do(ctx, http.MethodPost, "/v1/transform", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns the server's pipeline counters.
func (c *Client) Stats(ctx context.Context) (*pipeline.Stats, error) {
	var out pipeline.Stats
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns the server's health report. An unhealthy server answers
// 503 with a report, which is returned without an error.
func (c *Client) Health(ctx context.Context) (*pipeline.Health, error) {
	var out pipeline.Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && out.Status != "" {
		return &out, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to folio API at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, &apiErr.ErrorResponse) != nil || apiErr.ErrorResponse.Error == "" {
			apiErr.ErrorResponse.Error = strings.TrimSpace(string(data))
		}
		// health reports are still decoded on 503
		if resp.StatusCode == http.StatusServiceUnavailable && out != nil {
			_ = json.Unmarshal(data, out)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
