// Package api is a thin client for the gateway backend's JSON endpoints.
// The streaming chat endpoint lives in pkg/chatstream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/user/gatewaychat/internal/auth"
)

// ErrUnauthorized matches any failure caused by a missing, expired or
// rejected credential.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-success response from the backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Detail)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 and 403 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// Config holds the backend connection settings.
type Config struct {
	BaseURL string
	Tokens  auth.Source
	Timeout time.Duration

	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64
	Burst     int

	Retry *RetryPolicy
}

// Client issues authenticated JSON requests to the backend.
type Client struct {
	baseURL    string
	tokens     auth.Source
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      *RetryPolicy
}

// New creates a backend client with the given configuration.
func New(config *Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		tokens:     config.Tokens,
		httpClient: &http.Client{Timeout: timeout},
		retry:      config.Retry,
	}
	if c.retry == nil {
		c.retry = DefaultRetryPolicy()
	}
	if config.RateLimit > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	return c
}

// BaseURL returns the backend root this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// get decodes a GET response into out, retrying transient failures.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.retry.Execute(ctx, func() error {
		return c.do(ctx, http.MethodGet, path, nil, "", out)
	})
}

// send issues a non-idempotent request with an optional JSON body. It is
// never retried.
func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	var token string
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		token = tok
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	slog.Debug("api request", "method", method, "path", path, "status", resp.StatusCode,
		"elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Detail: errorDetail(respBody, resp.Status)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// errorDetail pulls the backend's "detail" message out of an error body,
// falling back to the status text.
func errorDetail(body []byte, status string) string {
	var e struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err == nil && len(e.Detail) > 0 {
		var s string
		if err := json.Unmarshal(e.Detail, &s); err == nil {
			return s
		}
		return string(e.Detail)
	}
	return status
}
