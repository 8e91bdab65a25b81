package chatstream

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

	"github.com/user/gatewaychat/internal/types"
)

// Request is one user turn sent to the chat endpoint.
type Request struct {
	Message   string           `json:"message"`
	Target    types.Target     `json:"gpt_target"`
	SessionID *types.SessionID `json:"session_id"`
}

// Validate checks the request before anything is sent.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	if !r.Target.Valid() {
		return fmt.Errorf("invalid target %q", r.Target)
	}
	return nil
}

// Client sends chat turns and decodes the streamed response.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// New creates a streaming chat client with the given configuration.
func New(config *Config) *Client {
	hc := config.HTTPClient
	if hc == nil {
		// No client-level timeout: the turn timeout bounds each stream.
		hc = &http.Client{}
	}
	return &Client{
		config:     config,
		httpClient: hc,
	}
}

// Stream sends one turn and drives h until the stream ends. It returns nil
// when the stream ended cleanly, a *TransportError when the request failed
// or the stream broke before a terminal record, and a *StreamError when
// the backend reported a failure in-band. Stream does not retry.
func (c *Client) Stream(ctx context.Context, req Request, h Handler) error {
	if err := req.Validate(); err != nil {
		return err
	}

	timeout := c.config.TurnTimeout
	if timeout == 0 {
		timeout = DefaultTurnTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := c.open(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	size := c.config.ReadBufferSize
	if size <= 0 {
		size = DefaultReadBufferSize
	}
	buf := make([]byte, size)
	dec := NewDecoder(h)

	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if err := dec.Feed(buf[:n]); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if dec.Stats().Terminal {
				slog.Debug("stream closed after terminal record", "error", rerr)
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				rerr = ctxErr
			}
			return &TransportError{Err: fmt.Errorf("reading stream: %w", rerr)}
		}
	}

	if err := dec.Flush(); err != nil {
		return err
	}
	st := dec.Stats()
	if !st.Terminal && st.Chunks > 0 {
		return &TransportError{Err: ErrIncomplete}
	}
	slog.Debug("stream finished", "records", st.Records, "chunks", st.Chunks, "skipped", st.Skipped,
		"blocked", st.Blocked, "done", st.Done)
	return nil
}

func (c *Client) open(ctx context.Context, req Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var token string
	if c.config.Tokens != nil {
		token, err = c.config.Tokens.Token(ctx)
		if err != nil {
			return nil, &TransportError{Err: fmt.Errorf("%w: %w", ErrNoCredential, err)}
		}
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, &TransportError{Err: fmt.Errorf("sending request: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Detail:     readDetail(resp.Body, resp.Status),
		}
	}
	return resp, nil
}

// readDetail extracts the backend's {"detail": ...} message from an error
// body, falling back to the status text.
func readDetail(r io.Reader, status string) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			return s
		}
		// Validation errors carry a structured detail.
		return string(body.Detail)
	}
	if text := strings.TrimSpace(string(data)); text != "" && len(text) < 200 {
		return text
	}
	return status
}
