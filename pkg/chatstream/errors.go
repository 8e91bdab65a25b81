package chatstream

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyMessage = errors.New("message is empty")

	// ErrIncomplete reports a stream that delivered chunks but ended
	// without a done or blocked record.
	ErrIncomplete = errors.New("stream ended before the turn completed")

	// ErrNoCredential wraps a token source failure; no request was sent.
	ErrNoCredential = errors.New("no usable credential")
)

// TransportError is returned once when the request could not be sent, the
// backend answered with a non-success status, or the stream broke before a
// terminal record. Nothing further will be delivered for the turn.
type TransportError struct {
	StatusCode int    // zero when no response was received
	Detail     string // backend "detail" message, if any
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("chat request failed (status %d): %s", e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("chat request failed (status %d)", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("chat stream failed: %v", e.Err)
	default:
		return "chat stream failed"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether the backend rejected the credential or
// there was none to send.
func (e *TransportError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden ||
		errors.Is(e.Err, ErrNoCredential)
}

// StreamError carries an error record emitted by the backend mid-stream,
// typically when the upstream provider failed.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "backend stream error: " + e.Message
}
