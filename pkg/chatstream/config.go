package chatstream

import (
	"context"
	"net/http"
	"time"
)

// TokenSource supplies the bearer credential sent with every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same credential.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Config holds the settings for a streaming chat client.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000".
	BaseURL string

	Tokens TokenSource

	// TurnTimeout bounds a whole turn, from request to end of stream.
	// Zero uses DefaultTurnTimeout; a negative value disables the bound.
	TurnTimeout time.Duration

	// ReadBufferSize is the size of each read from the response body.
	ReadBufferSize int

	// HTTPClient overrides the transport. Its Timeout must be zero or it
	// will cut long streams short.
	HTTPClient *http.Client
}

const (
	DefaultTurnTimeout    = 5 * time.Minute
	DefaultReadBufferSize = 4096
)
