// Package auth supplies the bearer credential issued by the external
// identity provider. The client never mints or refreshes credentials; it
// only reads them and refuses to send ones that are missing or expired.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("no credential available")
	ErrTokenExpired = errors.New("credential expired")
)

// Source returns the current bearer credential.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// StaticSource always returns the same credential.
type StaticSource string

func (s StaticSource) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// EnvSource reads the credential from the named environment variable on
// every call.
type EnvSource string

func (s EnvSource) Token(context.Context) (string, error) {
	v := strings.TrimSpace(os.Getenv(string(s)))
	if v == "" {
		return "", ErrNoToken
	}
	return v, nil
}

// FileSource reads the credential from a file on every call, so a login
// helper can rotate it underneath a running client.
type FileSource string

func (s FileSource) Token(context.Context) (string, error) {
	data, err := os.ReadFile(string(s))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", ErrNoToken
	}
	return v, nil
}

// WaitingSource polls Inner until it yields a credential or Timeout
// elapses. It covers the window in which the identity provider has not
// finished initializing.
type WaitingSource struct {
	Inner    Source
	Interval time.Duration
	Timeout  time.Duration
}

// NewWaitingSource polls every 100ms for up to 5s.
func NewWaitingSource(inner Source) *WaitingSource {
	return &WaitingSource{Inner: inner, Interval: 100 * time.Millisecond, Timeout: 5 * time.Second}
}

func (w *WaitingSource) Token(ctx context.Context) (string, error) {
	deadline := time.Now().Add(w.Timeout)
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		tok, err := w.Inner.Token(ctx)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, ErrNoToken) {
			return "", err
		}
		if !time.Now().Before(deadline) {
			return "", ErrNoToken
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// CheckedSource rejects credentials whose JWT exp claim has passed.
// Opaque (non-JWT) credentials are passed through unchanged; the backend
// remains the authority on validity.
type CheckedSource struct {
	Inner  Source
	Leeway time.Duration
	Now    func() time.Time
}

func NewCheckedSource(inner Source) *CheckedSource {
	return &CheckedSource{Inner: inner, Leeway: 5 * time.Second, Now: time.Now}
}

func (c *CheckedSource) Token(ctx context.Context) (string, error) {
	tok, err := c.Inner.Token(ctx)
	if err != nil {
		return "", err
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if err := CheckExpiry(tok, now(), c.Leeway); err != nil {
		return "", err
	}
	return tok, nil
}

// CheckExpiry reports ErrTokenExpired if tok is a JWT that expired before
// now minus leeway. The signature is not verified.
func CheckExpiry(tok string, now time.Time, leeway time.Duration) error {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	if now.After(claims.ExpiresAt.Add(leeway)) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, claims.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// Options selects where the credential comes from.
type Options struct {
	Token     string
	TokenFile string
	TokenEnv  string
}

// NewSource builds the credential chain: an explicit token wins, then a
// token file (polled while it is still empty), then an environment
// variable. The result always checks expiry.
func NewSource(opts Options) Source {
	var inner Source
	switch {
	case opts.Token != "":
		inner = StaticSource(opts.Token)
	case opts.TokenFile != "":
		inner = NewWaitingSource(FileSource(opts.TokenFile))
	case opts.TokenEnv != "":
		inner = EnvSource(opts.TokenEnv)
	default:
		inner = StaticSource("")
	}
	return NewCheckedSource(inner)
}
