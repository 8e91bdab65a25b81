package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/user/gatewaychat/internal/types"
)

// ListSessions returns the caller's sessions, most recently updated first.
func (c *Client) ListSessions(ctx context.Context) ([]types.Session, error) {
	var sessions []types.Session
	if err := c.get(ctx, "/chat/sessions", &sessions); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// ListMessages returns a session's history in chronological order.
func (c *Client) ListMessages(ctx context.Context, id types.SessionID) ([]types.Message, error) {
	var messages []types.Message
	path := "/chat/sessions/" + url.PathEscape(string(id)) + "/messages"
	if err := c.get(ctx, path, &messages); err != nil {
		return nil, fmt.Errorf("listing messages for %s: %w", id, err)
	}
	return messages, nil
}

// AgentContext returns the organization's configured agent, if any. A nil
// context with a nil error means none is configured.
func (c *Client) AgentContext(ctx context.Context) (*types.AgentContext, error) {
	var agent *types.AgentContext
	if err := c.get(ctx, "/chat/agent-context", &agent); err != nil {
		return nil, fmt.Errorf("loading agent context: %w", err)
	}
	return agent, nil
}
