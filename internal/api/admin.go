package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/user/gatewaychat/internal/types"
)

// Filtering rules

func (c *Client) ListRules(ctx context.Context) ([]types.FilteringRule, error) {
	var rules []types.FilteringRule
	if err := c.get(ctx, "/admin/filtering-rules", &rules); err != nil {
		return nil, fmt.Errorf("listing filtering rules: %w", err)
	}
	return rules, nil
}

func (c *Client) CreateRule(ctx context.Context, rule types.FilteringRuleCreate) (*types.FilteringRule, error) {
	if rule.Name == "" {
		return nil, fmt.Errorf("rule name is required")
	}
	var created types.FilteringRule
	if err := c.send(ctx, http.MethodPost, "/admin/filtering-rules", rule, &created); err != nil {
		return nil, fmt.Errorf("creating filtering rule: %w", err)
	}
	return &created, nil
}

func (c *Client) UpdateRule(ctx context.Context, id string, update types.FilteringRuleUpdate) (*types.FilteringRule, error) {
	var updated types.FilteringRule
	if err := c.send(ctx, http.MethodPatch, "/admin/filtering-rules/"+url.PathEscape(id), update, &updated); err != nil {
		return nil, fmt.Errorf("updating filtering rule %s: %w", id, err)
	}
	return &updated, nil
}

func (c *Client) DeleteRule(ctx context.Context, id string) error {
	if err := c.send(ctx, http.MethodDelete, "/admin/filtering-rules/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("deleting filtering rule %s: %w", id, err)
	}
	return nil
}

// Provider connections

func (c *Client) ListConnections(ctx context.Context) ([]types.Connection, error) {
	var conns []types.Connection
	if err := c.get(ctx, "/admin/gpt-connections", &conns); err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	return conns, nil
}

// UpsertConnection registers or replaces the API key for a provider.
func (c *Client) UpsertConnection(ctx context.Context, conn types.ConnectionUpsert) (*types.Connection, error) {
	if !conn.Provider.Valid() {
		return nil, fmt.Errorf("invalid provider %q", conn.Provider)
	}
	if conn.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	var saved types.Connection
	if err := c.send(ctx, http.MethodPost, "/admin/gpt-connections", conn, &saved); err != nil {
		return nil, fmt.Errorf("saving %s connection: %w", conn.Provider, err)
	}
	return &saved, nil
}

func (c *Client) DeleteConnection(ctx context.Context, provider types.Target) error {
	if err := c.send(ctx, http.MethodDelete, "/admin/gpt-connections/"+url.PathEscape(string(provider)), nil, nil); err != nil {
		return fmt.Errorf("deleting %s connection: %w", provider, err)
	}
	return nil
}

// Users

func (c *Client) ListUsers(ctx context.Context) ([]types.User, error) {
	var users []types.User
	if err := c.get(ctx, "/admin/users", &users); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

func (c *Client) SetUserRole(ctx context.Context, id string, role types.UserRole) (*types.User, error) {
	if role != types.UserRoleMember && role != types.UserRoleAdmin {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	body := map[string]types.UserRole{"role": role}
	var user types.User
	if err := c.send(ctx, http.MethodPatch, "/admin/users/"+url.PathEscape(id)+"/role", body, &user); err != nil {
		return nil, fmt.Errorf("setting role for user %s: %w", id, err)
	}
	return &user, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if err := c.send(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("deleting user %s: %w", id, err)
	}
	return nil
}

// Invitations

func (c *Client) ListInvitations(ctx context.Context) ([]types.Invitation, error) {
	var invs []types.Invitation
	if err := c.get(ctx, "/admin/invitations/", &invs); err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	return invs, nil
}

func (c *Client) Invite(ctx context.Context, email string, role types.UserRole) (*types.Invitation, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if role == "" {
		role = types.UserRoleMember
	}
	body := struct {
		Email string         `json:"email"`
		Role  types.UserRole `json:"role"`
	}{email, role}
	var inv types.Invitation
	if err := c.send(ctx, http.MethodPost, "/admin/invitations/", body, &inv); err != nil {
		return nil, fmt.Errorf("inviting %s: %w", email, err)
	}
	return &inv, nil
}

func (c *Client) RevokeInvitation(ctx context.Context, id string) error {
	if err := c.send(ctx, http.MethodDelete, "/admin/invitations/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("revoking invitation %s: %w", id, err)
	}
	return nil
}
