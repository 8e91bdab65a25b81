package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/user/gatewaychat/internal/types"
)

// Summary returns usage totals for the last days days.
func (c *Client) Summary(ctx context.Context, days int) (*types.AnalyticsSummary, error) {
	if days <= 0 {
		days = 30
	}
	var summary types.AnalyticsSummary
	if err := c.get(ctx, "/analytics/summary?days="+strconv.Itoa(days), &summary); err != nil {
		return nil, fmt.Errorf("loading analytics summary: %w", err)
	}
	return &summary, nil
}

// Conversations lists organization conversations for review.
func (c *Client) Conversations(ctx context.Context, limit, offset int) ([]types.ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var convs []types.ConversationSummary
	if err := c.get(ctx, "/analytics/conversations?"+q.Encode(), &convs); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return convs, nil
}

// ConversationMessages returns the full transcript of any organization
// conversation.
func (c *Client) ConversationMessages(ctx context.Context, id types.SessionID) ([]types.Message, error) {
	var messages []types.Message
	if err := c.get(ctx, "/analytics/conversations/"+url.PathEscape(string(id)), &messages); err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", id, err)
	}
	return messages, nil
}
