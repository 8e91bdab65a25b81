package api

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/user/gatewaychat/internal/types"
)

// Overview is a one-shot snapshot of an organization's admin state.
type Overview struct {
	Settings    *types.OrgSettings      `json:"settings" yaml:"settings"`
	Rules       []types.FilteringRule   `json:"rules" yaml:"rules"`
	Connections []types.Connection      `json:"connections" yaml:"connections"`
	Users       []types.User            `json:"users" yaml:"users"`
	Summary     *types.AnalyticsSummary `json:"summary" yaml:"summary"`
}

// Overview fetches settings, rules, connections, users and a usage summary
// concurrently. The first failure cancels the rest.
func (c *Client) Overview(ctx context.Context, days int) (*Overview, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(3)

	var ov Overview
	g.Go(func() (err error) {
		ov.Settings, err = c.Settings(ctx)
		return err
	})
	g.Go(func() (err error) {
		ov.Rules, err = c.ListRules(ctx)
		return err
	})
	g.Go(func() (err error) {
		ov.Connections, err = c.ListConnections(ctx)
		return err
	})
	g.Go(func() (err error) {
		ov.Users, err = c.ListUsers(ctx)
		return err
	})
	g.Go(func() (err error) {
		ov.Summary, err = c.Summary(ctx, days)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading overview: %w", err)
	}
	return &ov, nil
}
