package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/gatewaychat/internal/api"
	"github.com/user/gatewaychat/internal/types"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage the organization (admin role required)",
}

var overviewDays int

var adminOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Show settings, rules, connections, users and usage at a glance",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		ov, err := a.api.Overview(cmd.Context(), overviewDays)
		if err != nil {
			return err
		}
		return a.print(ov, func() string { return overviewText(a, ov) })
	},
}

func overviewText(a *app, ov *api.Overview) string {
	var b strings.Builder
	name := "(unnamed)"
	if ov.Settings.OrgDisplayName != nil && *ov.Settings.OrgDisplayName != "" {
		name = *ov.Settings.OrgDisplayName
	}
	fmt.Fprintf(&b, "%s\n", a.render.Title(name))
	fmt.Fprintf(&b, "Theme: %s  Vertical: %s  Logo: %t\n\n", ov.Settings.Theme, ov.Settings.Vertical, ov.Settings.HasLogo)
	fmt.Fprintf(&b, "%s\n%s\n\n", a.render.Title("Usage"), summaryText(a, ov.Summary))
	fmt.Fprintf(&b, "%s\n%s\n\n", a.render.Title("Rules"), rulesTable(a, ov.Rules))
	fmt.Fprintf(&b, "%s\n%s\n\n", a.render.Title("Connections"), connectionsTable(a, ov.Connections))
	fmt.Fprintf(&b, "%s\n%s", a.render.Title("Users"), usersTable(a, ov.Users))
	return b.String()
}

// Rules

var adminRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage content filtering rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List filtering rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		rules, err := a.api.ListRules(cmd.Context())
		if err != nil {
			return err
		}
		return a.print(rules, func() string { return rulesTable(a, rules) })
	},
}

var (
	ruleName     string
	ruleType     string
	rulePattern  string
	ruleAction   string
	rulePriority int
	ruleActive   bool
)

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a filtering rule",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		create := types.FilteringRuleCreate{
			Name:     ruleName,
			Type:     types.RuleType(ruleType),
			Action:   types.RuleAction(ruleAction),
			Priority: rulePriority,
		}
		if rulePattern != "" {
			create.Pattern = &rulePattern
		}
		rule, err := a.api.CreateRule(cmd.Context(), create)
		if err != nil {
			return err
		}
		return a.print(rule, func() string { return "Created rule " + rule.ID })
	},
}

var rulesUpdateCmd = &cobra.Command{
	Use:   "update <rule-id>",
	Short: "Change a filtering rule; only the given flags are updated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		var u types.FilteringRuleUpdate
		flags := cmd.Flags()
		if flags.Changed("name") {
			u.Name = &ruleName
		}
		if flags.Changed("pattern") {
			u.Pattern = &rulePattern
		}
		if flags.Changed("action") {
			action := types.RuleAction(ruleAction)
			u.Action = &action
		}
		if flags.Changed("priority") {
			u.Priority = &rulePriority
		}
		if flags.Changed("active") {
			u.IsActive = &ruleActive
		}
		rule, err := a.api.UpdateRule(cmd.Context(), args[0], u)
		if err != nil {
			return err
		}
		return a.print(rule, func() string { return "Updated rule " + rule.ID })
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <rule-id>",
	Short: "Delete a filtering rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.api.DeleteRule(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted rule %s\n", args[0])
		return nil
	},
}

func rulesTable(a *app, rules []types.FilteringRule) string {
	if len(rules) == 0 {
		return a.render.Muted("No rules.")
	}
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		pattern := "-"
		if r.Pattern != nil {
			pattern = *r.Pattern
		}
		rows = append(rows, []string{
			r.ID, r.Name, string(r.Type), pattern, string(r.Action),
			strconv.Itoa(r.Priority), yesNo(r.IsActive),
		})
	}
	return a.render.Table([]string{"ID", "Name", "Type", "Pattern", "Action", "Priority", "Active"}, rows)
}

// Connections

var adminConnectionsCmd = &cobra.Command{
	Use:     "connections",
	Aliases: []string{"conn"},
	Short:   "Manage provider API keys",
}

var connectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List provider connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		conns, err := a.api.ListConnections(cmd.Context())
		if err != nil {
			return err
		}
		return a.print(conns, func() string { return connectionsTable(a, conns) })
	},
}

var (
	connKey   string
	connModel string
)

var connectionsSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Register or replace a provider's API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := types.ParseTarget(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		up := types.ConnectionUpsert{Provider: provider, APIKey: connKey}
		if connModel != "" {
			up.Model = &connModel
		}
		conn, err := a.api.UpsertConnection(cmd.Context(), up)
		if err != nil {
			return err
		}
		return a.print(conn, func() string { return "Saved " + provider.Label() + " connection" })
	},
}

var connectionsDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Remove a provider's API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := types.ParseTarget(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.api.DeleteConnection(cmd.Context(), provider); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted %s connection\n", provider.Label())
		return nil
	},
}

func connectionsTable(a *app, conns []types.Connection) string {
	if len(conns) == 0 {
		return a.render.Muted("No connections.")
	}
	rows := make([][]string, 0, len(conns))
	for _, c := range conns {
		model := "default"
		if c.Model != nil && *c.Model != "" {
			model = *c.Model
		}
		rows = append(rows, []string{c.Provider.Label(), model, yesNo(c.IsActive), formatDate(c.CreatedAt)})
	}
	return a.render.Table([]string{"Provider", "Model", "Active", "Added"}, rows)
}

// Users

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage organization members",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List members",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		users, err := a.api.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		return a.print(users, func() string { return usersTable(a, users) })
	},
}

var usersRoleCmd = &cobra.Command{
	Use:   "role <user-id> <member|admin>",
	Short: "Change a member's role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		u, err := a.api.SetUserRole(cmd.Context(), args[0], types.UserRole(args[1]))
		if err != nil {
			return err
		}
		return a.print(u, func() string { return fmt.Sprintf("%s is now %s", u.Email, u.Role) })
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Remove a member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.api.DeleteUser(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Removed user %s\n", args[0])
		return nil
	},
}

func usersTable(a *app, users []types.User) string {
	if len(users) == 0 {
		return a.render.Muted("No users.")
	}
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{u.ID, u.Email, string(u.Role), formatDate(u.CreatedAt)})
	}
	return a.render.Table([]string{"ID", "Email", "Role", "Joined"}, rows)
}

// Invitations

var adminInvitesCmd = &cobra.Command{
	Use:     "invitations",
	Aliases: []string{"invites"},
	Short:   "Manage pending invitations",
}

var invitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invitations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		invs, err := a.api.ListInvitations(cmd.Context())
		if err != nil {
			return err
		}
		return a.print(invs, func() string {
			if len(invs) == 0 {
				return a.render.Muted("No invitations.")
			}
			rows := make([][]string, 0, len(invs))
			for _, inv := range invs {
				rows = append(rows, []string{inv.ID, inv.Email, string(inv.Role), inv.Status, formatDate(inv.InvitedAt)})
			}
			return a.render.Table([]string{"ID", "Email", "Role", "Status", "Invited"}, rows)
		})
	},
}

var inviteRole string

var invitesCreateCmd = &cobra.Command{
	Use:   "invite <email>",
	Short: "Invite someone to the organization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		inv, err := a.api.Invite(cmd.Context(), args[0], types.UserRole(inviteRole))
		if err != nil {
			return err
		}
		return a.print(inv, func() string { return fmt.Sprintf("Invited %s as %s", inv.Email, inv.Role) })
	},
}

var invitesRevokeCmd = &cobra.Command{
	Use:   "revoke <invitation-id>",
	Short: "Revoke a pending invitation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.api.RevokeInvitation(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Revoked invitation %s\n", args[0])
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatDate(ts types.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02")
}

func init() {
	adminOverviewCmd.Flags().IntVar(&overviewDays, "days", 30, "usage window in days")

	rulesAddCmd.Flags().StringVar(&ruleName, "name", "", "rule name")
	rulesAddCmd.Flags().StringVar(&ruleType, "type", string(types.RuleKeyword), "keyword, regex, pii or semantic")
	rulesAddCmd.Flags().StringVar(&rulePattern, "pattern", "", "pattern to match")
	rulesAddCmd.Flags().StringVar(&ruleAction, "action", string(types.ActionBlock), "block, allow or modify")
	rulesAddCmd.Flags().IntVar(&rulePriority, "priority", 0, "higher runs first")
	rulesAddCmd.MarkFlagRequired("name")

	rulesUpdateCmd.Flags().StringVar(&ruleName, "name", "", "rule name")
	rulesUpdateCmd.Flags().StringVar(&rulePattern, "pattern", "", "pattern to match")
	rulesUpdateCmd.Flags().StringVar(&ruleAction, "action", "", "block, allow or modify")
	rulesUpdateCmd.Flags().IntVar(&rulePriority, "priority", 0, "higher runs first")
	rulesUpdateCmd.Flags().BoolVar(&ruleActive, "active", true, "enable or disable the rule")

	connectionsSetCmd.Flags().StringVar(&connKey, "key", "", "provider API key")
	connectionsSetCmd.Flags().StringVar(&connModel, "model", "", "model to use (provider default if empty)")
	connectionsSetCmd.MarkFlagRequired("key")

	invitesCreateCmd.Flags().StringVar(&inviteRole, "role", string(types.UserRoleMember), "member or admin")

	adminRulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesUpdateCmd, rulesDeleteCmd)
	adminConnectionsCmd.AddCommand(connectionsListCmd, connectionsSetCmd, connectionsDeleteCmd)
	adminUsersCmd.AddCommand(usersListCmd, usersRoleCmd, usersDeleteCmd)
	adminInvitesCmd.AddCommand(invitesListCmd, invitesCreateCmd, invitesRevokeCmd)
	adminCmd.AddCommand(adminOverviewCmd, adminRulesCmd, adminConnectionsCmd, adminUsersCmd, adminInvitesCmd)
	rootCmd.AddCommand(adminCmd)
}
