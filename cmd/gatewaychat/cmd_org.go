package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/gatewaychat/internal/theme"
	"github.com/user/gatewaychat/internal/types"
)

// Documents

var adminDocsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"docs"},
	Short:   "Manage the knowledge base",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		docs, err := a.api.ListDocuments(cmd.Context())
		if err != nil {
			return err
		}
		return a.print(docs, func() string {
			if len(docs) == 0 {
				return a.render.Muted("No documents.")
			}
			rows := make([][]string, 0, len(docs))
			for _, d := range docs {
				rows = append(rows, []string{d.ID, d.Filename, formatSize(d.FileSize), formatDate(d.CreatedAt)})
			}
			return a.render.Table([]string{"ID", "File", "Size", "Uploaded"}, rows)
		})
	},
}

var docsUploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload .txt, .md, .csv, .pdf, .docx or .html files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			doc, err := a.api.UploadDocument(cmd.Context(), path, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Uploaded %s (%s) as %s\n", doc.Filename, formatSize(doc.FileSize), doc.ID)
		}
		return nil
	},
}

var docsImportCmd = &cobra.Command{
	Use:   "import <url>",
	Short: "Import a web page as a markdown document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		doc, err := a.api.ImportURL(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return a.print(doc, func() string { return fmt.Sprintf("Imported %s as %s", doc.Filename, doc.ID) })
	},
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.api.DeleteDocument(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted document %s\n", args[0])
		return nil
	},
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return strconv.FormatInt(n, 10) + " B"
	}
}

// Settings

var adminSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change organization settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		s, err := a.api.Settings(cmd.Context())
		if err != nil {
			return err
		}
		return a.print(s, func() string { return settingsText(s) })
	},
}

var (
	settingsTheme    string
	settingsName     string
	settingsVertical string
)

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update organization settings; only the given flags change",
	RunE: func(cmd *cobra.Command, args []string) error {
		var u types.OrgSettingsUpdate
		flags := cmd.Flags()
		if flags.Changed("theme") {
			if !theme.Valid(settingsTheme) {
				return fmt.Errorf("unknown theme %q", settingsTheme)
			}
			u.Theme = &settingsTheme
		}
		if flags.Changed("name") {
			u.OrgDisplayName = &settingsName
		}
		if flags.Changed("vertical") {
			u.Vertical = &settingsVertical
		}
		if u == (types.OrgSettingsUpdate{}) {
			return fmt.Errorf("nothing to update (use --theme, --name or --vertical)")
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		s, err := a.api.UpdateSettings(cmd.Context(), u)
		if err != nil {
			return err
		}
		return a.print(s, func() string { return settingsText(s) })
	},
}

func settingsText(s *types.OrgSettings) string {
	name := "-"
	if s.OrgDisplayName != nil {
		name = *s.OrgDisplayName
	}
	return fmt.Sprintf("Name:     %s\nTheme:    %s\nVertical: %s\nLogo:     %s",
		name, s.Theme, s.Vertical, yesNo(s.HasLogo))
}

var logoCmd = &cobra.Command{
	Use:   "logo",
	Short: "Download, upload or remove the organization logo",
}

var logoGetCmd = &cobra.Command{
	Use:   "get <file>",
	Short: "Save the logo to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		data, err := a.api.Logo(cmd.Context())
		if err != nil {
			return err
		}
		if data == nil {
			fmt.Fprintln(a.out, "No logo set.")
			return nil
		}
		if err := os.WriteFile(args[0], data, 0644); err != nil {
			return fmt.Errorf("write logo: %w", err)
		}
		fmt.Fprintf(a.out, "Saved logo to %s (%s)\n", args[0], formatSize(int64(len(data))))
		return nil
	},
}

var logoSetCmd = &cobra.Command{
	Use:   "set <image>",
	Short: "Upload a new logo (2 MB max)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read logo: %w", err)
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.api.UploadLogo(cmd.Context(), args[0], data); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Logo updated.")
		return nil
	},
}

var logoDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the logo",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.api.DeleteLogo(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Logo removed.")
		return nil
	},
}

// Analytics

var adminAnalyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Usage statistics and conversation audit",
}

var analyticsDays int

var analyticsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Message and block counts over a window",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		s, err := a.api.Summary(cmd.Context(), analyticsDays)
		if err != nil {
			return err
		}
		return a.print(s, func() string { return summaryText(a, s) })
	},
}

func summaryText(a *app, s *types.AnalyticsSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Messages: %d  Blocked: %d  Sessions: %d  Users: %d\n",
		s.TotalMessages, s.BlockedMessages, s.ActiveSessions, s.ActiveUsers)

	providers := make([]string, 0, len(s.MessagesByProvider))
	for p := range s.MessagesByProvider {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		fmt.Fprintf(&b, "  %-10s %d\n", types.Target(p).Label(), s.MessagesByProvider[p])
	}

	if len(s.TopBlockedRules) > 0 {
		rows := make([][]string, 0, len(s.TopBlockedRules))
		for _, r := range s.TopBlockedRules {
			rows = append(rows, []string{r.Reason, strconv.Itoa(r.Count)})
		}
		b.WriteString(a.render.Table([]string{"Blocked by", "Count"}, rows))
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	conversationsLimit  int
	conversationsOffset int
)

var analyticsConversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List conversations across the organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		convs, err := a.api.Conversations(cmd.Context(), conversationsLimit, conversationsOffset)
		if err != nil {
			return err
		}
		return a.print(convs, func() string {
			if len(convs) == 0 {
				return a.render.Muted("No conversations.")
			}
			rows := make([][]string, 0, len(convs))
			for _, c := range convs {
				title := "New conversation"
				if c.Title != nil && *c.Title != "" {
					title = *c.Title
				}
				rows = append(rows, []string{
					string(c.ID), title, c.UserEmail, c.Target.Label(),
					strconv.Itoa(c.MessageCount), strconv.Itoa(c.BlockedCount), formatDate(c.UpdatedAt),
				})
			}
			return a.render.Table([]string{"ID", "Title", "User", "Model", "Messages", "Blocked", "Updated"}, rows)
		})
	},
}

var analyticsConversationCmd = &cobra.Command{
	Use:   "conversation <session-id>",
	Short: "Print any member's conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		msgs, err := a.api.ConversationMessages(cmd.Context(), types.SessionID(args[0]))
		if err != nil {
			return err
		}
		return a.print(msgs, func() string { return a.render.Transcript(msgs) })
	},
}

func init() {
	settingsSetCmd.Flags().StringVar(&settingsTheme, "theme", "", "default theme for members")
	settingsSetCmd.Flags().StringVar(&settingsName, "name", "", "organization display name")
	settingsSetCmd.Flags().StringVar(&settingsVertical, "vertical", "", "industry vertical")

	analyticsSummaryCmd.Flags().IntVar(&analyticsDays, "days", 30, "window in days")
	analyticsConversationsCmd.Flags().IntVar(&conversationsLimit, "limit", 50, "page size")
	analyticsConversationsCmd.Flags().IntVar(&conversationsOffset, "offset", 0, "rows to skip")

	adminDocsCmd.AddCommand(docsListCmd, docsUploadCmd, docsImportCmd, docsDeleteCmd)
	logoCmd.AddCommand(logoGetCmd, logoSetCmd, logoDeleteCmd)
	adminSettingsCmd.AddCommand(settingsSetCmd, logoCmd)
	adminAnalyticsCmd.AddCommand(analyticsSummaryCmd, analyticsConversationsCmd, analyticsConversationCmd)
	adminCmd.AddCommand(adminDocsCmd, adminSettingsCmd, adminAnalyticsCmd)
}
