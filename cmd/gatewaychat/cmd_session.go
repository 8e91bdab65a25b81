package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/gatewaychat/internal/export"
	"github.com/user/gatewaychat/internal/state"
	"github.com/user/gatewaychat/internal/types"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Browse and export your conversations",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		sessions, err := a.api.ListSessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		prefs, _ := a.prefs.Get()
		return a.print(sessions, func() string {
			return a.render.Sessions(sessions, prefs.LastSession)
		})
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a conversation's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		a.themes.Load(cmd.Context())
		msgs, err := a.api.ListMessages(cmd.Context(), types.SessionID(args[0]))
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}
		return a.print(msgs, func() string {
			if len(msgs) == 0 {
				return a.render.Muted("No messages.")
			}
			return a.render.Transcript(msgs)
		})
	},
}

var (
	exportFormat string
	exportFile   string
)

var sessionExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a conversation to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exp, err := export.New(exportFormat)
		if err != nil {
			return err
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		id := types.SessionID(args[0])

		sessions, err := a.api.ListSessions(ctx)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		t := &export.Transcript{Session: types.Session{ID: id}, ExportedAt: time.Now().UTC()}
		for _, s := range sessions {
			if s.ID == id {
				t.Session = s
				break
			}
		}
		if t.Messages, err = a.api.ListMessages(ctx, id); err != nil {
			return fmt.Errorf("list messages: %w", err)
		}

		if exportFile == "-" {
			return exp.Export(t, a.out)
		}
		path := exportFile
		if path == "" {
			path = string(id) + "." + exp.Extension()
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create export dir: %w", err)
			}
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		if err := exp.Export(t, f); err != nil {
			f.Close()
			return fmt.Errorf("export %s: %w", id, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Exported %d messages to %s\n", len(t.Messages), path)
		return nil
	},
}

var turnsLimit int

var sessionTurnsCmd = &cobra.Command{
	Use:   "turns [session-id]",
	Short: "Show locally recorded turns for a session (default: last session)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		var id types.SessionID
		if len(args) == 1 {
			id = types.SessionID(args[0])
		} else {
			prefs, err := a.prefs.Get()
			if err != nil {
				return err
			}
			id = prefs.LastSession
		}

		records, err := a.turns.Tail(id, turnsLimit)
		if err != nil {
			return fmt.Errorf("read turn log: %w", err)
		}
		total, err := a.turns.Count(id)
		if err != nil {
			return fmt.Errorf("count turns: %w", err)
		}
		return a.print(records, func() string {
			out := turnsTable(a, records)
			if len(records) > 0 {
				out += "\n" + a.render.Muted(fmt.Sprintf("showing %d of %d turns", len(records), total))
			}
			return out
		})
	},
}

func turnsTable(a *app, records []*state.TurnRecord) string {
	if len(records) == 0 {
		return a.render.Muted("No turns recorded.")
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		note := r.BlockReason
		if r.Error != "" {
			note = r.Error
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.Seq, 10),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Target.Label(),
			r.Status,
			strconv.Itoa(r.Chunks),
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
			note,
		})
	}
	return a.render.Table([]string{"#", "Started", "Model", "Status", "Chunks", "Took", "Note"}, rows)
}

func init() {
	sessionExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "md", "export format: json, jsonl, md or yaml")
	sessionExportCmd.Flags().StringVar(&exportFile, "file", "", "output file (\"-\" for stdout, default <id>.<ext>)")
	sessionTurnsCmd.Flags().IntVarP(&turnsLimit, "limit", "n", 20, "number of turns to show (0 for all)")

	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd, sessionExportCmd, sessionTurnsCmd)
	rootCmd.AddCommand(sessionCmd)
}
