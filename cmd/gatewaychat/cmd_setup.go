package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/gatewaychat/internal/api"
	"github.com/user/gatewaychat/internal/config"
	"github.com/user/gatewaychat/internal/types"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Point the client at a gateway and check the connection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		in := bufio.NewScanner(cmd.InOrStdin())
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "gatewaychat setup")
		fmt.Fprintln(out, "Press Enter to accept the value shown in brackets.")
		fmt.Fprintln(out)

		cfg.API.BaseURL = prompt(in, out, "Gateway API URL", cfg.API.BaseURL)
		cfg.API.TokenFile = prompt(in, out, "Token file (leave empty to paste a token)", cfg.API.TokenFile)
		if cfg.API.TokenFile == "" {
			masked := ""
			if cfg.API.Token != "" {
				masked = "***"
			}
			if tok := prompt(in, out, "Session token", masked); tok != masked {
				cfg.API.Token = tok
			}
		}
		target := prompt(in, out, "Default model (openai, anthropic, gemini)", cfg.Chat.Target)
		if t, err := types.ParseTarget(target); err != nil {
			fmt.Fprintf(out, "%v; keeping %s\n", err, cfg.Chat.Target)
		} else {
			cfg.Chat.Target = string(t)
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Configuration saved to", cfgPath)

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		sessions, err := a.api.ListSessions(cmd.Context())
		switch {
		case errors.Is(err, api.ErrUnauthorized):
			fmt.Fprintln(out, "The gateway rejected the token; run setup again with a fresh one.")
		case err != nil:
			fmt.Fprintf(out, "Could not reach the gateway: %v\n", err)
		default:
			fmt.Fprintf(out, "Connected. You have %d conversations.\n", len(sessions))
		}
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads one line.
// An empty answer or end of input returns the default.
func prompt(in *bufio.Scanner, out io.Writer, label, def string) string {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	if in.Scan() {
		if s := strings.TrimSpace(in.Text()); s != "" {
			return s
		}
	}
	return def
}
