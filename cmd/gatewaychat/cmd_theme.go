package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/gatewaychat/internal/state"
	"github.com/user/gatewaychat/internal/theme"
)

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Show or change the color theme",
}

var themeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available themes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		current := a.themes.Load(cmd.Context())
		themes := theme.All()
		return a.print(themes, func() string {
			lines := make([]string, 0, len(themes))
			for _, t := range themes {
				marker := "  "
				if t.ID == current.ID {
					marker = "* "
				}
				lines = append(lines, marker+fmt.Sprintf("%-10s ", t.ID)+a.render.Swatch(t))
			}
			return strings.Join(lines, "\n")
		})
	},
}

var themeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active theme and where it came from",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		t := a.themes.Load(cmd.Context())
		prefs, err := a.prefs.Get()
		if err != nil {
			return err
		}
		source := "organization default"
		switch {
		case prefs.Theme == t.ID:
			source = "your choice"
		case t.ID == theme.DefaultID && prefs.Theme == "":
			source = "built-in default"
		}
		return a.print(t, func() string {
			return a.render.Swatch(t) + "\n" + a.render.Muted("from "+source)
		})
	},
}

var themeSetCmd = &cobra.Command{
	Use:   "set <theme-id>",
	Short: "Choose a theme for this machine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		t, err := a.themes.Set(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, a.render.Swatch(t))
		return nil
	},
}

var themeResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the local choice and follow the organization theme",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.prefs.Update(func(p *state.Preferences) { p.Theme = "" }); err != nil {
			return fmt.Errorf("reset theme: %w", err)
		}
		t := a.themes.Load(cmd.Context())
		fmt.Fprintln(a.out, a.render.Swatch(t))
		return nil
	},
}

func init() {
	themeCmd.AddCommand(themeListCmd, themeShowCmd, themeSetCmd, themeResetCmd)
	rootCmd.AddCommand(themeCmd)
}
