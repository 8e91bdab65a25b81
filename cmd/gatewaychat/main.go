package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/user/gatewaychat/internal/api"
	"github.com/user/gatewaychat/internal/auth"
	"github.com/user/gatewaychat/internal/config"
	"github.com/user/gatewaychat/internal/render"
	"github.com/user/gatewaychat/internal/state"
	"github.com/user/gatewaychat/internal/theme"
	"github.com/user/gatewaychat/pkg/chatstream"
)

var (
	cfgPath      string
	logLevel     string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:           "gatewaychat",
	Short:         "Chat through an AI gateway and manage its organization",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		setupLogging(level, cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config",
		filepath.Join(os.Getenv("HOME"), ".gatewaychat", "config.json"), "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: text, json or yaml")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(level string, w io.Writer) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})))
}

var loadedConfig *config.Config

// loadConfig loads the config file once per process and exits on failure.
func loadConfig() *config.Config {
	if loadedConfig != nil {
		return loadedConfig
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	loadedConfig = cfg
	return cfg
}

// app bundles the clients and stores a command needs.
type app struct {
	cfg    *config.Config
	tokens auth.Source
	api    *api.Client
	prefs  *state.PrefsStore
	turns  *state.TurnLog
	themes *theme.Context
	render *render.Renderer
	out    io.Writer
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg := loadConfig()
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	tokens := auth.NewSource(auth.Options{
		Token:     cfg.API.Token,
		TokenFile: cfg.API.TokenFile,
		TokenEnv:  "GATEWAY_TOKEN",
	})
	client := api.New(&api.Config{
		BaseURL:   cfg.API.BaseURL,
		Tokens:    tokens,
		Timeout:   cfg.RequestTimeout(),
		RateLimit: cfg.API.RateLimit,
		Burst:     cfg.API.RateBurst,
		Retry: &api.RetryPolicy{
			MaxAttempts:  cfg.API.MaxAttempts,
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
		},
	})

	out := cmd.OutOrStdout()
	r := render.New(out, theme.Default())
	prefs := state.NewPrefsStore(cfg.DataDir)

	return &app{
		cfg:    cfg,
		tokens: tokens,
		api:    client,
		prefs:  prefs,
		turns:  state.NewTurnLog(cfg.DataDir),
		themes: theme.NewContext(prefs, client, r.SetTheme),
		render: r,
		out:    out,
	}, nil
}

func (a *app) chatClient() *chatstream.Client {
	return chatstream.New(&chatstream.Config{
		BaseURL:        a.cfg.API.BaseURL,
		Tokens:         a.tokens,
		TurnTimeout:    a.cfg.TurnTimeout(),
		ReadBufferSize: a.cfg.Chat.ReadBufferSize,
	})
}

// format returns the output format chosen by flag or config.
func (a *app) format() string {
	f := outputFormat
	if f == "" {
		f = a.cfg.Output.Format
	}
	return strings.ToLower(f)
}

// print writes v as JSON or YAML when requested, else the text rendering.
func (a *app) print(v any, text func() string) error {
	switch a.format() {
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "", "text":
		_, err := fmt.Fprintln(a.out, text())
		return err
	default:
		return fmt.Errorf("unknown output format %q (expected text, json or yaml)", a.format())
	}
}
