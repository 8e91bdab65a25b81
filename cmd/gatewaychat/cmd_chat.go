package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/gatewaychat/internal/conversation"
	"github.com/user/gatewaychat/internal/pubsub"
	"github.com/user/gatewaychat/internal/scheduler"
	"github.com/user/gatewaychat/internal/state"
	"github.com/user/gatewaychat/internal/types"
)

var (
	chatMessage string
	chatTarget  string
	chatSession string
	chatResume  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat, or send one message with -m",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a.themes.Load(ctx)

		c, err := newChatView(ctx, a)
		if err != nil {
			return err
		}
		defer c.close()

		if chatMessage != "" {
			return c.send(ctx, chatMessage)
		}
		return c.repl(ctx, cmd.InOrStdin())
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "send one message and exit")
	chatCmd.Flags().StringVarP(&chatTarget, "target", "t", "", "provider: openai, anthropic or gemini")
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "continue this session")
	chatCmd.Flags().BoolVarP(&chatResume, "resume", "r", false, "continue the last session")
	rootCmd.AddCommand(chatCmd)
}

// chatView drives one conversation in the terminal. Output is written by a
// single goroutine that follows the reconciler's events.
type chatView struct {
	app    *app
	rec    *conversation.Reconciler
	poller *scheduler.Poller
	events <-chan pubsub.Event[conversation.Update]
	ended  chan struct{}
	stop   context.CancelFunc
	done   chan struct{}
}

func newChatView(ctx context.Context, a *app) (*chatView, error) {
	prefs, err := a.prefs.Get()
	if err != nil {
		slog.Warn("loading preferences", "error", err)
	}

	target, err := chooseTarget(chatTarget, prefs.LastTarget, a.cfg.Chat.Target)
	if err != nil {
		return nil, err
	}

	rec := conversation.New(conversation.Options{
		Streamer: a.chatClient(),
		Backend:  a.api,
		Target:   target,
	})
	poller := scheduler.New(rec, a.cfg.TitleRefreshDelays())
	rec.SetPoller(poller)

	subCtx, stop := context.WithCancel(ctx)
	c := &chatView{
		app:    a,
		rec:    rec,
		poller: poller,
		events: rec.Subscribe(subCtx),
		ended:  make(chan struct{}, 1),
		stop:   stop,
		done:   make(chan struct{}),
	}
	go c.follow()

	c.banner(ctx)

	session := types.SessionID(chatSession)
	if session == "" && chatResume {
		session = prefs.LastSession
	}
	if session != "" {
		if err := c.load(ctx, session); err != nil {
			c.close()
			return nil, err
		}
	}
	return c, nil
}

// chooseTarget picks the first valid target among the flag, the remembered
// target and the configured default.
func chooseTarget(flag string, remembered types.Target, configured string) (types.Target, error) {
	if flag != "" {
		return types.ParseTarget(flag)
	}
	if remembered.Valid() {
		return remembered, nil
	}
	if t, err := types.ParseTarget(configured); err == nil {
		return t, nil
	}
	return types.DefaultTarget, nil
}

// close stops the poller and the reconciler, then waits for the printer to
// render what was already published.
func (c *chatView) close() {
	c.poller.Stop()
	c.rec.Close()
	<-c.done
	c.stop()
}

func (c *chatView) println(s string) {
	fmt.Fprintln(c.app.out, s)
}

func (c *chatView) banner(ctx context.Context) {
	name := "gatewaychat"
	if b := c.app.themes.Branding(); b.DisplayName != "" {
		name = b.DisplayName
	}
	c.println(c.app.render.Title(name))

	agent, err := c.app.api.AgentContext(ctx)
	switch {
	case err != nil:
		slog.Debug("fetching agent context", "error", err)
	case agent != nil:
		c.println(c.app.render.Muted(fmt.Sprintf("agent: %s (%s)", agent.Name, agent.Provider.Label())))
	}
}

// follow renders events until the subscription closes.
func (c *chatView) follow() {
	defer close(c.done)
	r := c.app.render
	for ev := range c.events {
		u := ev.Payload
		switch ev.Type {
		case conversation.EventMessageAppended:
			if u.Message == nil || u.Message.Role != types.RoleAssistant {
				continue
			}
			if u.Message.WasBlocked {
				c.println(r.Blocked(u.Message.Reason()))
				continue
			}
			fmt.Fprintf(c.app.out, "%s\n%s", r.AssistantLabel(u.Message.TargetOrDefault(c.rec.Target())), u.Delta)
		case conversation.EventMessageUpdated:
			fmt.Fprint(c.app.out, u.Delta)
		case conversation.EventMessageRemoved:
			fmt.Fprintln(c.app.out)
		case conversation.EventTurnFinished:
			fmt.Fprintln(c.app.out)
			c.signal()
		case conversation.EventTurnBlocked:
			c.signal()
		case conversation.EventTurnFailed:
			if u.Turn != nil && u.Turn.Chunks > 0 {
				fmt.Fprintln(c.app.out)
			}
			c.println(r.Error(u.Err))
			c.signal()
		}
	}
}

func (c *chatView) signal() {
	select {
	case c.ended <- struct{}{}:
	default:
	}
}

// waitRendered blocks until the printer has rendered the end of the last
// turn, or stopped.
func (c *chatView) waitRendered() {
	select {
	case <-c.ended:
	case <-c.done:
	}
}

func (c *chatView) send(ctx context.Context, text string) error {
	turn, err := c.rec.Send(ctx, text)
	if errors.Is(err, conversation.ErrEmptyMessage) || errors.Is(err, conversation.ErrTurnInFlight) ||
		errors.Is(err, conversation.ErrTurnSuperseded) {
		return err
	}
	c.waitRendered()
	c.record(turn)

	if err == nil {
		if s := c.rec.Suggestions(); len(s) > 0 {
			c.println(c.app.render.Suggestions(s))
		}
	}
	return err
}

// record persists the turn summary and the session to resume next time.
func (c *chatView) record(turn conversation.Turn) {
	if turn.ID == "" {
		return
	}
	if err := c.app.turns.Append(turnRecord(turn)); err != nil {
		slog.Warn("recording turn", "turn_id", turn.ID, "error", err)
	}
	if err := c.app.prefs.Remember(c.rec.ActiveSession(), c.rec.Target()); err != nil {
		slog.Warn("saving preferences", "error", err)
	}
}

func turnRecord(t conversation.Turn) *state.TurnRecord {
	session := t.ResolvedSession
	if session == "" {
		session = t.SessionID
	}
	rec := &state.TurnRecord{
		TurnID:      t.ID,
		SessionID:   session,
		Target:      t.Target,
		Status:      string(t.Status),
		Chunks:      t.Chunks,
		BlockReason: t.BlockReason,
		StartedAt:   t.StartedAt,
		DurationMS:  t.Duration().Milliseconds(),
	}
	if t.Err != nil {
		rec.Error = t.Err.Error()
	}
	return rec
}

func (c *chatView) load(ctx context.Context, id types.SessionID) error {
	if err := c.rec.LoadSession(ctx, id); err != nil {
		return fmt.Errorf("load session %s: %w", id, err)
	}
	c.println(c.app.render.Transcript(c.rec.Messages()))
	return nil
}

const chatHelp = `Commands:
  /new              start a new conversation
  /sessions         list your conversations
  /load <id|n>      open a conversation by id or list number
  /target <name>    switch provider (openai, anthropic, gemini)
  /theme <id>       switch theme
  /help             show this help
  /quit             leave
A bare number picks a suggested follow-up.`

func (c *chatView) repl(ctx context.Context, in io.Reader) error {
	c.println(c.app.render.Muted("Type a message, or /help for commands."))
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	// Read on a separate goroutine so an interrupt ends the prompt.
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.app.out, "> ")
		var text string
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.app.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.app.out)
				return scanner.Err()
			}
			text = l
		}
		line := strings.TrimSpace(text)
		if line == "" {
			continue
		}

		quit, err := c.handle(ctx, line)
		if quit {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !isTurnError(err) {
			c.println(c.app.render.Error(err))
		}
	}
}

// isTurnError reports errors the printer has already shown.
func isTurnError(err error) bool {
	return !errors.Is(err, conversation.ErrEmptyMessage) &&
		!errors.Is(err, conversation.ErrTurnInFlight) &&
		!errors.Is(err, errCommand)
}

var errCommand = errors.New("command failed")

// handle runs one input line and reports whether the user asked to quit.
func (c *chatView) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		if text, ok := pickSuggestion(line, c.rec.Suggestions()); ok {
			c.println(c.app.render.UserLine(text))
			line = text
		}
		return false, c.send(ctx, line)
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit", "exit", "q":
		return true, nil
	case "help":
		c.println(chatHelp)
	case "new":
		c.rec.NewSession()
		c.println(c.app.render.Muted("New conversation."))
	case "sessions":
		sessions, err := c.rec.RefreshSessions(ctx)
		if err != nil {
			return false, fmt.Errorf("%w: %w", errCommand, err)
		}
		c.println(c.app.render.Sessions(sessions, c.rec.ActiveSession()))
	case "load":
		id, err := resolveSession(arg, c.rec.Sessions())
		if err != nil {
			return false, fmt.Errorf("%w: %w", errCommand, err)
		}
		if err := c.load(ctx, id); err != nil {
			return false, fmt.Errorf("%w: %w", errCommand, err)
		}
		if err := c.app.prefs.Remember(id, c.rec.Target()); err != nil {
			slog.Warn("saving preferences", "error", err)
		}
	case "target":
		t, err := types.ParseTarget(arg)
		if err == nil {
			err = c.rec.SetTarget(t)
		}
		if err != nil {
			return false, fmt.Errorf("%w: %w", errCommand, err)
		}
		c.println(c.app.render.Muted("Now talking to " + t.Label() + "."))
	case "theme":
		t, err := c.app.themes.Set(arg)
		if err != nil {
			return false, fmt.Errorf("%w: %w", errCommand, err)
		}
		c.println(c.app.render.Swatch(t))
	default:
		return false, fmt.Errorf("%w: unknown command /%s", errCommand, name)
	}
	return false, nil
}

// pickSuggestion maps a 1-based number onto the current suggestions.
func pickSuggestion(line string, suggestions []string) (string, bool) {
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(suggestions) {
		return "", false
	}
	return suggestions[n-1], true
}

// resolveSession accepts a session id or a 1-based position in the last
// listed sessions.
func resolveSession(arg string, sessions []types.Session) (types.SessionID, error) {
	if arg == "" {
		return "", fmt.Errorf("usage: /load <id|n>")
	}
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(sessions) {
			return "", fmt.Errorf("no session #%d (run /sessions first)", n)
		}
		return sessions[n-1].ID, nil
	}
	return types.SessionID(arg), nil
}
