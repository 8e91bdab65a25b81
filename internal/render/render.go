// Package render draws conversations and admin listings for the terminal.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/user/gatewaychat/internal/theme"
	"github.com/user/gatewaychat/internal/types"
)

// Provider palette.
var (
	ColorChatGPT = lipgloss.Color("#2da9e9")
	ColorClaude  = lipgloss.Color("#0ec8a2")
	ColorGemini  = lipgloss.Color("#ff9e2a")
	ColorBlocked = lipgloss.Color("#f95858")
)

// ProviderColor returns the brand color for a target.
func ProviderColor(t types.Target) lipgloss.Color {
	switch t {
	case types.TargetAnthropic:
		return ColorClaude
	case types.TargetGemini:
		return ColorGemini
	default:
		return ColorChatGPT
	}
}

type styles struct {
	title     lipgloss.Style
	muted     lipgloss.Style
	user      lipgloss.Style
	userLabel lipgloss.Style
	assistant lipgloss.Style
	blocked   lipgloss.Style
	errorText lipgloss.Style
	active    lipgloss.Style
	header    lipgloss.Style
	cell      lipgloss.Style
	border    lipgloss.Style
}

// Renderer turns domain values into styled strings for one output. It
// follows the active theme through SetTheme.
type Renderer struct {
	lr *lipgloss.Renderer

	mu    sync.RWMutex
	theme theme.Theme
	s     styles
}

// New creates a renderer for w with the given theme. Color output depends
// on whether w is a terminal.
func New(w io.Writer, t theme.Theme) *Renderer {
	r := &Renderer{lr: lipgloss.NewRenderer(w)}
	r.SetTheme(t)
	return r
}

// SetTheme rebuilds the styles from t. It matches theme.Applier.
func (r *Renderer) SetTheme(t theme.Theme) {
	primary := lipgloss.Color(t.Primary())
	accent := lipgloss.Color(t.Accent())
	muted := lipgloss.AdaptiveColor{Light: "#64748b", Dark: "#94a3b8"}

	s := styles{
		title:     r.lr.NewStyle().Bold(true).Foreground(primary),
		muted:     r.lr.NewStyle().Foreground(muted),
		user:      r.lr.NewStyle().Foreground(accent),
		userLabel: r.lr.NewStyle().Bold(true).Foreground(accent),
		assistant: r.lr.NewStyle().PaddingLeft(2),
		blocked: r.lr.NewStyle().
			Foreground(ColorBlocked).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBlocked).
			Padding(0, 1),
		errorText: r.lr.NewStyle().Bold(true).Foreground(ColorBlocked),
		active:    r.lr.NewStyle().Bold(true).Foreground(accent),
		header:    r.lr.NewStyle().Bold(true).Foreground(primary).Padding(0, 1),
		cell:      r.lr.NewStyle().Padding(0, 1),
		border:    r.lr.NewStyle().Foreground(muted),
	}

	r.mu.Lock()
	r.theme = t
	r.s = s
	r.mu.Unlock()
}

func (r *Renderer) styles() styles {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.s
}

// Theme returns the theme the styles were built from.
func (r *Renderer) Theme() theme.Theme {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.theme
}

func (r *Renderer) Title(s string) string { return r.styles().title.Render(s) }
func (r *Renderer) Muted(s string) string { return r.styles().muted.Render(s) }

func (r *Renderer) Error(err error) string {
	return r.styles().errorText.Render("error: ") + err.Error()
}

// AssistantLabel is the provider name shown above a response.
func (r *Renderer) AssistantLabel(t types.Target) string {
	return r.lr.NewStyle().Bold(true).Foreground(ProviderColor(t)).Render(t.Label())
}

// UserLine renders a user message on one line.
func (r *Renderer) UserLine(content string) string {
	s := r.styles()
	return s.userLabel.Render("you") + " " + s.user.Render(content)
}

// Blocked renders the notice that replaces a blocked response.
func (r *Renderer) Blocked(reason string) string {
	if reason == "" {
		reason = types.DefaultBlockReason
	}
	return r.styles().blocked.Render("Blocked: " + reason)
}

// Message renders a stored message.
func (r *Renderer) Message(m types.Message) string {
	switch {
	case m.Role == types.RoleUser:
		return r.UserLine(m.Content)
	case m.WasBlocked:
		return r.AssistantLabel(m.TargetOrDefault(types.DefaultTarget)) + "\n" + r.Blocked(m.Reason())
	default:
		return r.AssistantLabel(m.TargetOrDefault(types.DefaultTarget)) + "\n" + r.styles().assistant.Render(m.Content)
	}
}

// Transcript renders messages in order separated by blank lines.
func (r *Renderer) Transcript(msgs []types.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, r.Message(m))
	}
	return strings.Join(parts, "\n\n")
}

// Suggestions renders numbered follow-up prompts.
func (r *Renderer) Suggestions(items []string) string {
	if len(items) == 0 {
		return ""
	}
	s := r.styles()
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = s.active.Render("["+strconv.Itoa(i+1)+"]") + " " + s.muted.Render(item)
	}
	return strings.Join(parts, "  ")
}

// Sessions renders the numbered session list, marking the active one.
func (r *Renderer) Sessions(sessions []types.Session, active types.SessionID) string {
	if len(sessions) == 0 {
		return r.Muted("No conversations yet.")
	}
	rows := make([][]string, 0, len(sessions))
	for i, s := range sessions {
		marker := strconv.Itoa(i + 1)
		if s.ID == active {
			marker += "*"
		}
		rows = append(rows, []string{
			marker,
			string(s.ID),
			s.DisplayTitle(),
			s.Target.Label(),
			formatTime(s.UpdatedAt),
		})
	}
	return r.Table([]string{"#", "ID", "Title", "Model", "Updated"}, rows)
}

// Table renders rows under headers with the theme's colors.
func (r *Renderer) Table(headers []string, rows [][]string) string {
	s := r.styles()
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.header
			}
			return s.cell
		})
	return t.String()
}

// Swatch renders a theme's preview colors as blocks followed by its label.
func (r *Renderer) Swatch(t theme.Theme) string {
	var b strings.Builder
	for _, c := range t.Preview {
		b.WriteString(r.lr.NewStyle().Background(lipgloss.Color(c)).Render("  "))
	}
	return fmt.Sprintf("%s %s %s", b.String(), r.Title(t.Label), r.Muted(t.Description))
}

func formatTime(ts types.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04")
}
