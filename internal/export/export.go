// Package export writes conversation transcripts in several formats.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/gatewaychat/internal/types"
)

// Transcript is one session with its full message history.
type Transcript struct {
	Session    types.Session   `json:"session" yaml:"session"`
	Messages   []types.Message `json:"messages" yaml:"messages"`
	ExportedAt time.Time       `json:"exported_at" yaml:"exported_at"`
}

// Exporter writes a transcript in one format.
type Exporter interface {
	Export(t *Transcript, w io.Writer) error
	Extension() string
}

// Formats lists the accepted format names.
func Formats() []string {
	return []string{"json", "jsonl", "md", "yaml"}
}

// New returns the exporter for format.
func New(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return JSONExporter{}, nil
	case "jsonl":
		return JSONLExporter{}, nil
	case "md", "markdown":
		return MarkdownExporter{}, nil
	case "yaml", "yml":
		return YAMLExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: %s)", format, strings.Join(Formats(), ", "))
	}
}

type JSONExporter struct{}

func (JSONExporter) Export(t *Transcript, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

func (JSONExporter) Extension() string { return "json" }

// JSONLExporter writes one message per line, with no session header.
type JSONLExporter struct{}

func (JSONLExporter) Export(t *Transcript, w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, m := range t.Messages {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("encode message %s: %w", m.ID, err)
		}
	}
	return nil
}

func (JSONLExporter) Extension() string { return "jsonl" }

type YAMLExporter struct{}

func (YAMLExporter) Export(t *Transcript, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return err
	}
	return enc.Close()
}

func (YAMLExporter) Extension() string { return "yaml" }

type MarkdownExporter struct{}

func (MarkdownExporter) Export(t *Transcript, w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", t.Session.DisplayTitle())
	fmt.Fprintf(&b, "**Session:** %s  \n", t.Session.ID)
	fmt.Fprintf(&b, "**Model:** %s  \n", t.Session.Target.Label())
	if !t.Session.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "**Started:** %s  \n", t.Session.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "**Messages:** %d\n\n", len(t.Messages))

	for i, m := range t.Messages {
		b.WriteString("---\n\n")
		speaker := "You"
		if m.Role == types.RoleAssistant {
			speaker = m.TargetOrDefault(t.Session.Target).Label()
		}
		stamp := ""
		if !m.CreatedAt.IsZero() {
			stamp = " (" + m.CreatedAt.Format(time.RFC3339) + ")"
		}
		fmt.Fprintf(&b, "**%s:**%s\n\n", speaker, stamp)
		if m.WasBlocked {
			fmt.Fprintf(&b, "> Blocked: %s\n", m.Reason())
		} else {
			b.WriteString(escapeMarkdown(m.Content))
			b.WriteString("\n")
		}
		if i < len(t.Messages)-1 {
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (MarkdownExporter) Extension() string { return "md" }

// escapeMarkdown escapes emphasis markers outside fenced code blocks.
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	inCode := false
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCode = !inCode
			continue
		}
		if inCode {
			continue
		}
		line = strings.ReplaceAll(line, "**", `\*\*`)
		lines[i] = strings.ReplaceAll(line, "__", `\_\_`)
	}
	return strings.Join(lines, "\n")
}
