// internal/types/models.go
package types

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Target selects the upstream provider for a message. It is a routing hint
// for the backend only.
type Target string

const (
	TargetOpenAI    Target = "openai"
	TargetAnthropic Target = "anthropic"
	TargetGemini    Target = "gemini"
)

// DefaultTarget is used when no target has been chosen.
const DefaultTarget = TargetOpenAI

var targetLabels = map[Target]string{
	TargetOpenAI:    "ChatGPT",
	TargetAnthropic: "Claude",
	TargetGemini:    "Gemini",
}

// Targets returns all known targets in display order.
func Targets() []Target {
	return []Target{TargetOpenAI, TargetAnthropic, TargetGemini}
}

// ParseTarget accepts a target id case-insensitively.
func ParseTarget(s string) (Target, error) {
	t := Target(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown target %q (expected openai, anthropic or gemini)", s)
	}
	return t, nil
}

func (t Target) Valid() bool {
	_, ok := targetLabels[t]
	return ok
}

// Label is the product name shown for the provider.
func (t Target) Label() string {
	if l, ok := targetLabels[t]; ok {
		return l
	}
	return "AI"
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultBlockReason is shown when the backend blocks a turn without a reason.
const DefaultBlockReason = "Message blocked by organization policy"

// Timestamp decodes the backend's timestamps, which may omit the zone
// offset, and always encodes RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func Now() Timestamp {
	return Timestamp{time.Now().UTC()}
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		ts.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q", s)
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + ts.Format(time.RFC3339Nano) + `"`), nil
}

func (ts Timestamp) MarshalYAML() (any, error) {
	if ts.IsZero() {
		return nil, nil
	}
	return ts.Format(time.RFC3339), nil
}

// Message is one entry of a session's ordered history.
//
// An assistant message is either blocked (empty content, BlockReason set)
// or normal (content accumulates, BlockReason nil), never both.
type Message struct {
	ID          MessageID `json:"id" yaml:"id"`
	SessionID   SessionID `json:"session_id" yaml:"session_id"`
	Role        Role      `json:"role" yaml:"role"`
	Content     string    `json:"content" yaml:"content"`
	WasBlocked  bool      `json:"was_blocked" yaml:"was_blocked"`
	BlockReason *string   `json:"block_reason" yaml:"block_reason,omitempty"`
	Target      *Target   `json:"gpt_target" yaml:"gpt_target,omitempty"`
	CreatedAt   Timestamp `json:"created_at" yaml:"created_at"`
}

// NewUserMessage builds the optimistic copy of a message the user just sent.
func NewUserMessage(session SessionID, content string) Message {
	return Message{
		ID:        NewMessageID(),
		SessionID: session,
		Role:      RoleUser,
		Content:   content,
		CreatedAt: Now(),
	}
}

// NewAssistantMessage builds an empty assistant placeholder that chunks are
// appended to.
func NewAssistantMessage(session SessionID, target Target) Message {
	return Message{
		ID:        NewMessageID(),
		SessionID: session,
		Role:      RoleAssistant,
		Target:    &target,
		CreatedAt: Now(),
	}
}

// NewBlockedMessage builds the assistant bubble shown in place of a
// response the backend suppressed.
func NewBlockedMessage(session SessionID, target Target, reason string) Message {
	if reason == "" {
		reason = DefaultBlockReason
	}
	return Message{
		ID:          NewMessageID(),
		SessionID:   session,
		Role:        RoleAssistant,
		WasBlocked:  true,
		BlockReason: &reason,
		Target:      &target,
		CreatedAt:   Now(),
	}
}

// Reason returns the block reason, or the default when the backend sent none.
func (m Message) Reason() string {
	if m.BlockReason == nil || *m.BlockReason == "" {
		return DefaultBlockReason
	}
	return *m.BlockReason
}

// DisplayContent is the text a renderer shows for the message.
func (m Message) DisplayContent() string {
	if m.WasBlocked {
		return "Blocked: " + m.Reason()
	}
	return m.Content
}

// TargetOrDefault returns the message's provider, falling back to def.
func (m Message) TargetOrDefault(def Target) Target {
	if m.Target != nil && m.Target.Valid() {
		return *m.Target
	}
	return def
}

// Session is a persisted conversation thread. Title starts nil and is
// filled in asynchronously by the backend.
type Session struct {
	ID        SessionID `json:"id" yaml:"id"`
	Title     *string   `json:"title" yaml:"title,omitempty"`
	Target    Target    `json:"gpt_target" yaml:"gpt_target"`
	CreatedAt Timestamp `json:"created_at" yaml:"created_at"`
	UpdatedAt Timestamp `json:"updated_at" yaml:"updated_at"`
}

func (s Session) HasTitle() bool {
	return s.Title != nil && *s.Title != ""
}

// DisplayTitle returns the title or the placeholder used before the
// backend has summarized the session.
func (s Session) DisplayTitle() string {
	if s.HasTitle() {
		return *s.Title
	}
	return "New conversation"
}

// AgentContext is the agent assigned to the calling user, if any.
type AgentContext struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	SystemPrompt string  `json:"system_prompt"`
	Provider     Target  `json:"provider"`
	Model        *string `json:"model"`
}
