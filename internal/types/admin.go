// internal/types/admin.go
package types

type RuleType string

const (
	RuleKeyword  RuleType = "keyword"
	RuleRegex    RuleType = "regex"
	RulePII      RuleType = "pii"
	RuleSemantic RuleType = "semantic"
)

type RuleAction string

const (
	ActionBlock  RuleAction = "block"
	ActionAllow  RuleAction = "allow"
	ActionModify RuleAction = "modify"
)

type FilteringRule struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Type      RuleType   `json:"type" yaml:"type"`
	Pattern   *string    `json:"pattern" yaml:"pattern,omitempty"`
	Action    RuleAction `json:"action" yaml:"action"`
	Priority  int        `json:"priority" yaml:"priority"`
	IsActive  bool       `json:"is_active" yaml:"is_active"`
	CreatedAt Timestamp  `json:"created_at" yaml:"created_at"`
}

type FilteringRuleCreate struct {
	Name     string     `json:"name"`
	Type     RuleType   `json:"type"`
	Pattern  *string    `json:"pattern,omitempty"`
	Action   RuleAction `json:"action"`
	Priority int        `json:"priority"`
}

// FilteringRuleUpdate is a partial update; nil fields are left unchanged.
type FilteringRuleUpdate struct {
	Name     *string     `json:"name,omitempty"`
	Pattern  *string     `json:"pattern,omitempty"`
	Action   *RuleAction `json:"action,omitempty"`
	Priority *int        `json:"priority,omitempty"`
	IsActive *bool       `json:"is_active,omitempty"`
}

// Connection is a provider API key registered with the gateway. The key
// itself is never returned by the backend.
type Connection struct {
	ID        string    `json:"id" yaml:"id"`
	Provider  Target    `json:"provider" yaml:"provider"`
	Model     *string   `json:"model" yaml:"model,omitempty"`
	IsActive  bool      `json:"is_active" yaml:"is_active"`
	CreatedAt Timestamp `json:"created_at" yaml:"created_at"`
}

type ConnectionUpsert struct {
	Provider Target  `json:"provider"`
	APIKey   string  `json:"api_key"`
	Model    *string `json:"model,omitempty"`
}

type UserRole string

const (
	UserRoleMember UserRole = "member"
	UserRoleAdmin  UserRole = "admin"
)

type User struct {
	ID          string    `json:"id" yaml:"id"`
	ClerkUserID string    `json:"clerk_user_id" yaml:"clerk_user_id"`
	Email       string    `json:"email" yaml:"email"`
	Role        UserRole  `json:"role" yaml:"role"`
	CreatedAt   Timestamp `json:"created_at" yaml:"created_at"`
}

type Invitation struct {
	ID                string    `json:"id" yaml:"id"`
	ClerkInvitationID string    `json:"clerk_invitation_id" yaml:"clerk_invitation_id"`
	Email             string    `json:"email" yaml:"email"`
	Role              UserRole  `json:"role" yaml:"role"`
	Status            string    `json:"status" yaml:"status"`
	InvitedAt         Timestamp `json:"invited_at" yaml:"invited_at"`
}

type Document struct {
	ID        string    `json:"id" yaml:"id"`
	Filename  string    `json:"filename" yaml:"filename"`
	FileSize  int64     `json:"file_size" yaml:"file_size"`
	CreatedAt Timestamp `json:"created_at" yaml:"created_at"`
}

type OrgSettings struct {
	Theme          string  `json:"theme" yaml:"theme"`
	HasLogo        bool    `json:"has_logo" yaml:"has_logo"`
	OrgDisplayName *string `json:"org_display_name" yaml:"org_display_name,omitempty"`
	Vertical       string  `json:"vertical" yaml:"vertical"`
}

type OrgSettingsUpdate struct {
	Theme          *string `json:"theme,omitempty"`
	OrgDisplayName *string `json:"org_display_name,omitempty"`
	Vertical       *string `json:"vertical,omitempty"`
}

type DayCount struct {
	Day     string `json:"day" yaml:"day"`
	Total   int    `json:"total" yaml:"total"`
	Blocked int    `json:"blocked" yaml:"blocked"`
}

type ReasonCount struct {
	Reason string `json:"reason" yaml:"reason"`
	Count  int    `json:"count" yaml:"count"`
}

type AnalyticsSummary struct {
	TotalMessages      int            `json:"total_messages" yaml:"total_messages"`
	BlockedMessages    int            `json:"blocked_messages" yaml:"blocked_messages"`
	ActiveSessions     int            `json:"active_sessions" yaml:"active_sessions"`
	ActiveUsers        int            `json:"active_users" yaml:"active_users"`
	MessagesByProvider map[string]int `json:"messages_by_provider" yaml:"messages_by_provider"`
	MessagesByDay      []DayCount     `json:"messages_by_day" yaml:"messages_by_day"`
	TopBlockedRules    []ReasonCount  `json:"top_blocked_rules" yaml:"top_blocked_rules"`
}

// ConversationSummary is one row of the admin conversation listing.
type ConversationSummary struct {
	ID           SessionID `json:"id" yaml:"id"`
	Title        *string   `json:"title" yaml:"title,omitempty"`
	Target       Target    `json:"gpt_target" yaml:"gpt_target"`
	UserEmail    string    `json:"user_email" yaml:"user_email"`
	MessageCount int       `json:"message_count" yaml:"message_count"`
	BlockedCount int       `json:"blocked_count" yaml:"blocked_count"`
	CreatedAt    Timestamp `json:"created_at" yaml:"created_at"`
	UpdatedAt    Timestamp `json:"updated_at" yaml:"updated_at"`
}
