package conversation

import (
	"github.com/user/gatewaychat/internal/pubsub"
	"github.com/user/gatewaychat/internal/types"
)

const (
	EventMessageAppended pubsub.EventType = "message_appended"
	EventMessageUpdated  pubsub.EventType = "message_updated"
	EventMessageRemoved  pubsub.EventType = "message_removed"
	EventMessagesLoaded  pubsub.EventType = "messages_loaded"
	EventSessionsUpdated pubsub.EventType = "sessions_updated"
	EventSessionChanged  pubsub.EventType = "session_changed"
	EventTurnStarted     pubsub.EventType = "turn_started"
	EventTurnFinished    pubsub.EventType = "turn_finished"
	EventTurnBlocked     pubsub.EventType = "turn_blocked"
	EventTurnFailed      pubsub.EventType = "turn_failed"
)

// Update is the payload of every conversation event. Only the fields that
// apply to the event type are set; slices are copies.
type Update struct {
	Message  *types.Message
	Messages []types.Message
	Sessions []types.Session
	Session  types.SessionID
	Turn     *Turn
	Delta    string
	Err      error
}
