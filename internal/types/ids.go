// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type SessionID string
type MessageID string
type TurnID string

// NewMessageID mints a local id for a message the backend has not
// acknowledged yet. The local id is never swapped for the server id.
func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

// SessionIDPtr returns nil for an empty id so request bodies encode null.
func SessionIDPtr(id SessionID) *SessionID {
	if id == "" {
		return nil
	}
	return &id
}
