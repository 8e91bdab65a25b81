package conversation

import (
	"time"

	"github.com/user/gatewaychat/internal/types"
)

// TurnStatus represents the lifecycle state of a Turn.
type TurnStatus string

const (
	TurnStatusRunning    TurnStatus = "running"
	TurnStatusComplete   TurnStatus = "complete"
	TurnStatusBlocked    TurnStatus = "blocked"
	TurnStatusFailed     TurnStatus = "failed"
	TurnStatusSuperseded TurnStatus = "superseded"
)

// Turn tracks one user message and the streamed response to it.
type Turn struct {
	ID         types.TurnID
	Generation uint64
	SessionID  types.SessionID // session at send time, empty for a new one
	Target     types.Target
	Status     TurnStatus
	StartedAt  time.Time
	EndedAt    *time.Time

	// ResolvedSession is set from the done record.
	ResolvedSession types.SessionID
	BlockReason     string
	Chunks          int
	Err             error

	placeholder types.MessageID
}

func newTurn(gen uint64, session types.SessionID, target types.Target) *Turn {
	return &Turn{
		ID:         types.NewTurnID(),
		Generation: gen,
		SessionID:  session,
		Target:     target,
		Status:     TurnStatusRunning,
		StartedAt:  time.Now(),
	}
}

func (t *Turn) finish(status TurnStatus, err error) {
	now := time.Now()
	t.Status = status
	t.EndedAt = &now
	t.Err = err
}

// Finished reports whether the turn reached a final state.
func (t *Turn) Finished() bool {
	return t.Status != TurnStatusRunning
}

// Duration is the time from send to the end of the stream, or until now
// for a running turn.
func (t *Turn) Duration() time.Duration {
	if t.EndedAt != nil {
		return t.EndedAt.Sub(t.StartedAt)
	}
	return time.Since(t.StartedAt)
}
