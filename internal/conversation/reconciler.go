// Package conversation keeps the caller-side view of a chat conversation
// consistent with the events streamed for each turn.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/user/gatewaychat/internal/pubsub"
	"github.com/user/gatewaychat/internal/types"
	"github.com/user/gatewaychat/pkg/chatstream"
)

var (
	ErrEmptyMessage   = chatstream.ErrEmptyMessage
	ErrTurnInFlight   = errors.New("a response is still streaming")
	ErrTurnSuperseded = errors.New("turn superseded by a session change")
)

// DefaultSuggestions are offered after every completed turn.
var DefaultSuggestions = []string{"Tell me more", "Can you elaborate?", "Give me an example"}

// Streamer sends one turn and drives the handler with its events.
type Streamer interface {
	Stream(ctx context.Context, req chatstream.Request, h chatstream.Handler) error
}

// Backend provides session listings and history.
type Backend interface {
	ListSessions(ctx context.Context) ([]types.Session, error)
	ListMessages(ctx context.Context, id types.SessionID) ([]types.Message, error)
}

// TitlePoller re-fetches the session list after a turn so a generated
// title shows up.
type TitlePoller interface {
	Schedule(id types.SessionID)
}

// Options configures a Reconciler. Poller may be nil.
type Options struct {
	Streamer Streamer
	Backend  Backend
	Poller   TitlePoller
	Target   types.Target
}

// Reconciler owns the message list, the active session and the session
// list for one conversation view. Every in-flight stream is keyed to the
// turn generation that started it; events from a turn that is no longer
// current are discarded.
type Reconciler struct {
	streamer Streamer
	backend  Backend
	poller   TitlePoller
	events   *pubsub.Broker[Update]

	mu          sync.Mutex
	messages    []types.Message
	active      types.SessionID
	sessions    []types.Session
	target      types.Target
	loading     bool
	suggestions []string
	streaming   types.MessageID
	gen         uint64
	turn        *Turn
	cancelTurn  context.CancelFunc
}

func New(opts Options) *Reconciler {
	target := opts.Target
	if !target.Valid() {
		target = types.DefaultTarget
	}
	return &Reconciler{
		streamer: opts.Streamer,
		backend:  opts.Backend,
		poller:   opts.Poller,
		events:   pubsub.NewBroker[Update](),
		target:   target,
	}
}

// SetPoller attaches the title poller after construction, since the poller
// usually refreshes through the reconciler itself.
func (r *Reconciler) SetPoller(p TitlePoller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poller = p
}

// Subscribe returns conversation events until ctx ends or Close is called.
func (r *Reconciler) Subscribe(ctx context.Context) <-chan pubsub.Event[Update] {
	return r.events.Subscribe(ctx)
}

// Close cancels any in-flight turn and closes all subscriptions.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.supersedeLocked()
	r.mu.Unlock()
	r.events.Shutdown()
}

// Send appends text as a user message and streams the response into the
// message list. It returns once the stream ends. The returned Turn is a
// snapshot of the final state.
func (r *Reconciler) Send(ctx context.Context, text string) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyMessage
	}

	r.mu.Lock()
	if r.loading {
		r.mu.Unlock()
		return Turn{}, ErrTurnInFlight
	}
	r.gen++
	turn := newTurn(r.gen, r.active, r.target)
	ctx, cancel := context.WithCancel(ctx)
	r.turn = turn
	r.cancelTurn = cancel
	r.loading = true
	r.suggestions = nil

	user := types.NewUserMessage(r.active, text)
	r.messages = append(r.messages, user)
	req := chatstream.Request{
		Message:   text,
		Target:    turn.Target,
		SessionID: types.SessionIDPtr(r.active),
	}
	started := *turn
	r.mu.Unlock()
	defer cancel()

	r.events.Publish(EventMessageAppended, Update{Message: &user})
	r.events.Publish(EventTurnStarted, Update{Turn: &started})
	slog.Debug("turn started", "turn_id", turn.ID, "session_id", turn.SessionID, "target", turn.Target)

	gen := turn.Generation
	err := r.streamer.Stream(ctx, req, chatstream.Handler{
		OnChunk:   func(delta string) { r.onChunk(gen, delta) },
		OnBlocked: func(reason string) { r.onBlocked(gen, reason) },
		OnDone:    func(id types.SessionID) { r.onDone(gen, id) },
	})
	return r.endTurn(ctx, turn, err)
}

// currentLocked reports whether gen is still the running turn.
func (r *Reconciler) currentLocked(gen uint64) bool {
	return r.turn != nil && r.turn.Generation == gen && !r.turn.Finished()
}

func (r *Reconciler) onChunk(gen uint64, delta string) {
	r.mu.Lock()
	if !r.currentLocked(gen) {
		r.mu.Unlock()
		slog.Debug("dropping chunk from superseded turn", "generation", gen)
		return
	}
	turn := r.turn
	if turn.BlockReason != "" {
		r.mu.Unlock()
		slog.Debug("dropping chunk after block", "turn_id", turn.ID)
		return
	}
	turn.Chunks++

	if turn.placeholder == "" {
		msg := types.NewAssistantMessage(r.active, turn.Target)
		msg.Content = delta
		turn.placeholder = msg.ID
		r.streaming = msg.ID
		r.messages = append(r.messages, msg)
		r.mu.Unlock()
		r.events.Publish(EventMessageAppended, Update{Message: &msg, Delta: delta})
		return
	}

	i := r.indexLocked(turn.placeholder)
	if i < 0 {
		r.mu.Unlock()
		return
	}
	r.messages[i].Content += delta
	msg := r.messages[i]
	r.mu.Unlock()
	r.events.Publish(EventMessageUpdated, Update{Message: &msg, Delta: delta})
}

func (r *Reconciler) onBlocked(gen uint64, reason string) {
	r.mu.Lock()
	if !r.currentLocked(gen) {
		r.mu.Unlock()
		slog.Debug("dropping block from superseded turn", "generation", gen)
		return
	}
	turn := r.turn
	turn.BlockReason = reason

	var removed *types.Message
	if turn.placeholder != "" {
		if i := r.indexLocked(turn.placeholder); i >= 0 {
			m := r.messages[i]
			removed = &m
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			slog.Warn("blocked after partial response, discarding it",
				"turn_id", turn.ID, "discarded_bytes", len(m.Content))
		}
		turn.placeholder = ""
	}
	r.streaming = ""

	msg := types.NewBlockedMessage(r.active, turn.Target, reason)
	r.messages = append(r.messages, msg)
	r.mu.Unlock()

	if removed != nil {
		r.events.Publish(EventMessageRemoved, Update{Message: removed})
	}
	r.events.Publish(EventMessageAppended, Update{Message: &msg})
}

func (r *Reconciler) onDone(gen uint64, id types.SessionID) {
	r.mu.Lock()
	if !r.currentLocked(gen) {
		r.mu.Unlock()
		slog.Debug("dropping done from superseded turn", "generation", gen)
		return
	}
	turn := r.turn
	turn.ResolvedSession = id
	changed := false
	if id != "" && id != r.active {
		r.active = id
		changed = true
		// Messages sent before the backend assigned the session belong to it.
		for i := range r.messages {
			if r.messages[i].SessionID == "" {
				r.messages[i].SessionID = id
			}
		}
	}
	r.streaming = ""
	if turn.BlockReason == "" {
		r.suggestions = append([]string(nil), DefaultSuggestions...)
	}
	r.mu.Unlock()

	if changed {
		r.events.Publish(EventSessionChanged, Update{Session: id})
	}
}

// endTurn settles the turn once the stream has returned.
func (r *Reconciler) endTurn(ctx context.Context, turn *Turn, err error) (Turn, error) {
	r.mu.Lock()
	if !r.currentLocked(turn.Generation) {
		snap := *turn
		r.mu.Unlock()
		slog.Debug("turn superseded", "turn_id", turn.ID, "error", err)
		return snap, ErrTurnSuperseded
	}

	r.loading = false
	r.streaming = ""
	r.cancelTurn = nil
	switch {
	case err != nil:
		turn.finish(TurnStatusFailed, err)
	case turn.BlockReason != "":
		turn.finish(TurnStatusBlocked, nil)
	default:
		turn.finish(TurnStatusComplete, nil)
	}
	snap := *turn
	poller := r.poller
	r.mu.Unlock()

	switch snap.Status {
	case TurnStatusFailed:
		slog.Warn("turn failed", "turn_id", snap.ID, "chunks", snap.Chunks, "error", err)
		r.events.Publish(EventTurnFailed, Update{Turn: &snap, Err: err})
		return snap, err
	case TurnStatusBlocked:
		slog.Info("turn blocked", "turn_id", snap.ID, "reason", snap.BlockReason)
		r.events.Publish(EventTurnBlocked, Update{Turn: &snap})
	default:
		slog.Debug("turn complete", "turn_id", snap.ID, "session_id", snap.ResolvedSession,
			"chunks", snap.Chunks, "elapsed", snap.Duration())
		r.events.Publish(EventTurnFinished, Update{Turn: &snap})
	}

	// The session list picks up the new or reordered session right away;
	// a generated title follows later, which the poller catches.
	if _, rerr := r.RefreshSessions(context.WithoutCancel(ctx)); rerr != nil {
		slog.Warn("refreshing sessions after turn", "error", rerr)
	}
	if snap.ResolvedSession != "" && poller != nil {
		poller.Schedule(snap.ResolvedSession)
	}
	return snap, nil
}

func (r *Reconciler) indexLocked(id types.MessageID) int {
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// supersedeLocked detaches the in-flight turn, if any, so its remaining
// events are dropped.
func (r *Reconciler) supersedeLocked() {
	if r.turn != nil && !r.turn.Finished() {
		r.turn.finish(TurnStatusSuperseded, nil)
	}
	if r.cancelTurn != nil {
		r.cancelTurn()
		r.cancelTurn = nil
	}
	r.gen++
	r.loading = false
	r.streaming = ""
}

// LoadSession makes id the active session and replaces the message list
// with its history. Any in-flight turn is abandoned.
func (r *Reconciler) LoadSession(ctx context.Context, id types.SessionID) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	r.mu.Lock()
	r.supersedeLocked()
	gen := r.gen
	r.mu.Unlock()

	msgs, err := r.backend.ListMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", id, err)
	}

	r.mu.Lock()
	if r.gen != gen {
		// Another session change won the race.
		r.mu.Unlock()
		return ErrTurnSuperseded
	}
	r.active = id
	r.messages = msgs
	r.suggestions = nil
	for _, s := range r.sessions {
		if s.ID == id && s.Target.Valid() {
			r.target = s.Target
		}
	}
	snapshot := append([]types.Message(nil), msgs...)
	r.mu.Unlock()

	r.events.Publish(EventSessionChanged, Update{Session: id})
	r.events.Publish(EventMessagesLoaded, Update{Session: id, Messages: snapshot})
	return nil
}

// NewSession clears the active session so the next Send starts a new one.
func (r *Reconciler) NewSession() {
	r.mu.Lock()
	r.supersedeLocked()
	r.active = ""
	r.messages = nil
	r.suggestions = nil
	r.mu.Unlock()
	r.events.Publish(EventSessionChanged, Update{})
}

// RefreshSessions reloads the session list. It is safe to call from
// background timers.
func (r *Reconciler) RefreshSessions(ctx context.Context) ([]types.Session, error) {
	sessions, err := r.backend.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sessions = sessions
	r.mu.Unlock()

	snapshot := append([]types.Session(nil), sessions...)
	r.events.Publish(EventSessionsUpdated, Update{Sessions: snapshot})
	return snapshot, nil
}

// SetTarget selects the provider for subsequent turns.
func (r *Reconciler) SetTarget(t types.Target) error {
	if !t.Valid() {
		return fmt.Errorf("invalid target %q", t)
	}
	r.mu.Lock()
	r.target = t
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) Target() types.Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

func (r *Reconciler) ActiveSession() types.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Reconciler) Messages() []types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Message(nil), r.messages...)
}

func (r *Reconciler) Sessions() []types.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Session(nil), r.sessions...)
}

func (r *Reconciler) Suggestions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.suggestions...)
}

func (r *Reconciler) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// StreamingMessage returns the id of the assistant message currently
// receiving chunks, or "" when none is.
func (r *Reconciler) StreamingMessage() types.MessageID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streaming
}
