// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/user/gatewaychat/internal/types"
)

// DefaultDelays are the offsets, from the moment a turn completes, at which
// the session list is re-fetched to pick up a generated title.
var DefaultDelays = []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second}

// Refresher reloads the session list. Implementations must be safe to call
// concurrently and idempotent.
type Refresher interface {
	RefreshSessions(ctx context.Context) ([]types.Session, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) ([]types.Session, error)

func (f RefresherFunc) RefreshSessions(ctx context.Context) ([]types.Session, error) {
	return f(ctx)
}

// Poller runs a bounded set of delayed session-list refreshes per
// completed turn. It stands in for a push channel for title updates.
type Poller struct {
	refresher Refresher
	delays    []time.Duration
	cron      *cron.Cron
	group     singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[types.SessionID][]cron.EntryID
	stopped bool
}

// New creates a Poller that refreshes through r at the given delays.
// Nil or empty delays use DefaultDelays. The poller starts immediately.
func New(r Refresher, delays []time.Duration) *Poller {
	if len(delays) == 0 {
		delays = DefaultDelays
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		refresher: r,
		delays:    append([]time.Duration(nil), delays...),
		cron:      cron.New(),
		ctx:       ctx,
		cancel:    cancel,
		pending:   make(map[types.SessionID][]cron.EntryID),
	}
	p.cron.Start()
	return p
}

// once fires a single time at a fixed instant. After it fires Next returns
// the zero time, which cron treats as never again.
type once time.Time

func (o once) Next(t time.Time) time.Time {
	at := time.Time(o)
	if t.Before(at) {
		return at
	}
	return time.Time{}
}

// Schedule registers one refresh per configured delay for the session,
// replacing any refreshes still pending for it.
func (p *Poller) Schedule(id types.SessionID) {
	if id == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.removeLocked(id)

	now := time.Now()
	ids := make([]cron.EntryID, 0, len(p.delays))
	for i, d := range p.delays {
		attempt := i + 1
		// The entry id is written under p.mu before the job can observe it.
		entry := new(cron.EntryID)
		*entry = p.cron.Schedule(once(now.Add(d)), cron.FuncJob(func() {
			p.fire(id, entry, attempt)
		}))
		ids = append(ids, *entry)
	}
	p.pending[id] = ids
	slog.Debug("title refresh scheduled", "session_id", id, "refreshes", len(ids))
}

// Pending returns how many refreshes are still outstanding for the session.
func (p *Poller) Pending(id types.SessionID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending[id])
}

func (p *Poller) fire(id types.SessionID, slot *cron.EntryID, attempt int) {
	p.mu.Lock()
	entry := *slot
	if !p.forgetLocked(id, entry) {
		// Superseded by a newer Schedule call or by Stop.
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.cron.Remove(entry)

	v, err, shared := p.group.Do("sessions", func() (any, error) {
		return p.refresher.RefreshSessions(p.ctx)
	})
	if err != nil {
		slog.Warn("title refresh failed", "session_id", id, "attempt", attempt, "error", err)
		return
	}

	for _, s := range v.([]types.Session) {
		if s.ID == id && s.HasTitle() {
			slog.Debug("session title resolved", "session_id", id, "attempt", attempt, "shared", shared)
			p.Cancel(id)
			return
		}
	}
}

// Cancel drops every pending refresh for the session.
func (p *Poller) Cancel(id types.SessionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(id)
}

func (p *Poller) removeLocked(id types.SessionID) {
	for _, entry := range p.pending[id] {
		p.cron.Remove(entry)
	}
	delete(p.pending, id)
}

// forgetLocked removes entry from the session's pending set and reports
// whether it was still there.
func (p *Poller) forgetLocked(id types.SessionID, entry cron.EntryID) bool {
	ids := p.pending[id]
	for i, e := range ids {
		if e == entry {
			ids = append(ids[:i], ids[i+1:]...)
			if len(ids) == 0 {
				delete(p.pending, id)
			} else {
				p.pending[id] = ids
			}
			return true
		}
	}
	return false
}

// Stop cancels all pending refreshes and waits for running ones to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for id := range p.pending {
		p.removeLocked(id)
	}
	p.mu.Unlock()

	p.cancel()
	<-p.cron.Stop().Done()
}
