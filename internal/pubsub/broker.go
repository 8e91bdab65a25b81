package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const defaultChannelBufferSize = 256

// Broker fans events out to subscribers. Every subscriber receives every
// event published while it is subscribed, in publish order. Publish never
// blocks: events a slow subscriber has not taken yet are queued for it.
type Broker[T any] struct {
	subs     map[*subscription[T]]struct{}
	mu       sync.RWMutex
	isClosed bool
}

// subscription queues events for one subscriber and pumps them into its
// channel.
type subscription[T any] struct {
	ch   chan Event[T]
	wake chan struct{}
	ctx  context.Context

	mu      sync.Mutex
	queue   []Event[T]
	closing bool
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[*subscription[T]]struct{}),
	}
}

// Shutdown stops accepting events. Subscribers still receive what was
// already published before their channels close.
func (b *Broker[T]) Shutdown() {
	b.mu.Lock()
	if b.isClosed {
		b.mu.Unlock()
		return
	}
	b.isClosed = true

	for s := range b.subs {
		s.finish()
		delete(b.subs, s)
	}
	b.mu.Unlock()
	slog.Debug("pubsub broker shut down", "type", fmt.Sprintf("%T", *new(T)))
}

// Subscribe returns a channel of events. It is closed when ctx ends, or
// once pending events are delivered after the broker shuts down.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed {
		closedCh := make(chan Event[T])
		close(closedCh)
		return closedCh
	}

	s := &subscription[T]{
		ch:   make(chan Event[T], defaultChannelBufferSize),
		wake: make(chan struct{}, 1),
		ctx:  ctx,
	}
	b.subs[s] = struct{}{}
	go b.pump(s)

	return s.ch
}

func (b *Broker[T]) pump(s *subscription[T]) {
	defer close(s.ch)
	for {
		ev, ok := s.next()
		if !ok {
			if s.ctx.Err() != nil {
				b.remove(s)
			}
			return
		}
		select {
		case s.ch <- ev:
		case <-s.ctx.Done():
			b.remove(s)
			return
		}
	}
}

func (b *Broker[T]) remove(s *subscription[T]) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// next waits for the oldest queued event. It reports false when the
// subscription ended.
func (s *subscription[T]) next() (Event[T], bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = Event[T]{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, true
		}
		closing := s.closing
		s.mu.Unlock()
		if closing {
			return Event[T]{}, false
		}

		select {
		case <-s.wake:
		case <-s.ctx.Done():
			return Event[T]{}, false
		}
	}
}

func (s *subscription[T]) push(ev Event[T]) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.notify()
}

func (s *subscription[T]) finish() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.notify()
}

func (s *subscription[T]) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.isClosed {
		slog.Warn("publish on closed pubsub broker", "type", eventType)
		return
	}

	event := Event[T]{Type: eventType, Payload: payload}
	for s := range b.subs {
		if s.ctx.Err() != nil {
			continue
		}
		s.push(event)
	}
}

func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
