// Package broadcast implements the in-process fan-out hub that carries call
// state transitions from webhook ingestion to every open streaming connection.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/kantoorbase/api/call-events-service/internal/model"
	"gitlab.com/kantoorbase/api/call-events-service/internal/observer"
)

// Broadcaster is a single-writer-many-reader hub. Publish never blocks on a
// slow consumer: a subscriber whose channel is full is dropped (implicit
// unsubscribe) instead of stalling the publisher or its peers. There is no
// backlog; a subscriber only sees events published after it subscribed.
//
// Locking discipline: sends happen under the read lock, channel closes only
// under the write lock. A send can therefore never race a close.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	buffer int
	logger *zap.Logger
}

type subscription struct {
	ch   chan model.CallEvent
	once sync.Once
}

// caller must hold b.mu for writing
func (s *subscription) shutdown() {
	s.once.Do(func() { close(s.ch) })
}

// New creates a broadcaster whose subscribers each get a channel with the
// given buffer capacity.
func New(buffer int, logger *zap.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:   make(map[string]*subscription),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber and returns its receive channel plus an
// unsubscribe function. The channel is closed when the subscriber is removed,
// whether by the returned function or by the broadcaster dropping a full
// channel. Both are safe to call concurrently with Publish.
func (b *Broadcaster) Subscribe() (<-chan model.CallEvent, func()) {
	id := uuid.NewString()
	sub := &subscription{ch: make(chan model.CallEvent, b.buffer)}

	b.mu.Lock()
	b.subs[id] = sub
	count := len(b.subs)
	b.mu.Unlock()

	b.logger.Debug("Subscriber registered",
		zap.String("subscriber_id", id),
		zap.Int("subscribers", count),
	)

	unsubscribe := func() {
		b.remove(id)
	}
	return sub.ch, unsubscribe
}

// Publish delivers the event to every currently active subscriber. Subscribers
// whose channel is full are removed; the failure is contained here and never
// surfaces to the publisher or to other subscribers.
func (b *Broadcaster) Publish(event model.CallEvent) {
	b.mu.RLock()
	var dropped []string
	for id, sub := range b.subs {
		select {
		case sub.ch <- event:
			observer.BroadcastDeliveredTotal.Inc()
		default:
			dropped = append(dropped, id)
		}
	}
	b.mu.RUnlock()

	for _, id := range dropped {
		b.logger.Warn("Dropping slow subscriber", zap.String("subscriber_id", id))
		observer.BroadcastDroppedTotal.Inc()
		b.remove(id)
	}
}

// Count returns the number of active subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops every subscriber, closing their channels. Used on shutdown.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		sub.shutdown()
		delete(b.subs, id)
	}
}

func (b *Broadcaster) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	sub.shutdown()
}
