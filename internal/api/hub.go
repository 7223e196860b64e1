package api

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"sai-swap/internal/domain"
	"sai-swap/internal/observability"
	"sai-swap/internal/storage"
	"sai-swap/internal/swap"
)

// Hub fans journaled events out to stream subscribers.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	nextID  uint64
	closed  bool
	buffer  int
	metrics *observability.Metrics
}

type subscriber struct {
	state domain.PublicKey // zero receives every state
	ch    chan EventView
}

// NewHub creates a hub giving each subscriber a buffer of bufferSize events.
func NewHub(bufferSize int, metrics *observability.Metrics) *Hub {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Hub{
		subs:    make(map[uint64]*subscriber),
		buffer:  bufferSize,
		metrics: metrics,
	}
}

// Subscribe registers a subscriber for events of state, or of every state
// when state is zero. The returned cancel func unregisters and closes the channel.
func (h *Hub) Subscribe(state domain.PublicKey) (<-chan EventView, func()) {
	sub := &subscriber{state: state, ch: make(chan EventView, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.SetSubscribers(n)

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(sub.ch)
	}
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		h.metrics.SetSubscribers(n)
	}
}

// Publish delivers e to every matching subscriber.
func (h *Hub) Publish(e *domain.Event) {
	view := newEventView(e)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.state.IsZero() && sub.state != e.StateKey {
			continue
		}
		select {
		case sub.ch <- view:
		default:
			h.metrics.RecordDroppedEvent()
			log.WithFields(log.Fields{"module": logModule, "state": e.StateKey.String(), "event": e.EventID}).
				Warn("stream subscriber too slow, event dropped")
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later subscriptions receive a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
	h.mu.Unlock()

	h.metrics.SetSubscribers(0)
}

// Journal persists events and then publishes them on a hub.
type Journal struct {
	store storage.EventStore
	hub   *Hub
}

// NewJournal creates a journal over store. hub may be nil.
func NewJournal(store storage.EventStore, hub *Hub) *Journal {
	return &Journal{store: store, hub: hub}
}

// Insert stores e and broadcasts it. Events that fail to persist are not broadcast.
func (j *Journal) Insert(ctx context.Context, e *domain.Event) error {
	if err := j.store.Insert(ctx, e); err != nil {
		return err
	}
	if j.hub != nil {
		j.hub.Publish(e)
	}
	return nil
}

var _ swap.EventSink = (*Journal)(nil)
