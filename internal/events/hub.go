package events

import (
	"context"
	"sync"
	"sync/atomic"
)

const subscriberBuffer = 64

// Hub is the in-process fan-out feeding websocket connections.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	dropped atomic.Uint64
}

type subscription struct {
	ownerID uint64
	all     bool
	ch      chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscription]struct{})}
}

// Subscribe registers a listener for ownerID's events, or for every event
// when all is set. The returned cancel func must be called once.
func (h *Hub) Subscribe(ownerID uint64, all bool) (<-chan Event, func()) {
	s := &subscription{ownerID: ownerID, all: all, ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once

	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
			close(s.ch)
		})
	}
}

// Publish never blocks: slow subscribers lose events.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		if !s.all && s.ownerID != ev.OwnerID {
			continue
		}

		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}

	return nil
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
