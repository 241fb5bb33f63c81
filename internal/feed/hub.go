package feed

import (
	"context"
	"sync"

	"daily-tracker/internal/logger"
)

// Hub is an in-process Broker. Publish never blocks: a subscriber whose
// buffer is full is dropped (its channel closed) so a slow or re-entrant
// consumer cannot stall writers.
type Hub[E any] struct {
	mu     sync.RWMutex
	subs   map[string]map[*hubSub[E]]struct{}
	buffer int
	closed bool
}

func NewHub[E any](buffer int) *Hub[E] {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub[E]{
		subs:   make(map[string]map[*hubSub[E]]struct{}),
		buffer: buffer,
	}
}

type hubSub[E any] struct {
	hub    *Hub[E]
	userID string
	ch     chan E
}

func (s *hubSub[E]) Events() <-chan E {
	return s.ch
}

func (s *hubSub[E]) Close() error {
	s.hub.remove(s)
	return nil
}

func (h *Hub[E]) Subscribe(_ context.Context, userID string) (Subscription[E], error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	sub := &hubSub[E]{hub: h, userID: userID, ch: make(chan E, h.buffer)}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*hubSub[E]]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	return sub, nil
}

func (h *Hub[E]) Publish(ctx context.Context, userID string, ev E) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var overflow []*hubSub[E]
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- ev:
		default:
			overflow = append(overflow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range overflow {
		logger.Warn("feed subscriber dropped, buffer full", "user_id", userID)
		h.remove(sub)
	}
	return nil
}

// Subscribers reports how many live subscriptions a user has.
func (h *Hub[E]) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Close drops every subscription. Further Publish and Subscribe calls fail.
func (h *Hub[E]) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for userID, subs := range h.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(h.subs, userID)
	}
	return nil
}

func (h *Hub[E]) remove(sub *hubSub[E]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subs[sub.userID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subs, sub.userID)
	}
	close(sub.ch)
}
