package modguard

import (
	"context"
	"sync"
)

// Hub fans a value out to subscribed handlers.
type Hub[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(context.Context, T)
}

// NewHub creates an empty Hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[uint64]func(context.Context, T))}
}

// Subscription is returned by Subscribe. Close it to stop receiving.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Close unregisters the handler. It is safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Subscribe registers fn. The caller owns the returned Subscription.
func (h *Hub[T]) Subscribe(fn func(context.Context, T)) *Subscription {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	return &Subscription{cancel: func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}}
}

// Publish calls every handler in turn. Handlers run without the hub lock
// held, so they may subscribe or unsubscribe.
func (h *Hub[T]) Publish(ctx context.Context, v T) {
	h.mu.RLock()
	fns := make([]func(context.Context, T), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ctx, v)
	}
}

// Len returns the number of live subscriptions.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
