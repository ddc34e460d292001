package server

import (
	"sync"

	"github.com/google/uuid"
)

type queued[T any] struct {
	key   string
	value T
}

// subscription is a bounded mailbox. A keyed value replaces the queued value
// with the same key in place, so the reader always ends on the newest one.
// Unkeyed values are dropped oldest first once the limit is reached.
type subscription[T any] struct {
	id      uuid.UUID
	account string
	limit   int
	wake    chan struct{}

	mu     sync.Mutex
	queue  []queued[T]
	closed bool
	reason string
}

func (s *subscription[T]) offer(key string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if key != "" {
		for i := range s.queue {
			if s.queue[i].key == key {
				s.queue[i].value = value
				return
			}
		}
	}
	if len(s.queue) >= s.limit {
		s.evictUnkeyed()
	}
	// Keyed values are bounded by the number of keys and are never evicted.
	if key == "" && len(s.queue) >= s.limit {
		return
	}
	s.queue = append(s.queue, queued[T]{key: key, value: value})
	s.notify()
}

func (s *subscription[T]) evictUnkeyed() {
	for i := range s.queue {
		if s.queue[i].key == "" {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *subscription[T]) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next blocks until a value is queued. It returns false once the
// subscription is closed and drained.
func (s *subscription[T]) Next() (T, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			head := s.queue[0]
			s.queue[0] = queued[T]{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return head.value, true
		}
		if s.closed {
			s.mu.Unlock()
			var zero T
			return zero, false
		}
		s.mu.Unlock()
		<-s.wake
	}
}

// Reason reports why the hub closed the subscription, if it did.
func (s *subscription[T]) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *subscription[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *subscription[T]) close(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.reason = reason
	s.mu.Unlock()
	s.notify()
}

type hub[T any] struct {
	mu   sync.RWMutex
	subs map[*subscription[T]]struct{}
}

func newHub[T any]() *hub[T] {
	return &hub[T]{subs: make(map[*subscription[T]]struct{})}
}

func (h *hub[T]) Subscribe(account string, buffer int) *subscription[T] {
	sub := &subscription[T]{id: uuid.New(), account: account, limit: max(buffer, 1), wake: make(chan struct{}, 1)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe is safe to call more than once and after Disconnect.
func (h *hub[T]) Unsubscribe(sub *subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	sub.close("")
}

// Disconnect drops every subscription held by account and reports how many
// there were.
func (h *hub[T]) Disconnect(account, reason string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for sub := range h.subs {
		if sub.account != account {
			continue
		}
		delete(h.subs, sub)
		sub.close(reason)
		n++
	}
	return n
}

// CloseAll drops every subscription.
func (h *hub[T]) CloseAll(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.close(reason)
	}
}

func (h *hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast queues value for every subscriber. Values sharing a non-empty
// key coalesce so that only the latest one is delivered.
func (h *hub[T]) Broadcast(key string, value T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		sub.offer(key, value)
	}
}
