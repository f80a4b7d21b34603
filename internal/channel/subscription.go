package channel

import (
	"log/slog"
	"sort"
	"sync"

	"pipelink/internal/logging"
)

// Subscription is the handle returned by every handler registration.
type Subscription struct {
	once   sync.Once
	remove func()
}

// NewSubscription wraps cancel in a Subscription for implementations of
// channel-like types outside this package.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{remove: cancel}
}

// Unsubscribe stops further deliveries. It is safe to call more than once
// and from inside the handler itself.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.remove != nil {
			s.remove()
		}
	})
}

type eventKind int

const (
	eventMessage eventKind = iota
	eventConnected
	eventDisconnected
	eventError
)

func (k eventKind) String() string {
	switch k {
	case eventMessage:
		return "message"
	case eventConnected:
		return "connected"
	case eventDisconnected:
		return "disconnected"
	default:
		return "error"
	}
}

type handler[T any] struct {
	kind    eventKind
	match   func(T) bool
	onMsg   func(T)
	onEvent func()
	onErr   func(error)
}

// handlers is the registry behind the On* methods. Deliveries run in
// registration order, outside the lock, so a handler may subscribe or
// unsubscribe freely.
type handlers[T any] struct {
	mu     sync.RWMutex
	next   uint64
	byID   map[uint64]handler[T]
	logger *slog.Logger
}

func newHandlers[T any](logger *slog.Logger) *handlers[T] {
	return &handlers[T]{byID: make(map[uint64]handler[T]), logger: logger}
}

func (h *handlers[T]) add(entry handler[T]) *Subscription {
	h.mu.Lock()
	h.next++
	id := h.next
	h.byID[id] = entry
	h.mu.Unlock()
	return &Subscription{remove: func() {
		h.mu.Lock()
		delete(h.byID, id)
		h.mu.Unlock()
	}}
}

func (h *handlers[T]) snapshot(kind eventKind) []handler[T] {
	h.mu.RLock()
	ids := make([]uint64, 0, len(h.byID))
	for id, entry := range h.byID {
		if entry.kind == kind {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]handler[T], 0, len(ids))
	for _, id := range ids {
		out = append(out, h.byID[id])
	}
	h.mu.RUnlock()
	return out
}

func (h *handlers[T]) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

func (h *handlers[T]) message(msg T) {
	for _, entry := range h.snapshot(eventMessage) {
		if entry.match != nil && !entry.match(msg) {
			continue
		}
		h.call(eventMessage, func() { entry.onMsg(msg) })
	}
}

func (h *handlers[T]) event(kind eventKind) {
	for _, entry := range h.snapshot(kind) {
		h.call(kind, entry.onEvent)
	}
}

func (h *handlers[T]) err(err error) {
	for _, entry := range h.snapshot(eventError) {
		h.call(eventError, func() { entry.onErr(err) })
	}
}

// call isolates the pumps from a panicking handler.
func (h *handlers[T]) call(kind eventKind, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(h.logger, "channel handler panicked", "channel_handler_panic",
				logging.String("event", kind.String()),
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "fix the handler; the channel keeps running"))
		}
	}()
	fn()
}
