// Package registry tracks the live channel for each identity owned by a
// process.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"pipelink/internal/channel"
)

// ErrNotConnected is returned by Send when no channel is live for the
// identity.
var ErrNotConnected = errors.New("registry: identity not connected")

// Registry maps identities to their live channel.
type Registry[T any] struct {
	mu       sync.RWMutex
	channels map[string]*channel.Channel[T]
}

// New returns an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{channels: make(map[string]*channel.Channel[T])}
}

// Set publishes ch for identity, replacing any previous channel.
func (r *Registry[T]) Set(identity string, ch *channel.Channel[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[identity] = ch
}

// Clear removes identity only if ch is still the published channel.
func (r *Registry[T]) Clear(identity string, ch *channel.Channel[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channels[identity] == ch {
		delete(r.channels, identity)
	}
}

// Get returns the live channel for identity.
func (r *Registry[T]) Get(identity string) (*channel.Channel[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[identity]
	return ch, ok
}

// Identities lists published identities in sorted order.
func (r *Registry[T]) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.channels))
	for id := range r.channels {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Send delivers msg on the channel published for identity.
func (r *Registry[T]) Send(identity string, msg T) error {
	ch, ok := r.Get(identity)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, identity)
	}
	return ch.Send(msg)
}

// Close disposes every published channel and empties the registry.
func (r *Registry[T]) Close() {
	r.mu.Lock()
	channels := r.channels
	r.channels = make(map[string]*channel.Channel[T])
	r.mu.Unlock()
	for _, ch := range channels {
		ch.Dispose()
	}
}
