// Package correlate layers request/response calls over a channel that
// only offers fire-and-forget messages.
package correlate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pipelink/internal/channel"
	"pipelink/internal/logging"
)

// DefaultTimeout applies when Call is given no timeout.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is returned when no response arrived in time.
var ErrTimeout = errors.New("correlate: request timed out")

// Binding tells the correlator where a message carries its correlation id.
type Binding[T any] interface {
	// Stamp returns msg carrying id.
	Stamp(msg T, id string) T
	// ResponseID returns the id of a response, or false for anything that
	// is not a response.
	ResponseID(msg T) (string, bool)
}

// Transport is the part of a channel the correlator needs.
type Transport[T any] interface {
	Send(msg T) error
	OnMessage(match func(T) bool, fn func(T)) *channel.Subscription
	Done() <-chan struct{}
}

// Correlator issues calls over one channel.
type Correlator[T any] struct {
	ch      Transport[T]
	binding Binding[T]
	logger  *slog.Logger
	newID   func() string

	mu      sync.Mutex
	pending map[string]*call[T]
}

type call[T any] struct {
	createdAt time.Time
	claimed   atomic.Bool
	result    chan outcome[T]
}

type outcome[T any] struct {
	msg T
	err error
}

// resolve lets exactly one outcome through; later attempts are no-ops.
func (c *call[T]) resolve(msg T, err error) bool {
	if !c.claimed.CompareAndSwap(false, true) {
		return false
	}
	c.result <- outcome[T]{msg: msg, err: err}
	return true
}

// New builds a correlator for ch.
func New[T any](ch Transport[T], binding Binding[T], logger *slog.Logger) *Correlator[T] {
	return &Correlator[T]{
		ch:      ch,
		binding: binding,
		logger:  logging.NewComponentLogger(logger, "correlate"),
		newID:   func() string { return uuid.NewString() },
		pending: make(map[string]*call[T]),
	}
}

// Pending reports calls still waiting for an outcome.
func (c *Correlator[T]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Call sends req stamped with a fresh id and waits for the matching
// response, the timeout, channel shutdown, or ctx cancellation, whichever
// comes first. timeout <= 0 means DefaultTimeout.
func (c *Correlator[T]) Call(ctx context.Context, req T, timeout time.Duration) (T, error) {
	var zero T
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	id := c.newID()
	pc := &call[T]{createdAt: time.Now(), result: make(chan outcome[T], 1)}
	c.mu.Lock()
	c.pending[id] = pc
	c.mu.Unlock()

	sub := c.ch.OnMessage(func(msg T) bool {
		rid, ok := c.binding.ResponseID(msg)
		return ok && rid == id
	}, func(msg T) {
		pc.resolve(msg, nil)
	})
	defer func() {
		sub.Unsubscribe()
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.ch.Send(c.binding.Stamp(req, id)); err != nil {
		pc.resolve(zero, fmt.Errorf("send request: %w", err))
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var out outcome[T]
	select {
	case out = <-pc.result:
	case <-timer.C:
		pc.resolve(zero, ErrTimeout)
		out = <-pc.result
	case <-c.ch.Done():
		pc.resolve(zero, channel.ErrChannelClosed)
		out = <-pc.result
	case <-ctx.Done():
		pc.resolve(zero, ctx.Err())
		out = <-pc.result
	}
	if out.err != nil {
		c.logger.Debug("call failed",
			logging.String(logging.FieldCorrelationID, id),
			logging.Duration("elapsed", time.Since(pc.createdAt)),
			logging.Error(out.err))
	}
	return out.msg, out.err
}
