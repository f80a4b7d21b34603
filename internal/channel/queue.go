package channel

import (
	"context"
	"sync"
)

// queue is a FIFO safe for any number of producers and consumers. A zero
// limit means unbounded.
type queue[E any] struct {
	mu     sync.Mutex
	items  []E
	limit  int
	closed bool
	signal chan struct{}
	done   chan struct{}
}

func newQueue[E any](limit int) *queue[E] {
	return &queue[E]{
		limit:  limit,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *queue[E]) push(v E) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrChannelClosed
	}
	if q.limit > 0 && len(q.items) >= q.limit {
		return ErrQueueFull
	}
	q.items = append(q.items, v)
	q.notify()
	return nil
}

// pop blocks for the next item. Items queued before close are still
// delivered; after that pop reports ErrChannelClosed.
func (q *queue[E]) pop(ctx context.Context) (E, error) {
	var zero E
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			if len(q.items) > 0 {
				q.notify()
			}
			q.mu.Unlock()
			return v, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrChannelClosed
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func (q *queue[E]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue[E]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// discard drops everything still queued.
func (q *queue[E]) discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

func (q *queue[E]) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
