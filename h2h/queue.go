package h2h

import (
	"sync"
	"time"
)

// queue is an unbounded FIFO with a timeout-bounded blocking pop. The
// demultiplexing loop pushes, application goroutines pop. A queue of
// struct{} doubles as a counted semaphore: every push credits exactly one
// pop, never a boolean flag.
type queue[T any] struct {
	mu    sync.Mutex
	items []T
	wake  chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{wake: make(chan struct{}, 1)}
}

func (q *queue[T]) push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.signal()
}

func (q *queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// pop removes and returns the oldest item, waiting up to timeout for one
// to arrive. An elapsed wait returns ErrTimeout.
func (q *queue[T]) pop(timeout time.Duration) (T, error) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items = q.items[1:]
			leftover := len(q.items) > 0
			q.mu.Unlock()
			if leftover {
				// the coalesced wake token may have been spent on us
				q.signal()
			}
			return v, nil
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-timer.C:
			return zero, ErrTimeout
		}
	}
}
