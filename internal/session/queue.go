package session

import (
	"context"
	"sync"
)

// Event is a typed message processed by a session's event loop.
type Event interface {
	eventName() string
}

// Queue is a single ordered FIFO of events. Each event is handled to
// completion (one turn) before the next starts.
type Queue struct {
	handle func(Event)

	mu     sync.Mutex
	items  []Event
	closed bool
	wake   chan struct{}
	done   chan struct{}

	turn sync.Mutex
}

// NewQueue creates a queue dispatching to handle.
func NewQueue(handle func(Event)) *Queue {
	return &Queue{
		handle: handle,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Post enqueues ev. It reports false when the queue is closed.
// Safe from any goroutine.
func (q *Queue) Post(ev Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// CloseWith discards every pending event, enqueues final as the last one
// and refuses further posts. Only the first call has any effect.
func (q *Queue) CloseWith(final Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.closed = true
	q.items = q.items[:0]
	if final != nil {
		q.items = append(q.items, final)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Closed reports whether the queue refuses posts.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	ev := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return ev, true
}

// Drain processes events until the queue is empty, including events posted
// by the handlers themselves.
func (q *Queue) Drain() {
	q.turn.Lock()
	defer q.turn.Unlock()
	for {
		ev, ok := q.pop()
		if !ok {
			break
		}
		q.handle(ev)
	}

	q.mu.Lock()
	finished := q.closed && len(q.items) == 0
	q.mu.Unlock()
	if finished {
		q.markDone()
	}
}

func (q *Queue) markDone() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

// Done is closed once the queue is closed and fully drained.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Run drains the queue whenever events arrive until it is closed and
// empty or ctx is canceled.
func (q *Queue) Run(ctx context.Context) {
	for {
		q.Drain()
		select {
		case <-q.done:
			return
		case <-ctx.Done():
			return
		case <-q.wake:
		}
	}
}
