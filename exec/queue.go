package exec

import (
	"context"
	"sync"
)

// splitQueue holds the pending splits of one split consuming node.
type splitQueue struct {
	mu     sync.Mutex
	splits []Split
	closed bool
	added  int
	ready  chan struct{}
}

func newSplitQueue() *splitQueue {
	return &splitQueue{ready: make(chan struct{}, 1)}
}

func (q *splitQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// add reports false if the queue was already closed.
func (q *splitQueue) add(s Split) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.splits = append(q.splits, s)
	q.added++
	q.signal()
	return true
}

func (q *splitQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
}

func (q *splitQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// next blocks until a split is available or the queue is closed and drained,
// in which case ok is false.
func (q *splitQueue) next(ctx context.Context) (Split, bool, error) {
	for {
		q.mu.Lock()
		if len(q.splits) > 0 {
			s := q.splits[0]
			q.splits = q.splits[1:]
			q.mu.Unlock()
			return s, true, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Split{}, false, nil
		}
		q.mu.Unlock()
		select {
		case <-q.ready:
		case <-ctx.Done():
			return Split{}, false, ctx.Err()
		}
	}
}

// drain drops every pending split. Used when the task stops early.
func (q *splitQueue) drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.splits)
	q.splits = nil
	return n
}
