package probe

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned when settings are pushed after shutdown
var ErrQueueClosed = errors.New("settings queue closed")

// settingsQueue carries settings snapshots from the foreground to the sender
// loop. Push never blocks; closing the queue is the engine shutdown signal.
type settingsQueue struct {
	mu     sync.Mutex
	items  []Settings
	closed bool
	signal chan struct{} // holds at most one wakeup
	done   chan struct{}
}

func newSettingsQueue() *settingsQueue {
	return &settingsQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends a snapshot
func (q *settingsQueue) Push(s Settings) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, s)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Recv blocks until a snapshot is available. It returns false once the
// queue is closed or ctx is done.
func (q *settingsQueue) Recv(ctx context.Context) (Settings, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Settings{}, false
		}
		if len(q.items) > 0 {
			s := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return s, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-q.done:
			return Settings{}, false
		case <-ctx.Done():
			return Settings{}, false
		}
	}
}

// Drain removes every pending snapshot without blocking. The second result
// is false once the queue is closed.
func (q *settingsQueue) Drain() ([]Settings, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items, !q.closed
}

// Close wakes up the consumer and rejects further pushes
func (q *settingsQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Ready signals that snapshots may be pending. The signal can be stale;
// callers check with Drain.
func (q *settingsQueue) Ready() <-chan struct{} {
	return q.signal
}

// Done is closed when the queue is closed
func (q *settingsQueue) Done() <-chan struct{} {
	return q.done
}
