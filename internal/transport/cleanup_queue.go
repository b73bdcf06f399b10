package transport

import (
	"sync"
	"time"
)

type pendingCleanup struct {
	name       string
	entry      *segmentEntry
	enqueuedAt time.Time
}

// cleanupQueue is a FIFO of released segments waiting out the grace period.
type cleanupQueue struct {
	mu    sync.Mutex
	items []pendingCleanup
	limit int
	now   func() time.Time
}

func newCleanupQueue(limit int, now func() time.Time) *cleanupQueue {
	return &cleanupQueue{limit: limit, now: now}
}

// push appends entry stamped with the current time. When the queue grows
// past limit, the oldest entries are removed until half of limit remain and
// are returned for immediate disposal.
func (q *cleanupQueue) push(name string, entry *segmentEntry) (forced []pendingCleanup) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, pendingCleanup{name: name, entry: entry, enqueuedAt: q.now()})
	if len(q.items) <= q.limit {
		return nil
	}
	excess := len(q.items) - q.limit/2
	forced = append([]pendingCleanup(nil), q.items[:excess]...)
	q.items = append([]pendingCleanup(nil), q.items[excess:]...)
	return forced
}

// expired removes and returns, oldest first, the entries queued longer
// than grace.
func (q *cleanupQueue) expired(grace time.Duration) []pendingCleanup {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	n := 0
	for n < len(q.items) && now.Sub(q.items[n].enqueuedAt) > grace {
		n++
	}
	if n == 0 {
		return nil
	}
	out := append([]pendingCleanup(nil), q.items[:n]...)
	clear(q.items[:n])
	q.items = q.items[n:]
	return out
}

// drain removes and returns everything.
func (q *cleanupQueue) drain() []pendingCleanup {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *cleanupQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
