package dispatch

import (
	"sync"

	"adowatch/internal/event"
)

// Queue is a thread-safe FIFO of events awaiting a poll. Outstanding work is
// counted from Push until the consuming worker calls Done, so AwaitDrained
// covers both queued and in-flight events.
type Queue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	items       []*event.Event
	outstanding int
	closed      bool
}

// NewQueue returns an empty queue ready for use.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an event to the back of the queue and wakes waiting
// consumers. Pushes after Shutdown are dropped.
func (q *Queue) Push(ev *event.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, ev)
	q.outstanding++
	// Broadcast because the one cond serves both Pop and AwaitDrained
	// waiters; a single Signal could wake the wrong kind.
	q.cond.Broadcast()
}

// Pop removes and returns the event at the front of the queue. With wait set
// it blocks until an event arrives or the queue is shut down; otherwise it
// returns nil immediately when the queue is empty. A nil return with wait
// set means the queue was shut down.
func (q *Queue) Pop(wait bool) *event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.closed || !wait {
			return nil
		}
		q.cond.Wait()
	}
	ev := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return ev
}

// Done marks one popped event as fully processed. Every successful Pop must
// be paired with exactly one Done.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.outstanding > 0 {
		q.outstanding--
	}
	if q.outstanding == 0 {
		q.cond.Broadcast()
	}
}

// Size returns the number of events currently queued.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wipe discards all pending events. In-flight events still count as
// outstanding until their workers call Done.
func (q *Queue) Wipe() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.outstanding -= len(q.items)
	q.items = nil
	if q.outstanding <= 0 {
		q.outstanding = 0
		q.cond.Broadcast()
	}
}

// AwaitDrained blocks until every pushed event has been popped and marked
// Done, or until the queue is shut down.
func (q *Queue) AwaitDrained() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.outstanding > 0 && !q.closed {
		q.cond.Wait()
	}
}

// Shutdown closes the queue: blocked Pops return nil, AwaitDrained returns,
// and further Pushes are dropped. Already-queued events remain poppable.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
