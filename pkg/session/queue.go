package session

import (
	"sync"

	"github.com/otherjamesbrown/penf-live/pkg/meeting"
)

// intakeQueue is a bounded FIFO with a drop-oldest overflow policy. One
// producer (the HTTP handler) and one consumer (the session's processing
// loop).
type intakeQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []meeting.TranscriptChunk
	cap    int
	closed bool
}

func newIntakeQueue(capacity int) *intakeQueue {
	q := &intakeQueue{cap: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends a chunk, evicting the oldest entries when full. Returns the
// number of evicted chunks.
func (q *intakeQueue) push(chunk meeting.TranscriptChunk) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}

	dropped := 0
	for len(q.items) >= q.cap {
		q.items = q.items[1:]
		dropped++
	}
	q.items = append(q.items, chunk)
	q.cond.Signal()
	return dropped
}

// pop blocks until a chunk is available or the queue is closed and drained.
func (q *intakeQueue) pop() (meeting.TranscriptChunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return meeting.TranscriptChunk{}, false
	}
	chunk := q.items[0]
	q.items = q.items[1:]
	return chunk, true
}

func (q *intakeQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close wakes any blocked consumer; remaining items can still be drained.
func (q *intakeQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
