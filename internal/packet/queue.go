package packet

import "sync"

// Queue is the correlation queue: a strict FIFO of metadata records,
// one per submitted logical unit. The provider returns results with no
// correlation id, so submission order is the only link between a unit
// and its results. This is correct only because both transports we use
// deliver results in submission order on a single connection; the
// queue does not (and cannot) detect provider-side reordering.
type Queue struct {
	mu    sync.Mutex
	items []*Meta
}

// NewQueue returns an empty correlation queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a metadata record. Must be called before the first
// chunk of the unit is written to the transport, so the result path can
// never see an event for a unit it has no record of.
func (q *Queue) Enqueue(m *Meta) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
}

// Dequeue pops the oldest record. ok is false when the queue is empty;
// callers treat that as a recoverable condition (trailing sentinel
// events arrive without a new unit) and reuse the previous record.
func (q *Queue) Dequeue() (m *Meta, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	m = q.items[0]
	q.items = q.items[1:]
	return m, true
}

// Len reports the number of unconsumed records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
