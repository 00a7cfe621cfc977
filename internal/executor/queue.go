package executor

import "sync"

// WorkItem pairs a callback with an opaque payload.
// Seq is stamped by the queue at append time and reflects FIFO position.
type WorkItem struct {
	Callback func(payload any)
	Payload  any
	Seq      int64
}

// workQueue is a thread-safe FIFO queue of work items.
//
// The queue is unbounded so that a running task can post continuations
// and nested tasks without ever blocking the affine thread.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type workQueue struct {
	mu     sync.Mutex
	items  []WorkItem
	closed bool
	seq    int64
	signal chan struct{} // Signals item availability (buffered, size 1)
}

// newWorkQueue creates an empty queue with room for capacity items.
func newWorkQueue(capacity int) *workQueue {
	if capacity < 0 {
		capacity = 0
	}
	return &workQueue{
		items:  make([]WorkItem, 0, capacity),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue stamps the item with the next sequence number and appends it.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *workQueue) Enqueue(item WorkItem) (WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return item, false
	}

	// Stamped under the lock so that Seq order equals queue order.
	q.seq++
	item.Seq = q.seq
	q.items = append(q.items, item)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return item, true
}

// TryDequeue removes the front item without blocking.
// Returns (WorkItem{}, false) if the queue is empty.
func (q *workQueue) TryDequeue() (WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return WorkItem{}, false
	}

	item := q.items[0]

	// Clear the slot so the backing array does not pin payloads.
	q.items[0] = WorkItem{}

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return item, true
}

// Wait returns a channel that signals when items may be available.
// The channel is closed once the queue is closed.
func (q *workQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *workQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further items and wakes any waiter.
func (q *workQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
