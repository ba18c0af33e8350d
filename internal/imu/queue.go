package imu

import "sync"

// SampleQueue is a bounded buffer between a live ingest source and the
// per-session fusion worker. When full, the oldest samples are dropped so
// back-pressure lands upstream of the filter and the freshest data wins.
type SampleQueue struct {
	mu       sync.Mutex
	buf      []Sample
	capacity int
	dropped  int
}

// NewSampleQueue creates a queue holding at most capacity samples.
func NewSampleQueue(capacity int) *SampleQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &SampleQueue{capacity: capacity}
}

// Push appends samples, evicting the oldest entries if the queue overflows.
func (q *SampleQueue) Push(samples ...Sample) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.buf = append(q.buf, samples...)
	if over := len(q.buf) - q.capacity; over > 0 {
		q.dropped += over
		q.buf = append(q.buf[:0], q.buf[over:]...)
	}
}

// Drain removes and returns all buffered samples in arrival order.
func (q *SampleQueue) Drain() []Sample {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.buf
	q.buf = nil
	return out
}

// Len returns the number of buffered samples.
func (q *SampleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Dropped returns the total number of samples evicted since creation.
func (q *SampleQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
