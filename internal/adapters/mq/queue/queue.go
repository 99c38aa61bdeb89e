// Package queue holds background jobs waiting for a worker.
//
// A job keeps its slot from Enqueue until Done, so a queue of capacity one
// admits a single job whether it is waiting or running.
package queue

import (
	"context"
	"sync"

	"github.com/okian/lutcurate/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity = 1
)

// Job is a unit of background work.
type Job struct {
	ID  string
	Run func(ctx context.Context) error

	release func()
}

// Done frees the job's slot. Calling it more than once is harmless.
func (j Job) Done() {
	if j.release != nil {
		j.release()
	}
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue claims a slot for j. It returns ErrFull when every slot is
	// taken and ErrClosed after Close.
	Enqueue(ctx context.Context, j Job) error

	// Dequeue returns a channel that will receive jobs as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Job

	// Len returns the number of claimed slots.
	Len(ctx context.Context) int

	// Close stops accepting jobs. Jobs already queued are still delivered.
	Close() error
}

// JobQueue implements Queue with a buffered channel and a slot counter.
type JobQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.Mutex
	used   int
	closed bool
}

// NewJobQueue creates a queue with configuration options.
func NewJobQueue(opts ...Option) *JobQueue {
	q := &JobQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Capacity returns the number of slots.
func (q *JobQueue) Capacity() int { return q.capacity }

// Enqueue implements Queue.
func (q *JobQueue) Enqueue(ctx context.Context, j Job) error {
	return q.push(ctx, j, q.newRelease())
}

// Submit enqueues run under id. run receives the job's release func so it
// can free its slot before signalling completion to its own waiters;
// releasing again when the worker calls Done is a no-op.
func (q *JobQueue) Submit(ctx context.Context, id string, run func(ctx context.Context, release func()) error) error {
	release := q.newRelease()
	return q.push(ctx, Job{ID: id, Run: func(ctx context.Context) error { return run(ctx, release) }}, release)
}

// newRelease returns a release func that frees one slot at most once.
func (q *JobQueue) newRelease() func() {
	var once sync.Once
	return func() { once.Do(q.release) }
}

func (q *JobQueue) push(ctx context.Context, j Job, release func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if q.used >= q.capacity {
		metrics.RecordQueueRejected()
		return ErrFull
	}

	j.release = release
	q.used++
	metrics.UpdateQueueSize(q.used)

	// The channel buffer equals the slot count, so this never blocks.
	q.jobs <- j
	return nil
}

func (q *JobQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.used > 0 {
		q.used--
	}
	metrics.UpdateQueueSize(q.used)
}

// Dequeue implements Queue.
func (q *JobQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for j := range q.jobs {
			select {
			case out <- j:
			case <-ctx.Done():
				j.Done()
				return
			}
		}
	}()
	return out
}

// Len implements Queue.
func (q *JobQueue) Len(_ context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}

// Close implements Queue.
func (q *JobQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *JobQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
