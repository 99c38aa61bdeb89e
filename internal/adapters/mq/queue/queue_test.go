package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func noop(context.Context) error { return nil }

func TestJobQueue_SingleSlot(t *testing.T) {
	q := NewJobQueue()
	ctx := context.Background()

	if c := q.Capacity(); c != 1 {
		t.Fatalf("expected default capacity 1, got %d", c)
	}
	if err := q.Enqueue(ctx, Job{ID: "a", Run: noop}); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if err := q.Enqueue(ctx, Job{ID: "b", Run: noop}); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}

	// Dequeuing alone does not free the slot.
	j := <-q.Dequeue(ctx)
	if j.ID != "a" {
		t.Fatalf("expected job a, got %q", j.ID)
	}
	if err := q.Enqueue(ctx, Job{ID: "b", Run: noop}); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull while a runs, got %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Fatalf("expected one claimed slot, got %d", l)
	}

	j.Done()
	j.Done()
	if l := q.Len(ctx); l != 0 {
		t.Fatalf("expected no claimed slot after Done, got %d", l)
	}
	if err := q.Enqueue(ctx, Job{ID: "b", Run: noop}); err != nil {
		t.Fatalf("expected enqueue after Done to succeed, got %v", err)
	}
}

func TestJobQueue_Capacity(t *testing.T) {
	q := NewJobQueue(WithCapacity(3))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, Job{ID: id, Run: noop}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if err := q.Enqueue(ctx, Job{ID: "d", Run: noop}); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}

	ch := q.Dequeue(ctx)
	for _, want := range []string{"a", "b", "c"} {
		j := <-ch
		if j.ID != want {
			t.Fatalf("expected %s, got %s", want, j.ID)
		}
	}
}

func TestJobQueue_Close(t *testing.T) {
	q := NewJobQueue(WithCapacity(2))
	ctx := context.Background()

	if err := q.Enqueue(ctx, Job{ID: "a", Run: noop}); err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	if !q.IsClosed() {
		t.Fatal("expected queue to report closed")
	}
	if err := q.Enqueue(ctx, Job{ID: "b", Run: noop}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	var got []string
	for j := range q.Dequeue(ctx) {
		got = append(got, j.ID)
	}
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected queued job to drain, got %v", got)
	}
}

func TestJobQueue_CanceledContext(t *testing.T) {
	q := NewJobQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, Job{ID: "a", Run: noop}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if l := q.Len(context.Background()); l != 0 {
		t.Fatalf("expected no claimed slot, got %d", l)
	}
}

func TestJobQueue_ConcurrentEnqueue(t *testing.T) {
	q := NewJobQueue()
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.Enqueue(ctx, Job{ID: "x", Run: noop}) == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one accepted job, got %d", accepted)
	}

	select {
	case j := <-q.Dequeue(ctx):
		j.Done()
	case <-time.After(time.Second):
		t.Fatal("expected the accepted job to be delivered")
	}
}

func TestJobQueue_Submit(t *testing.T) {
	q := NewJobQueue()
	ctx := context.Background()

	ran := make(chan string, 1)
	if err := q.Submit(ctx, "task-1", func(context.Context, func()) error {
		ran <- "task-1"
		return nil
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := q.Submit(ctx, "task-2", func(context.Context, func()) error { return nil }); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}

	j := <-q.Dequeue(ctx)
	if err := j.Run(ctx); err != nil {
		t.Fatal(err)
	}
	j.Done()
	if got := <-ran; got != "task-1" {
		t.Fatalf("expected task-1 to run, got %s", got)
	}
}

func TestJobQueue_SubmitReleaseFromRun(t *testing.T) {
	q := NewJobQueue()
	ctx := context.Background()

	resubmitted := make(chan error, 1)
	if err := q.Submit(ctx, "task-1", func(ctx context.Context, release func()) error {
		release()
		// The slot is free while this job is still running.
		resubmitted <- q.Submit(ctx, "task-2", func(context.Context, func()) error { return nil })
		return nil
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	j := <-q.Dequeue(ctx)
	if err := j.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if err := <-resubmitted; err != nil {
		t.Fatalf("expected the released slot to accept a new job, got %v", err)
	}

	// Done after an early release must not free the new job's slot.
	j.Done()
	if got := q.Len(ctx); got != 1 {
		t.Fatalf("expected 1 claimed slot, got %d", got)
	}
}
