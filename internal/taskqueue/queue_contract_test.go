package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"
)

// runQueueContract exercises behaviour every Queue must share.
func runQueueContract(t *testing.T, newQueue func(t *testing.T) Queue) {
	t.Run("fifo", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		for _, id := range []string{"a", "b", "c"} {
			if err := q.Enqueue(ctx, Task{Type: TaskTypeRun, InstanceID: id}); err != nil {
				t.Fatalf("Enqueue %s failed: %v", id, err)
			}
			time.Sleep(time.Millisecond)
		}
		if q.Len() != 3 {
			t.Fatalf("expected Len 3, got %d", q.Len())
		}

		for _, want := range []string{"a", "b", "c"} {
			got, err := q.Dequeue(ctx)
			if err != nil {
				t.Fatalf("Dequeue failed: %v", err)
			}
			if got.InstanceID != want || got.Type != TaskTypeRun {
				t.Fatalf("expected run task for %s, got %+v", want, got)
			}
		}
		if q.Len() != 0 {
			t.Fatalf("expected empty queue, got %d", q.Len())
		}
	})

	t.Run("fields survive", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		in := Task{
			Type:       TaskTypeSignal,
			InstanceID: "i-1",
			SignalName: "SubmissionApproval",
			Data:       []byte(`true`),
			Attempts:   1,
		}
		if err := q.Enqueue(ctx, in); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if got.SignalName != in.SignalName || string(got.Data) != "true" || got.Attempts != 1 {
			t.Fatalf("unexpected task %+v", got)
		}
	})

	t.Run("not before is honoured", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		delay := 300 * time.Millisecond
		start := time.Now()
		if err := q.Enqueue(ctx, Task{Type: TaskTypeTimeout, InstanceID: "late", Phase: "feedback", NotBefore: start.Add(delay)}); err != nil {
			t.Fatalf("Enqueue late failed: %v", err)
		}
		if err := q.Enqueue(ctx, Task{Type: TaskTypeRun, InstanceID: "now"}); err != nil {
			t.Fatalf("Enqueue now failed: %v", err)
		}

		first, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if first.InstanceID != "now" {
			t.Fatalf("delayed task returned early: %+v", first)
		}

		second, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if second.InstanceID != "late" || second.Phase != "feedback" {
			t.Fatalf("unexpected task %+v", second)
		}
		if elapsed := time.Since(start); elapsed < delay {
			t.Fatalf("delayed task returned after %v, expected at least %v", elapsed, delay)
		}
	})

	t.Run("dequeue blocks until a task arrives", func(t *testing.T) {
		q := newQueue(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = q.Enqueue(context.Background(), Task{Type: TaskTypeRun, InstanceID: "x"})
		}()

		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if got.InstanceID != "x" {
			t.Fatalf("unexpected task %+v", got)
		}
	})

	t.Run("dequeue respects context", func(t *testing.T) {
		q := newQueue(t)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := q.Dequeue(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	})
}
