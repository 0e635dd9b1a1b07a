package taskqueue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestInMemoryQueue(t *testing.T) {
	runQueueContract(t, func(t *testing.T) Queue { return NewInMemoryQueue() })
}

func TestInMemoryQueue_WakesEveryWaiter(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const waiters = 4
	var wg sync.WaitGroup
	got := make(chan string, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := q.Dequeue(ctx)
			if err != nil {
				t.Errorf("Dequeue failed: %v", err)
				return
			}
			got <- task.InstanceID
		}()
	}

	time.Sleep(20 * time.Millisecond)
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := q.Enqueue(ctx, Task{Type: TaskTypeRun, InstanceID: id}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	wg.Wait()
	close(got)
	if len(got) != waiters {
		t.Fatalf("expected %d tasks delivered, got %d", waiters, len(got))
	}
}
