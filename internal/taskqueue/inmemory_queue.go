package taskqueue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryQueue keeps tasks ordered by due time. It is safe for concurrent
// use.
type InMemoryQueue struct {
	mu    sync.Mutex
	tasks []Task
	wake  chan struct{}
	now   func() time.Time
}

// NewInMemoryQueue creates an empty queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = q.now()
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].due().Before(q.tasks[j].due())
	})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		task, wait := q.pop()
		if task != nil {
			return task, nil
		}

		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		if wait > 0 {
			timer = time.NewTimer(wait)
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil, ctx.Err()
		case <-q.wake:
		case <-fire:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// pop removes the head if it is due. Otherwise it returns how long until
// the head is due, or zero when the queue is empty.
func (q *InMemoryQueue) pop() (*Task, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, 0
	}
	head := q.tasks[0]
	if d := head.due().Sub(q.now()); d > 0 {
		return nil, d
	}
	q.tasks = q.tasks[1:]

	// Let another waiting worker look at the rest.
	if len(q.tasks) > 0 {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	return &head, 0
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
