package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/andywolf/prpctl/internal/bus"
)

// Interruption is a first-class user-originated event: any payload
// published to bus.TopicUserInterruption is enqueued and processed ahead
// of the prioritized task queue on the orchestrator's next tick.
type Interruption struct {
	Payload  any
	QueuedAt time.Time
}

// InterruptionQueue buffers interruptions between ticks. Unlike the
// priority queue it is strictly FIFO: interruptions are user-originated
// and processed in the order the user raised them.
type InterruptionQueue struct {
	mu    sync.Mutex
	items []Interruption
}

// NewInterruptionQueue returns an empty queue.
func NewInterruptionQueue() *InterruptionQueue {
	return &InterruptionQueue{}
}

// Enqueue appends an interruption.
func (q *InterruptionQueue) Enqueue(i Interruption) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, i)
}

// DrainAll removes and returns every queued interruption in FIFO order.
func (q *InterruptionQueue) DrainAll() []Interruption {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len reports how many interruptions are currently queued.
func (q *InterruptionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// WatchUser subscribes to bus.TopicUserInterruption and enqueues every
// event it receives until ctx is cancelled.
func WatchUser(ctx context.Context, b *bus.Bus, q *InterruptionQueue) {
	sub := b.Subscribe(bus.TopicUserInterruption)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			q.Enqueue(Interruption{Payload: env.Payload, QueuedAt: env.Published})
		}
	}
}
