package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/andywolf/prpctl/internal/bus"
)

func TestInterruptionQueueFIFO(t *testing.T) {
	q := NewInterruptionQueue()
	q.Enqueue(Interruption{Payload: "first"})
	q.Enqueue(Interruption{Payload: "second"})

	drained := q.DrainAll()
	if len(drained) != 2 || drained[0].Payload != "first" || drained[1].Payload != "second" {
		t.Fatalf("DrainAll = %+v, want FIFO order", drained)
	}
	if q.Len() != 0 {
		t.Fatal("expected queue empty after DrainAll")
	}
}

func TestWatchUserEnqueuesPublishedEvents(t *testing.T) {
	b := bus.New(4)
	q := NewInterruptionQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go WatchUser(ctx, b, q)
	time.Sleep(10 * time.Millisecond) // let the subscriber register

	b.Publish(bus.TopicUserInterruption, "stop everything")

	deadline := time.After(time.Second)
	for {
		if q.Len() > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for interruption to be enqueued")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	drained := q.DrainAll()
	if len(drained) != 1 || drained[0].Payload != "stop everything" {
		t.Fatalf("drained = %+v", drained)
	}
}
