package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(TopicSignals)
	defer sub.Unsubscribe()

	b.Publish(TopicSignals, "hello")

	select {
	case env := <-sub.C:
		if env.Payload != "hello" {
			t.Fatalf("got payload %v, want hello", env.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
	}
}

func TestPublishNoSubscribersDoesNotBlock(t *testing.T) {
	b := New(4)
	done := make(chan struct{})
	go func() {
		b.Publish(TopicSignals, "nobody home")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestDropOldestUnderBackpressure(t *testing.T) {
	b := New(2)
	sub := b.Subscribe(TopicFileChanges)
	defer sub.Unsubscribe()

	for i := 0; i < 5; i++ {
		b.Publish(TopicFileChanges, i)
	}

	stats := b.Stats()
	if stats.DroppedOldest == 0 {
		t.Fatalf("expected at least one dropped envelope, got stats %+v", stats)
	}

	// The channel should still be readable and hold the most recent values.
	var last any
	drained := 0
	for {
		select {
		case env := <-sub.C:
			last = env.Payload
			drained++
			continue
		default:
		}
		break
	}
	if drained == 0 {
		t.Fatal("expected to drain at least one surviving envelope")
	}
	if last != 4 {
		t.Fatalf("expected most recent envelope to be 4, got %v", last)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(TopicSignals)
	sub.Unsubscribe()

	if _, ok := <-sub.C; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}

	// Unsubscribing twice must not panic.
	sub.Unsubscribe()
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	b := New(4)
	sub1 := b.Subscribe(TopicSignals)
	sub2 := b.Subscribe(TopicSignals)
	defer sub1.Unsubscribe()
	defer sub2.Unsubscribe()

	b.Publish(TopicSignals, "fanout")

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case env := <-sub.C:
			if env.Payload != "fanout" {
				t.Fatalf("got %v, want fanout", env.Payload)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive envelope")
		}
	}
}

func TestTopicIsolation(t *testing.T) {
	b := New(4)
	sigSub := b.Subscribe(TopicSignals)
	defer sigSub.Unsubscribe()

	b.Publish(TopicTokenAlerts, "not for you")

	select {
	case env := <-sigSub.C:
		t.Fatalf("unexpected envelope on signals topic: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}
