package events

import (
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// TestBusTopicDelivery verifies topic subscribers only see their topic.
func TestBusTopicDelivery(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 4)
	batchCh := bus.Subscribe(TopicBatch, 4)

	bus.Publish(TopicTask, TaskStartedEvent{ID: "t1"})
	bus.Publish(TopicBatch, BatchProgressEvent{Total: 3})

	if ev := recv(t, taskCh); ev.TaskID() != "t1" {
		t.Errorf("task subscriber got %+v", ev)
	}
	if ev := recv(t, batchCh); ev.EventType() != EventTypeBatchProgress {
		t.Errorf("batch subscriber got %+v", ev)
	}

	// Neither channel should hold the other topic's event
	select {
	case ev := <-taskCh:
		t.Errorf("task subscriber received stray event %+v", ev)
	default:
	}
}

// TestBusSubscribeAll verifies the firehose sees every topic.
func TestBusSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	allCh := bus.SubscribeAll(4)

	bus.Publish(TopicTask, TaskCompletedEvent{ID: "t1"})
	bus.Publish(TopicBatch, BatchProgressEvent{Total: 1})

	first := recv(t, allCh)
	second := recv(t, allCh)
	if first.EventType() == second.EventType() {
		t.Errorf("expected two distinct event types, got %s twice", first.EventType())
	}
}

// TestBusFullSubscriberDropsEvent verifies a slow subscriber never blocks
// publishing.
func TestBusFullSubscriberDropsEvent(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		bus.Publish(TopicTask, TaskStartedEvent{ID: "kept"})
		bus.Publish(TopicTask, TaskStartedEvent{ID: "dropped"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if ev := recv(t, ch); ev.TaskID() != "kept" {
		t.Errorf("got %+v, want the first event", ev)
	}
	select {
	case ev := <-ch:
		t.Errorf("overflow event %+v should have been dropped", ev)
	default:
	}
}

// TestBusClose verifies closed-bus semantics: subscriber channels close,
// publishing becomes a no-op, and Close is idempotent.
func TestBusClose(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(TopicTask, 1)

	bus.Close()
	bus.Close() // Idempotent

	if _, open := <-ch; open {
		t.Error("subscriber channel should be closed")
	}

	// Publishing after close must not panic
	bus.Publish(TopicTask, TaskStartedEvent{ID: "late"})

	// Subscribing after close returns a closed channel
	lateCh := bus.Subscribe(TopicTask, 1)
	if _, open := <-lateCh; open {
		t.Error("post-close subscription should yield a closed channel")
	}
}
