package events

import (
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(nil)
	ch := bus.Subscribe(1, []Type{TaskReady})

	event := New(TaskReady, 1, "42", map[string]interface{}{"title": "do the thing"})
	bus.Publish(event)

	select {
	case received := <-ch:
		if received.ID != event.ID {
			t.Errorf("expected event ID %s, got %s", event.ID, received.ID)
		}
		if received.Type != TaskReady {
			t.Errorf("expected event type %s, got %s", TaskReady, received.Type)
		}
		if received.Version != 1 {
			t.Errorf("expected Publish to assign version 1, got %d", received.Version)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("did not receive event within timeout")
	}

	bus.Unsubscribe(1, ch)
}

func TestBusFilterByType(t *testing.T) {
	bus := NewBus(nil)
	ch := bus.Subscribe(1, []Type{TaskCompleted})

	bus.Publish(New(TaskCompleted, 1, "42", map[string]interface{}{}))

	select {
	case received := <-ch:
		if received.Type != TaskCompleted {
			t.Errorf("expected %s, got %s", TaskCompleted, received.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("did not receive matching event")
	}

	bus.Publish(New(TaskFailed, 1, "42", map[string]interface{}{}))

	select {
	case received := <-ch:
		t.Errorf("should not have received event type %s", received.Type)
	case <-time.After(50 * time.Millisecond):
	}

	bus.Unsubscribe(1, ch)
}

func TestBusBroadcastSubscriberReceivesEveryProject(t *testing.T) {
	bus := NewBus(nil)
	projectCh := bus.Subscribe(1, []Type{TaskReady})
	broadcastCh := bus.Subscribe(0, []Type{TaskReady})

	event := New(TaskReady, 1, "5", map[string]interface{}{})
	bus.Publish(event)

	select {
	case received := <-projectCh:
		if received.ID != event.ID {
			t.Errorf("project subscriber: expected %s, got %s", event.ID, received.ID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("project subscriber did not receive event")
	}

	select {
	case received := <-broadcastCh:
		if received.ID != event.ID {
			t.Errorf("broadcast subscriber: expected %s, got %s", event.ID, received.ID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("broadcast subscriber did not receive event")
	}

	bus.Unsubscribe(1, projectCh)
	bus.Unsubscribe(0, broadcastCh)
}

func TestBusPublishWithBroadcastProjectReachesEverySubscriber(t *testing.T) {
	bus := NewBus(nil)
	ch1 := bus.Subscribe(1, []Type{ProjectCreated})
	ch2 := bus.Subscribe(2, []Type{ProjectCreated})

	event := New(ProjectCreated, 0, "0", map[string]interface{}{})
	bus.Publish(event)

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.ID != event.ID {
				t.Errorf("expected %s, got %s", event.ID, received.ID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("subscriber did not receive broadcast event")
		}
	}

	bus.Unsubscribe(1, ch1)
	bus.Unsubscribe(2, ch2)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	ch := bus.Subscribe(1, []Type{TaskReady})

	bus.Publish(New(TaskReady, 1, "1", map[string]interface{}{}))
	select {
	case <-ch:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("did not receive first event")
	}

	bus.Unsubscribe(1, ch)
	bus.Publish(New(TaskReady, 1, "1", map[string]interface{}{}))

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("should not receive event after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBusNoTypeFilterReceivesEverything(t *testing.T) {
	bus := NewBus(nil)
	ch := bus.Subscribe(1, nil)

	bus.Publish(New(TaskReady, 1, "1", map[string]interface{}{}))
	bus.Publish(New(TaskCompleted, 1, "1", map[string]interface{}{}))
	bus.Publish(New(BlockerCreated, 1, "1", map[string]interface{}{}))

	received := make(map[Type]bool)
	for i := 0; i < 3; i++ {
		select {
		case event := <-ch:
			received[event.Type] = true
		case <-time.After(100 * time.Millisecond):
			t.Fatal("did not receive all events")
		}
	}

	for _, want := range []Type{TaskReady, TaskCompleted, BlockerCreated} {
		if !received[want] {
			t.Errorf("did not receive %s", want)
		}
	}
}

func TestBusEntityVersionsAreMonotonicPerEntity(t *testing.T) {
	bus := NewBus(nil)
	ch := bus.Subscribe(1, nil)

	bus.Publish(New(TaskStarted, 1, "task-7", map[string]interface{}{}))
	bus.Publish(New(TaskCompleted, 1, "task-7", map[string]interface{}{}))
	bus.Publish(New(TaskStarted, 1, "task-8", map[string]interface{}{}))

	var sawTask7Versions []int64
	for i := 0; i < 3; i++ {
		event := <-ch
		if event.EntityID == "task-7" {
			sawTask7Versions = append(sawTask7Versions, event.Version)
		}
	}

	if len(sawTask7Versions) != 2 || sawTask7Versions[0] != 1 || sawTask7Versions[1] != 2 {
		t.Errorf("expected task-7 versions [1 2], got %v", sawTask7Versions)
	}
}

func TestBusFullChannelDropsRatherThanBlocks(t *testing.T) {
	bus := NewBus(nil)
	ch := bus.Subscribe(1, []Type{TaskReady})

	for i := 0; i < 100; i++ {
		bus.Publish(New(TaskReady, 1, "1", map[string]interface{}{"index": i}))
	}

	done := make(chan bool)
	go func() {
		bus.Publish(New(TaskReady, 1, "1", map[string]interface{}{"index": 100}))
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on full channel instead of dropping")
	}

	if bus.DroppedEventCount() == 0 {
		t.Error("expected at least one dropped event once the buffer filled up")
	}

	bus.Unsubscribe(1, ch)
}
