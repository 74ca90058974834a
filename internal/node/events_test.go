package node

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestEventBusEmitOn(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var received Event

	eb.On(EventMotion, func(e Event) {
		received = e
	})

	eb.Emit(Event{Type: EventMotion, Data: "test"})

	if received.Type != EventMotion {
		t.Errorf("type = %q, want %q", received.Type, EventMotion)
	}
	if received.Data != "test" {
		t.Errorf("data = %v, want %q", received.Data, "test")
	}
}

func TestEventBusOnDoesNotReceiveOtherTypes(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	called := false

	eb.On(EventMotion, func(e Event) {
		called = true
	})

	eb.Emit(Event{Type: EventTimeout})

	if called {
		t.Error("handler called for wrong event type")
	}
}

func TestEventBusOnAllUnsubscribe(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	unsub := eb.OnAll(func(e Event) {
		count.Add(1)
	})

	eb.Emit(Event{Type: EventMotion})
	eb.Emit(Event{Type: EventLevel})
	unsub()
	eb.Emit(Event{Type: EventMotion})

	if count.Load() != 2 {
		t.Errorf("onAll called %d times, want 2", count.Load())
	}
}

func TestEventBusPanicRecovery(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var called atomic.Int32

	eb.On(EventCommand, func(e Event) {
		called.Add(1)
		panic("test panic")
	})
	eb.On(EventCommand, func(e Event) {
		called.Add(1)
	})

	eb.Emit(Event{Type: EventCommand})

	if c := called.Load(); c != 2 {
		t.Errorf("expected 2 handlers called, got %d", c)
	}
}

func TestEventBusConcurrentEmit(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	eb.OnAll(func(e Event) {
		count.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eb.Emit(Event{Type: EventLevel})
		}()
	}
	wg.Wait()

	if c := count.Load(); c != 50 {
		t.Errorf("count = %d, want 50", c)
	}
}

func TestEventTypes(t *testing.T) {
	types := EventTypes()
	if len(types) != 9 {
		t.Fatalf("types = %v", types)
	}
	for _, typ := range types {
		if !IsEventType(typ) {
			t.Errorf("IsEventType(%q) = false", typ)
		}
	}
	if IsEventType("device_joined") {
		t.Error("unknown type accepted")
	}
	types[0] = "changed"
	if EventTypes()[0] == "changed" {
		t.Error("EventTypes returned shared slice")
	}
}
