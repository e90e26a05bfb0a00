package events

import (
	"testing"
	"time"
)

func TestEmitDeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus()
	planCh, cancelPlan := bus.Subscribe(TypePlanReady)
	defer cancelPlan()
	allCh, cancelAll := bus.Subscribe("*")
	defer cancelAll()
	toolCh, cancelTool := bus.Subscribe(TypeToolStart)
	defer cancelTool()

	bus.Emit(TypePlanReady, map[string]interface{}{"intent": "task"})

	select {
	case e := <-planCh:
		if e.Type != TypePlanReady {
			t.Errorf("event type = %q", e.Type)
		}
		if e.TS.IsZero() {
			t.Error("event timestamp not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("typed subscriber missed event")
	}
	select {
	case e := <-allCh:
		if e.Type != TypePlanReady {
			t.Errorf("wildcard got %q", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("wildcard subscriber missed event")
	}
	select {
	case e := <-toolCh:
		t.Fatalf("tool subscriber got unrelated event %q", e.Type)
	default:
	}
}

func TestEmitNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe("*")
	defer cancel()

	// Nobody drains; the buffer fills and further emits drop.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			bus.Emit(TypeToolInvoked, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a full subscriber")
	}
}

func TestEmitWithNoSubscribers(t *testing.T) {
	bus := NewBus()
	// Must be a no-op, not a panic.
	bus.Emit(TypeRequestReceived, nil)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("*")
	cancel()
	cancel() // idempotent

	bus.Emit(TypeMemoryUpsert, nil)

	// The channel is closed after cancel; a receive reports closed, not an
	// event.
	if e, ok := <-ch; ok {
		t.Errorf("received %+v after unsubscribe", e)
	}
}
