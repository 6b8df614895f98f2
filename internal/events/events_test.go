package events

import (
	"testing"
	"time"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	bus.Publish(Event{Kind: KindProgress, Payload: ProgressPayload{SessionID: "sess-1", Percent: 50}})

	select {
	case ev := <-ch:
		p, ok := ev.Payload.(ProgressPayload)
		if !ok || p.SessionID != "sess-1" {
			t.Fatalf("unexpected payload: %+v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected event, got none")
	}
}

func TestBus_FansOutToAllSubscribers(t *testing.T) {
	bus := NewBus()
	ch1, unsub1 := bus.Subscribe(4)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe(4)
	defer unsub2()

	bus.Publish(Event{Kind: KindError, Payload: ErrorPayload{SessionID: "sess-1"}})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("expected every subscriber to receive the event")
		}
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(4)
	unsub()

	bus.Publish(Event{Kind: KindProgress})

	_, open := <-ch
	if open {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
}

func TestBus_FullBufferDropsRatherThanBlocks(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Kind: KindProgress})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on a full subscriber buffer")
	}

	<-ch // drain the one buffered event so the test doesn't leak a goroutine
}
