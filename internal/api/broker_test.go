package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	rid := "r1"
	ch := b.Subscribe(rid)

	evt := SSEEvent{Type: "test.event", Data: map[string]any{"x": 1}}
	b.Publish(rid, evt)
	b.Publish("other", SSEEvent{Type: "ignored"})

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["x"].(int) != 1 {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(rid, ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// a second unsubscribe and a late publish are harmless
	b.Unsubscribe(rid, ch)
	b.Publish(rid, evt)
}

func TestBrokerSlowSubscriberDrops(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("r")
	defer b.Unsubscribe("r", ch)
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(ch)+10; i++ {
			b.Publish("r", SSEEvent{Type: "e"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffer holds %d, want %d", len(ch), cap(ch))
	}
}
