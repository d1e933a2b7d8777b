package bus

import (
	"context"
	"testing"
	"time"
)

type statusEvent struct {
	state string
}

func TestPublishReachesTopicSubscribers(t *testing.T) {
	b := New(nil, 4)
	defer b.Close()

	sub := b.Subscribe("conn.status")
	other := b.Subscribe("message.in")
	defer b.Unsubscribe(sub)
	defer b.Unsubscribe(other)

	b.Publish("conn.status", statusEvent{state: "connected"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, ok := Next[statusEvent](ctx, sub)
	if !ok {
		t.Fatalf("expected status event")
	}
	if got.state != "connected" {
		t.Fatalf("unexpected state %q", got.state)
	}

	select {
	case raw := <-other:
		t.Fatalf("unexpected event on other topic: %v", raw)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestNextSkipsForeignPayloads(t *testing.T) {
	b := New(nil, 4)
	defer b.Close()

	sub := b.Subscribe("conn.status")
	defer b.Unsubscribe(sub)

	b.Publish("conn.status", "noise")
	b.Publish("conn.status", statusEvent{state: "disconnected"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, ok := Next[statusEvent](ctx, sub)
	if !ok || got.state != "disconnected" {
		t.Fatalf("expected disconnected event, got %+v (ok=%v)", got, ok)
	}
}

func TestNextStopsOnContext(t *testing.T) {
	b := New(nil, 1)
	defer b.Close()

	sub := b.Subscribe("conn.status")
	defer b.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := Next[statusEvent](ctx, sub); ok {
		t.Fatalf("expected Next to give up on cancelled context")
	}
}

func TestPayloadType(t *testing.T) {
	if got := payloadType(nil); got != "<nil>" {
		t.Fatalf("unexpected nil payload type %q", got)
	}
	if got := payloadType(statusEvent{}); got != "bus.statusEvent" {
		t.Fatalf("unexpected payload type %q", got)
	}
}

func TestUseAfterCloseDoesNotBlock(t *testing.T) {
	b := New(nil, 1)
	sub := b.Subscribe("conn.status")
	b.Close()
	b.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Publish("conn.status", statusEvent{state: "connected"})
		b.Unsubscribe(sub)
		late := b.Subscribe("conn.status")
		if _, ok := <-late; ok {
			t.Errorf("expected late subscription to be closed")
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("bus blocked after close")
	}
	if _, ok := <-sub; ok {
		t.Fatalf("expected existing subscription to be closed by shutdown")
	}
}
