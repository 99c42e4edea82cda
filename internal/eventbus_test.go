package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch chan Notification) Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(time.Second):
		t.Fatal("notification not received")
	}
	return Notification{}
}

func TestEventBusRoutesBySession(t *testing.T) {
	bus := NewEventBus(4)
	d1 := bus.Sub("d1")
	d2 := bus.Sub("d2")

	bus.Notify(Notification{ID: "d1", Kind: NotificationSetMessage, Payload: map[string]interface{}{"status": "LOADING"}})
	bus.Notify(Notification{ID: "d2", Kind: NotificationReadyState, Payload: map[string]interface{}{"value": true}})

	n := receive(t, d1)
	assert.Equal(t, NotificationSetMessage, n.Kind)
	assert.Equal(t, "LOADING", n.Payload["status"])
	n = receive(t, d2)
	assert.Equal(t, NotificationReadyState, n.Kind)

	select {
	case n := <-d1:
		t.Fatalf("unexpected notification %v", n)
	default:
	}
}

func TestEventBusAddSubAndUnsub(t *testing.T) {
	bus := NewEventBus(0)
	ch := bus.Sub("d1")
	bus.AddSub(ch, "d2")

	go bus.Notify(Notification{ID: "d2", Kind: NotificationSetCamera})
	assert.Equal(t, NotificationSetCamera, receive(t, ch).Kind)

	done := make(chan struct{})
	go func() {
		bus.Unsub(ch)
		close(done)
	}()
	for range ch {
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "unsub did not return")
	}
}
