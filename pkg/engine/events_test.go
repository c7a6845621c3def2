package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventBusSubscriptionOrder(t *testing.T) {
	bus := newEventBus()
	var order []string
	bus.Subscribe(func(Event) { order = append(order, "first") })
	bus.Subscribe(func(Event) { order = append(order, "second") })
	bus.Subscribe(func(Event) { order = append(order, "third") })

	bus.Emit(DestroyedEvent{})
	require.Equal(t, []string{"first", "second", "third"}, order)
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := newEventBus()
	var calls int
	unsubscribe := bus.Subscribe(func(Event) { calls++ })

	bus.Emit(DestroyedEvent{})
	unsubscribe()
	bus.Emit(DestroyedEvent{})
	require.Equal(t, 1, calls)

	// unsubscribing twice is harmless
	unsubscribe()
}

func TestEventBusReentrantSubscribe(t *testing.T) {
	bus := newEventBus()
	var nested int
	bus.Subscribe(func(Event) {
		// subscribing from inside a callback must not deadlock; the new
		// subscriber only sees future events
		bus.Subscribe(func(Event) { nested++ })
	})
	bus.Emit(DestroyedEvent{})
	require.Zero(t, nested)
	bus.Emit(DestroyedEvent{})
	require.Equal(t, 1, nested)
}
