package observer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New(8)
	sub := bus.Subscribe(nil)

	bus.Publish(Event{Type: ConfigChanged, Payload: "new-config"})

	select {
	case e := <-sub.Events():
		assert.Equal(t, ConfigChanged, e.Type)
		assert.Equal(t, "new-config", e.Payload)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestFilterExcludesNonMatchingEvents(t *testing.T) {
	bus := New(8)
	sub := bus.Subscribe(func(e Event) bool { return e.Type == CredentialMutated })

	bus.Publish(Event{Type: RoutingChanged})
	bus.Publish(Event{Type: CredentialMutated})

	select {
	case e := <-sub.Events():
		assert.Equal(t, CredentialMutated, e.Type)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	assert.Empty(t, sub.Events())
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := New(1)
	sub := bus.Subscribe(nil)

	bus.Publish(Event{Type: RoutingChanged})
	bus.Publish(Event{Type: RoutingChanged})
	bus.Publish(Event{Type: RoutingChanged})

	assert.Equal(t, int64(2), sub.OverflowCount())
}

func TestUnsubscribeStopsDeliveryAndClosesChannel(t *testing.T) {
	bus := New(8)
	sub := bus.Subscribe(nil)
	sub.Unsubscribe()

	bus.Publish(Event{Type: RoutingChanged})

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := New(8)
	sub := bus.Subscribe(nil)
	sub.Unsubscribe()
	require.NotPanics(t, sub.Unsubscribe)
}

func TestNoOpEmitterDiscardsEvents(t *testing.T) {
	var e Emitter = NoOpEmitter{}
	require.NotPanics(t, func() { e.Publish(Event{Type: ConfigChanged}) })
}
