package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(SyncStarted{Kind: "asset"})
	bus.Publish(SyncCompleted{Kind: "asset", Latest: "h1", Count: 10})

	got := <-ch
	started, ok := got.(SyncStarted)
	require.True(t, ok)
	assert.Equal(t, "asset", started.Kind)

	got = <-ch
	completed, ok := got.(SyncCompleted)
	require.True(t, ok)
	assert.Equal(t, "h1", completed.Latest)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	cancel()

	// Channel is closed after cancel; publish must not panic.
	bus.Publish(SyncStarted{Kind: "asset"})
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, bus.Count())

	// Second cancel is a no-op.
	cancel()
}

func TestBus_SlowConsumerDoesNotBlock(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe()
	defer cancel()

	// Overflow the subscriber buffer; Publish must never block.
	for i := 0; i < subscriberBuffer*2; i++ {
		bus.Publish(SyncProgress{Kind: "asset", Done: i})
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()
	a, cancelA := bus.Subscribe()
	b, cancelB := bus.Subscribe()
	defer cancelA()
	defer cancelB()

	bus.Publish(DownloadCompleted{Kind: "asset", Path: "a.png", LocalPath: "/x/a.png"})

	for _, ch := range []<-chan Event{a, b} {
		got := <-ch
		done, ok := got.(DownloadCompleted)
		require.True(t, ok)
		assert.Equal(t, "/x/a.png", done.LocalPath)
	}
}
