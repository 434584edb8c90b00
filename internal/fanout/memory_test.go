package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_DeliversInPublishOrder(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, ChannelKey("t1"))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		payload, _ := json.Marshal(map[string]int{"seq": i})
		err := bus.Publish(ctx, ChannelKey("t1"), Event{
			Kind:       KindMessageCreated,
			TenantID:   "t1",
			ThreadID:   "th1",
			Payload:    payload,
			OccurredAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	for i := 0; i < 5; i++ {
		select {
		case ev := <-ch:
			var body map[string]int
			require.NoError(t, json.Unmarshal(ev.Payload, &body))
			assert.Equal(t, i, body["seq"], "delivery order")
		case <-time.After(time.Second):
			t.Fatalf("event %d never arrived", i)
		}
	}
}

func TestMemoryBus_ChannelsAreIsolated(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chA, err := bus.Subscribe(ctx, ChannelKey("tenant-a"))
	require.NoError(t, err)
	chB, err := bus.Subscribe(ctx, ChannelKey("tenant-b"))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, ChannelKey("tenant-a"), Event{Kind: KindMessageCreated, TenantID: "tenant-a"}))

	select {
	case ev := <-chA:
		assert.Equal(t, "tenant-a", ev.TenantID)
	case <-time.After(time.Second):
		t.Fatal("subscriber A got nothing")
	}
	select {
	case ev := <-chB:
		t.Fatalf("cross-tenant event leaked: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Never drained; its buffer fills and overflow is dropped for it alone.
	_, err := bus.Subscribe(ctx, ChannelKey("t1"))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			bus.Publish(ctx, ChannelKey("t1"), Event{Kind: KindMessageCreated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestMemoryBus_UnsubscribeOnContextCancel(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, ChannelKey("t1"))
	require.NoError(t, err)

	cancel()

	// The channel closes once the unsubscribe goroutine runs.
	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("channel never closed after cancel")
		}
	}
}

func TestMemoryBus_CloseIsIdempotent(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	ch, err := bus.Subscribe(ctx, ChannelKey("t1"))
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	_, open := <-ch
	assert.False(t, open, "subscriber channel left open after close")

	// Publishing after close is a silent no-op.
	assert.NoError(t, bus.Publish(ctx, ChannelKey("t1"), Event{Kind: KindMessageCreated}))
}

func TestChannelKey(t *testing.T) {
	assert.Equal(t, "threads:t-42", ChannelKey("t-42"))
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), "any", Event{}))
	assert.NoError(t, p.Close())
}

func ExampleMemoryBus() {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx := context.Background()

	ch, _ := bus.Subscribe(ctx, ChannelKey("t1"))
	bus.Publish(ctx, ChannelKey("t1"), Event{Kind: KindMessageCreated, TenantID: "t1"})

	ev := <-ch
	fmt.Println(ev.Kind)
	// Output: message.created
}
