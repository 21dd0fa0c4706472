package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// recv waits for the next event on ch.
func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event within 1s")
		return Event{}
	}
}

// quiet asserts nothing else arrives on ch.
func quiet(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryHub_DeliversStampedEvent(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, unsubscribe, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, hub.Publish(ctx, Event{
		Kind:      schema.EventElementCreated,
		ElementID: "A",
		Source:    schema.SourceAPI,
		Payload:   map[string]any{"id": "A", "type": "rectangle"},
	}))

	ev := recv(t, ch)
	assert.Equal(t, schema.EventElementCreated, ev.Kind)
	assert.Equal(t, "A", ev.ElementID)
	assert.Equal(t, schema.SourceAPI, ev.Source)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestMemoryHub_Filters(t *testing.T) {
	published := []Event{
		{Kind: schema.EventElementUpdated, ElementID: "A"},
		{Kind: schema.EventElementUpdated, ElementID: "B"},
		{Kind: schema.EventElementsSynced},
		{Kind: schema.EventDiagramConverted, ConversionID: "conv-1"},
	}

	tests := []struct {
		name   string
		filter EventFilter
		want   []string
	}{
		{"element", EventFilter{ElementID: "A"}, []string{schema.EventElementUpdated}},
		{"kinds", EventFilter{Kinds: []string{schema.EventElementsSynced, schema.EventDiagramConverted}},
			[]string{schema.EventElementsSynced, schema.EventDiagramConverted}},
		{"element and kind", EventFilter{ElementID: "B", Kinds: []string{schema.EventElementDeleted}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewMemoryHub()
			ctx := context.Background()
			ch, unsubscribe, err := hub.Subscribe(ctx, tt.filter)
			require.NoError(t, err)
			defer unsubscribe()

			for _, ev := range published {
				require.NoError(t, hub.Publish(ctx, ev))
			}
			var got []string
			for range tt.want {
				got = append(got, recv(t, ch).Kind)
			}
			assert.Equal(t, tt.want, got)
			quiet(t, ch)
		})
	}
}

func TestMemoryHub_FanOut(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	var chans []<-chan Event
	for range 3 {
		ch, unsubscribe, err := hub.Subscribe(ctx, EventFilter{})
		require.NoError(t, err)
		defer unsubscribe()
		chans = append(chans, ch)
	}
	assert.Equal(t, 3, hub.Subscribers())

	require.NoError(t, hub.Publish(ctx, Event{Kind: schema.EventElementDeleted, ElementID: "C"}))
	for _, ch := range chans {
		assert.Equal(t, "C", recv(t, ch).ElementID)
	}
}

func TestMemoryHub_Unsubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, unsubscribe, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()

	require.NoError(t, hub.Publish(ctx, Event{Kind: schema.EventElementCreated}))
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, hub.Subscribers())
}

func TestMemoryHub_SlowSubscriberDrops(t *testing.T) {
	hub := NewMemoryHub(WithBuffer(4))
	ctx := context.Background()

	ch, unsubscribe, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer unsubscribe()

	for range 10 {
		require.NoError(t, hub.Publish(ctx, Event{Kind: schema.EventSyncStatus}))
	}
	assert.Len(t, ch, 4)
	assert.Equal(t, uint64(6), hub.Dropped())
}

func TestMemoryHub_WithBufferIgnoresNonPositive(t *testing.T) {
	assert.Equal(t, DefaultBuffer, NewMemoryHub(WithBuffer(0)).buffer)
	assert.Equal(t, DefaultBuffer, NewMemoryHub(WithBuffer(-3)).buffer)
}

func TestMemoryHub_Concurrent(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 50 {
				_ = hub.Publish(ctx, Event{Kind: schema.EventElementUpdated})
			}
		}()
		go func() {
			defer wg.Done()
			ch, unsubscribe, err := hub.Subscribe(ctx, EventFilter{})
			if err != nil {
				return
			}
			defer unsubscribe()
			for range 5 {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, hub.Subscribers())
}

func TestMemoryHub_CancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, hub.Publish(ctx, Event{Kind: schema.EventSyncStatus}), context.Canceled)
	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
