package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questkit/core"
)

func TestEventBusSyncDispatch(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	defer bus.Close()

	var got []core.Event
	bus.Subscribe(core.EventQuestClaimed, func(_ context.Context, ev core.Event) {
		got = append(got, ev)
	})
	bus.Subscribe(core.EventQuestAssigned, func(_ context.Context, ev core.Event) {
		t.Errorf("wrong type delivered: %v", ev)
	})

	bus.Publish(context.Background(), core.NewQuestClaimed(7, 1, 1, core.ItemGold, 50))

	require.Len(t, got, 1)
	assert.Equal(t, core.UserID(7), got[0].UserID)
	assert.Equal(t, 50, got[0].Qty)
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	defer bus.Close()

	calls := 0
	unsub := bus.Subscribe(core.EventQuestCompleted, func(context.Context, core.Event) {
		calls++
	})

	bus.Publish(context.Background(), core.NewQuestCompleted(7, 1, 1))
	unsub()
	bus.Publish(context.Background(), core.NewQuestCompleted(7, 1, 1))

	assert.Equal(t, 1, calls)
}

func TestEventBusAsyncDispatch(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()

	var (
		mu  sync.Mutex
		got int
	)
	done := make(chan struct{})
	bus.Subscribe(core.EventProgressAdvanced, func(context.Context, core.Event) {
		mu.Lock()
		got++
		if got == 3 {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < 3; i++ {
		bus.Publish(context.Background(), core.NewProgressAdvanced(7, 1, 1, i+1, 3))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async events not delivered")
	}
}
