package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"questkit/core"
)

func TestHubSubscribeBroadcastUnsubscribe(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)

	ev := core.NewProgressAdvanced(7, 1, 1, 2, 3)
	h.Broadcast(context.Background(), ev)

	received := <-ch
	if received.UserID != 7 || received.Type != core.EventProgressAdvanced {
		t.Fatalf("unexpected event: %+v", received)
	}

	h.Unsubscribe(id)
	_, ok := <-ch
	if ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := NewHub()
	_, ch := h.Subscribe(1)

	h.Broadcast(context.Background(), core.NewQuestCompleted(7, 1, 1))
	h.Broadcast(context.Background(), core.NewQuestCompleted(7, 2, 1))

	// Buffer of one keeps the first event; the second is dropped, not blocked on.
	ev := <-ch
	if ev.QuestID != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	select {
	case ev := <-ch:
		t.Fatalf("expected drop, got %+v", ev)
	default:
	}
}

func TestMarshalJSON(t *testing.T) {
	ev := core.NewQuestClaimed(7, 1, 1, core.ItemGold, 50)
	b := MarshalJSON(ev)
	var out core.Event
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Item != core.ItemGold || out.Qty != 50 {
		t.Fatalf("unexpected event: %+v", out)
	}
}
