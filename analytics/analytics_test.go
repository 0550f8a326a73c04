package analytics

import (
	"testing"
	"time"

	"questkit/core"
)

func TestDAUCountsUniqueUsers(t *testing.T) {
	dau := NewDAU()
	day := time.Now().UTC().Format("2006-01-02")

	dau.OnEvent(core.NewQuestAssigned(1, 1, 1, 1, 3))
	dau.OnEvent(core.NewProgressAdvanced(1, 1, 1, 2, 3))
	dau.OnEvent(core.NewQuestAssigned(2, 1, 1, 1, 3))

	if got := dau.Count(day); got != 2 {
		t.Fatalf("expected 2 active users, got %d", got)
	}
	if got := dau.Count("1999-01-01"); got != 0 {
		t.Fatalf("expected 0 for empty day, got %d", got)
	}
}

func TestQuestMetricsAggregation(t *testing.T) {
	m := NewQuestMetrics()
	day := time.Now().UTC().Format("2006-01-02")

	m.OnEvent(core.NewQuestCompleted(1, 5, 1))
	m.OnEvent(core.NewQuestClaimed(1, 5, 1, core.ItemGold, 50))
	m.OnEvent(core.NewQuestClaimed(2, 5, 1, core.ItemGold, 50))
	m.OnEvent(core.NewQuestClaimed(2, 6, 1, core.ItemDiamond, 5))
	m.OnEvent(core.NewSettlementFailed(3, 5, 1, "wallet down"))
	m.OnEvent(core.NewSettlementRecovered(3, 5, 1))

	if got := m.CompletionsOn(day); got != 1 {
		t.Fatalf("expected 1 completion, got %d", got)
	}
	if got := m.Claims(5); got != 2 {
		t.Fatalf("expected 2 claims for quest 5, got %d", got)
	}
	if got := m.Granted(core.ItemGold); got != 100 {
		t.Fatalf("expected 100 gold granted, got %d", got)
	}
	if got := m.Granted(core.ItemDiamond); got != 5 {
		t.Fatalf("expected 5 diamonds granted, got %d", got)
	}
	if m.SettlementFailures() != 1 || m.SettlementRecoveries() != 1 {
		t.Fatalf("unexpected settlement counters: %d/%d", m.SettlementFailures(), m.SettlementRecoveries())
	}
	if got := m.EventCount(core.EventQuestClaimed); got != 3 {
		t.Fatalf("expected 3 claim events, got %d", got)
	}
}

func TestBridgeFansOut(t *testing.T) {
	m1 := NewQuestMetrics()
	m2 := NewQuestMetrics()
	bridge := NewBridge(m1, m2)

	bridge.OnEvent(core.NewQuestClaimed(1, 5, 1, core.ItemGold, 50))

	if m1.Claims(5) != 1 || m2.Claims(5) != 1 {
		t.Fatalf("bridge did not fan out: %d/%d", m1.Claims(5), m2.Claims(5))
	}
}

func TestSnapshot(t *testing.T) {
	m := NewQuestMetrics()
	m.OnEvent(core.NewQuestClaimed(1, 5, 1, core.ItemGold, 50))
	m.OnEvent(core.NewSettlementFailed(2, 5, 1, "wallet down"))

	snap := m.Snapshot()
	if snap.Claims[5] != 1 || snap.Granted[core.ItemGold] != 50 || snap.Failures != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.GeneratedAt.IsZero() {
		t.Fatal("snapshot missing timestamp")
	}

	// Snapshot maps are copies, not views.
	snap.Claims[5] = 99
	if m.Claims(5) != 1 {
		t.Fatal("snapshot mutation leaked into metrics")
	}
}
