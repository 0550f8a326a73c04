package analytics

import (
	"sync"
	"time"

	"questkit/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// BridgeHook bridges an event source to multiple hooks.
type BridgeHook struct{ hooks []Hook }

func NewBridge(hooks ...Hook) *BridgeHook { return &BridgeHook{hooks: hooks} }

func (b *BridgeHook) OnEvent(e core.Event) {
	for _, h := range b.hooks {
		h.OnEvent(e)
	}
}

// DAU tracks daily active users.
type DAU struct {
	mu   sync.Mutex
	days map[string]map[core.UserID]struct{}
}

func NewDAU() *DAU { return &DAU{days: map[string]map[core.UserID]struct{}{}} }

func (d *DAU) OnEvent(e core.Event) {
	day := time.Unix(e.Time.Unix(), 0).UTC().Format("2006-01-02")
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.days[day]
	if m == nil {
		m = map[core.UserID]struct{}{}
		d.days[day] = m
	}
	m[e.UserID] = struct{}{}
}

func (d *DAU) Count(day string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.days[day])
}

// QuestMetrics aggregates quest lifecycle counters.
type QuestMetrics struct {
	mu sync.RWMutex

	eventsByType      map[core.EventType]int64
	completionsByDay  map[string]int64
	claimsByQuest     map[core.QuestID]int64
	grantedByItem     map[core.RewardItem]int64
	settlementFailed  int64
	settlementRescued int64
}

func NewQuestMetrics() *QuestMetrics {
	return &QuestMetrics{
		eventsByType:     make(map[core.EventType]int64),
		completionsByDay: make(map[string]int64),
		claimsByQuest:    make(map[core.QuestID]int64),
		grantedByItem:    make(map[core.RewardItem]int64),
	}
}

func (m *QuestMetrics) OnEvent(e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.eventsByType[e.Type]++
	switch e.Type {
	case core.EventQuestCompleted:
		day := e.Time.UTC().Format("2006-01-02")
		m.completionsByDay[day]++
	case core.EventQuestClaimed:
		m.claimsByQuest[e.QuestID]++
		m.grantedByItem[e.Item] += int64(e.Qty)
	case core.EventSettlementFailed:
		m.settlementFailed++
	case core.EventSettlementRecovered:
		m.settlementRescued++
	}
}

// EventCount returns how often the given event type fired.
func (m *QuestMetrics) EventCount(typ core.EventType) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventsByType[typ]
}

// CompletionsOn returns completed-quest count for a YYYY-MM-DD day.
func (m *QuestMetrics) CompletionsOn(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.completionsByDay[day]
}

// Claims returns how many times the quest was claimed.
func (m *QuestMetrics) Claims(quest core.QuestID) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.claimsByQuest[quest]
}

// Granted returns the total quantity granted for a currency.
func (m *QuestMetrics) Granted(item core.RewardItem) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.grantedByItem[item]
}

// SettlementFailures returns how many settlements have failed.
func (m *QuestMetrics) SettlementFailures() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settlementFailed
}

// SettlementRecoveries returns how many failed settlements were rescued.
func (m *QuestMetrics) SettlementRecoveries() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settlementRescued
}

// Snapshot is a point-in-time export of the aggregated counters.
type Snapshot struct {
	Events      map[core.EventType]int64  `json:"events"`
	Claims      map[core.QuestID]int64    `json:"claims"`
	Granted     map[core.RewardItem]int64 `json:"granted"`
	Failures    int64                     `json:"settlement_failures"`
	Recoveries  int64                     `json:"settlement_recoveries"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

func (m *QuestMetrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Events:      make(map[core.EventType]int64, len(m.eventsByType)),
		Claims:      make(map[core.QuestID]int64, len(m.claimsByQuest)),
		Granted:     make(map[core.RewardItem]int64, len(m.grantedByItem)),
		Failures:    m.settlementFailed,
		Recoveries:  m.settlementRescued,
		GeneratedAt: time.Now().UTC(),
	}
	for k, v := range m.eventsByType {
		snap.Events[k] = v
	}
	for k, v := range m.claimsByQuest {
		snap.Claims[k] = v
	}
	for k, v := range m.grantedByItem {
		snap.Granted[k] = v
	}
	return snap
}
