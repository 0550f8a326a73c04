package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventQuestAssigned       EventType = "quest_assigned"
	EventProgressAdvanced    EventType = "progress_advanced"
	EventQuestCompleted      EventType = "quest_completed"
	EventQuestClaimed        EventType = "quest_claimed"
	EventSettlementFailed    EventType = "settlement_failed"
	EventSettlementRecovered EventType = "settlement_recovered"
)

// Event represents an immutable domain event.
type Event struct {
	Type     EventType      `json:"type"`
	Time     time.Time      `json:"time"`
	UserID   UserID         `json:"user_id"`
	QuestID  QuestID        `json:"quest_id,omitempty"`
	Cycle    int            `json:"cycle,omitempty"`
	Progress int            `json:"progress,omitempty"`
	Streak   int            `json:"streak,omitempty"`
	Item     RewardItem     `json:"item,omitempty"`
	Qty      int            `json:"qty,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewQuestAssigned(user UserID, quest QuestID, cycle, progress, streak int) Event {
	return Event{Type: EventQuestAssigned, Time: time.Now().UTC(), UserID: user, QuestID: quest, Cycle: cycle, Progress: progress, Streak: streak}
}

func NewProgressAdvanced(user UserID, quest QuestID, cycle, progress, streak int) Event {
	return Event{Type: EventProgressAdvanced, Time: time.Now().UTC(), UserID: user, QuestID: quest, Cycle: cycle, Progress: progress, Streak: streak}
}

func NewQuestCompleted(user UserID, quest QuestID, cycle int) Event {
	return Event{Type: EventQuestCompleted, Time: time.Now().UTC(), UserID: user, QuestID: quest, Cycle: cycle}
}

func NewQuestClaimed(user UserID, quest QuestID, cycle int, item RewardItem, qty int) Event {
	return Event{Type: EventQuestClaimed, Time: time.Now().UTC(), UserID: user, QuestID: quest, Cycle: cycle, Item: item, Qty: qty}
}

func NewSettlementFailed(user UserID, quest QuestID, cycle int, reason string) Event {
	return Event{Type: EventSettlementFailed, Time: time.Now().UTC(), UserID: user, QuestID: quest, Cycle: cycle, Metadata: map[string]any{"reason": reason}}
}

func NewSettlementRecovered(user UserID, quest QuestID, cycle int) Event {
	return Event{Type: EventSettlementRecovered, Time: time.Now().UTC(), UserID: user, QuestID: quest, Cycle: cycle}
}
