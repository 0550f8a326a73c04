package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// UserID identifies a user account in the wallet/identity service.
type UserID int64

// QuestID identifies a quest definition in the catalog.
type QuestID int64

// RewardID identifies a reward definition in the catalog.
type RewardID int64

// RewardItem is the currency granted by a reward.
type RewardItem string

const (
	ItemGold    RewardItem = "gold"
	ItemDiamond RewardItem = "diamond"
)

// Status is the lifecycle state of one quest assignment. It only moves
// forward: in_progress -> completed -> claimed (or in_progress -> claimed
// when the quest auto-claims).
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusClaimed    Status = "claimed"
)

// rank orders statuses for the forward-only check.
func (s Status) rank() int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	case StatusClaimed:
		return 3
	}
	return 0
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool { return s.rank() > 0 }

// CanAdvanceTo reports whether moving from s to next respects the
// forward-only ordering. Equal statuses are allowed for progress-only
// updates while in_progress.
func (s Status) CanAdvanceTo(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return s == StatusInProgress
	}
	return next.rank() > s.rank()
}

// SettlementState tracks the currency grant owed by a claimed record.
// Empty means no settlement applies (record not yet claimed).
type SettlementState string

const (
	SettlementPending SettlementState = "pending"
	SettlementSettled SettlementState = "settled"
	SettlementFailed  SettlementState = "failed"
)

// QuestDefinition is a read-only quest description owned by the catalog
// service. Immutable for the duration of one event-processing operation.
type QuestDefinition struct {
	QuestID     QuestID  `json:"quest_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Streak      int      `json:"streak"`
	Duplication int      `json:"duplication"`
	AutoClaim   bool     `json:"auto_claim"`
	RewardID    RewardID `json:"reward_id"`
}

// RewardDefinition is a read-only reward description owned by the catalog.
type RewardDefinition struct {
	RewardID RewardID   `json:"reward_id"`
	Name     string     `json:"reward_name"`
	Item     RewardItem `json:"reward_item"`
	Qty      int        `json:"reward_qty"`
}

// ProgressRecord is the durable state of one (user, quest) pair. Cycle
// numbers assignment lifecycles starting at 1; a new cycle may only open
// after the previous one is claimed and only while the quest's duplication
// limit permits.
type ProgressRecord struct {
	UserID     UserID          `json:"user_id" db:"user_id"`
	QuestID    QuestID         `json:"quest_id" db:"quest_id"`
	Cycle      int             `json:"cycle" db:"cycle"`
	Status     Status          `json:"status" db:"status"`
	Progress   int             `json:"progress" db:"progress"`
	Settlement SettlementState `json:"settlement,omitempty" db:"settlement"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// SettlementKey derives the idempotency key for the grant owed by this
// record's current cycle. Deterministic so a retried grant can be
// deduplicated on the wallet side.
func (r ProgressRecord) SettlementKey() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("settle:%d:%d:%d", r.UserID, r.QuestID, r.Cycle)))
	return hex.EncodeToString(sum[:16])
}

// ValidateUserID rejects non-positive user identifiers.
func ValidateUserID(id UserID) error {
	if id <= 0 {
		return fmt.Errorf("%w: user id must be positive", ErrInvalidArgument)
	}
	return nil
}

// ValidateQuestID rejects non-positive quest identifiers.
func ValidateQuestID(id QuestID) error {
	if id <= 0 {
		return fmt.Errorf("%w: quest id must be positive", ErrInvalidArgument)
	}
	return nil
}

// ValidateDefinition sanity-checks a catalog quest before the engine
// trusts its thresholds.
func ValidateDefinition(def QuestDefinition) error {
	if def.QuestID <= 0 {
		return fmt.Errorf("%w: quest id must be positive", ErrInvalidArgument)
	}
	if def.Streak <= 0 {
		return fmt.Errorf("%w: streak must be positive", ErrInvalidArgument)
	}
	if def.Duplication <= 0 {
		return fmt.Errorf("%w: duplication must be positive", ErrInvalidArgument)
	}
	return nil
}
