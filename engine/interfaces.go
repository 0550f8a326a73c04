package engine

import (
	"context"

	"questkit/core"
)

// Ledger abstracts persistence for progress records. Upsert is a
// compare-and-swap: it fails with core.ErrConflict when the stored state
// no longer matches the expectation, never overwriting silently.
type Ledger interface {
	Read(ctx context.Context, user core.UserID, quest core.QuestID) (core.ProgressRecord, error)
	Upsert(ctx context.Context, rec core.ProgressRecord, expected core.ExpectedState) error
	SetSettlement(ctx context.Context, user core.UserID, quest core.QuestID, cycle int, state core.SettlementState) error
	CountAssignments(ctx context.Context, user core.UserID, quest core.QuestID) (int, error)
	ListByUser(ctx context.Context, user core.UserID) ([]core.ProgressRecord, error)
	ListUnsettled(ctx context.Context, limit int) ([]core.ProgressRecord, error)
}

// Catalog is the read-only quest/reward catalog, reachable over the
// network and possibly slow or unavailable.
type Catalog interface {
	Quest(ctx context.Context, id core.QuestID) (core.QuestDefinition, error)
	Quests(ctx context.Context) ([]core.QuestDefinition, error)
	Reward(ctx context.Context, id core.RewardID) (core.RewardDefinition, error)
}

// Wallet grants currency in the external identity/wallet service. Calls
// carry a deterministic idempotency key so at-least-once retries are safe.
type Wallet interface {
	Grant(ctx context.Context, user core.UserID, item core.RewardItem, qty int, idempotencyKey string) error
}
