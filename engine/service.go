package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"questkit/core"
)

// casAttempts bounds how often a lost compare-and-swap race is retried
// from a fresh read before surfacing core.ErrConflict.
const casAttempts = 3

// QuestService owns the quest-progress state machine and the reward
// settlement protocol. All read-modify-write sequences on a progress
// record go through conditional writes; the wallet grant happens only
// after the write that moves a record into claimed has succeeded.
type QuestService struct {
	ledger  Ledger
	catalog Catalog
	wallet  Wallet
	bus     *EventBus
	log     *slog.Logger
	now     func() time.Time
}

func NewQuestService(ledger Ledger, catalog Catalog, wallet Wallet, bus *EventBus) *QuestService {
	if ledger == nil || catalog == nil || wallet == nil || bus == nil {
		panic("NewQuestService requires non-nil ledger, catalog, wallet, and bus")
	}
	return &QuestService{
		ledger:  ledger,
		catalog: catalog,
		wallet:  wallet,
		bus:     bus,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Bus exposes the underlying event bus for wiring additional consumers.
func (s *QuestService) Bus() *EventBus { return s.bus }

// Subscribe convenience method.
func (s *QuestService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *QuestService) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

func (s *QuestService) Close() { s.bus.Close() }

// Assign manually assigns a quest to a user, opening a new lifecycle when
// the duplication limit permits.
func (s *QuestService) Assign(ctx context.Context, user core.UserID, quest core.QuestID) (core.ProgressRecord, error) {
	if err := validateIDs(user, quest); err != nil {
		return core.ProgressRecord{}, err
	}
	def, err := s.catalog.Quest(ctx, quest)
	if err != nil {
		return core.ProgressRecord{}, err
	}

	var rec core.ProgressRecord
	err = s.withCASRetry(ctx, func() error {
		prev, expected, err := s.observe(ctx, user, quest)
		if err != nil {
			return err
		}
		if prev == nil {
			count, err := s.ledger.CountAssignments(ctx, user, quest)
			if err != nil {
				return err
			}
			if count >= def.Duplication {
				return fmt.Errorf("%w: quest %d for user %d", core.ErrDuplicationLimit, quest, user)
			}
		}
		d, err := core.DecideAssign(user, prev, def, s.now())
		if err != nil {
			return err
		}
		if err := s.ledger.Upsert(ctx, d.Next, expected); err != nil {
			return err
		}
		rec = d.Next
		return nil
	})
	if err != nil {
		return core.ProgressRecord{}, err
	}

	s.bus.Publish(ctx, core.NewQuestAssigned(user, quest, rec.Cycle, rec.Progress, def.Streak))
	s.log.Info("quest assigned", "user_id", user, "quest_id", quest, "cycle", rec.Cycle)
	return rec, nil
}

// Complete runs an explicit completion check: the record must already have
// reached the streak threshold. Auto-claim quests settle immediately.
func (s *QuestService) Complete(ctx context.Context, user core.UserID, quest core.QuestID) (core.ProgressRecord, error) {
	if err := validateIDs(user, quest); err != nil {
		return core.ProgressRecord{}, err
	}
	def, err := s.catalog.Quest(ctx, quest)
	if err != nil {
		return core.ProgressRecord{}, err
	}

	var (
		rec     core.ProgressRecord
		settled core.Decision
	)
	err = s.withCASRetry(ctx, func() error {
		prev, expected, err := s.observe(ctx, user, quest)
		if err != nil {
			return err
		}
		if prev == nil {
			return fmt.Errorf("%w: quest %d not assigned to user %d", core.ErrNotFound, quest, user)
		}
		d, err := core.Decide(user, prev, def, 0, s.now())
		if err != nil {
			return err
		}
		if d.Next.Status == core.StatusInProgress {
			return fmt.Errorf("%w: quest not yet completed, progress %d/%d",
				core.ErrInvalidTransition, prev.Progress, def.Streak)
		}
		if err := s.ledger.Upsert(ctx, d.Next, expected); err != nil {
			return err
		}
		rec, settled = d.Next, d
		return nil
	})
	if err != nil {
		return core.ProgressRecord{}, err
	}

	if rec.Status == core.StatusCompleted {
		s.bus.Publish(ctx, core.NewQuestCompleted(user, quest, rec.Cycle))
	}
	if settled.Directive == core.DirectiveSettle {
		if _, err := s.settle(ctx, rec, def); err != nil {
			rec.Settlement = core.SettlementFailed
			return rec, err
		}
		rec.Settlement = core.SettlementSettled
	}
	return rec, nil
}

// Claim converts a completed record into a claimed one and grants the
// reward. Claiming an in_progress or already claimed record is rejected.
func (s *QuestService) Claim(ctx context.Context, user core.UserID, quest core.QuestID) (core.ProgressRecord, core.RewardDefinition, error) {
	if err := validateIDs(user, quest); err != nil {
		return core.ProgressRecord{}, core.RewardDefinition{}, err
	}
	def, err := s.catalog.Quest(ctx, quest)
	if err != nil {
		return core.ProgressRecord{}, core.RewardDefinition{}, err
	}

	var rec core.ProgressRecord
	err = s.withCASRetry(ctx, func() error {
		prev, expected, err := s.observe(ctx, user, quest)
		if err != nil {
			return err
		}
		if prev == nil {
			return fmt.Errorf("%w: quest %d not assigned to user %d", core.ErrNotFound, quest, user)
		}
		d, err := core.DecideClaim(*prev, s.now())
		if err != nil {
			return err
		}
		if err := s.ledger.Upsert(ctx, d.Next, expected); err != nil {
			return err
		}
		rec = d.Next
		return nil
	})
	if err != nil {
		return core.ProgressRecord{}, core.RewardDefinition{}, err
	}

	reward, err := s.settle(ctx, rec, def)
	if err != nil {
		rec.Settlement = core.SettlementFailed
		return rec, reward, err
	}
	rec.Settlement = core.SettlementSettled
	return rec, reward, nil
}

// TrackSignIn fans a sign-in tick out over every quest in the catalog,
// auto-assigning on first touch. A failure on one quest never aborts the
// remaining quests; the returned messages describe each quest's outcome.
func (s *QuestService) TrackSignIn(ctx context.Context, user core.UserID) ([]string, error) {
	if err := core.ValidateUserID(user); err != nil {
		return nil, err
	}
	defs, err := s.catalog.Quests(ctx)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return []string{"No quests available"}, nil
	}

	var messages []string
	for _, def := range defs {
		msg, err := s.signInTick(ctx, user, def)
		if err != nil {
			s.log.Warn("sign-in tick failed", "user_id", user, "quest_id", def.QuestID, "error", err)
			continue
		}
		if msg != "" {
			messages = append(messages, msg)
		}
	}
	if len(messages) == 0 {
		messages = []string{"Sign-in tracked successfully"}
	}
	return messages, nil
}

// Progress returns every progress record held for the user.
func (s *QuestService) Progress(ctx context.Context, user core.UserID) ([]core.ProgressRecord, error) {
	if err := core.ValidateUserID(user); err != nil {
		return nil, err
	}
	return s.ledger.ListByUser(ctx, user)
}

// signInTick applies one increment for a single quest. Claimed records and
// records awaiting a manual claim are left untouched.
func (s *QuestService) signInTick(ctx context.Context, user core.UserID, def core.QuestDefinition) (string, error) {
	var (
		rec       core.ProgressRecord
		directive core.Directive
		skip      bool
		created   bool
	)
	err := s.withCASRetry(ctx, func() error {
		prev, expected, err := s.observe(ctx, user, def.QuestID)
		if err != nil {
			return err
		}
		if prev != nil && prev.Status != core.StatusInProgress {
			skip = true
			return nil
		}
		if prev == nil {
			count, err := s.ledger.CountAssignments(ctx, user, def.QuestID)
			if err != nil {
				return err
			}
			if count >= def.Duplication {
				skip = true
				return nil
			}
		}
		d, err := core.Decide(user, prev, def, 1, s.now())
		if err != nil {
			return err
		}
		if err := s.ledger.Upsert(ctx, d.Next, expected); err != nil {
			return err
		}
		rec, directive = d.Next, d.Directive
		created = prev == nil
		skip = false
		return nil
	})
	if err != nil {
		return "", err
	}
	if skip {
		return "", nil
	}

	switch {
	case directive == core.DirectiveSettle:
		if _, err := s.settle(ctx, rec, def); err != nil {
			return fmt.Sprintf("Quest '%s' completed but failed to grant reward", def.Name), nil
		}
		return fmt.Sprintf("Quest '%s' completed and reward granted!", def.Name), nil
	case rec.Status == core.StatusCompleted:
		s.bus.Publish(ctx, core.NewQuestCompleted(user, def.QuestID, rec.Cycle))
		return fmt.Sprintf("Quest '%s' completed! Please claim your reward.", def.Name), nil
	case created:
		s.bus.Publish(ctx, core.NewQuestAssigned(user, def.QuestID, rec.Cycle, rec.Progress, def.Streak))
		return fmt.Sprintf("Quest '%s' assigned! Progress: %d/%d", def.Name, rec.Progress, def.Streak), nil
	default:
		s.bus.Publish(ctx, core.NewProgressAdvanced(user, def.QuestID, rec.Cycle, rec.Progress, def.Streak))
		return fmt.Sprintf("Progress for quest '%s': %d/%d", def.Name, rec.Progress, def.Streak), nil
	}
}

// settle grants the reward owed by a record that just reached claimed.
// The record stays claimed whatever happens here; on failure its
// settlement state is marked failed so reconciliation can retry the
// idempotent grant later.
func (s *QuestService) settle(ctx context.Context, rec core.ProgressRecord, def core.QuestDefinition) (core.RewardDefinition, error) {
	reward, err := s.catalog.Reward(ctx, def.RewardID)
	if err != nil {
		s.markSettlementFailed(ctx, rec, fmt.Sprintf("reward lookup: %v", err))
		return core.RewardDefinition{}, fmt.Errorf("%w: reward %d unavailable: %v", core.ErrSettlementFailed, def.RewardID, err)
	}
	if err := s.wallet.Grant(ctx, rec.UserID, reward.Item, reward.Qty, rec.SettlementKey()); err != nil {
		s.markSettlementFailed(ctx, rec, err.Error())
		return reward, fmt.Errorf("%w: %v", core.ErrSettlementFailed, err)
	}
	if err := s.ledger.SetSettlement(ctx, rec.UserID, rec.QuestID, rec.Cycle, core.SettlementSettled); err != nil {
		s.log.Warn("settlement state update failed after successful grant",
			"user_id", rec.UserID, "quest_id", rec.QuestID, "error", err)
	}
	s.bus.Publish(ctx, core.NewQuestClaimed(rec.UserID, rec.QuestID, rec.Cycle, reward.Item, reward.Qty))
	s.log.Info("reward settled", "user_id", rec.UserID, "quest_id", rec.QuestID,
		"item", reward.Item, "qty", reward.Qty)
	return reward, nil
}

func (s *QuestService) markSettlementFailed(ctx context.Context, rec core.ProgressRecord, reason string) {
	if err := s.ledger.SetSettlement(ctx, rec.UserID, rec.QuestID, rec.Cycle, core.SettlementFailed); err != nil {
		s.log.Error("unable to record failed settlement",
			"user_id", rec.UserID, "quest_id", rec.QuestID, "error", err)
	}
	s.bus.Publish(ctx, core.NewSettlementFailed(rec.UserID, rec.QuestID, rec.Cycle, reason))
	s.log.Error("settlement failed", "user_id", rec.UserID, "quest_id", rec.QuestID, "reason", reason)
}

// observe reads the current record and derives the expectation a
// subsequent conditional write must be keyed on.
func (s *QuestService) observe(ctx context.Context, user core.UserID, quest core.QuestID) (*core.ProgressRecord, core.ExpectedState, error) {
	rec, err := s.ledger.Read(ctx, user, quest)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.ExpectedAbsent(), nil
	}
	if err != nil {
		return nil, core.ExpectedState{}, err
	}
	return &rec, core.Expected(rec.Status, rec.Cycle), nil
}

// withCASRetry runs fn, retrying from a fresh read when the conditional
// write lost a race. After casAttempts the conflict is surfaced.
func (s *QuestService) withCASRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < casAttempts; attempt++ {
		if err = fn(); !errors.Is(err, core.ErrConflict) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func validateIDs(user core.UserID, quest core.QuestID) error {
	if err := core.ValidateUserID(user); err != nil {
		return err
	}
	return core.ValidateQuestID(quest)
}
