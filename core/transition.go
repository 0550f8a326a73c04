package core

import (
	"fmt"
	"time"
)

// Directive tells the caller whether a transition owes a settlement call.
// The decision functions never perform the grant themselves.
type Directive int

const (
	DirectiveNone Directive = iota
	DirectiveSettle
)

// Decision is the outcome of applying one event to a progress record.
type Decision struct {
	Next      ProgressRecord
	Directive Directive
}

// Decide applies a progress event to the current record. prev is nil when
// no record exists yet for the (user, quest) pair; in that case a first
// lifecycle is opened with the given increment already applied. increment
// is 1 for a sign-in tick and 0 for an explicit completion check.
//
// The streak threshold is evaluated uniformly, so a streak-1 auto-claim
// quest moves from absent to claimed in a single step.
func Decide(user UserID, prev *ProgressRecord, def QuestDefinition, increment int, now time.Time) (Decision, error) {
	if err := ValidateDefinition(def); err != nil {
		return Decision{}, err
	}
	if increment < 0 {
		return Decision{}, fmt.Errorf("%w: increment must be non-negative", ErrInvalidArgument)
	}

	var rec ProgressRecord
	if prev == nil {
		rec = ProgressRecord{
			UserID:    user,
			QuestID:   def.QuestID,
			Cycle:     1,
			Status:    StatusInProgress,
			Progress:  0,
			CreatedAt: now,
		}
	} else {
		switch prev.Status {
		case StatusCompleted:
			return Decision{}, fmt.Errorf("%w: quest already completed, awaiting claim", ErrInvalidTransition)
		case StatusClaimed:
			return Decision{}, fmt.Errorf("%w: quest already claimed", ErrInvalidTransition)
		case StatusInProgress:
			rec = *prev
		default:
			return Decision{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, prev.Status)
		}
	}

	rec.UpdatedAt = now
	next := rec.Progress + increment
	if next < def.Streak {
		rec.Progress = next
		return Decision{Next: rec}, nil
	}

	rec.Progress = def.Streak
	if def.AutoClaim {
		rec.Status = StatusClaimed
		rec.Settlement = SettlementPending
		return Decision{Next: rec, Directive: DirectiveSettle}, nil
	}
	rec.Status = StatusCompleted
	return Decision{Next: rec}, nil
}

// DecideClaim applies an explicit claim to the current record. Only a
// completed record may be claimed; the resulting record owes settlement.
func DecideClaim(prev ProgressRecord, now time.Time) (Decision, error) {
	switch prev.Status {
	case StatusCompleted:
		rec := prev
		rec.Status = StatusClaimed
		rec.Settlement = SettlementPending
		rec.UpdatedAt = now
		return Decision{Next: rec, Directive: DirectiveSettle}, nil
	case StatusClaimed:
		return Decision{}, fmt.Errorf("%w: quest already claimed", ErrInvalidTransition)
	case StatusInProgress:
		return Decision{}, fmt.Errorf("%w: quest is not completed yet", ErrInvalidTransition)
	}
	return Decision{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, prev.Status)
}

// DecideAssign opens a new assignment lifecycle. prev is nil when the pair
// has never been assigned. A claimed record may open its next cycle while
// the duplication limit permits; an unfinished record cannot be assigned
// again.
func DecideAssign(user UserID, prev *ProgressRecord, def QuestDefinition, now time.Time) (Decision, error) {
	if err := ValidateDefinition(def); err != nil {
		return Decision{}, err
	}

	if prev == nil {
		return Decision{Next: ProgressRecord{
			UserID:    user,
			QuestID:   def.QuestID,
			Cycle:     1,
			Status:    StatusInProgress,
			Progress:  0,
			CreatedAt: now,
			UpdatedAt: now,
		}}, nil
	}

	switch prev.Status {
	case StatusInProgress, StatusCompleted:
		return Decision{}, fmt.Errorf("%w: quest already assigned to this user", ErrInvalidTransition)
	case StatusClaimed:
		if prev.Cycle >= def.Duplication {
			return Decision{}, fmt.Errorf("%w: quest duplication limit reached for this user", ErrDuplicationLimit)
		}
		rec := *prev
		rec.Cycle++
		rec.Status = StatusInProgress
		rec.Progress = 0
		rec.Settlement = ""
		rec.UpdatedAt = now
		return Decision{Next: rec}, nil
	}
	return Decision{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, prev.Status)
}
