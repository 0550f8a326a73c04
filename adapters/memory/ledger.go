package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"questkit/core"
)

// Ledger is a concurrent in-memory engine.Ledger implementation. Writes
// are compare-and-swap under a single mutex, so two racing transitions on
// the same (user, quest) pair resolve to exactly one winner.
type Ledger struct {
	mu      sync.Mutex
	records map[key]core.ProgressRecord
}

type key struct {
	user  core.UserID
	quest core.QuestID
}

func New() *Ledger {
	return &Ledger{records: make(map[key]core.ProgressRecord)}
}

func (l *Ledger) Read(_ context.Context, user core.UserID, quest core.QuestID) (core.ProgressRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key{user, quest}]
	if !ok {
		return core.ProgressRecord{}, fmt.Errorf("%w: no record for user %d quest %d", core.ErrNotFound, user, quest)
	}
	return rec, nil
}

func (l *Ledger) Upsert(_ context.Context, rec core.ProgressRecord, expected core.ExpectedState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{rec.UserID, rec.QuestID}
	cur, ok := l.records[k]

	if expected.Absent {
		if ok {
			return fmt.Errorf("%w: record already exists for user %d quest %d", core.ErrConflict, rec.UserID, rec.QuestID)
		}
		l.records[k] = rec
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: record vanished for user %d quest %d", core.ErrConflict, rec.UserID, rec.QuestID)
	}
	if cur.Status != expected.Status || cur.Cycle != expected.Cycle {
		return fmt.Errorf("%w: expected %s/cycle %d, found %s/cycle %d",
			core.ErrConflict, expected.Status, expected.Cycle, cur.Status, cur.Cycle)
	}
	l.records[k] = rec
	return nil
}

func (l *Ledger) SetSettlement(_ context.Context, user core.UserID, quest core.QuestID, cycle int, state core.SettlementState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{user, quest}
	rec, ok := l.records[k]
	if !ok {
		return fmt.Errorf("%w: no record for user %d quest %d", core.ErrNotFound, user, quest)
	}
	if rec.Cycle != cycle {
		return fmt.Errorf("%w: settlement targets cycle %d, record at cycle %d", core.ErrConflict, cycle, rec.Cycle)
	}
	rec.Settlement = state
	l.records[k] = rec
	return nil
}

func (l *Ledger) CountAssignments(_ context.Context, user core.UserID, quest core.QuestID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key{user, quest}]
	if !ok {
		return 0, nil
	}
	// Cycle counts lifecycles ever opened for the pair.
	return rec.Cycle, nil
}

func (l *Ledger) ListByUser(_ context.Context, user core.UserID) ([]core.ProgressRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []core.ProgressRecord
	for k, rec := range l.records {
		if k.user == user {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestID < out[j].QuestID })
	return out, nil
}

func (l *Ledger) ListUnsettled(_ context.Context, limit int) ([]core.ProgressRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []core.ProgressRecord
	for _, rec := range l.records {
		if rec.Status != core.StatusClaimed {
			continue
		}
		if rec.Settlement == core.SettlementPending || rec.Settlement == core.SettlementFailed {
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
