package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"questkit/core"
)

func record(user core.UserID, quest core.QuestID, status core.Status) core.ProgressRecord {
	now := time.Now().UTC()
	return core.ProgressRecord{
		UserID: user, QuestID: quest, Cycle: 1, Status: status,
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestUpsertInsertAndRead(t *testing.T) {
	l := New()
	ctx := context.Background()

	if _, err := l.Read(ctx, 1, 2); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rec := record(1, 2, core.StatusInProgress)
	if err := l.Upsert(ctx, rec, core.ExpectedAbsent()); err != nil {
		t.Fatal(err)
	}
	got, err := l.Read(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.StatusInProgress {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Second insert against absent must conflict.
	if err := l.Upsert(ctx, rec, core.ExpectedAbsent()); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpsertCASMismatch(t *testing.T) {
	l := New()
	ctx := context.Background()

	rec := record(1, 2, core.StatusInProgress)
	if err := l.Upsert(ctx, rec, core.ExpectedAbsent()); err != nil {
		t.Fatal(err)
	}

	rec.Status = core.StatusClaimed
	err := l.Upsert(ctx, rec, core.Expected(core.StatusCompleted, 1))
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict on stale expectation, got %v", err)
	}

	// Stored record untouched by the failed write.
	got, _ := l.Read(ctx, 1, 2)
	if got.Status != core.StatusInProgress {
		t.Fatalf("failed CAS must not overwrite, got %s", got.Status)
	}
}

func TestConcurrentClaimOneWinner(t *testing.T) {
	l := New()
	ctx := context.Background()

	rec := record(1, 2, core.StatusCompleted)
	if err := l.Upsert(ctx, rec, core.ExpectedAbsent()); err != nil {
		t.Fatal(err)
	}

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed := rec
			claimed.Status = core.StatusClaimed
			if err := l.Upsert(ctx, claimed, core.Expected(core.StatusCompleted, 1)); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("expected exactly one CAS winner, got %d", won)
	}
}

func TestSetSettlementAndListUnsettled(t *testing.T) {
	l := New()
	ctx := context.Background()

	rec := record(1, 2, core.StatusClaimed)
	rec.Settlement = core.SettlementPending
	if err := l.Upsert(ctx, rec, core.ExpectedAbsent()); err != nil {
		t.Fatal(err)
	}

	out, err := l.ListUnsettled(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one unsettled record, got %d", len(out))
	}

	if err := l.SetSettlement(ctx, 1, 2, 1, core.SettlementSettled); err != nil {
		t.Fatal(err)
	}
	out, _ = l.ListUnsettled(ctx, 10)
	if len(out) != 0 {
		t.Fatalf("settled record still listed: %+v", out)
	}

	// Stale cycle target conflicts.
	if err := l.SetSettlement(ctx, 1, 2, 99, core.SettlementSettled); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCountAssignmentsAndListByUser(t *testing.T) {
	l := New()
	ctx := context.Background()

	n, err := l.CountAssignments(ctx, 1, 2)
	if err != nil || n != 0 {
		t.Fatalf("expected 0 assignments, got %d (%v)", n, err)
	}

	rec := record(1, 2, core.StatusClaimed)
	rec.Cycle = 2
	if err := l.Upsert(ctx, rec, core.ExpectedAbsent()); err != nil {
		t.Fatal(err)
	}
	other := record(1, 5, core.StatusInProgress)
	if err := l.Upsert(ctx, other, core.ExpectedAbsent()); err != nil {
		t.Fatal(err)
	}

	n, _ = l.CountAssignments(ctx, 1, 2)
	if n != 2 {
		t.Fatalf("expected 2 lifecycles, got %d", n)
	}

	list, err := l.ListByUser(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].QuestID != 2 || list[1].QuestID != 5 {
		t.Fatalf("unexpected listing: %+v", list)
	}
}
