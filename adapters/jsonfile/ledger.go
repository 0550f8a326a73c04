package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"questkit/core"
)

// Ledger persists every progress record to a single JSON file.
// Suitable for demos and small deployments.
type Ledger struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	data map[string]core.ProgressRecord
}

func recordKey(user core.UserID, quest core.QuestID) string {
	return fmt.Sprintf("%d:%d", user, quest)
}

func New(path string) (*Ledger, error) {
	l := &Ledger{path: path, data: map[string]core.ProgressRecord{}}
	if err := l.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return l, nil
}

func (l *Ledger) load() error {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, &l.data)
}

func (l *Ledger) persist() error {
	tmp := l.path + ".tmp"
	b, err := json.MarshalIndent(l.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

func (l *Ledger) Read(_ context.Context, user core.UserID, quest core.QuestID) (core.ProgressRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.data[recordKey(user, quest)]
	if !ok {
		return core.ProgressRecord{}, fmt.Errorf("%w: no record for user %d quest %d", core.ErrNotFound, user, quest)
	}
	return rec, nil
}

func (l *Ledger) Upsert(_ context.Context, rec core.ProgressRecord, expected core.ExpectedState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := recordKey(rec.UserID, rec.QuestID)
	cur, ok := l.data[k]

	if expected.Absent {
		if ok {
			return fmt.Errorf("%w: record already exists for user %d quest %d", core.ErrConflict, rec.UserID, rec.QuestID)
		}
	} else {
		if !ok {
			return fmt.Errorf("%w: record vanished for user %d quest %d", core.ErrConflict, rec.UserID, rec.QuestID)
		}
		if cur.Status != expected.Status || cur.Cycle != expected.Cycle {
			return fmt.Errorf("%w: expected %s/cycle %d, found %s/cycle %d",
				core.ErrConflict, expected.Status, expected.Cycle, cur.Status, cur.Cycle)
		}
	}

	l.data[k] = rec
	if err := l.persist(); err != nil {
		// The write did not reach disk; roll the cache back.
		if ok {
			l.data[k] = cur
		} else {
			delete(l.data, k)
		}
		return err
	}
	return nil
}

func (l *Ledger) SetSettlement(_ context.Context, user core.UserID, quest core.QuestID, cycle int, state core.SettlementState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := recordKey(user, quest)
	rec, ok := l.data[k]
	if !ok {
		return fmt.Errorf("%w: no record for user %d quest %d", core.ErrNotFound, user, quest)
	}
	if rec.Cycle != cycle {
		return fmt.Errorf("%w: settlement targets cycle %d, record at cycle %d", core.ErrConflict, cycle, rec.Cycle)
	}
	prev := rec.Settlement
	rec.Settlement = state
	l.data[k] = rec
	if err := l.persist(); err != nil {
		rec.Settlement = prev
		l.data[k] = rec
		return err
	}
	return nil
}

func (l *Ledger) CountAssignments(_ context.Context, user core.UserID, quest core.QuestID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.data[recordKey(user, quest)]
	if !ok {
		return 0, nil
	}
	return rec.Cycle, nil
}

func (l *Ledger) ListByUser(_ context.Context, user core.UserID) ([]core.ProgressRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []core.ProgressRecord
	for _, rec := range l.data {
		if rec.UserID == user {
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
	for _, rec := range l.data {
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
