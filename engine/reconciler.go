package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"questkit/core"
)

// Reconciler re-issues idempotent grants for claimed records whose
// settlement is still pending or failed. Because the grant carries the
// same idempotency key as the original attempt, replaying it cannot
// double-grant currency.
type Reconciler struct {
	ledger   Ledger
	catalog  Catalog
	wallet   Wallet
	bus      *EventBus
	log      *slog.Logger
	interval time.Duration
	batch    int

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewReconciler builds a reconciler scanning at the given interval.
// Non-positive intervals fall back to one minute.
func NewReconciler(ledger Ledger, catalog Catalog, wallet Wallet, bus *EventBus, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		ledger:   ledger,
		catalog:  catalog,
		wallet:   wallet,
		bus:      bus,
		log:      slog.Default(),
		interval: interval,
		batch:    100,
	}
}

// SetBatch caps how many unsettled records one pass will scan.
// Non-positive values are ignored.
func (r *Reconciler) SetBatch(n int) {
	if n > 0 {
		r.batch = n
	}
}

// Start launches the background scan loop. Calling Start on a running
// reconciler is a no-op.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.tick(runCtx)
			}
		}
	}()
	r.log.Info("settlement reconciler started", "interval", r.interval)
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Tick runs one reconciliation pass synchronously. Exposed for callers
// that want to drive reconciliation themselves (and for tests).
func (r *Reconciler) Tick(ctx context.Context) { r.tick(ctx) }

func (r *Reconciler) tick(ctx context.Context) {
	records, err := r.ledger.ListUnsettled(ctx, r.batch)
	if err != nil {
		r.log.Warn("unsettled scan failed", "error", err)
		return
	}
	for _, rec := range records {
		if err := r.reconcile(ctx, rec); err != nil {
			r.log.Warn("reconcile attempt failed",
				"user_id", rec.UserID, "quest_id", rec.QuestID, "cycle", rec.Cycle, "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context, rec core.ProgressRecord) error {
	def, err := r.catalog.Quest(ctx, rec.QuestID)
	if err != nil {
		return err
	}
	reward, err := r.catalog.Reward(ctx, def.RewardID)
	if err != nil {
		return err
	}
	if err := r.wallet.Grant(ctx, rec.UserID, reward.Item, reward.Qty, rec.SettlementKey()); err != nil {
		return err
	}
	if err := r.ledger.SetSettlement(ctx, rec.UserID, rec.QuestID, rec.Cycle, core.SettlementSettled); err != nil {
		return err
	}
	if r.bus != nil {
		r.bus.Publish(ctx, core.NewSettlementRecovered(rec.UserID, rec.QuestID, rec.Cycle))
	}
	r.log.Info("settlement recovered", "user_id", rec.UserID, "quest_id", rec.QuestID, "cycle", rec.Cycle)
	return nil
}
