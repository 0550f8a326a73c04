package quests

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"questkit/adapters/memory"
	"questkit/core"
	"questkit/engine"
	"questkit/realtime"
)

// Option configures the quest service builder.
type Option func(*config)

type config struct {
	ledger  engine.Ledger
	catalog engine.Catalog
	wallet  engine.Wallet
	mode    engine.DispatchMode
	hub     *realtime.Hub
}

// WithLedger sets the persistence adapter.
func WithLedger(l engine.Ledger) Option { return func(c *config) { c.ledger = l } }

// WithCatalog sets the quest/reward catalog client.
func WithCatalog(cat engine.Catalog) Option { return func(c *config) { c.catalog = cat } }

// WithWallet sets the wallet client used for reward grants.
func WithWallet(w engine.Wallet) Option { return func(c *config) { c.wallet = w } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// New builds a configured QuestService. If not provided, defaults are used:
//   - ledger: in-memory
//   - catalog: empty static catalog
//   - wallet: in-memory wallet
//   - dispatch: async
func New(opts ...Option) *engine.QuestService {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.ledger == nil {
		cfg.ledger = memory.New()
	}
	if cfg.catalog == nil {
		cfg.catalog = NewStaticCatalog(nil, nil)
	}
	if cfg.wallet == nil {
		cfg.wallet = NewMemoryWallet()
	}
	bus := engine.NewEventBus(cfg.mode)
	svc := engine.NewQuestService(cfg.ledger, cfg.catalog, cfg.wallet, bus)
	if cfg.hub != nil {
		// Bridge all primary events to realtime
		for _, typ := range []core.EventType{
			core.EventQuestAssigned,
			core.EventProgressAdvanced,
			core.EventQuestCompleted,
			core.EventQuestClaimed,
			core.EventSettlementFailed,
			core.EventSettlementRecovered,
		} {
			bus.Subscribe(typ, func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
		}
	}
	return svc
}

// StaticCatalog serves quest and reward definitions from memory. Useful
// for demos and tests that do not want a catalog service running.
type StaticCatalog struct {
	quests  map[core.QuestID]core.QuestDefinition
	rewards map[core.RewardID]core.RewardDefinition
}

func NewStaticCatalog(quests []core.QuestDefinition, rewards []core.RewardDefinition) *StaticCatalog {
	c := &StaticCatalog{
		quests:  make(map[core.QuestID]core.QuestDefinition, len(quests)),
		rewards: make(map[core.RewardID]core.RewardDefinition, len(rewards)),
	}
	for _, q := range quests {
		c.quests[q.QuestID] = q
	}
	for _, r := range rewards {
		c.rewards[r.RewardID] = r
	}
	return c
}

func (c *StaticCatalog) Quest(_ context.Context, id core.QuestID) (core.QuestDefinition, error) {
	def, ok := c.quests[id]
	if !ok {
		return core.QuestDefinition{}, fmt.Errorf("%w: quest %d", core.ErrNotFound, id)
	}
	return def, nil
}

func (c *StaticCatalog) Quests(_ context.Context) ([]core.QuestDefinition, error) {
	out := make([]core.QuestDefinition, 0, len(c.quests))
	for _, def := range c.quests {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestID < out[j].QuestID })
	return out, nil
}

func (c *StaticCatalog) Reward(_ context.Context, id core.RewardID) (core.RewardDefinition, error) {
	r, ok := c.rewards[id]
	if !ok {
		return core.RewardDefinition{}, fmt.Errorf("%w: reward %d", core.ErrNotFound, id)
	}
	return r, nil
}

// MemoryWallet keeps balances in memory and dedupes grants by
// idempotency key, the same contract the wallet service exposes.
type MemoryWallet struct {
	mu       sync.Mutex
	balances map[core.UserID]map[core.RewardItem]int
	seen     map[string]struct{}
}

func NewMemoryWallet() *MemoryWallet {
	return &MemoryWallet{
		balances: make(map[core.UserID]map[core.RewardItem]int),
		seen:     make(map[string]struct{}),
	}
}

func (w *MemoryWallet) Grant(_ context.Context, user core.UserID, item core.RewardItem, qty int, key string) error {
	if qty <= 0 {
		return fmt.Errorf("%w: grant quantity must be positive", core.ErrInvalidArgument)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[key]; ok {
		return nil
	}
	w.seen[key] = struct{}{}
	if w.balances[user] == nil {
		w.balances[user] = make(map[core.RewardItem]int)
	}
	w.balances[user][item] += qty
	return nil
}

// Balance returns the accumulated quantity for a user and currency.
func (w *MemoryWallet) Balance(user core.UserID, item core.RewardItem) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[user][item]
}
