package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	jsonfileAdapter "questkit/adapters/jsonfile"
	mem "questkit/adapters/memory"
	redisAdapter "questkit/adapters/redis"
	sqlxAdapter "questkit/adapters/sqlx"
	"questkit/analytics"
	"questkit/api/httpapi"
	"questkit/catalog"
	"questkit/config"
	"questkit/core"
	"questkit/engine"
	"questkit/integrations/webhook"
	"questkit/leaderboard"
	"questkit/quests"
	"questkit/realtime"
	"questkit/wallet"
)

// App aggregates the assembled server components.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Hub        *realtime.Hub
	Service    *engine.QuestService
	Reconciler *engine.Reconciler
	Metrics    *analytics.QuestMetrics
	Handler    http.Handler
	Server     *http.Server
}

func provideConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Environment == config.EnvProduction {
		if err := cfg.LoadSecretsFromEnv(ctx); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideLedger(cfg *config.Config) (engine.Ledger, error) {
	return setupLedger(cfg)
}

func provideCatalog(cfg *config.Config) (engine.Catalog, error) {
	return catalog.NewClient(cfg.Catalog.BaseURL,
		catalog.WithHTTPClient(&http.Client{Timeout: cfg.Catalog.Timeout}))
}

func provideWallet(cfg *config.Config) (engine.Wallet, error) {
	return wallet.NewClient(cfg.Wallet.BaseURL,
		wallet.WithHTTPClient(&http.Client{Timeout: cfg.Wallet.Timeout}))
}

func provideService(hub *realtime.Hub, ledger engine.Ledger, cat engine.Catalog, w engine.Wallet) *engine.QuestService {
	return quests.New(
		quests.WithRealtime(hub),
		quests.WithLedger(ledger),
		quests.WithCatalog(cat),
		quests.WithWallet(w),
		quests.WithDispatchMode(engine.DispatchAsync),
	)
}

func provideReconciler(cfg *config.Config, svc *engine.QuestService, ledger engine.Ledger, cat engine.Catalog, w engine.Wallet) *engine.Reconciler {
	rec := engine.NewReconciler(ledger, cat, w, svc.Bus(), cfg.Settlement.ReconcileInterval)
	rec.SetBatch(cfg.Settlement.ReconcileBatch)
	return rec
}

func provideMetrics(cfg *config.Config, svc *engine.QuestService) *analytics.QuestMetrics {
	metrics := analytics.NewQuestMetrics()
	hooks := []analytics.Hook{metrics, analytics.NewDAU(), leaderboard.NewClaimBoard()}
	if len(cfg.Webhooks.Endpoints) > 0 {
		hooks = append(hooks, webhook.New(cfg.Webhooks.Endpoints))
	}
	bridge := analytics.NewBridge(hooks...)
	for _, typ := range []core.EventType{
		core.EventQuestAssigned,
		core.EventProgressAdvanced,
		core.EventQuestCompleted,
		core.EventQuestClaimed,
		core.EventSettlementFailed,
		core.EventSettlementRecovered,
	} {
		svc.Subscribe(typ, func(_ context.Context, e core.Event) { bridge.OnEvent(e) })
	}
	return metrics
}

func provideHandler(svc *engine.QuestService, hub *realtime.Hub, cfg *config.Config) http.Handler {
	return httpapi.NewMux(svc, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupLedger creates the appropriate ledger adapter based on configuration.
func setupLedger(cfg *config.Config) (engine.Ledger, error) {
	switch cfg.Ledger.Adapter {
	case "memory":
		return mem.New(), nil
	case "redis":
		return redisAdapter.New(cfg.Ledger.Redis)
	case "sql":
		return sqlxAdapter.New(cfg.Ledger.SQL)
	case "file":
		return jsonfileAdapter.New(cfg.Ledger.File.Path)
	default:
		return nil, fmt.Errorf("unknown ledger adapter: %s", cfg.Ledger.Adapter)
	}
}
