package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/pgstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/subledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/amortization"
	"github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// Store is the persistence backend shared by every ledger service.
type Store interface {
	Accounts() accounts.Repository
	Periods() periods.Repository
	Balances() balances.Repository
	Journals() journals.Repository
	Directory() subledger.Directory
	Inventory() inventory.Repository
	Amortization() amortization.Repository
}

type auditSink interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type idempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Ledger holds the wired ledger services.
type Ledger struct {
	Calendar     accounting.FiscalCalendar
	Accounts     *accounts.Service
	Directory    *subledger.Resolver
	Journals     *journals.Service
	Periods      *periods.Service
	Closing      *close.Service
	Balances     *balances.Service
	Amortization *amortization.Service
	Inventory    *inventory.Service
	Metrics      *observability.Metrics
	Cache        *cache.Versioned
	Queue        *jobs.Client

	closers []func() error
	pingers []func(context.Context) error
}

// Deps are the external resources a Ledger is built on. Redis is optional.
type Deps struct {
	Store       Store
	Audit       auditSink
	Idempotency idempotencyStore
	Redis       *redis.Client
	Dispatcher  journals.Dispatcher
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// OpenLedger connects the configured backends and wires the services.
func OpenLedger(ctx context.Context, cfg *Config, logger *slog.Logger) (*Ledger, error) {
	deps := Deps{Metrics: observability.NewMetrics(), Logger: logger}
	var closers []func() error
	var pingers []func(context.Context) error

	switch cfg.Storage {
	case StorageMemory:
		deps.Store = memstore.New()
		deps.Audit = &shared.MemoryAuditLog{}
		deps.Idempotency = shared.NewMemoryIdempotencyStore()
	default:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() error { pool.Close(); return nil })
		pingers = append(pingers, pool.Ping)
		store := pgstore.New(pool)
		if cfg.Migrate {
			if err := store.Migrate(ctx); err != nil {
				closeAll(closers)
				return nil, fmt.Errorf("app: migrate: %w", err)
			}
		}
		deps.Store = store
		deps.Audit = shared.NewAuditLogger(pool)
		deps.Idempotency = shared.NewIdempotencyStore(pool)
	}

	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, snapshot cache and leases run in process", slog.Any("error", err))
	} else {
		deps.Redis = client
		closers = append(closers, client.Close)
		pingers = append(pingers, func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}

	var queue *jobs.Client
	if journals.AggregationMode(cfg.AggregationMode) == journals.AggregationAsync {
		client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			closeAll(closers)
			return nil, err
		}
		queue = client
		deps.Dispatcher = client
		closers = append(closers, client.Close)
	}

	ledger := NewLedger(cfg, deps)
	ledger.Queue = queue
	ledger.closers = closers
	ledger.pingers = pingers
	return ledger, nil
}

// NewLedger wires the services over deps. Without a dispatcher, async
// aggregation tasks stay in the outbox until the relay picks them up.
func NewLedger(cfg *Config, deps Deps) *Ledger {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	calendar := accounting.FiscalCalendar{StartMonth: time.Month(cfg.FiscalStartMonth)}
	retry := db.RetryPolicy{Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff, MaxDelay: time.Second}

	l := &Ledger{Calendar: calendar, Metrics: deps.Metrics}

	var lease shared.RunLease = shared.NewMemoryLease()
	if deps.Redis != nil {
		l.Cache = cache.NewVersioned(deps.Redis, cfg.CacheTTL)
		lease = shared.NewRedisLease(deps.Redis)
	}

	l.Accounts = accounts.NewService(deps.Store.Accounts(), logger)
	l.Directory = subledger.NewResolver(deps.Store.Directory())
	l.Periods = periods.NewService(deps.Store.Periods(), deps.Audit, calendar, logger)

	balanceCfg := balances.Config{Calendar: calendar, Metrics: deps.Metrics, Retry: retry, Logger: logger}
	if l.Cache != nil {
		balanceCfg.Cache = l.Cache
	}
	l.Balances = balances.NewService(deps.Store.Balances(), balanceCfg)

	journalCfg := journals.Config{
		Calendar: calendar,
		Mode:     journals.AggregationMode(cfg.AggregationMode),
		Retry:    retry,
		Audit:    deps.Audit,
		Metrics:  deps.Metrics,
		Logger:   logger,
	}
	if deps.Dispatcher != nil {
		journalCfg.Dispatcher = deps.Dispatcher
	}
	l.Journals = journals.NewService(deps.Store.Journals(), l.Accounts, l.Directory, l.Balances, journalCfg)

	l.Amortization = amortization.NewService(deps.Store.Amortization(), l.Journals, l.Accounts, lease, amortization.Config{
		LeaseTTL: cfg.AmortizationLeaseTTL,
		Audit:    deps.Audit,
		Metrics:  deps.Metrics,
		Logger:   logger,
	})
	l.Journals.AddHook(l.Amortization)

	l.Closing = close.NewService(l.Periods, l.Balances, l.Journals, l.Amortization, logger)

	l.Inventory = inventory.NewService(deps.Store.Inventory(), deps.Audit, deps.Idempotency, inventory.ServiceConfig{
		AllowNegativeStock: cfg.InventoryAllowNegative,
		Logger:             logger,
		Metrics:            deps.Metrics,
	})
	return l
}

// Ping checks every connected backend.
func (l *Ledger) Ping(ctx context.Context) error {
	for _, ping := range l.pingers {
		if err := ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases backend connections in reverse order.
func (l *Ledger) Close() error {
	err := closeAll(l.closers)
	l.closers = nil
	return err
}

func closeAll(closers []func() error) error {
	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
