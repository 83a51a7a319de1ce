package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/internal/testing/guard"
)

func TestInTestModeUnderGuard(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())
}

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	t.Setenv("LEDGER_STORAGE", "Memory")
	t.Setenv("FISCAL_START_MONTH", "4")
	t.Setenv("LEDGER_COMPANIES", "acme,globex")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 4, cfg.FiscalStartMonth)
	assert.Equal(t, []string{"acme", "globex"}, cfg.LedgerCompanies)
	assert.Equal(t, "sync", cfg.AggregationMode)
	assert.Equal(t, 20*time.Millisecond, cfg.RetryBackoff)
	assert.False(t, cfg.IsProduction())
}

func TestConfigValidate(t *testing.T) {
	base := Config{Storage: StoragePostgres, AggregationMode: "sync", FiscalStartMonth: 1}
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"storage":    func(c *Config) { c.Storage = "sqlite" },
		"mode":       func(c *Config) { c.AggregationMode = "eventual" },
		"month":      func(c *Config) { c.FiscalStartMonth = 13 },
		"rate limit": func(c *Config) { c.AppRateLimit = -1 },
		"async mem":  func(c *Config) { c.Storage = StorageMemory; c.AggregationMode = "async" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func memoryConfig() *Config {
	return &Config{
		Storage:          StorageMemory,
		AggregationMode:  "sync",
		FiscalStartMonth: 1,
		RetryAttempts:    3,
		RetryBackoff:     time.Millisecond,
		CacheTTL:         time.Minute,
	}
}

func TestNewLedgerWiresPostingToAmortization(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(memoryConfig(), Deps{
		Store:       memstore.New(),
		Audit:       &shared.MemoryAuditLog{},
		Idempotency: shared.NewMemoryIdempotencyStore(),
		Metrics:     observability.NewMetrics(),
	})
	assert.Nil(t, l.Cache)

	for _, in := range []accounts.CreateInput{
		{Number: "1100", Name: "Cash", Type: accounting.AccountTypeAsset},
		{Number: "1300", Name: "Prepaid rent", Type: accounting.AccountTypeAsset},
		{Number: "6200", Name: "Rent", Type: accounting.AccountTypeExpense},
	} {
		in.Company = "acme"
		_, err := l.Accounts.Create(ctx, in)
		require.NoError(t, err)
	}
	_, err := l.Journals.Post(ctx, accounting.JournalEntryRequest{
		Company: "acme", Module: "GL", Date: time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), PostedBy: "clerk",
		Lines: []accounting.LineRequest{
			{AccountNumber: "1300", Debit: decimal.NewFromInt(300), Credit: decimal.Zero},
			{AccountNumber: "1100", Debit: decimal.Zero, Credit: decimal.NewFromInt(300)},
		},
		Recurrence: &accounting.Recurrence{
			Frequency: accounting.FrequencyMonthly, Occurrences: 3, StartDate: time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
			Amount: decimal.NewFromInt(100), PrepaidAccount: "1300", ExpenseAccount: "6200",
		},
	})
	require.NoError(t, err)

	settings, err := l.Amortization.List(ctx, "acme", true)
	require.NoError(t, err)
	require.Len(t, settings, 1, "posting hook schedules the recurrence")

	res, err := l.Amortization.RunDue(ctx, "acme", time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, res.Generated, 3)

	pos, err := l.Balances.GetAccountBalance(ctx, "acme", "1300", time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, pos.Balance.IsZero())

	january := periods.Key{Company: "acme", Module: accounting.ModuleGeneralLedger, Period: accounting.FiscalPeriod{Year: 2024, Period: 1}}
	run, err := l.Closing.ClosePeriod(ctx, january, "controller")
	require.NoError(t, err)
	assert.True(t, run.Done())
	_, err = l.Journals.Post(ctx, accounting.JournalEntryRequest{
		Company: "acme", Module: "GL", Date: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), PostedBy: "clerk",
		Lines: []accounting.LineRequest{
			{AccountNumber: "6200", Debit: decimal.NewFromInt(5)},
			{AccountNumber: "1100", Credit: decimal.NewFromInt(5)},
		},
	})
	assert.ErrorIs(t, err, accounting.ErrPeriodLocked)

	require.NoError(t, l.Ping(ctx))
	require.NoError(t, l.Close())
}

func TestOpenLedgerInMemoryWithRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisAddr = mr.Addr()

	l, err := OpenLedger(ctx, cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	assert.NotNil(t, l.Cache)
	assert.Nil(t, l.Queue)
	require.NoError(t, l.Ping(ctx))

	mr.Close()
	assert.Error(t, l.Ping(ctx))
}

func TestCloseAllRunsInReverseAndKeepsFirstError(t *testing.T) {
	var order []string
	errA := errors.New("a failed")
	err := closeAll([]func() error{
		func() error { order = append(order, "a"); return errA },
		func() error { order = append(order, "b"); return errors.New("b failed") },
	})
	assert.Equal(t, []string{"b", "a"}, order)
	assert.EqualError(t, err, "b failed")
}

func TestRouterServesLedgerAndProbes(t *testing.T) {
	cfg := memoryConfig()
	metrics := observability.NewMetrics()
	l := NewLedger(cfg, Deps{
		Store:       memstore.New(),
		Audit:       &shared.MemoryAuditLog{},
		Idempotency: shared.NewMemoryIdempotencyStore(),
		Metrics:     metrics,
	})
	ready := errors.New("postgres down")
	ledgerHandler, inventoryHandler := LedgerHandlers(l, slog.Default())
	router := NewRouter(RouterParams{
		Logger:           slog.Default(),
		Config:           cfg,
		LedgerHandler:    ledgerHandler,
		InventoryHandler: inventoryHandler,
		Metrics:          metrics,
		Ready:            func(context.Context) error { return ready },
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(http.MethodGet, "/readyz", "").Code)
	ready = nil
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/readyz", "").Code)

	rec := do(http.MethodPost, "/companies/acme/accounts", `{"number":"1100","name":"Cash","type":"ASSET"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"number":"1100"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/companies/acme/accounts/1100", "").Code)

	metricsRec := do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, metricsRec.Code)
}
