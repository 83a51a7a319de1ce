package close_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/subledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/close"
)

type fakeBacklog struct{ pending int }

func (f fakeBacklog) PendingAggregations(context.Context, string) (int, error) { return f.pending, nil }

type fakeAmortization struct{ due int }

func (f fakeAmortization) PendingThrough(context.Context, string, time.Time) (int, error) {
	return f.due, nil
}

type env struct {
	periods  *periods.Service
	balances *balances.Service
	journals *journals.Service
}

func newEnv(t *testing.T) env {
	t.Helper()
	store := memstore.New()
	acc := accounts.NewService(store.Accounts(), nil)
	bal := balances.NewService(store.Balances(), balances.Config{Calendar: accounting.DefaultCalendar})
	e := env{
		periods:  periods.NewService(store.Periods(), nil, accounting.DefaultCalendar, nil),
		balances: bal,
		journals: journals.NewService(store.Journals(), acc, subledger.NewResolver(store.Directory()), bal, journals.Config{Calendar: accounting.DefaultCalendar}),
	}
	for _, in := range []accounts.CreateInput{
		{Number: "1100", Name: "Cash", Type: accounting.AccountTypeAsset},
		{Number: "4000", Name: "Sales", Type: accounting.AccountTypeRevenue},
	} {
		in.Company = "acme"
		_, err := acc.Create(context.Background(), in)
		require.NoError(t, err)
	}
	return e
}

func (e env) post(t *testing.T, day int) error {
	t.Helper()
	_, err := e.journals.Post(context.Background(), accounting.JournalEntryRequest{
		Company: "acme", Module: "GL", Date: time.Date(2024, time.January, day, 0, 0, 0, 0, time.UTC), PostedBy: "clerk",
		Lines: []accounting.LineRequest{
			{AccountNumber: "1100", Debit: decimal.NewFromInt(10), Credit: decimal.Zero},
			{AccountNumber: "4000", Debit: decimal.Zero, Credit: decimal.NewFromInt(10)},
		},
	})
	return err
}

var january = periods.Key{Company: "acme", Module: "gl", Period: accounting.FiscalPeriod{Year: 2024, Period: 1}}

func TestCloseFlagsBalancesAndReopenClearsThem(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.post(t, 5))

	svc := close.NewService(e.periods, e.balances, fakeBacklog{}, fakeAmortization{}, nil)
	fixed := time.Date(2024, time.February, 2, 9, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return fixed })

	run, err := svc.ClosePeriod(ctx, january, "controller")
	require.NoError(t, err)
	assert.True(t, run.Done())
	assert.Len(t, run.Checklist, 3)
	assert.Equal(t, "GL", run.Key.Module)
	assert.True(t, run.Period.IsPosted)
	assert.Equal(t, fixed, run.CompletedAt)

	pos, err := e.balances.GetAccountBalance(ctx, "acme", "1100", time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, pos.IsClosed)
	assert.ErrorIs(t, e.post(t, 20), accounting.ErrPeriodLocked)

	reopened, err := svc.ReopenPeriod(ctx, january, "cfo", "late invoice")
	require.NoError(t, err)
	assert.Equal(t, periods.LockActionReopen, reopened.Action)
	assert.False(t, reopened.Period.IsPosted)

	pos, err = e.balances.GetAccountBalance(ctx, "acme", "1100", time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, pos.IsClosed)
	assert.NoError(t, e.post(t, 20))
}

func TestCloseBlockedByBacklog(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := close.NewService(e.periods, e.balances, fakeBacklog{pending: 2}, fakeAmortization{due: 1}, nil)

	run, err := svc.ClosePeriod(ctx, january, "controller")
	require.ErrorIs(t, err, close.ErrChecklistIncomplete)
	assert.False(t, run.Done())
	require.Len(t, run.Checklist, 3)
	assert.Equal(t, close.CheckAggregationQueue, run.Checklist[0].Code)
	assert.Equal(t, close.ChecklistStatusFailed, run.Checklist[0].Status)
	assert.Equal(t, "2 tasks pending", run.Checklist[0].Detail)
	assert.Equal(t, close.ChecklistStatusFailed, run.Checklist[1].Status)
	assert.Contains(t, run.Checklist[1].Detail, "2024-01-31")

	open, err := e.periods.IsOpen(ctx, "acme", "GL", time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, open, "a failed checklist leaves the gate open")
}

func TestModuleGateSkipsLedgerChecks(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := close.NewService(e.periods, e.balances, fakeBacklog{pending: 5}, nil, nil)

	key := periods.Key{Company: "acme", Module: "sales", Period: accounting.FiscalPeriod{Year: 2024, Period: 1}}
	run, err := svc.ClosePeriod(ctx, key, "controller")
	require.NoError(t, err)
	require.Len(t, run.Checklist, 1)
	assert.Equal(t, close.ChecklistStatusSkipped, run.Checklist[0].Status)
	assert.NoError(t, e.post(t, 12), "the GL gate stays open")

	_, err = svc.ClosePeriod(ctx, periods.Key{Company: "acme", Module: "GL"}, "controller")
	assert.Error(t, err)
}
