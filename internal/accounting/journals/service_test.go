package journals_test

import (
	"context"
	"errors"
	"sync"
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
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type ledger struct {
	accounts *accounts.Service
	resolver *subledger.Resolver
	periods  *periods.Service
	balances *balances.Service
	journals *journals.Service
	audit    *shared.MemoryAuditLog
}

type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []balances.Task
	fail  bool
}

func (d *recordingDispatcher) Dispatch(_ context.Context, task balances.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return errors.New("queue down")
	}
	d.tasks = append(d.tasks, task)
	return nil
}

type recordingHook struct {
	entries     []accounting.JournalEntry
	recurrences []*accounting.Recurrence
}

func (h *recordingHook) AfterPost(_ context.Context, entry accounting.JournalEntry, rec *accounting.Recurrence) error {
	h.entries = append(h.entries, entry)
	h.recurrences = append(h.recurrences, rec)
	return nil
}

func newLedger(t *testing.T, mode journals.AggregationMode, dispatcher journals.Dispatcher) *ledger {
	t.Helper()
	store := memstore.New()
	audit := &shared.MemoryAuditLog{}
	l := &ledger{
		accounts: accounts.NewService(store.Accounts(), nil),
		resolver: subledger.NewResolver(store.Directory()),
		periods:  periods.NewService(store.Periods(), audit, accounting.DefaultCalendar, nil),
		balances: balances.NewService(store.Balances(), balances.Config{Calendar: accounting.DefaultCalendar}),
		audit:    audit,
	}
	l.journals = journals.NewService(store.Journals(), l.accounts, l.resolver, l.balances, journals.Config{
		Calendar:   accounting.DefaultCalendar,
		Mode:       mode,
		Dispatcher: dispatcher,
		Audit:      audit,
	})

	ctx := context.Background()
	for _, in := range []accounts.CreateInput{
		{Number: "1000", Name: "Current assets", Type: accounting.AccountTypeAsset},
		{Number: "1100", Name: "Cash", Type: accounting.AccountTypeAsset, ParentNumber: "1000"},
		{Number: "1200", Name: "Receivables", Type: accounting.AccountTypeAsset, ParentNumber: "1000", RequiresSubLedger: true},
		{Number: "4000", Name: "Sales", Type: accounting.AccountTypeRevenue},
		{Number: "6000", Name: "Office expense", Type: accounting.AccountTypeExpense},
	} {
		in.Company = "acme"
		_, err := l.accounts.Create(ctx, in)
		require.NoError(t, err)
	}
	require.NoError(t, l.resolver.Register(ctx, subledger.Entity{Company: "acme", Kind: accounting.SubAccountCustomer, ID: "C-1", Name: "Contoso", IsActive: true}))
	require.NoError(t, l.resolver.Register(ctx, subledger.Entity{Company: "acme", Kind: accounting.SubAccountCustomer, ID: "C-2", Name: "Fabrikam", IsActive: true}))
	return l
}

func amt(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func jan(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func saleRequest(date time.Time, amount, source string) accounting.JournalEntryRequest {
	return accounting.JournalEntryRequest{
		Company:   "acme",
		Module:    "GL",
		SourceRef: source,
		Date:      date,
		PostedBy:  "clerk",
		Lines: []accounting.LineRequest{
			{AccountNumber: "1100", Debit: amt(amount), Credit: decimal.Zero},
			{AccountNumber: "4000", Debit: decimal.Zero, Credit: amt(amount)},
		},
	}
}

func balanceOf(t *testing.T, l *ledger, number string, asOf time.Time) decimal.Decimal {
	t.Helper()
	pos, err := l.balances.GetAccountBalance(context.Background(), "acme", number, asOf)
	require.NoError(t, err)
	return pos.Balance
}

func TestPostMovesBothBalancesAndRespectsLocks(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, journals.AggregationSync, nil)

	entry, err := l.journals.Post(ctx, saleRequest(jan(15), "500.00", ""))
	require.NoError(t, err)
	assert.Equal(t, accounting.EntryStatusPosted, entry.Status)
	assert.Equal(t, int64(1), entry.Number)
	assert.Len(t, entry.Lines, 2)

	assert.True(t, balanceOf(t, l, "1100", jan(31)).Equal(amt("500")))
	assert.True(t, balanceOf(t, l, "4000", jan(31)).Equal(amt("500")))

	_, err = l.periods.ClosePeriod(ctx, l.periods.KeyFor("acme", "GL", jan(1)), "controller")
	require.NoError(t, err)

	_, err = l.journals.Post(ctx, saleRequest(jan(20), "500.00", ""))
	assert.ErrorIs(t, err, accounting.ErrPeriodLocked)
	assert.True(t, balanceOf(t, l, "1100", jan(31)).Equal(amt("500")), "rejected post leaves balances untouched")

	other := saleRequest(jan(20), "20", "")
	other.Module = "SALES"
	_, err = l.journals.Post(ctx, other)
	assert.NoError(t, err, "locks are per module")

	_, err = l.periods.ReopenPeriod(ctx, l.periods.KeyFor("acme", "GL", jan(1)), "cfo", "missed receipt")
	require.NoError(t, err)
	_, err = l.journals.Post(ctx, saleRequest(jan(20), "500.00", ""))
	require.NoError(t, err)
	assert.True(t, balanceOf(t, l, "1100", jan(31)).Equal(amt("1020")))
}

func TestPostRejectsInvalidRequestsBeforeWriting(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, journals.AggregationSync, nil)

	line := func(number string, debit, credit string, sub accounting.SubAccountRef) accounting.LineRequest {
		return accounting.LineRequest{AccountNumber: number, Debit: amt(debit), Credit: amt(credit), SubAccount: sub}
	}
	customer := func(id string) accounting.SubAccountRef {
		return accounting.SubAccountRef{Kind: accounting.SubAccountCustomer, ID: id}
	}

	cases := []struct {
		name  string
		lines []accounting.LineRequest
		want  error
	}{
		{"empty", nil, accounting.ErrEmptyEntry},
		{"imbalanced", []accounting.LineRequest{line("1100", "10", "0", accounting.SubAccountRef{}), line("4000", "0", "9", accounting.SubAccountRef{})}, accounting.ErrImbalancedEntry},
		{"both sides", []accounting.LineRequest{line("1100", "10", "10", accounting.SubAccountRef{}), line("4000", "0", "0", accounting.SubAccountRef{})}, accounting.ErrInvalidAmount},
		{"negative", []accounting.LineRequest{line("1100", "-10", "0", accounting.SubAccountRef{}), line("4000", "0", "-10", accounting.SubAccountRef{})}, accounting.ErrInvalidAmount},
		{"too many decimals", []accounting.LineRequest{line("1100", "10.00001", "0", accounting.SubAccountRef{}), line("4000", "0", "10.00001", accounting.SubAccountRef{})}, accounting.ErrInvalidAmount},
		{"unknown account", []accounting.LineRequest{line("1999", "10", "0", accounting.SubAccountRef{}), line("4000", "0", "10", accounting.SubAccountRef{})}, accounting.ErrUnknownAccount},
		{"header account", []accounting.LineRequest{line("1000", "10", "0", accounting.SubAccountRef{}), line("4000", "0", "10", accounting.SubAccountRef{})}, accounting.ErrNonLeafAccount},
		{"missing sub-account", []accounting.LineRequest{line("1200", "10", "0", accounting.SubAccountRef{}), line("4000", "0", "10", accounting.SubAccountRef{})}, accounting.ErrInvalidSubAccount},
		{"unknown sub-account", []accounting.LineRequest{line("1200", "10", "0", customer("C-404")), line("4000", "0", "10", accounting.SubAccountRef{})}, accounting.ErrInvalidSubAccount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := saleRequest(jan(10), "10", "")
			req.Lines = tc.lines
			_, err := l.journals.Post(ctx, req)
			require.ErrorIs(t, err, tc.want)
			assert.True(t, accounting.IsValidation(err))
		})
	}

	list, err := l.journals.List(ctx, journals.ListFilter{Company: "acme"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPostRejectsInactiveAccount(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, journals.AggregationSync, nil)
	require.NoError(t, l.accounts.Deactivate(ctx, "acme", "6000"))

	req := saleRequest(jan(10), "10", "")
	req.Lines[0].AccountNumber = "6000"
	_, err := l.journals.Post(ctx, req)
	assert.ErrorIs(t, err, accounting.ErrNonLeafAccount)
}

func TestSubAccountLinesFeedSubLedger(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, journals.AggregationSync, nil)

	req := accounting.JournalEntryRequest{
		Company: "acme", Module: "SALES", Date: jan(5), PostedBy: "clerk",
		Lines: []accounting.LineRequest{
			{AccountNumber: "1200", SubAccount: accounting.SubAccountRef{Kind: "customer", ID: "C-1"}, Debit: amt("300"), Credit: decimal.Zero},
			{AccountNumber: "1200", SubAccount: accounting.SubAccountRef{Kind: accounting.SubAccountCustomer, ID: "C-2"}, Debit: amt("200"), Credit: decimal.Zero},
			{AccountNumber: "4000", Debit: decimal.Zero, Credit: amt("500")},
		},
	}
	entry, err := l.journals.Post(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Contoso", entry.Lines[0].SubAccount.Name)
	assert.Equal(t, accounting.SubAccountCustomer, entry.Lines[0].SubAccount.Kind)

	period := accounting.FiscalPeriod{Year: 2024, Period: 1}
	subs, err := l.balances.ListSubAccountBalances(ctx, "acme", "1200", period)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	sum := decimal.Zero
	for _, s := range subs {
		sum = sum.Add(s.Balance)
	}
	assert.True(t, sum.Equal(balanceOf(t, l, "1200", jan(31))))

	report, err := l.balances.Verify(ctx, "acme", period)
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report.Anomalies)
}

func TestSourceRefIsPostedOnce(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, journals.AggregationSync, nil)

	_, err := l.journals.Post(ctx, saleRequest(jan(3), "75", "INV-1"))
	require.NoError(t, err)
	_, err = l.journals.Post(ctx, saleRequest(jan(4), "75", "INV-1"))
	assert.ErrorIs(t, err, accounting.ErrSourceAlreadyPosted)

	other := saleRequest(jan(4), "75", "INV-1")
	other.Module = "SALES"
	_, err = l.journals.Post(ctx, other)
	assert.NoError(t, err, "source refs are scoped by module")
	assert.True(t, balanceOf(t, l, "1100", jan(31)).Equal(amt("150")))
}

func TestVoidAndCancelReverseBalances(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, journals.AggregationSync, nil)

	first, err := l.journals.Post(ctx, saleRequest(jan(3), "100", ""))
	require.NoError(t, err)
	second, err := l.journals.Post(ctx, saleRequest(jan(4), "40", ""))
	require.NoError(t, err)

	_, err = l.journals.Void(ctx, journals.VoidInput{Company: "acme", EntryID: first.ID.String(), Actor: "cfo"})
	assert.ErrorIs(t, err, journals.ErrReasonRequired)

	voided, err := l.journals.Void(ctx, journals.VoidInput{Company: "acme", EntryID: first.ID.String(), Actor: "cfo", Reason: "duplicate invoice"})
	require.NoError(t, err)
	assert.Equal(t, accounting.EntryStatusVoided, voided.Status)
	assert.Equal(t, "duplicate invoice", voided.VoidReason)
	assert.True(t, balanceOf(t, l, "1100", jan(31)).Equal(amt("40")))

	_, err = l.journals.Void(ctx, journals.VoidInput{Company: "acme", EntryID: first.ID.String(), Actor: "cfo", Reason: "again"})
	assert.ErrorIs(t, err, accounting.ErrInvalidStatus)

	canceled, err := l.journals.Cancel(ctx, journals.CancelInput{Company: "acme", EntryID: second.ID.String(), Actor: "cfo"})
	require.NoError(t, err)
	assert.Equal(t, accounting.EntryStatusCanceled, canceled.Status)
	assert.True(t, balanceOf(t, l, "1100", jan(31)).IsZero())
	assert.True(t, balanceOf(t, l, "4000", jan(31)).IsZero())

	stored, err := l.journals.Get(ctx, "acme", first.ID.String())
	require.NoError(t, err)
	assert.Equal(t, accounting.EntryStatusVoided, stored.Status, "voided rows are kept")

	_, err = l.journals.Get(ctx, "acme", "not-a-uuid")
	assert.ErrorIs(t, err, journals.ErrInvalidEntryID)
}

func TestVoidInLockedPeriodIsRejected(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, journals.AggregationSync, nil)
	entry, err := l.journals.Post(ctx, saleRequest(jan(3), "100", ""))
	require.NoError(t, err)
	_, err = l.periods.ClosePeriod(ctx, l.periods.KeyFor("acme", "GL", jan(3)), "controller")
	require.NoError(t, err)

	_, err = l.journals.Void(ctx, journals.VoidInput{Company: "acme", EntryID: entry.ID.String(), Actor: "cfo", Reason: "late"})
	assert.ErrorIs(t, err, accounting.ErrPeriodLocked)
	assert.True(t, balanceOf(t, l, "1100", jan(31)).Equal(amt("100")))
}

func TestDraftLifecycle(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, journals.AggregationSync, nil)

	draft, err := l.journals.Draft(ctx, saleRequest(jan(8), "60", "DRAFT-1"))
	require.NoError(t, err)
	assert.Equal(t, accounting.EntryStatusDraft, draft.Status)
	assert.True(t, balanceOf(t, l, "1100", jan(31)).IsZero(), "drafts do not move balances")

	_, err = l.journals.PostDraft(ctx, "acme", draft.ID.String(), "")
	assert.ErrorIs(t, err, journals.ErrActorRequired)

	posted, err := l.journals.PostDraft(ctx, "acme", draft.ID.String(), "approver")
	require.NoError(t, err)
	assert.Equal(t, accounting.EntryStatusPosted, posted.Status)
	assert.Equal(t, "approver", posted.PostedBy)
	assert.True(t, balanceOf(t, l, "1100", jan(31)).Equal(amt("60")))

	_, err = l.journals.PostDraft(ctx, "acme", draft.ID.String(), "approver")
	assert.ErrorIs(t, err, accounting.ErrInvalidStatus)

	other, err := l.journals.Draft(ctx, saleRequest(jan(9), "5", ""))
	require.NoError(t, err)
	canceled, err := l.journals.Cancel(ctx, journals.CancelInput{Company: "acme", EntryID: other.ID.String(), Actor: "clerk"})
	require.NoError(t, err)
	assert.Equal(t, accounting.EntryStatusCanceled, canceled.Status)
	assert.True(t, balanceOf(t, l, "1100", jan(31)).Equal(amt("60")))
}

func TestAdjustmentEntriesKeepOriginalTotals(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, journals.AggregationSync, nil)
	_, err := l.journals.Post(ctx, saleRequest(jan(3), "100", ""))
	require.NoError(t, err)

	adj := saleRequest(jan(31), "15", "")
	adj.Kind = accounting.EntryKindAdjustment
	_, err = l.journals.Post(ctx, adj)
	require.NoError(t, err)

	pos, err := l.balances.GetAccountBalance(ctx, "acme", "1100", jan(31))
	require.NoError(t, err)
	assert.True(t, pos.DebitTotal.Equal(amt("100")))
	assert.True(t, pos.Ending.Equal(amt("100")))
	assert.True(t, pos.AdjustmentDr.Equal(amt("15")))
	require.True(t, pos.AdjustedEnding.Valid)
	assert.True(t, pos.AdjustedEnding.Decimal.Equal(amt("115")))
	assert.True(t, pos.Balance.Equal(amt("115")))
}

func TestAsyncModeGoesThroughOutbox(t *testing.T) {
	ctx := context.Background()
	dispatcher := &recordingDispatcher{fail: true}
	l := newLedger(t, journals.AggregationAsync, dispatcher)

	entry, err := l.journals.Post(ctx, saleRequest(jan(3), "100", ""))
	require.NoError(t, err)
	assert.True(t, balanceOf(t, l, "1100", jan(31)).IsZero(), "async posting defers aggregation")

	pending, err := l.journals.PendingAggregations(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
	assert.Empty(t, dispatcher.tasks)

	dispatcher.fail = false
	n, err := l.journals.RedispatchPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, dispatcher.tasks, 1)
	task := dispatcher.tasks[0]
	assert.Equal(t, entry.ID, task.EntryID)
	assert.Equal(t, balances.EffectApply, task.Effect)

	n, err = l.journals.RedispatchPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n, "dispatched tasks are not relayed twice")

	require.NoError(t, l.balances.Apply(ctx, task))
	require.NoError(t, l.journals.Applied(ctx, task))
	assert.True(t, balanceOf(t, l, "1100", jan(31)).Equal(amt("100")))

	assert.ErrorIs(t, l.balances.Apply(ctx, task), accounting.ErrAlreadyApplied)
	assert.True(t, balanceOf(t, l, "1100", jan(31)).Equal(amt("100")), "replayed task is a no-op")

	pending, err = l.journals.PendingAggregations(ctx, "acme")
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestAsyncReverseBeforeApplyIsRetried(t *testing.T) {
	ctx := context.Background()
	dispatcher := &recordingDispatcher{}
	l := newLedger(t, journals.AggregationAsync, dispatcher)

	entry, err := l.journals.Post(ctx, saleRequest(jan(3), "100", ""))
	require.NoError(t, err)
	_, err = l.journals.Void(ctx, journals.VoidInput{Company: "acme", EntryID: entry.ID.String(), Actor: "cfo", Reason: "wrong customer"})
	require.NoError(t, err)
	require.Len(t, dispatcher.tasks, 2)

	apply, reverse := dispatcher.tasks[0], dispatcher.tasks[1]
	assert.ErrorIs(t, l.balances.Apply(ctx, reverse), balances.ErrNotYetApplied)
	require.NoError(t, l.balances.Apply(ctx, apply))
	require.NoError(t, l.balances.Apply(ctx, reverse))
	assert.True(t, balanceOf(t, l, "1100", jan(31)).IsZero())
}

func TestHooksReceiveRecurrence(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, journals.AggregationSync, nil)
	hook := &recordingHook{}
	l.journals.AddHook(hook)

	req := saleRequest(jan(1), "1200", "")
	req.Recurrence = &accounting.Recurrence{
		Frequency: accounting.FrequencyMonthly, Occurrences: 12, StartDate: jan(31),
		Amount: amt("100"), PrepaidAccount: "1100", ExpenseAccount: "6000",
	}
	_, err := l.journals.Post(ctx, req)
	require.NoError(t, err)
	require.Len(t, hook.entries, 1)
	require.NotNil(t, hook.recurrences[0])
	assert.Equal(t, 12, hook.recurrences[0].Occurrences)
}

func TestPostRejectsUnschedulableRecurrence(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, journals.AggregationSync, nil)
	hook := &recordingHook{}
	l.journals.AddHook(hook)

	base := accounting.Recurrence{
		Frequency: accounting.FrequencyMonthly, Occurrences: 3, StartDate: jan(31),
		TotalAmount: amt("300"), PrepaidAccount: "1100", ExpenseAccount: "6000",
	}
	for name, tc := range map[string]struct {
		mutate func(*accounting.Recurrence)
		want   error
	}{
		"unknown expense account": {func(r *accounting.Recurrence) { r.ExpenseAccount = "9999" }, accounting.ErrUnknownAccount},
		"header prepaid account":  {func(r *accounting.Recurrence) { r.PrepaidAccount = "1000" }, accounting.ErrNonLeafAccount},
		"total below occurrences": {func(r *accounting.Recurrence) { r.TotalAmount = amt("0.0002") }, accounting.ErrInvalidRecurrence},
	} {
		t.Run(name, func(t *testing.T) {
			rec := base
			tc.mutate(&rec)
			req := saleRequest(jan(2), "300", "")
			req.Recurrence = &rec
			_, err := l.journals.Post(ctx, req)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, accounting.IsValidation(err))
		})
	}

	all, err := l.journals.List(ctx, journals.ListFilter{Company: "acme"})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, hook.entries)
	assert.True(t, balanceOf(t, l, "1100", jan(31)).IsZero())
}

func TestListFiltersByModuleAndStatus(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, journals.AggregationSync, nil)
	_, err := l.journals.Post(ctx, saleRequest(jan(3), "10", ""))
	require.NoError(t, err)
	sales := saleRequest(jan(4), "20", "")
	sales.Module = "sales"
	_, err = l.journals.Post(ctx, sales)
	require.NoError(t, err)
	_, err = l.journals.Draft(ctx, saleRequest(jan(5), "30", ""))
	require.NoError(t, err)

	all, err := l.journals.List(ctx, journals.ListFilter{Company: "acme"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].Number, "newest first")

	onlySales, err := l.journals.List(ctx, journals.ListFilter{Company: "acme", Module: "Sales"})
	require.NoError(t, err)
	require.Len(t, onlySales, 1)
	assert.Equal(t, "SALES", onlySales[0].Module)

	drafts, err := l.journals.List(ctx, journals.ListFilter{Company: "acme", Status: accounting.EntryStatusDraft})
	require.NoError(t, err)
	assert.Len(t, drafts, 1)

	_, err = l.journals.List(ctx, journals.ListFilter{})
	assert.ErrorIs(t, err, accounting.ErrCompanyRequired)
}

func TestConcurrentBackdatedPostingsKeepRollForward(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, journals.AggregationSync, nil)
	feb := time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	receivable := func(date time.Time, amount string) accounting.JournalEntryRequest {
		return accounting.JournalEntryRequest{
			Company: "acme", Module: "SALES", Date: date, PostedBy: "clerk",
			Lines: []accounting.LineRequest{
				{AccountNumber: "1200", SubAccount: accounting.SubAccountRef{Kind: accounting.SubAccountCustomer, ID: "C-1"}, Debit: amt(amount), Credit: decimal.Zero},
				{AccountNumber: "4000", Debit: decimal.Zero, Credit: amt(amount)},
			},
		}
	}
	_, err := l.journals.Post(ctx, receivable(jan(5), "100"))
	require.NoError(t, err)

	const rounds = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := l.journals.Post(ctx, receivable(feb, "10"))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := l.journals.Post(ctx, receivable(mar, "1"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.True(t, balanceOf(t, l, "1200", feb).Equal(amt("300")))
	assert.True(t, balanceOf(t, l, "1200", mar).Equal(amt("320")))
	assert.True(t, balanceOf(t, l, "4000", mar).Equal(amt("320")))

	febPeriod := accounting.FiscalPeriod{Year: 2024, Period: 2}
	marPeriod := accounting.FiscalPeriod{Year: 2024, Period: 3}
	febPos, err := l.balances.GetAccountBalance(ctx, "acme", "1200", feb)
	require.NoError(t, err)
	marPos, err := l.balances.GetAccountBalance(ctx, "acme", "1200", mar)
	require.NoError(t, err)
	assert.True(t, marPos.Beginning.Equal(febPos.Ending), "march opens at %s, february ends at %s", marPos.Beginning, febPos.Ending)

	febSub, err := l.balances.GetSubAccountStatement(ctx, "acme", "1200", accounting.SubAccountCustomer, "C-1", febPeriod)
	require.NoError(t, err)
	marSub, err := l.balances.GetSubAccountStatement(ctx, "acme", "1200", accounting.SubAccountCustomer, "C-1", marPeriod)
	require.NoError(t, err)
	assert.True(t, marSub.Beginning.Equal(febSub.Ending))
	assert.True(t, marSub.Ending.Equal(amt("320")))

	for _, p := range []accounting.FiscalPeriod{febPeriod, marPeriod} {
		report, err := l.balances.Verify(ctx, "acme", p)
		require.NoError(t, err)
		assert.True(t, report.OK(), "%s: %+v", p, report.Anomalies)
	}
}
