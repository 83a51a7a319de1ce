package accounting

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiscalCalendarPeriodOf(t *testing.T) {
	april := FiscalCalendar{StartMonth: time.April}
	cases := []struct {
		name string
		cal  FiscalCalendar
		date time.Time
		want FiscalPeriod
	}{
		{"calendar year", DefaultCalendar, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), FiscalPeriod{Year: 2024, Period: 3}},
		{"april start same year", april, time.Date(2024, time.May, 3, 0, 0, 0, 0, time.UTC), FiscalPeriod{Year: 2024, Period: 2}},
		{"april start previous year", april, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), FiscalPeriod{Year: 2024, Period: 11}},
		{"out of range start month", FiscalCalendar{StartMonth: 13}, time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC), FiscalPeriod{Year: 2024, Period: 12}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cal.PeriodOf(tc.date))
		})
	}
}

func TestFiscalCalendarWindow(t *testing.T) {
	cal := FiscalCalendar{StartMonth: time.April}
	first, last := cal.Window(FiscalPeriod{Year: 2023, Period: 11})
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), first)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), last)
}

func TestFiscalPeriodNavigation(t *testing.T) {
	p := FiscalPeriod{Year: 2024, Period: 12}
	assert.Equal(t, FiscalPeriod{Year: 2025, Period: 1}, p.Next())
	assert.Equal(t, p, p.Next().Prev())
	assert.True(t, p.Before(p.Next()))
	assert.False(t, p.Next().Before(p))
	assert.Equal(t, "2024-P12", p.String())
	assert.False(t, FiscalPeriod{Year: 2024, Period: 13}.Valid())
}

func validRequest() JournalEntryRequest {
	return JournalEntryRequest{
		Company:  "acme",
		Module:   ModuleGeneralLedger,
		Date:     time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC),
		PostedBy: "alice",
		Lines: []LineRequest{
			{AccountNumber: "1100", Debit: decimal.RequireFromString("500")},
			{AccountNumber: "4000", Credit: decimal.RequireFromString("500")},
		},
	}
}

func TestJournalEntryRequestValidate(t *testing.T) {
	require.NoError(t, validRequest().Validate())

	cases := []struct {
		name   string
		mutate func(*JournalEntryRequest)
		want   error
	}{
		{"no lines", func(r *JournalEntryRequest) { r.Lines = nil }, ErrEmptyEntry},
		{"imbalanced", func(r *JournalEntryRequest) { r.Lines[1].Credit = decimal.RequireFromString("499") }, ErrImbalancedEntry},
		{"both sides", func(r *JournalEntryRequest) { r.Lines[0].Credit = decimal.RequireFromString("1") }, ErrInvalidAmount},
		{"zero line", func(r *JournalEntryRequest) { r.Lines[0].Debit = decimal.Zero }, ErrInvalidAmount},
		{"negative", func(r *JournalEntryRequest) { r.Lines[0].Debit = decimal.RequireFromString("-500") }, ErrInvalidAmount},
		{"scale", func(r *JournalEntryRequest) {
			r.Lines[0].Debit = decimal.RequireFromString("500.00001")
			r.Lines[1].Credit = decimal.RequireFromString("500.00001")
		}, ErrInvalidAmount},
		{"blank account", func(r *JournalEntryRequest) { r.Lines[1].AccountNumber = " " }, ErrUnknownAccount},
		{"company", func(r *JournalEntryRequest) { r.Company = "" }, ErrCompanyRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLineErrorCarriesIndex(t *testing.T) {
	req := validRequest()
	req.Lines[1].Debit = decimal.RequireFromString("1")
	err := req.Validate()

	var lineErr *LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 1, lineErr.Line)
	assert.Equal(t, "4000", lineErr.Account)
	assert.True(t, IsValidation(err))
	assert.False(t, IsValidation(ErrPeriodLocked))
}

func TestRecurrenceValidate(t *testing.T) {
	rec := Recurrence{
		Frequency:      FrequencyQuarterly,
		Occurrences:    4,
		StartDate:      time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
		TotalAmount:    decimal.RequireFromString("1200"),
		PrepaidAccount: "1300",
		ExpenseAccount: "6100",
	}
	require.NoError(t, rec.Validate())
	assert.Equal(t, 3, rec.Frequency.Months())

	rec.ExpenseAccount = "1300"
	assert.Error(t, rec.Validate())
	rec.ExpenseAccount = "6100"
	rec.Frequency = "WEEKLY"
	assert.ErrorIs(t, rec.Validate(), ErrInvalidRecurrence)
	rec.Frequency = FrequencyMonthly

	rec.TotalAmount = decimal.RequireFromString("0.0002")
	rec.Occurrences = 3
	err := rec.Validate()
	assert.ErrorIs(t, err, ErrInvalidRecurrence, "last occurrence would post nothing")
	assert.True(t, IsValidation(err))

	rec.TotalAmount = decimal.RequireFromString("0.0003")
	assert.NoError(t, rec.Validate())
}

func TestSubAccountRef(t *testing.T) {
	kind, err := ParseSubAccountKind(" customer ")
	require.NoError(t, err)
	assert.Equal(t, SubAccountCustomer, kind)

	none, err := ParseSubAccountKind("none")
	require.NoError(t, err)
	assert.True(t, SubAccountRef{Kind: none}.IsNone())

	_, err = ParseSubAccountKind("vendor")
	assert.ErrorIs(t, err, ErrInvalidSubAccount)

	ref := SubAccountRef{Kind: SubAccountSupplier, ID: "S-9", Name: "Globex"}
	assert.Equal(t, "SUPPLIER:S-9", ref.Key())
	assert.Equal(t, "SUPPLIER S-9 (Globex)", ref.String())
	assert.Equal(t, "none", SubAccountRef{}.String())
}

func TestNormalBalanceNet(t *testing.T) {
	d, c := decimal.RequireFromString("70"), decimal.RequireFromString("20")
	assert.True(t, NormalDebit.Net(d, c).Equal(decimal.RequireFromString("50")))
	assert.True(t, NormalCredit.Net(d, c).Equal(decimal.RequireFromString("-50")))
	assert.Equal(t, NormalCredit, AccountTypeRevenue.DefaultNormalBalance())
	assert.Equal(t, StatementIncome, AccountTypeExpense.DefaultStatement())
	assert.False(t, Account{IsActive: true, HasChildren: true}.Postable())
}

func TestEntryStatusTransitions(t *testing.T) {
	assert.True(t, EntryStatusDraft.CanTransition(EntryStatusPosted))
	assert.False(t, EntryStatusDraft.CanTransition(EntryStatusVoided))
	assert.True(t, EntryStatusPosted.CanTransition(EntryStatusVoided))
	assert.False(t, EntryStatusVoided.CanTransition(EntryStatusPosted))
	assert.True(t, EntryStatusCanceled.Terminal())
}
