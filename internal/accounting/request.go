package accounting

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// MoneyScale is the number of fractional digits amounts may carry.
const MoneyScale = shared.MoneyScale

// JournalEntryRequest is the already-validated batch handed over by an
// upstream document module (purchase, sales, collection, dispatch, ...).
type JournalEntryRequest struct {
	Company    string
	Module     string
	Reference  string
	SourceRef  string
	Kind       EntryKind
	Date       time.Time
	Memo       string
	PostedBy   string
	Lines      []LineRequest
	Recurrence *Recurrence
}

// LineRequest is one debit or credit of a JournalEntryRequest.
type LineRequest struct {
	AccountNumber string
	SubAccount    SubAccountRef
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Memo          string
}

// Frequency is the step between amortization occurrences.
type Frequency string

const (
	FrequencyMonthly    Frequency = "MONTHLY"
	FrequencyQuarterly  Frequency = "QUARTERLY"
	FrequencySemiAnnual Frequency = "SEMI_ANNUAL"
	FrequencyAnnual     Frequency = "ANNUAL"
)

// Months returns the number of calendar months between occurrences.
func (f Frequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencySemiAnnual:
		return 6
	case FrequencyAnnual:
		return 12
	}
	return 0
}

// Recurrence asks for an amortization schedule to be created once the
// accrual/prepaid entry is posted.
type Recurrence struct {
	Frequency      Frequency
	Occurrences    int
	StartDate      time.Time
	Amount         decimal.Decimal
	TotalAmount    decimal.Decimal
	PrepaidAccount string
	ExpenseAccount string
}

// Validate checks recurrence settings.
func (r Recurrence) Validate() error {
	if r.Frequency.Months() == 0 {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRecurrence, r.Frequency)
	}
	if r.Occurrences <= 0 {
		return fmt.Errorf("%w: occurrences must be positive", ErrInvalidRecurrence)
	}
	if r.StartDate.IsZero() {
		return fmt.Errorf("%w: start date required", ErrInvalidRecurrence)
	}
	if !r.Amount.IsPositive() && !r.TotalAmount.IsPositive() {
		return fmt.Errorf("%w: amount required", ErrInvalidRecurrence)
	}
	if r.PrepaidAccount == "" || r.ExpenseAccount == "" {
		return fmt.Errorf("%w: prepaid and expense accounts required", ErrInvalidRecurrence)
	}
	if r.PrepaidAccount == r.ExpenseAccount {
		return fmt.Errorf("%w: prepaid and expense accounts must differ", ErrInvalidRecurrence)
	}
	for _, amt := range []decimal.Decimal{r.Amount, r.TotalAmount} {
		if amt.IsNegative() || !amt.Equal(amt.Round(MoneyScale)) {
			return fmt.Errorf("%w: amount %s", ErrInvalidRecurrence, amt)
		}
	}
	if r.TotalAmount.IsPositive() {
		per := r.Amount
		if !per.IsPositive() {
			per = r.TotalAmount.DivRound(decimal.NewFromInt(int64(r.Occurrences)), MoneyScale)
		}
		if !per.IsPositive() || per.Mul(decimal.NewFromInt(int64(r.Occurrences-1))).GreaterThanOrEqual(r.TotalAmount) {
			return fmt.Errorf("%w: total %s leaves no remainder for the last of %d occurrences", ErrInvalidRecurrence, r.TotalAmount, r.Occurrences)
		}
	}
	return nil
}

// Validate checks the structural rules that need no lookups: a non-empty set
// of lines, exactly one positive side per line, the money scale, and
// Σdebit = Σcredit.
func (r JournalEntryRequest) Validate() error {
	if strings.TrimSpace(r.Company) == "" {
		return ErrCompanyRequired
	}
	if strings.TrimSpace(r.Module) == "" {
		return errors.New("accounting: module required")
	}
	if r.Date.IsZero() {
		return errors.New("accounting: date required")
	}
	switch r.Kind {
	case "", EntryKindRegular, EntryKindAdjustment:
	default:
		return fmt.Errorf("accounting: unknown entry kind %q", r.Kind)
	}
	if len(r.Lines) == 0 {
		return ErrEmptyEntry
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range r.Lines {
		if strings.TrimSpace(line.AccountNumber) == "" {
			return &LineError{Line: idx, Err: ErrUnknownAccount}
		}
		if err := checkLineAmounts(line); err != nil {
			return &LineError{Line: idx, Account: line.AccountNumber, Err: err}
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", ErrImbalancedEntry, debit.StringFixed(MoneyScale), credit.StringFixed(MoneyScale))
	}
	if r.Recurrence != nil {
		if err := r.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func checkLineAmounts(line LineRequest) error {
	if line.Debit.IsNegative() || line.Credit.IsNegative() {
		return fmt.Errorf("%w: negative amount", ErrInvalidAmount)
	}
	if line.Debit.IsPositive() == line.Credit.IsPositive() {
		return ErrInvalidAmount
	}
	for _, amt := range []decimal.Decimal{line.Debit, line.Credit} {
		if !amt.Equal(amt.Round(MoneyScale)) {
			return fmt.Errorf("%w: more than %d fractional digits", ErrInvalidAmount, MoneyScale)
		}
	}
	return nil
}
