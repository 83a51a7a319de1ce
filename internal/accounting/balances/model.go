package balances

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Effect distinguishes applying a posted entry from reversing a canceled or voided one.
type Effect string

const (
	EffectApply   Effect = "APPLY"
	EffectReverse Effect = "REVERSE"
)

// Ledger names the summary table an applied marker belongs to.
type Ledger string

const (
	LedgerGL  Ledger = "GL"
	LedgerSub Ledger = "SUB"
)

// Task is the unit of work delivered to the aggregator queue.
type Task struct {
	Company string    `json:"company"`
	EntryID uuid.UUID `json:"entry_id"`
	Effect  Effect    `json:"effect"`
}

// ID is the deduplication identifier of the task.
func (t Task) ID() string {
	return "agg:" + t.EntryID.String() + ":" + string(t.Effect)
}

// Key addresses a GLPeriodBalance row.
type Key struct {
	Company   string
	AccountID int64
	Period    accounting.FiscalPeriod
}

// SubKey addresses a GLSubAccountBalance row.
type SubKey struct {
	Key
	Kind accounting.SubAccountKind
	ID   string
}

// AppliedKey records that an entry effect has been folded into one
// account-period (and sub-account) summary.
type AppliedKey struct {
	EntryID   uuid.UUID
	Effect    Effect
	Ledger    Ledger
	AccountID int64
	Period    accounting.FiscalPeriod
	SubKey    string
}

// Figures is the roll-forward shared by period and sub-account balances.
type Figures struct {
	Beginning        decimal.Decimal
	DebitTotal       decimal.Decimal
	CreditTotal      decimal.Decimal
	Ending           decimal.Decimal
	AdjustmentDebit  decimal.Decimal
	AdjustmentCredit decimal.Decimal
	AdjustedEnding   decimal.NullDecimal
}

// Effective is the balance carried into the next period.
func (f Figures) Effective() decimal.Decimal {
	if f.AdjustedEnding.Valid {
		return f.AdjustedEnding.Decimal
	}
	return f.Ending
}

// Recompute derives ending and adjusted ending from beginning and totals.
func (f *Figures) Recompute(normal accounting.NormalBalance) {
	f.Ending = f.Beginning.Add(normal.Net(f.DebitTotal, f.CreditTotal))
	if f.AdjustedEnding.Valid || !f.AdjustmentDebit.IsZero() || !f.AdjustmentCredit.IsZero() {
		f.AdjustedEnding = decimal.NewNullDecimal(f.Ending.Add(normal.Net(f.AdjustmentDebit, f.AdjustmentCredit)))
	}
}

// Post folds signed debit and credit amounts into the original or
// adjustment totals.
func (f *Figures) Post(normal accounting.NormalBalance, debit, credit decimal.Decimal, adjustment bool) {
	if adjustment {
		f.AdjustmentDebit = f.AdjustmentDebit.Add(debit)
		f.AdjustmentCredit = f.AdjustmentCredit.Add(credit)
	} else {
		f.DebitTotal = f.DebitTotal.Add(debit)
		f.CreditTotal = f.CreditTotal.Add(credit)
	}
	f.Recompute(normal)
}

// Shift moves the opening position of a later period by delta.
func (f *Figures) Shift(normal accounting.NormalBalance, delta decimal.Decimal) {
	f.Beginning = f.Beginning.Add(delta)
	f.Recompute(normal)
}

// Consistent reports whether ending = beginning + net(debit, credit).
func (f Figures) Consistent(normal accounting.NormalBalance) bool {
	return f.Ending.Equal(f.Beginning.Add(normal.Net(f.DebitTotal, f.CreditTotal)))
}

// PeriodBalance is the GLPeriodBalance row.
type PeriodBalance struct {
	Key
	AccountNumber string
	NormalBalance accounting.NormalBalance
	PeriodStart   time.Time
	PeriodEnd     time.Time
	Figures
	IsClosed  bool
	ClosedAt  *time.Time
	Version   int64
	UpdatedAt time.Time
}

// SubAccountBalance is the GLSubAccountBalance row.
type SubAccountBalance struct {
	SubKey
	SubAccountName string
	AccountNumber  string
	NormalBalance  accounting.NormalBalance
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Figures
	IsClosed  bool
	ClosedAt  *time.Time
	Version   int64
	UpdatedAt time.Time
}

// Ref returns the sub-account reference of the row.
func (b SubAccountBalance) Ref() accounting.SubAccountRef {
	return accounting.SubAccountRef{Kind: b.Kind, ID: b.ID, Name: b.SubAccountName}
}

// ErrBalanceNotFound indicates no summary row exists for the key.
var ErrBalanceNotFound = errors.New("balances: balance not found")

// ErrVersionConflict indicates an optimistic update lost against a concurrent writer.
var ErrVersionConflict = fmt.Errorf("balances: %w", db.ErrConflict)

// ErrNotYetApplied indicates a reversal arrived before the entry it reverses was applied.
var ErrNotYetApplied = errors.New("balances: entry not yet applied")
