package accounting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// DefaultNormalBalance returns the conventional normal side for the type.
func (t AccountType) DefaultNormalBalance() NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalDebit
	default:
		return NormalCredit
	}
}

// DefaultStatement returns the financial statement an account type reports on.
func (t AccountType) DefaultStatement() StatementCategory {
	switch t {
	case AccountTypeRevenue, AccountTypeExpense:
		return StatementIncome
	default:
		return StatementBalanceSheet
	}
}

// NormalBalance is the side on which an account's balance increases.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// Net returns the balance movement caused by debit and credit on an account
// with this normal side.
func (n NormalBalance) Net(debit, credit decimal.Decimal) decimal.Decimal {
	if n == NormalCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// StatementCategory classifies an account for financial statements.
type StatementCategory string

const (
	StatementBalanceSheet StatementCategory = "BALANCE_SHEET"
	StatementIncome       StatementCategory = "INCOME_STATEMENT"
)

// Account models a chart of accounts node.
type Account struct {
	ID                int64             `json:"id"`
	Company           string            `json:"company"`
	Number            string            `json:"number"`
	Name              string            `json:"name"`
	Type              AccountType       `json:"type"`
	NormalBalance     NormalBalance     `json:"normal_balance"`
	Statement         StatementCategory `json:"statement"`
	Level             int               `json:"level"`
	ParentID          *int64            `json:"parent_id,omitempty"`
	HasChildren       bool              `json:"has_children"`
	RequiresSubLedger bool              `json:"requires_sub_ledger"`
	IsActive          bool              `json:"is_active"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Postable reports whether the account may receive journal lines.
func (a Account) Postable() bool {
	return a.IsActive && !a.HasChildren
}

// EntryStatus enumerates the journal entry lifecycle.
type EntryStatus string

const (
	EntryStatusDraft    EntryStatus = "DRAFT"
	EntryStatusPosted   EntryStatus = "POSTED"
	EntryStatusCanceled EntryStatus = "CANCELED"
	EntryStatusVoided   EntryStatus = "VOIDED"
)

// Terminal reports whether no further transition is allowed.
func (s EntryStatus) Terminal() bool {
	return s == EntryStatusCanceled || s == EntryStatusVoided
}

// CanTransition validates a status change.
func (s EntryStatus) CanTransition(target EntryStatus) bool {
	switch s {
	case EntryStatusDraft:
		return target == EntryStatusPosted || target == EntryStatusCanceled
	case EntryStatusPosted:
		return target == EntryStatusCanceled || target == EntryStatusVoided
	}
	return false
}

// EntryKind separates original activity from post-close corrections.
type EntryKind string

const (
	EntryKindRegular    EntryKind = "REGULAR"
	EntryKindAdjustment EntryKind = "ADJUSTMENT"
)

// ModuleGeneralLedger tags entries keyed in directly against the general ledger.
const ModuleGeneralLedger = "GL"

// ModuleAmortization tags entries generated by the amortization scheduler.
const ModuleAmortization = "AMORT"

// JournalEntry is a posted (or reversed) ledger document.
type JournalEntry struct {
	ID         uuid.UUID     `json:"id"`
	Number     int64         `json:"number"`
	Company    string        `json:"company"`
	Module     string        `json:"module"`
	Reference  string        `json:"reference,omitempty"`
	SourceRef  string        `json:"source_ref,omitempty"`
	Kind       EntryKind     `json:"kind"`
	Date       time.Time     `json:"date"`
	Memo       string        `json:"memo,omitempty"`
	Status     EntryStatus   `json:"status"`
	PostedBy   string        `json:"posted_by"`
	PostedAt   time.Time     `json:"posted_at"`
	CanceledBy string        `json:"canceled_by,omitempty"`
	CanceledAt *time.Time    `json:"canceled_at,omitempty"`
	VoidedBy   string        `json:"voided_by,omitempty"`
	VoidedAt   *time.Time    `json:"voided_at,omitempty"`
	VoidReason string        `json:"void_reason,omitempty"`
	Lines      []JournalLine `json:"lines"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Totals sums debit and credit across the entry lines.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// JournalLine stores a single debit or credit against one account.
type JournalLine struct {
	ID            int64           `json:"id"`
	EntryID       uuid.UUID       `json:"entry_id"`
	LineNo        int             `json:"line_no"`
	AccountID     int64           `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	SubAccount    SubAccountRef   `json:"sub_account"`
	Memo          string          `json:"memo,omitempty"`
}
