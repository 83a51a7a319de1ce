package balances

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// Repository abstracts summary persistence and the snapshot reads served from it.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetJournal(ctx context.Context, company string, id uuid.UUID) (accounting.JournalEntry, error)
	GetAccountByNumber(ctx context.Context, company, number string) (accounting.Account, error)
	ListAccounts(ctx context.Context, company string) ([]accounting.Account, error)
	// LatestPeriodBalance returns the row of the latest period at or before atOrBefore.
	LatestPeriodBalance(ctx context.Context, company string, accountID int64, atOrBefore accounting.FiscalPeriod) (PeriodBalance, error)
	// ListLatestPeriodBalances returns, per account, the latest row at or before atOrBefore.
	ListLatestPeriodBalances(ctx context.Context, company string, atOrBefore accounting.FiscalPeriod) ([]PeriodBalance, error)
	LatestSubAccountBalance(ctx context.Context, company string, accountID int64, kind accounting.SubAccountKind, id string, atOrBefore accounting.FiscalPeriod) (SubAccountBalance, error)
	ListLatestSubAccountBalances(ctx context.Context, company string, accountID int64, atOrBefore accounting.FiscalPeriod) ([]SubAccountBalance, error)
}

// TxRepository exposes the locked read-modify-write operations of the aggregator.
type TxRepository interface {
	// GetAccountForUpdate row-locks the account. Every summary write for the
	// account happens under this lock, so the roll-forward reads of earlier
	// periods cannot interleave with another writer.
	GetAccountForUpdate(ctx context.Context, company string, id int64) (accounting.Account, error)
	// MarkApplied inserts the marker and reports false when it already existed.
	MarkApplied(ctx context.Context, key AppliedKey) (bool, error)
	HasApplied(ctx context.Context, entryID uuid.UUID, effect Effect) (bool, error)

	GetPeriodBalanceForUpdate(ctx context.Context, key Key) (PeriodBalance, error)
	LatestPeriodBalanceBefore(ctx context.Context, company string, accountID int64, before accounting.FiscalPeriod) (PeriodBalance, error)
	ListPeriodBalancesAfterForUpdate(ctx context.Context, company string, accountID int64, after accounting.FiscalPeriod) ([]PeriodBalance, error)
	// SavePeriodBalance inserts rows with Version 0 and updates others when
	// the stored version still matches, returning ErrVersionConflict otherwise.
	SavePeriodBalance(ctx context.Context, balance PeriodBalance) (PeriodBalance, error)

	GetSubAccountBalanceForUpdate(ctx context.Context, key SubKey) (SubAccountBalance, error)
	LatestSubAccountBalanceBefore(ctx context.Context, key SubKey) (SubAccountBalance, error)
	ListSubAccountBalancesAfterForUpdate(ctx context.Context, key SubKey) ([]SubAccountBalance, error)
	SaveSubAccountBalance(ctx context.Context, balance SubAccountBalance) (SubAccountBalance, error)

	// SetPeriodClosed flags every period and sub-account row of the company period.
	SetPeriodClosed(ctx context.Context, company string, period accounting.FiscalPeriod, closed bool, at *time.Time) error
}
