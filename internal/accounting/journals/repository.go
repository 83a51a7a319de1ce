package journals

import (
	"context"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
)

// Repository encapsulates journal persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetJournal(ctx context.Context, company string, id uuid.UUID) (accounting.JournalEntry, error)
	ListJournals(ctx context.Context, filter ListFilter) ([]accounting.JournalEntry, error)
	// ListPendingOutbox returns aggregation tasks not yet handed to the queue.
	ListPendingOutbox(ctx context.Context, limit int) ([]balances.Task, error)
	MarkOutboxDispatched(ctx context.Context, task balances.Task) error
	// CountPendingOutbox counts the company's tasks not yet applied by the aggregator.
	CountPendingOutbox(ctx context.Context, company string) (int, error)
	// MarkOutboxApplied records that the aggregator consumed the task.
	MarkOutboxApplied(ctx context.Context, task balances.Task) error
}

// TxRepository exposes the operations available within a posting
// transaction. It embeds the aggregator port so synchronous aggregation
// commits together with the entry.
type TxRepository interface {
	balances.TxRepository

	// SharePeriodLock takes a shared lock on the posting gate and returns its
	// row, or periods.ErrPeriodNotTracked when the period was never closed.
	SharePeriodLock(ctx context.Context, key periods.Key) (periods.PostedPeriod, error)
	FindEntryBySource(ctx context.Context, company, module, sourceRef string) (accounting.JournalEntry, error)
	// InsertJournalEntry stores header and lines, assigning Number and line IDs.
	InsertJournalEntry(ctx context.Context, entry accounting.JournalEntry) (accounting.JournalEntry, error)
	GetJournalForUpdate(ctx context.Context, company string, id uuid.UUID) (accounting.JournalEntry, error)
	UpdateJournalStatus(ctx context.Context, entry accounting.JournalEntry) error
	InsertOutbox(ctx context.Context, task balances.Task) error
}
