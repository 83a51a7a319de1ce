package inventory

import (
	"context"
	"time"
)

// Repository abstracts costing persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, company, productID string) (Balance, error)
	ListLedger(ctx context.Context, filter LedgerFilter) ([]LedgerLine, error)
	ListLockedEntries(ctx context.Context, company, productID string) ([]LockedEntry, error)
}

// TxRepository exposes the operations used while a product is locked.
type TxRepository interface {
	// LockProduct serialises writers of one product, creating its balance
	// row when missing.
	LockProduct(ctx context.Context, company, productID string) (Balance, error)
	SaveBalance(ctx context.Context, balance Balance) error
	// LastLineAtOrBefore returns the latest line dated on or before date, or ErrNotFound.
	LastLineAtOrBefore(ctx context.Context, company, productID string, date time.Time) (LedgerLine, error)
	// ListLinesAfter returns lines dated strictly after date in posting order.
	ListLinesAfter(ctx context.Context, company, productID string, date time.Time) ([]LedgerLine, error)
	InsertLine(ctx context.Context, line LedgerLine) (LedgerLine, error)
	UpdateLine(ctx context.Context, line LedgerLine) error
	// ListUnlockedThrough returns unlocked lines dated on or before date.
	ListUnlockedThrough(ctx context.Context, company, productID string, date time.Time) ([]LedgerLine, error)
	MarkLocked(ctx context.Context, lineIDs []int64) error
	InsertLockedEntry(ctx context.Context, entry LockedEntry) error
}

// IdempotencyPort records processed source documents.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}
