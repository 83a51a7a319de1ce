package periods

import "context"

// Repository abstracts posted period persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPostedPeriod(ctx context.Context, key Key) (PostedPeriod, error)
	ListPostedPeriods(ctx context.Context, company string, year int) ([]PostedPeriod, error)
	ListLockEvents(ctx context.Context, key Key) ([]LockEvent, error)
}

// TxRepository exposes the transactional operations used by the lock manager.
type TxRepository interface {
	// LockPostedPeriod takes the exclusive gate lock for key and returns the
	// current row, or ErrPeriodNotTracked when none exists.
	LockPostedPeriod(ctx context.Context, key Key) (PostedPeriod, error)
	UpsertPostedPeriod(ctx context.Context, period PostedPeriod) error
	InsertLockEvent(ctx context.Context, event LockEvent) error
}
