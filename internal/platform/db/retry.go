package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict marks errors caused by a concurrent writer; the operation may be retried.
var ErrConflict = errors.New("platform/db: concurrent update conflict")

// IsConflict reports whether err is a retryable write conflict: an
// optimistic version mismatch, a serialization failure or a deadlock.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// RetryPolicy bounds retries of conflicting transactions.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	MaxDelay time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{Attempts: 5, Backoff: 20 * time.Millisecond, MaxDelay: time.Second}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted. The delay doubles after every conflict. The last
// error is returned together with the number of attempts made.
func Retry(ctx context.Context, policy RetryPolicy, retryable func(error) bool, fn func(context.Context) error) (int, error) {
	if policy.Attempts <= 0 {
		policy = DefaultRetryPolicy
	}
	if retryable == nil {
		retryable = IsConflict
	}
	delay := policy.Backoff
	var err error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !retryable(err) {
			return attempt, err
		}
		if attempt == policy.Attempts {
			return attempt, err
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
			if policy.MaxDelay > 0 && delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}
	}
	return policy.Attempts, err
}
