package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLeaseIsExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	leases := NewRedisLease(client)
	key := AmortizationLockKey("acme")

	first, err := leases.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	_, err = leases.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	other, err := leases.Acquire(ctx, AmortizationLockKey("globex"), time.Minute)
	require.NoError(t, err, "leases are per company")
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists(key))
	second, err := leases.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestRedisLeaseExpiredReleaseKeepsNewOwner(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	leases := NewRedisLease(client)
	key := AmortizationLockKey("acme")

	stale, err := leases.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := leases.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists(key), "a stale holder cannot drop the new lease")
	require.NoError(t, fresh.Release(ctx))
}

func TestMemoryLeaseExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	leases := NewMemoryLease()
	leases.now = func() time.Time { return now }

	held, err := leases.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	_, err = leases.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	now = now.Add(2 * time.Minute)
	taken, err := leases.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, held.Release(ctx))
	_, err = leases.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld, "releasing an expired lease leaves the new holder")
	require.NoError(t, taken.Release(ctx))
	_, err = leases.Acquire(ctx, "k", time.Minute)
	assert.NoError(t, err)
}

func TestMemoryIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore()
	require.NoError(t, store.CheckAndInsert(ctx, "k-1", "journals"))
	assert.ErrorIs(t, store.CheckAndInsert(ctx, "k-1", "journals"), ErrIdempotencyConflict)
	assert.Error(t, store.CheckAndInsert(ctx, "", "journals"))
	require.NoError(t, store.Delete(ctx, "k-1"))
	assert.NoError(t, store.CheckAndInsert(ctx, "k-1", "journals"))
}

func TestMemoryAuditLogRequiresTarget(t *testing.T) {
	ctx := context.Background()
	var log MemoryAuditLog
	assert.Error(t, log.Record(ctx, AuditLog{Action: "period.close"}))
	require.NoError(t, log.Record(ctx, AuditLog{Action: "period.close", Entity: "posted_period", EntityID: "acme/GL/2024-P01"}))
	records := log.Records()
	require.Len(t, records, 1)
	records[0].Action = "mutated"
	assert.Equal(t, "period.close", log.Records()[0].Action)
}

func TestParseMoney(t *testing.T) {
	d, err := ParseMoney("12.3456")
	require.NoError(t, err)
	assert.Equal(t, "12.3456", NumericString(d))

	_, err = ParseMoney("1.23456")
	assert.Error(t, err)
	_, err = ParseMoney("abc")
	assert.Error(t, err)

	zero, err := ParseMoney("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
	assert.True(t, RoundMoney(decimal.RequireFromString("0.00005")).Equal(decimal.RequireFromString("0.0001")))
}
