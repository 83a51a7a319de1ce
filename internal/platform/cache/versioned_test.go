package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Versioned {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, time.Minute)
}

func TestVersionedFetchJSONCachesUntilBump(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"calls": calls}, nil
	}

	key, err := c.BuildKey(ctx, "acme", "tb", "2024-P01")
	require.NoError(t, err)
	assert.Equal(t, "ledger:acme:tb:2024-P01:v1", key)

	var got map[string]int
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, got["calls"])

	require.NoError(t, c.Bump(ctx, "acme"))
	bumped, err := c.BuildKey(ctx, "acme", "tb", "2024-P01")
	require.NoError(t, err)
	assert.NotEqual(t, key, bumped)

	require.NoError(t, c.FetchJSON(ctx, bumped, &got, loader))
	assert.Equal(t, 2, calls)
}

func TestVersionedBumpIsPerCompany(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	before, err := c.BuildKey(ctx, "beta", "tb")
	require.NoError(t, err)
	require.NoError(t, c.Bump(ctx, "acme"))
	after, err := c.BuildKey(ctx, "beta", "tb")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestVersionedNilClientCallsLoader(t *testing.T) {
	c := NewVersioned(nil, time.Minute)
	calls := 0
	var got []string
	for i := 0; i < 2; i++ {
		require.NoError(t, c.FetchJSON(context.Background(), "k", &got, func(context.Context) (any, error) {
			calls++
			return []string{"a"}, nil
		}))
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"a"}, got)
	assert.NoError(t, c.Bump(context.Background(), "acme"))
}
