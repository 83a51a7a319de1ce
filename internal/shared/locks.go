package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AmortizationLockKey builds the redis key of the per-company scheduler lease.
func AmortizationLockKey(company string) string {
	return fmt.Sprintf("ledger:amortization:%s:lease", company)
}

// ErrLeaseHeld indicates another run owns the lease.
var ErrLeaseHeld = errors.New("lease held by another run")

// Lease is an acquired run lease.
type Lease interface {
	Release(ctx context.Context) error
}

// RunLease hands out time-bounded exclusive leases keyed by name.
type RunLease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLease implements RunLease with SET NX PX and a token-checked release.
type RedisLease struct {
	client *redis.Client
}

// NewRedisLease constructs RedisLease.
func NewRedisLease(client *redis.Client) *RedisLease {
	return &RedisLease{client: client}
}

// Acquire takes the lease or returns ErrLeaseHeld.
func (l *RedisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("lease: redis client not initialised")
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLeaseHeld, key)
	}
	return &redisLease{client: l.client, key: key, token: token}, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// MemoryLease implements RunLease within one process.
type MemoryLease struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewMemoryLease constructs MemoryLease.
func NewMemoryLease() *MemoryLease {
	return &MemoryLease{held: make(map[string]time.Time), now: time.Now}
}

// Acquire takes the lease or returns ErrLeaseHeld.
func (l *MemoryLease) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until, ok := l.held[key]; ok && l.now().Before(until) {
		return nil, fmt.Errorf("%w: %s", ErrLeaseHeld, key)
	}
	until := l.now().Add(ttl)
	l.held[key] = until
	return &memoryLease{owner: l, key: key, until: until}, nil
}

type memoryLease struct {
	owner *MemoryLease
	key   string
	until time.Time
}

func (l *memoryLease) Release(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if l.owner.held[l.key].Equal(l.until) {
		delete(l.owner.held, l.key)
	}
	return nil
}
