// Package lock provides the per-agent run lease that keeps two runs of the
// same agent from overlapping.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// ErrHeld is returned when another holder owns the lease.
var ErrHeld = eris.New("lock: lease held")

// Locker hands out leases by key.
type Locker interface {
	// Acquire takes the lease for key or returns ErrHeld. The lease expires
	// after ttl even if never released.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// RedisLocker stores leases as SET NX PX keys, releasing them only if the
// stored token still matches.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLocker creates a RedisLocker. Keys are stored as prefix+key.
func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "lock: parse redis url")
	}
	return redis.NewClient(opts), nil
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := newToken()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "lock: acquire %s", key)
	}
	if !ok {
		return nil, eris.Wrapf(ErrHeld, "lock: %s", key)
	}
	return &redisLease{client: l.client, key: l.prefix + key, token: token}, nil
}

// releaseScript deletes the key only when it still holds our token, so an
// expired lease can't release its successor's.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return eris.Wrapf(err, "lock: release %s", l.key)
	}
	return nil
}

// LocalLocker holds leases in process memory. It serializes runs within one
// server process only.
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]localEntry
	now    func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: make(map[string]localEntry), now: time.Now}
}

// Acquire implements Locker.
func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.leases[key]; ok && now.Before(e.expires) {
		return nil, eris.Wrapf(ErrHeld, "lock: %s", key)
	}
	token := newToken()
	l.leases[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLease{locker: l, key: key, token: token}, nil
}

type localLease struct {
	locker *LocalLocker
	key    string
	token  string
}

func (l *localLease) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if e, ok := l.locker.leases[l.key]; ok && e.token == l.token {
		delete(l.locker.leases, l.key)
	}
	return nil
}

// Noop grants every lease. Used when runs are serialized externally.
type Noop struct{}

// Acquire implements Locker.
func (Noop) Acquire(context.Context, string, time.Duration) (Lease, error) {
	return noopLease{}, nil
}

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

// New builds the locker named by driver: "redis", "local" or "none". The
// returned close function releases the Redis client, if any.
func New(driver, redisURL string) (Locker, func() error, error) {
	switch driver {
	case "redis":
		client, err := NewRedisClient(redisURL)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisLocker(client, "policy-tracker:lease:"), client.Close, nil
	case "local", "":
		return NewLocalLocker(), func() error { return nil }, nil
	case "none":
		return Noop{}, func() error { return nil }, nil
	default:
		return nil, nil, eris.Errorf("lock: unknown driver %q", driver)
	}
}
