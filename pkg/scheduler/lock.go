package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is the cross-replica mutual-exclusion primitive the scheduler uses to
// enforce max_instances=1: only one replica's cron trigger may run a given
// cycle at a time.
type Lock interface {
	// TryAcquire attempts to take the lock for d. Returns false, nil if
	// another holder currently owns it.
	TryAcquire(ctx context.Context, d time.Duration) (bool, error)
	// Release gives up the lock. Safe to call even if TryAcquire failed.
	Release(ctx context.Context) error
}

// LocalLock is the single-process fallback used when no Redis address is
// configured: an atomic flag plus an expiry time that TryAcquire checks,
// so a crashed holder doesn't wedge the scheduler forever.
type LocalLock struct {
	held    atomic.Bool
	mu      sync.Mutex
	expires time.Time
}

// NewLocalLock creates a fallback lock for single-replica deployments.
func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

func (l *LocalLock) TryAcquire(_ context.Context, d time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if l.held.Load() && now.Before(l.expires) {
		return false, nil
	}

	l.held.Store(true)
	l.expires = now.Add(d)
	return true, nil
}

func (l *LocalLock) Release(_ context.Context) error {
	l.held.Store(false)
	return nil
}

// RedisLock implements Lock with a Redis SET NX EX, the same
// connect-ping-wrap-errors construction discipline the forecaster's other
// Redis-backed components use.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
}

// NewRedisLock dials addr and returns a lock keyed under key. token should
// be unique per replica (e.g. hostname+pid) so a replica never releases a
// lock it does not hold.
func NewRedisLock(addr, password string, db int, key, token string) (*RedisLock, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	return &RedisLock{client: client, key: "forecaster:lock:" + key, token: token}, nil
}

func (r *RedisLock) TryAcquire(ctx context.Context, d time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key, r.token, d).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", r.key, err)
	}
	return ok, nil
}

// releaseScript only deletes the key if it still holds this replica's
// token, so a lock that expired and was re-acquired by another replica is
// never stolen back.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

func (r *RedisLock) Release(ctx context.Context) error {
	if err := r.client.Eval(ctx, releaseScript, []string{r.key}, r.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", r.key, err)
	}
	return nil
}

// Close closes the underlying Redis client. Idempotent.
func (r *RedisLock) Close() error {
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	if err != nil && err.Error() == "redis: client is closed" {
		return nil
	}
	return err
}
