package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sunwatt/forecaster/pkg/domain"
)

// warmCacheTTL bounds how long a stale snapshot survives a Model-Manager
// outage before a refresh is forced to fail outright rather than serve
// arbitrarily old state.
const warmCacheTTL = 30 * time.Minute

// snapshot is the payload persisted to the warm cache: everything refresh
// needs to repopulate the in-process Cache without a live Model-Manager.
type snapshot struct {
	Plants []domain.Plant         `json:"plants"`
	Models []domain.ModelMetadata `json:"models"`
}

// WarmCache is an optional Redis-backed backstop for the in-memory Cache:
// on a successful refresh it is updated; on a failed refresh the Cache
// falls back to whatever it last stored here rather than serving nothing.
// A nil *WarmCache is valid and always misses, matching the teacher's
// "storage is pluggable, absence is not an error" posture for Redis.
type WarmCache struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewWarmCache dials addr and returns a warm cache. Construction follows
// the same connect-then-ping discipline as the forecaster's other
// Redis-backed components.
func NewWarmCache(addr, password string, db int) (*WarmCache, error) {
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

	return &WarmCache{client: client, ttl: warmCacheTTL}, nil
}

const warmCacheKey = "forecaster:state:snapshot"

// Store persists the latest successfully refreshed registry state.
func (w *WarmCache) Store(ctx context.Context, plants []domain.Plant, models []domain.ModelMetadata) error {
	if w == nil {
		return nil
	}

	data, err := json.Marshal(snapshot{Plants: plants, Models: models})
	if err != nil {
		return fmt.Errorf("marshal warm cache snapshot: %w", err)
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if err := w.client.Set(ctx, warmCacheKey, data, w.ttl).Err(); err != nil {
		return fmt.Errorf("store warm cache snapshot: %w", err)
	}
	return nil
}

// Load retrieves the last stored snapshot. found is false if nothing is
// cached (first boot, or the TTL expired).
func (w *WarmCache) Load(ctx context.Context) (plants []domain.Plant, models []domain.ModelMetadata, found bool, err error) {
	if w == nil {
		return nil, nil, false, nil
	}

	w.mu.RLock()
	data, getErr := w.client.Get(ctx, warmCacheKey).Bytes()
	w.mu.RUnlock()

	if getErr != nil {
		if errors.Is(getErr, redis.Nil) {
			return nil, nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("load warm cache snapshot: %w", getErr)
	}

	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, nil, false, fmt.Errorf("unmarshal warm cache snapshot: %w", err)
	}
	return s.Plants, s.Models, true, nil
}

// Close closes the underlying Redis client. Idempotent, and safe on a nil
// *WarmCache.
func (w *WarmCache) Close() error {
	if w == nil || w.client == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.client.Close()
	w.client = nil
	if err != nil && err.Error() == "redis: client is closed" {
		return nil
	}
	return err
}
