// Package state holds the in-memory registry snapshot the prediction
// pipeline reads from on every cycle: active plants and the models bound
// to them. It is rebuilt wholesale on each refresh and swapped in under a
// single write lock, the same snapshot-and-swap discipline the teacher
// uses for its own cross-goroutine shared state.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sunwatt/forecaster/pkg/domain"
)

// ModelManager is the subset of clients.ModelManagerClient the cache needs.
// Declared here so tests can fake it without standing up an HTTP server.
type ModelManager interface {
	ActivePlants(ctx context.Context) ([]domain.Plant, error)
	ActiveModels(ctx context.Context) ([]domain.ModelMetadata, error)
}

type registry struct {
	plants        map[int]domain.Plant
	modelsByPlant map[int][]domain.ModelMetadata
}

// Cache is the State Cache: a read-mostly snapshot of the plant/model
// registry, refreshed on a schedule and read on every pipeline cycle.
type Cache struct {
	client ModelManager
	warm   *WarmCache
	log    *slog.Logger

	mu   sync.RWMutex
	data *registry
}

// New creates a Cache against client. warm may be nil; when non-nil it
// backstops a failed refresh with the last known-good snapshot.
func New(client ModelManager, warm *WarmCache, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{client: client, warm: warm, log: log}
}

// Refresh fetches the full active-plant and active-model sets from
// Model-Manager and atomically swaps them in. On failure, if a warm cache
// is configured, it falls back to the last successfully stored snapshot
// instead of leaving the cache stale from an arbitrarily old in-memory
// copy; if both fail and no prior data exists, the cache stays
// uninitialized and callers receive ErrNotInitialized.
func (c *Cache) Refresh(ctx context.Context) error {
	plants, err := c.client.ActivePlants(ctx)
	if err != nil {
		return c.refreshFromWarmCache(ctx, fmt.Errorf("refresh active plants: %w", err))
	}

	models, err := c.client.ActiveModels(ctx)
	if err != nil {
		return c.refreshFromWarmCache(ctx, fmt.Errorf("refresh active models: %w", err))
	}

	c.swap(plants, models)

	if c.warm != nil {
		if err := c.warm.Store(ctx, plants, models); err != nil {
			c.log.Warn("warm cache store failed", "error", err)
		}
	}
	return nil
}

func (c *Cache) refreshFromWarmCache(ctx context.Context, cause error) error {
	if c.warm == nil {
		return cause
	}

	plants, models, found, loadErr := c.warm.Load(ctx)
	if loadErr != nil || !found {
		c.log.Error("refresh failed and no warm cache available", "error", cause)
		return cause
	}

	c.log.Warn("refresh failed, falling back to warm cache", "error", cause)
	c.swap(plants, models)
	return nil
}

func (c *Cache) swap(plants []domain.Plant, models []domain.ModelMetadata) {
	next := &registry{
		plants:        make(map[int]domain.Plant, len(plants)),
		modelsByPlant: make(map[int][]domain.ModelMetadata),
	}
	for _, p := range plants {
		next.plants[p.ID] = p
	}
	for _, m := range models {
		next.modelsByPlant[m.PlantID] = append(next.modelsByPlant[m.PlantID], m)
	}

	c.mu.Lock()
	c.data = next
	c.mu.Unlock()
}

// ActivePlants returns every currently active plant. Returns
// domain.ErrNotInitialized if Refresh has never succeeded.
func (c *Cache) ActivePlants() ([]domain.Plant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.data == nil {
		return nil, domain.ErrNotInitialized
	}

	plants := make([]domain.Plant, 0, len(c.data.plants))
	for _, p := range c.data.plants {
		plants = append(plants, p)
	}
	return plants, nil
}

// Plant returns a single active plant by ID.
func (c *Cache) Plant(id int) (domain.Plant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.data == nil {
		return domain.Plant{}, domain.ErrNotInitialized
	}

	p, ok := c.data.plants[id]
	if !ok {
		return domain.Plant{}, fmt.Errorf("plant %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// ActiveModels returns every active model bound to plantID.
func (c *Cache) ActiveModels(plantID int) ([]domain.ModelMetadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.data == nil {
		return nil, domain.ErrNotInitialized
	}

	return c.data.modelsByPlant[plantID], nil
}

// Ready reports whether at least one refresh has completed.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data != nil
}
