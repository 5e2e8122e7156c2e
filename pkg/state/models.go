package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sunwatt/forecaster/pkg/artifacts"
	"github.com/sunwatt/forecaster/pkg/domain"
)

// ArtifactSource downloads raw artifact bytes for a model: the subset of
// clients.ModelManagerClient the ModelStore needs.
type ArtifactSource interface {
	DownloadArtifact(ctx context.Context, modelID int) ([]byte, error)
}

// Decoder decodes raw artifact bytes into a runnable model: the subset of
// artifacts.Loader the ModelStore needs.
type Decoder interface {
	Decode(ctx context.Context, meta domain.ModelMetadata, raw []byte) (*artifacts.Model, error)
}

// ActiveModel pairs one model's metadata with its decoded, runnable
// artifact.
type ActiveModel struct {
	Metadata domain.ModelMetadata
	Model    *artifacts.Model
}

// ModelStore is the combined State Cache + Artifact Loader view spec.md
// §4.1 describes as a single unit: on every Refresh it repopulates the
// plant/model metadata through Cache and then re-downloads and
// re-decodes every active model's artifact, swapping the decoded
// generation in atomically and releasing the previous one only once the
// new generation is fully built.
type ModelStore struct {
	cache   *Cache
	source  ArtifactSource
	decoder Decoder
	log     *slog.Logger

	mu      sync.RWMutex
	byPlant map[int][]ActiveModel
}

// NewModelStore creates a ModelStore backed by cache for metadata and
// source/decoder for artifact bytes and decoding.
func NewModelStore(cache *Cache, source ArtifactSource, decoder Decoder, log *slog.Logger) *ModelStore {
	if log == nil {
		log = slog.Default()
	}
	return &ModelStore{cache: cache, source: source, decoder: decoder, log: log}
}

// Refresh repopulates plant/model metadata (Cache.Refresh) and then
// re-downloads and re-decodes every active model's artifact. Per-model
// download or decode failures are logged and that model is skipped; they
// never fail the overall refresh or affect sibling models (spec.md
// §4.1's best-effort per-item policy).
func (s *ModelStore) Refresh(ctx context.Context) error {
	if err := s.cache.Refresh(ctx); err != nil {
		return err
	}

	plants, err := s.cache.ActivePlants()
	if err != nil {
		return err
	}

	next := make(map[int][]ActiveModel)
	for _, p := range plants {
		models, err := s.cache.ActiveModels(p.ID)
		if err != nil {
			continue
		}
		for _, meta := range models {
			raw, err := s.source.DownloadArtifact(ctx, meta.ID)
			if err != nil {
				s.log.Error("artifact download failed, skipping model", "model_id", meta.ID, "error", err)
				continue
			}
			decoded, err := s.decoder.Decode(ctx, meta, raw)
			if err != nil {
				s.log.Error("artifact decode failed, skipping model", "model_id", meta.ID, "error", err)
				continue
			}
			next[p.ID] = append(next[p.ID], ActiveModel{Metadata: meta, Model: decoded})
		}
	}

	s.mu.Lock()
	prev := s.byPlant
	s.byPlant = next
	s.mu.Unlock()

	for _, models := range prev {
		for _, m := range models {
			if err := m.Model.Close(ctx); err != nil {
				s.log.Warn("close previous decoded model failed", "model_id", m.Metadata.ID, "error", err)
			}
		}
	}
	return nil
}

// ActivePlants passes through to the underlying Cache.
func (s *ModelStore) ActivePlants() ([]domain.Plant, error) {
	return s.cache.ActivePlants()
}

// ActiveModels returns the decoded, runnable models currently bound to
// plantID. Returns nil if the plant has none or is unknown.
func (s *ModelStore) ActiveModels(plantID int) []ActiveModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byPlant[plantID]
}

// Close releases every currently decoded model. Call once during
// shutdown after the pipeline has stopped running.
func (s *ModelStore) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, models := range s.byPlant {
		for _, m := range models {
			if err := m.Model.Close(ctx); err != nil {
				s.log.Warn("close decoded model failed", "model_id", m.Metadata.ID, "error", err)
			}
		}
	}
	s.byPlant = nil
}
