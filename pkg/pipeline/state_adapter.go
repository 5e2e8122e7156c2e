package pipeline

import (
	"context"

	"github.com/sunwatt/forecaster/pkg/domain"
	"github.com/sunwatt/forecaster/pkg/state"
)

// StateAdapter adapts *state.ModelStore to the pipeline's ModelSource
// interface. state.ActiveModel carries a concrete *artifacts.Model;
// ModelSource only needs the narrower Predictor view, so the adapter
// re-slices rather than requiring pipeline to import pkg/artifacts.
type StateAdapter struct {
	store *state.ModelStore
}

// NewStateAdapter wraps store for use as a pipeline ModelSource.
func NewStateAdapter(store *state.ModelStore) *StateAdapter {
	return &StateAdapter{store: store}
}

func (a *StateAdapter) Refresh(ctx context.Context) error {
	return a.store.Refresh(ctx)
}

func (a *StateAdapter) ActivePlants() ([]domain.Plant, error) {
	return a.store.ActivePlants()
}

func (a *StateAdapter) ActiveModels(plantID int) []ActiveModelLike {
	models := a.store.ActiveModels(plantID)
	out := make([]ActiveModelLike, len(models))
	for i, m := range models {
		out[i] = ActiveModelLike{Metadata: m.Metadata, Model: m.Model}
	}
	return out
}
