// Package storage persists forecast inputs and outputs: weather forecasts,
// predictions, ground-truth readings, and the metrics computed from them.
// The PostgresStore implementation is the only production backend; Store
// is kept as an interface so tests can substitute an in-memory fake the
// way the teacher substitutes a fake Store for its own adapter tests.
package storage

import (
	"context"
	"time"

	"github.com/sunwatt/forecaster/pkg/domain"
)

// Store is the persistence boundary for everything the prediction
// pipeline and metrics engine produce or consume.
type Store interface {
	// SaveForecast persists one fetched weather forecast and its points.
	SaveForecast(ctx context.Context, f domain.WeatherForecast) error

	// SavePredictions persists a batch of predictions for one model/cycle.
	// Writes are idempotent: re-running a cycle must not create duplicates.
	SavePredictions(ctx context.Context, preds []domain.PowerPrediction) error

	// Predictions returns every prediction for modelID with
	// PredictionTime in [from, to).
	Predictions(ctx context.Context, modelID int, from, to time.Time) ([]domain.PowerPrediction, error)

	// SaveReadings persists a batch of ground-truth readings for one
	// plant. Writes are idempotent on (plant_id, timestamp).
	SaveReadings(ctx context.Context, readings []domain.PowerReading) error

	// Readings returns every reading for plantID with Timestamp in
	// [from, to), ordered by timestamp.
	Readings(ctx context.Context, plantID int, from, to time.Time) ([]domain.PowerReading, error)

	// SaveHorizonMetrics replaces the stored horizon-bucket metrics for a
	// model with a freshly computed set.
	SaveHorizonMetrics(ctx context.Context, metrics []domain.HorizonMetric) error

	// HorizonMetrics returns every stored horizon metric for modelID.
	HorizonMetrics(ctx context.Context, modelID int) ([]domain.HorizonMetric, error)

	// SaveCycleMetrics upserts per-cycle metrics keyed by (model, cycle,
	// metric type); stored metrics for other cycles are left as they are.
	SaveCycleMetrics(ctx context.Context, metrics []domain.CycleMetric) error

	// CycleMetrics returns every stored cycle metric for modelID with
	// TimeOfForecast in [from, to).
	CycleMetrics(ctx context.Context, modelID int, from, to time.Time) ([]domain.CycleMetric, error)

	// Close releases underlying connections.
	Close()
}
