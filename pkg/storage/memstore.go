package storage

import (
	"context"
	"sync"
	"time"

	"github.com/sunwatt/forecaster/pkg/domain"
)

// MemStore is an in-memory Store used by package tests elsewhere in the
// module (pipeline, metrics engine, ingest) that need a real Store
// implementation without a database.
type MemStore struct {
	mu         sync.Mutex
	forecasts  []domain.WeatherForecast
	preds      []domain.PowerPrediction
	readings   []domain.PowerReading
	horizonM   map[int][]domain.HorizonMetric
	cycleM     map[int][]domain.CycleMetric
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		horizonM: make(map[int][]domain.HorizonMetric),
		cycleM:   make(map[int][]domain.CycleMetric),
	}
}

func (m *MemStore) Close() {}

func (m *MemStore) SaveForecast(_ context.Context, f domain.WeatherForecast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forecasts = append(m.forecasts, f)
	return nil
}

func (m *MemStore) SavePredictions(_ context.Context, preds []domain.PowerPrediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range preds {
		if m.hasPrediction(p.ModelID, p.CreatedAt, p.PredictionTime) {
			continue
		}
		m.preds = append(m.preds, p)
	}
	return nil
}

func (m *MemStore) hasPrediction(modelID int, createdAt, t time.Time) bool {
	for _, p := range m.preds {
		if p.ModelID == modelID && p.CreatedAt.Equal(createdAt) && p.PredictionTime.Equal(t) {
			return true
		}
	}
	return false
}

func (m *MemStore) Predictions(_ context.Context, modelID int, from, to time.Time) ([]domain.PowerPrediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.PowerPrediction
	for _, p := range m.preds {
		if p.ModelID == modelID && !p.PredictionTime.Before(from) && p.PredictionTime.Before(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemStore) SaveReadings(_ context.Context, readings []domain.PowerReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range readings {
		if m.hasReading(r.PlantID, r.Timestamp) {
			continue
		}
		m.readings = append(m.readings, r)
	}
	return nil
}

func (m *MemStore) hasReading(plantID int, t time.Time) bool {
	for _, r := range m.readings {
		if r.PlantID == plantID && r.Timestamp.Equal(t) {
			return true
		}
	}
	return false
}

func (m *MemStore) Readings(_ context.Context, plantID int, from, to time.Time) ([]domain.PowerReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.PowerReading
	for _, r := range m.readings {
		if r.PlantID == plantID && !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemStore) SaveHorizonMetrics(_ context.Context, metrics []domain.HorizonMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(metrics) == 0 {
		return nil
	}
	m.horizonM[metrics[0].ModelID] = append([]domain.HorizonMetric(nil), metrics...)
	return nil
}

func (m *MemStore) HorizonMetrics(_ context.Context, modelID int) ([]domain.HorizonMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.horizonM[modelID], nil
}

func (m *MemStore) SaveCycleMetrics(_ context.Context, metrics []domain.CycleMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range metrics {
		existing := m.cycleM[c.ModelID]
		replaced := false
		for i, e := range existing {
			if e.TimeOfForecast.Equal(c.TimeOfForecast) && e.MetricType == c.MetricType {
				existing[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, c)
		}
		m.cycleM[c.ModelID] = existing
	}
	return nil
}

func (m *MemStore) CycleMetrics(_ context.Context, modelID int, from, to time.Time) ([]domain.CycleMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.CycleMetric
	for _, c := range m.cycleM[modelID] {
		if !c.TimeOfForecast.Before(from) && c.TimeOfForecast.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}
