package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sunwatt/forecaster/pkg/domain"
	"github.com/sunwatt/forecaster/pkg/metricsengine"
	"github.com/sunwatt/forecaster/pkg/state"
	"github.com/sunwatt/forecaster/pkg/storage"
)

type fakeMM struct {
	plants []domain.Plant
	models []domain.ModelMetadata
}

func (f *fakeMM) ActivePlants(context.Context) ([]domain.Plant, error) { return f.plants, nil }
func (f *fakeMM) ActiveModels(context.Context) ([]domain.ModelMetadata, error) { return f.models, nil }

func TestIngestor_ValidCSV(t *testing.T) {
	store := storage.NewMemStore()
	cache := state.New(&fakeMM{
		plants: []domain.Plant{{ID: 1}},
		models: []domain.ModelMetadata{{ID: 10, PlantID: 1}},
	}, nil, nil)
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	ing := New(store, cache, metricsengine.New(store), nil)

	csv := "2024-06-01T00:00:00Z,100.5\n2024-06-01T00:15:00Z,110.2\n"
	if err := ing.Ingest(context.Background(), 1, strings.NewReader(csv)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	readings, err := store.Readings(context.Background(), 1, mustParse("2024-06-01T00:00:00Z"), mustParse("2024-06-02T00:00:00Z"))
	if err != nil {
		t.Fatalf("Readings: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("len(readings) = %d, want 2", len(readings))
	}
}

func TestIngestor_RowErrors(t *testing.T) {
	store := storage.NewMemStore()
	cache := state.New(&fakeMM{}, nil, nil)
	ing := New(store, cache, metricsengine.New(store), nil)

	csv := "2024-06-01T00:00:00Z,100.5\n" +
		"not-a-timestamp,50\n" +
		"2024-06-01T00:15:00Z,not-a-number\n" +
		"2024-06-01T00:00:00Z,999\n" // duplicate of row 1's timestamp

	err := ing.Ingest(context.Background(), 1, strings.NewReader(csv))
	if err == nil {
		t.Fatal("expected validation error")
	}

	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if len(ve.Errors) != 3 {
		t.Fatalf("len(ve.Errors) = %d, want 3 (bad timestamp, non-numeric power, duplicate)", len(ve.Errors))
	}

	// Whole upload is rejected: nothing should have been stored.
	readings, _ := store.Readings(context.Background(), 1, mustParse("2024-01-01T00:00:00Z"), mustParse("2025-01-01T00:00:00Z"))
	if len(readings) != 0 {
		t.Fatalf("len(readings) = %d, want 0 after rejected upload", len(readings))
	}
}

func TestIngestor_WrongColumnCount(t *testing.T) {
	store := storage.NewMemStore()
	cache := state.New(&fakeMM{}, nil, nil)
	ing := New(store, cache, metricsengine.New(store), nil)

	err := ing.Ingest(context.Background(), 1, strings.NewReader("2024-06-01T00:00:00Z,100.5,extra\n"))
	if err == nil {
		t.Fatal("expected validation error for wrong column count")
	}
}

func mustParse(s string) time.Time {
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return parsed
}
