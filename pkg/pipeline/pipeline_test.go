package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sunwatt/forecaster/pkg/domain"
	"github.com/sunwatt/forecaster/pkg/storage"
)

type fakeModels struct {
	plants      []domain.Plant
	byPlant     map[int][]ActiveModelLike
	refreshErr  error
	refreshSeen int
}

func (f *fakeModels) Refresh(context.Context) error {
	f.refreshSeen++
	return f.refreshErr
}

func (f *fakeModels) ActivePlants() ([]domain.Plant, error) { return f.plants, nil }

func (f *fakeModels) ActiveModels(plantID int) []ActiveModelLike { return f.byPlant[plantID] }

type fakeWeather struct {
	forecasts map[int]domain.WeatherForecast
	errs      map[int]error
}

func (f *fakeWeather) Fetch(_ context.Context, plant domain.Plant) (time.Time, domain.WeatherForecast, error) {
	if err, ok := f.errs[plant.ID]; ok {
		return time.Time{}, domain.WeatherForecast{}, err
	}
	fc := f.forecasts[plant.ID]
	return fc.FetchTime, fc, nil
}

type fakeResolver struct {
	matrix [][]float64
	err    error
}

func (f *fakeResolver) Prepare(domain.WeatherForecast, []string, domain.PlantContext) ([][]float64, error) {
	return f.matrix, f.err
}

type fakePredictor struct {
	values []float64
	err    error
}

func (f *fakePredictor) Predict(context.Context, []float64) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	v := f.values[0]
	f.values = f.values[1:]
	return v, nil
}

func points(n int, start time.Time) []domain.WeatherPoint {
	pts := make([]domain.WeatherPoint, n)
	for i := range pts {
		pts[i] = domain.WeatherPoint{Time: start.Add(time.Duration(i+1) * 15 * time.Minute)}
	}
	return pts
}

func lat(v float64) *float64 { return &v }

func TestPipeline_HappyPath(t *testing.T) {
	cycle := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	forecast := domain.WeatherForecast{
		PlantID:   1,
		FetchTime: cycle,
		Points:    points(288, cycle),
	}

	values := make([]float64, 288)
	for i := range values {
		values[i] = float64(i)
	}

	models := &fakeModels{
		plants: []domain.Plant{{ID: 1, Latitude: lat(45.8), Longitude: lat(15.9)}},
		byPlant: map[int][]ActiveModelLike{
			1: {{Metadata: domain.ModelMetadata{ID: 10, PlantID: 1, Features: []string{"hour"}}, Model: &fakePredictor{values: values}}},
		},
	}
	weather := &fakeWeather{forecasts: map[int]domain.WeatherForecast{1: forecast}}
	resolver := &fakeResolver{matrix: make([][]float64, 288)}
	store := storage.NewMemStore()
	writer := NewWriter(store, nil)

	p := New(models, weather, resolver, writer, nil, nil)
	if err := p.Run(context.Background(), cycle); err != nil {
		t.Fatalf("Run: %v", err)
	}
	writer.Close(time.Second)

	preds, err := store.Predictions(context.Background(), 10, cycle, cycle.Add(100*time.Hour))
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	if len(preds) != 288 {
		t.Fatalf("got %d predictions, want 288", len(preds))
	}
	for _, pr := range preds {
		if pr.CreatedAt != cycle {
			t.Fatalf("prediction CreatedAt = %v, want %v", pr.CreatedAt, cycle)
		}
		gotHorizon := pr.PredictionTime.Sub(pr.CreatedAt).Hours()
		if gotHorizon != pr.Horizon {
			t.Fatalf("horizon mismatch: stored %v, computed %v", pr.Horizon, gotHorizon)
		}
	}
}

func TestPipeline_SkipsPlantWithoutCoordinates(t *testing.T) {
	models := &fakeModels{plants: []domain.Plant{{ID: 1}}}
	weather := &fakeWeather{forecasts: map[int]domain.WeatherForecast{}}
	store := storage.NewMemStore()
	writer := NewWriter(store, nil)
	p := New(models, weather, &fakeResolver{}, writer, nil, nil)

	if err := p.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	writer.Close(time.Second)
}

func TestPipeline_SkipsPlantOnWeatherError(t *testing.T) {
	models := &fakeModels{plants: []domain.Plant{{ID: 1, Latitude: lat(1), Longitude: lat(1)}}}
	weather := &fakeWeather{errs: map[int]error{1: errors.New("boom")}}
	store := storage.NewMemStore()
	writer := NewWriter(store, nil)
	p := New(models, weather, &fakeResolver{}, writer, nil, nil)

	if err := p.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	writer.Close(time.Second)

	fc, err := store.Predictions(context.Background(), 10, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	if len(fc) != 0 {
		t.Fatalf("expected no predictions persisted, got %d", len(fc))
	}
}

func TestPipeline_SkipsModelOnUnsupportedFeature(t *testing.T) {
	cycle := time.Now().UTC()
	forecast := domain.WeatherForecast{PlantID: 1, FetchTime: cycle, Points: points(4, cycle)}
	models := &fakeModels{
		plants: []domain.Plant{{ID: 1, Latitude: lat(1), Longitude: lat(1)}},
		byPlant: map[int][]ActiveModelLike{
			1: {{Metadata: domain.ModelMetadata{ID: 10, PlantID: 1, Features: []string{"made_up_feature"}}, Model: &fakePredictor{}}},
		},
	}
	weather := &fakeWeather{forecasts: map[int]domain.WeatherForecast{1: forecast}}
	resolver := &fakeResolver{err: domain.ErrUnsupportedFeature}
	store := storage.NewMemStore()
	writer := NewWriter(store, nil)
	p := New(models, weather, resolver, writer, nil, nil)

	if err := p.Run(context.Background(), cycle); err != nil {
		t.Fatalf("Run: %v", err)
	}
	writer.Close(time.Second)

	preds, err := store.Predictions(context.Background(), 10, time.Time{}, cycle.Add(100*time.Hour))
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	if len(preds) != 0 {
		t.Fatalf("expected model to be skipped, got %d predictions", len(preds))
	}
}

func TestPipeline_TruncatesExcessPredictions(t *testing.T) {
	cycle := time.Now().UTC()
	forecast := domain.WeatherForecast{PlantID: 1, FetchTime: cycle, Points: points(2, cycle)}
	models := &fakeModels{
		plants: []domain.Plant{{ID: 1, Latitude: lat(1), Longitude: lat(1)}},
		byPlant: map[int][]ActiveModelLike{
			1: {{Metadata: domain.ModelMetadata{ID: 10, PlantID: 1, Features: []string{"hour"}}, Model: &fakePredictor{values: []float64{1, 2, 3, 4}}}},
		},
	}
	weather := &fakeWeather{forecasts: map[int]domain.WeatherForecast{1: forecast}}
	resolver := &fakeResolver{matrix: make([][]float64, 4)}
	store := storage.NewMemStore()
	writer := NewWriter(store, nil)
	p := New(models, weather, resolver, writer, nil, nil)

	if err := p.Run(context.Background(), cycle); err != nil {
		t.Fatalf("Run: %v", err)
	}
	writer.Close(time.Second)

	preds, err := store.Predictions(context.Background(), 10, time.Time{}, cycle.Add(100*time.Hour))
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("got %d predictions, want 2 (truncated to forecast point count)", len(preds))
	}
}

func TestPipeline_RefreshErrorAbortsRun(t *testing.T) {
	models := &fakeModels{refreshErr: errors.New("model-manager unreachable")}
	store := storage.NewMemStore()
	writer := NewWriter(store, nil)
	p := New(models, &fakeWeather{}, &fakeResolver{}, writer, nil, nil)

	if err := p.Run(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error when state refresh fails")
	}
	writer.Close(time.Second)
}
