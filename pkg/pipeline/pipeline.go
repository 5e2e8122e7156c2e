package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sunwatt/forecaster/pkg/domain"
)

// WeatherFetcher is the subset of clients.WeatherClient the pipeline
// needs. Declared here so tests can fake weather retrieval.
type WeatherFetcher interface {
	Fetch(ctx context.Context, plant domain.Plant) (time.Time, domain.WeatherForecast, error)
}

// FeatureResolver is the subset of features.Resolver the pipeline needs.
type FeatureResolver interface {
	Prepare(forecast domain.WeatherForecast, featureNames []string, ctx domain.PlantContext) ([][]float64, error)
}

// Predictor is one decoded model's inference capability, satisfied by
// *artifacts.Model.
type Predictor interface {
	Predict(ctx context.Context, features []float64) (float64, error)
}

// ModelSource is the subset of state.ModelStore the pipeline needs: a
// refreshable view of active plants and the decoded models bound to
// them.
type ModelSource interface {
	Refresh(ctx context.Context) error
	ActivePlants() ([]domain.Plant, error)
	ActiveModels(plantID int) []ActiveModelLike
}

// ActiveModelLike mirrors state.ActiveModel without importing pkg/state,
// so pipeline stays free of a dependency on the state cache's concrete
// type and is easy to fake in tests. state.ActiveModel satisfies this
// shape structurally via the adapter in pkg/pipeline/state_adapter.go.
type ActiveModelLike struct {
	Metadata domain.ModelMetadata
	Model    Predictor
}

// Instrumentation is the optional metrics sink the pipeline reports
// per-stage timings and counters to. A nil *Instrumentation (the zero
// value, all fields nil) disables every call.
type Instrumentation struct {
	RecordWeatherFetch func(seconds float64)
	RecordFeatureBuild func(seconds float64)
	RecordPredict      func(seconds float64)
	RecordCycle        func(seconds float64)
	SetPlantsProcessed func(n int)
	RecordModelSkipped func(reason string)
	RecordError        func(component, reason string)
}

func (m *Instrumentation) weatherFetch(d time.Duration) {
	if m != nil && m.RecordWeatherFetch != nil {
		m.RecordWeatherFetch(d.Seconds())
	}
}

func (m *Instrumentation) featureBuild(d time.Duration) {
	if m != nil && m.RecordFeatureBuild != nil {
		m.RecordFeatureBuild(d.Seconds())
	}
}

func (m *Instrumentation) predict(d time.Duration) {
	if m != nil && m.RecordPredict != nil {
		m.RecordPredict(d.Seconds())
	}
}

func (m *Instrumentation) cycle(d time.Duration) {
	if m != nil && m.RecordCycle != nil {
		m.RecordCycle(d.Seconds())
	}
}

func (m *Instrumentation) plantsProcessed(n int) {
	if m != nil && m.SetPlantsProcessed != nil {
		m.SetPlantsProcessed(n)
	}
}

func (m *Instrumentation) modelSkipped(reason string) {
	if m != nil && m.RecordModelSkipped != nil {
		m.RecordModelSkipped(reason)
	}
}

func (m *Instrumentation) errorOccurred(component, reason string) {
	if m != nil && m.RecordError != nil {
		m.RecordError(component, reason)
	}
}

// Pipeline is the Prediction Pipeline (spec.md §4.4): the single
// scheduled entry point that refreshes cluster state, fetches weather
// per plant, builds feature matrices per model, runs inference,
// horizon-tags the output, and hands it to the background Writer.
type Pipeline struct {
	models   ModelSource
	weather  WeatherFetcher
	resolver FeatureResolver
	writer   *Writer
	metrics  *Instrumentation
	log      *slog.Logger
}

// New creates a Pipeline. metrics may be nil.
func New(models ModelSource, weather WeatherFetcher, resolver FeatureResolver, writer *Writer, metrics *Instrumentation, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{models: models, weather: weather, resolver: resolver, writer: writer, metrics: metrics, log: log}
}

type fetchedForecast struct {
	plant    domain.Plant
	forecast domain.WeatherForecast
}

// Run executes one full pipeline cycle: refresh → fetch weather →
// feature build → predict → horizon-tag → enqueue for persistence. now
// is the cycle's nominal trigger time; actual forecast fetch_time is
// whatever WeatherFetcher.Fetch quantizes its own clock to. Per-plant and
// per-model failures are isolated: they are logged and skipped, never
// abort the run.
func (p *Pipeline) Run(ctx context.Context, now time.Time) error {
	start := time.Now()
	defer func() { p.metrics.cycle(time.Since(start)) }()

	if err := p.models.Refresh(ctx); err != nil {
		p.metrics.errorOccurred("pipeline", "state_refresh")
		return fmt.Errorf("refresh state: %w", err)
	}

	plants, err := p.models.ActivePlants()
	if err != nil {
		p.metrics.errorOccurred("pipeline", "list_plants")
		return fmt.Errorf("list active plants: %w", err)
	}

	var fetched []fetchedForecast
	for _, plant := range plants {
		if !plant.HasCoordinates() {
			continue
		}

		fetchStart := time.Now()
		_, forecast, err := p.weather.Fetch(ctx, plant)
		p.metrics.weatherFetch(time.Since(fetchStart))
		if err != nil {
			p.log.Error("weather fetch failed, skipping plant", "plant_id", plant.ID, "error", err)
			p.metrics.errorOccurred("weather_client", "fetch_failed")
			continue
		}
		if len(forecast.Points) == 0 {
			p.log.Warn("weather forecast returned zero points, skipping plant", "plant_id", plant.ID)
			continue
		}

		fetched = append(fetched, fetchedForecast{plant: plant, forecast: forecast})
		p.writer.EnqueueForecast(forecast)
	}
	p.metrics.plantsProcessed(len(fetched))

	for _, f := range fetched {
		p.runModelsForPlant(ctx, f)
	}

	return nil
}

func (p *Pipeline) runModelsForPlant(ctx context.Context, f fetchedForecast) {
	models := p.models.ActiveModels(f.plant.ID)
	if len(models) == 0 {
		return
	}

	plantCtx := domain.PlantContext{
		PlantID:   f.plant.ID,
		Capacity:  derefOr(f.plant.Capacity, 0),
		Latitude:  f.forecast.Lat,
		Longitude: f.forecast.Lon,
		Elevation: f.forecast.Elevation,
	}

	for _, am := range models {
		buildStart := time.Now()
		matrix, err := p.resolver.Prepare(f.forecast, am.Metadata.Features, plantCtx)
		p.metrics.featureBuild(time.Since(buildStart))
		if err != nil {
			p.log.Error("feature preparation failed, skipping model", "model_id", am.Metadata.ID, "plant_id", f.plant.ID, "error", err)
			p.metrics.modelSkipped("unsupported_feature")
			continue
		}

		predicted, err := p.predictAll(ctx, am, matrix)
		if err != nil {
			p.log.Error("inference failed, skipping model", "model_id", am.Metadata.ID, "error", err)
			p.metrics.modelSkipped("inference_failed")
			continue
		}

		preds := tagHorizons(am.Metadata.ID, f.forecast, predicted)
		p.writer.EnqueuePredictions(preds)
	}
}

func (p *Pipeline) predictAll(ctx context.Context, am ActiveModelLike, matrix [][]float64) ([]float64, error) {
	predicted := make([]float64, len(matrix))
	for i, row := range matrix {
		predictStart := time.Now()
		v, err := am.Model.Predict(ctx, row)
		p.metrics.predict(time.Since(predictStart))
		if err != nil {
			return nil, fmt.Errorf("predict row %d: %w", i, err)
		}
		predicted[i] = v
	}
	return predicted, nil
}

// tagHorizons maps raw predicted values onto forecast.Points positionally
// and horizon-tags each one: horizon is the gap in hours between the
// forecast's cycle (FetchTime) and the point's own timestamp. Excess
// predictions beyond len(forecast.Points) are ignored; if there are fewer
// predictions than points, only the first len(predicted) points are
// tagged (spec.md §4.4 tie-break rules).
func tagHorizons(modelID int, forecast domain.WeatherForecast, predicted []float64) []domain.PowerPrediction {
	n := len(predicted)
	if len(forecast.Points) < n {
		n = len(forecast.Points)
	}

	rows := make([]domain.PowerPrediction, n)
	for i := 0; i < n; i++ {
		point := forecast.Points[i]
		rows[i] = domain.PowerPrediction{
			PredictionTime: point.Time,
			ModelID:        modelID,
			CreatedAt:      forecast.FetchTime,
			PredictedPower: predicted[i],
			Horizon:        point.Time.Sub(forecast.FetchTime).Hours(),
		}
	}
	return rows
}

func derefOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
