// Package metricsengine computes MAE/RMSE/MBE error metrics by joining
// stored predictions with stored readings on timestamp, the way
// pkg/capacity/planner.go computes replica counts in the teacher: small,
// pure numeric functions over []float64 with defensive precondition
// checks ahead of the arithmetic.
package metricsengine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sunwatt/forecaster/pkg/domain"
	"github.com/sunwatt/forecaster/pkg/storage"
)

// horizonTolerance accounts for floating point drift when matching a
// computed horizon (hours, fractional) against the fixed bucket values.
const horizonTolerance = 1e-6

// Engine computes and persists horizon and cycle metrics.
type Engine struct {
	store storage.Store
}

// New creates an Engine backed by store.
func New(store storage.Store) *Engine {
	return &Engine{store: store}
}

// FullRange covers the entire storable time axis, for recomputations
// that must join every prediction/reading pair on record for a model
// rather than only a newly-ingested batch's own span (the original's
// get_predictions_and_readings_for_model takes no date bounds at all).
func FullRange() (time.Time, time.Time) {
	return time.Time{}, time.Now().UTC().AddDate(100, 0, 0)
}

// pairedPoint is one joined (prediction, reading) tuple.
type pairedPoint struct {
	predicted float64
	actual    float64
	horizon   float64
	cycle     time.Time
}

// joinByTimestamp pairs predictions and readings with matching timestamps.
func joinByTimestamp(preds []domain.PowerPrediction, readings []domain.PowerReading) []pairedPoint {
	byTimestamp := make(map[time.Time]float64, len(readings))
	for _, r := range readings {
		byTimestamp[r.Timestamp] = r.PowerW
	}

	var points []pairedPoint
	for _, p := range preds {
		actual, ok := byTimestamp[p.PredictionTime]
		if !ok {
			continue
		}
		points = append(points, pairedPoint{
			predicted: p.PredictedPower,
			actual:    actual,
			horizon:   p.Horizon,
			cycle:     p.CreatedAt,
		})
	}
	return points
}

// nearestBucket returns the horizon bucket h belongs to, or false if it
// does not match any bucket within tolerance.
func nearestBucket(h float64) (float64, bool) {
	for _, bucket := range domain.HorizonBuckets {
		if math.Abs(h-bucket) < horizonTolerance {
			return bucket, true
		}
	}
	return 0, false
}

// computeMetrics returns {MAE, RMSE, MBE} for a slice of paired points.
// Precondition: len(points) > 0.
func computeMetrics(points []pairedPoint) (map[domain.MetricType]float64, error) {
	n := len(points)
	if n == 0 {
		return nil, fmt.Errorf("%w: no paired points to compute metrics over", domain.ErrInvariant)
	}

	var sumAbs, sumSq, sumErr float64
	for _, p := range points {
		err := p.predicted - p.actual
		sumAbs += math.Abs(err)
		sumSq += err * err
		sumErr += err
	}

	return map[domain.MetricType]float64{
		domain.MetricMAE:  sumAbs / float64(n),
		domain.MetricRMSE: math.Sqrt(sumSq / float64(n)),
		domain.MetricMBE:  sumErr / float64(n),
	}, nil
}

// ComputeAdhoc pairs predictionTimes/predicted (same length, same order)
// against readings by exact timestamp match and computes {MAE, RMSE,
// MBE} over whatever matches. Used by the playground, which has no
// stored predictions to read back. ok is false when no reading covers
// any prediction timestamp, matching the playground's "only compute
// metrics if readings cover the range" rule.
func ComputeAdhoc(predictionTimes []time.Time, predicted []float64, readings []domain.PowerReading) (metrics map[domain.MetricType]float64, ok bool, err error) {
	if len(predictionTimes) != len(predicted) {
		return nil, false, fmt.Errorf("%w: %d prediction times but %d predicted values", domain.ErrInvariant, len(predictionTimes), len(predicted))
	}

	byTimestamp := make(map[time.Time]float64, len(readings))
	for _, r := range readings {
		byTimestamp[r.Timestamp] = r.PowerW
	}

	var points []pairedPoint
	for i, t := range predictionTimes {
		actual, found := byTimestamp[t]
		if !found {
			continue
		}
		points = append(points, pairedPoint{predicted: predicted[i], actual: actual})
	}

	if len(points) == 0 {
		return nil, false, nil
	}

	metrics, err = computeMetrics(points)
	if err != nil {
		return nil, false, err
	}
	return metrics, true, nil
}

// CalculateHorizonMetrics joins this model's predictions and its plant's
// readings, groups by horizon bucket, computes MAE/RMSE/MBE per bucket,
// and upserts the results.
func (e *Engine) CalculateHorizonMetrics(ctx context.Context, modelID, plantID int, from, to time.Time) error {
	preds, err := e.store.Predictions(ctx, modelID, from, to)
	if err != nil {
		return fmt.Errorf("load predictions for model %d: %w", modelID, err)
	}
	readings, err := e.store.Readings(ctx, plantID, from, to)
	if err != nil {
		return fmt.Errorf("load readings for plant %d: %w", plantID, err)
	}

	byBucket := make(map[float64][]pairedPoint)
	for _, pt := range joinByTimestamp(preds, readings) {
		bucket, ok := nearestBucket(pt.horizon)
		if !ok {
			continue
		}
		byBucket[bucket] = append(byBucket[bucket], pt)
	}

	var results []domain.HorizonMetric
	for _, bucket := range domain.HorizonBuckets {
		points, ok := byBucket[bucket]
		if !ok || len(points) == 0 {
			continue
		}
		metrics, err := computeMetrics(points)
		if err != nil {
			return fmt.Errorf("horizon %v: %w", bucket, err)
		}
		for _, mt := range []domain.MetricType{domain.MetricMAE, domain.MetricRMSE, domain.MetricMBE} {
			results = append(results, domain.HorizonMetric{
				ModelID:    modelID,
				MetricType: mt,
				Horizon:    bucket,
				Value:      metrics[mt],
			})
		}
	}

	if len(results) == 0 {
		return nil
	}
	if err := e.store.SaveHorizonMetrics(ctx, results); err != nil {
		return fmt.Errorf("save horizon metrics for model %d: %w", modelID, err)
	}
	return nil
}

// CalculateCycleMetrics joins this model's predictions and its plant's
// readings, groups by forecast cycle (CreatedAt), computes MAE/RMSE/MBE
// per cycle, and upserts the results.
func (e *Engine) CalculateCycleMetrics(ctx context.Context, modelID, plantID int, from, to time.Time) error {
	preds, err := e.store.Predictions(ctx, modelID, from, to)
	if err != nil {
		return fmt.Errorf("load predictions for model %d: %w", modelID, err)
	}
	readings, err := e.store.Readings(ctx, plantID, from, to)
	if err != nil {
		return fmt.Errorf("load readings for plant %d: %w", plantID, err)
	}

	byCycle := make(map[time.Time][]pairedPoint)
	for _, pt := range joinByTimestamp(preds, readings) {
		byCycle[pt.cycle] = append(byCycle[pt.cycle], pt)
	}

	var results []domain.CycleMetric
	for cycle, points := range byCycle {
		metrics, err := computeMetrics(points)
		if err != nil {
			return fmt.Errorf("cycle %v: %w", cycle, err)
		}
		for _, mt := range []domain.MetricType{domain.MetricMAE, domain.MetricRMSE, domain.MetricMBE} {
			results = append(results, domain.CycleMetric{
				ModelID:        modelID,
				TimeOfForecast: cycle,
				MetricType:     mt,
				Value:          metrics[mt],
			})
		}
	}

	if len(results) == 0 {
		return nil
	}
	if err := e.store.SaveCycleMetrics(ctx, results); err != nil {
		return fmt.Errorf("save cycle metrics for model %d: %w", modelID, err)
	}
	return nil
}
