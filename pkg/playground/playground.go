// Package playground runs ad-hoc inference against an uploaded CSV, for
// trying a model without waiting for the next scheduled cycle. It reuses
// the artifact loader and metrics engine of the scheduled pipeline; the
// feature resolver is not used, as feature values are read straight from
// the CSV columns after header validation against one model's exact
// feature order.
package playground

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sunwatt/forecaster/pkg/artifacts"
	"github.com/sunwatt/forecaster/pkg/domain"
	"github.com/sunwatt/forecaster/pkg/metricsengine"
	"github.com/sunwatt/forecaster/pkg/storage"
)

// maxUploadBytes bounds a playground CSV upload.
const maxUploadBytes = 100 << 20 // 100 MiB

// Predictor is the subset of *artifacts.Model the playground needs.
// Declared here so tests can fake inference without a real WASM module.
type Predictor interface {
	Predict(ctx context.Context, features []float64) (float64, error)
}

var _ Predictor = (*artifacts.Model)(nil)

// Result is the outcome of one playground run.
type Result struct {
	Timestamps []time.Time
	Predicted  []float64
	Metrics    map[domain.MetricType]float64
	HasMetrics bool
}

// Runner executes playground requests.
type Runner struct {
	loader *artifacts.Loader
	store  storage.Store
}

// New creates a Runner.
func New(loader *artifacts.Loader, store storage.Store) *Runner {
	return &Runner{loader: loader, store: store}
}

// validateHeader checks that header is exactly "timestamp" followed by
// model.Features in order: no missing, extra, or reordered columns.
func validateHeader(header []string, features []string) error {
	want := append([]string{"timestamp"}, features...)
	if len(header) != len(want) {
		return fmt.Errorf("header has %d columns, want %d (timestamp + %d features)", len(header), len(want), len(features))
	}
	for i, col := range want {
		if header[i] != col {
			return fmt.Errorf("column %d is %q, want %q", i, header[i], col)
		}
	}
	return nil
}

// Run validates r against model's exact feature header, runs inference
// over the decoded matrix, and, if stored readings for plantID cover the
// prediction timestamps, computes MAE/RMSE/MBE over matched points.
func (runner *Runner) Run(ctx context.Context, model Predictor, meta domain.ModelMetadata, plantID int, r io.Reader) (Result, error) {
	limited := io.LimitReader(r, maxUploadBytes+1)
	reader := csv.NewReader(limited)

	header, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read CSV header: %w", err)
	}
	if err := validateHeader(header, meta.Features); err != nil {
		return Result{}, fmt.Errorf("invalid header: %w", err)
	}

	var timestamps []time.Time
	var matrix [][]float64
	bytesRead := len(header)

	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return Result{}, fmt.Errorf("row %d: malformed CSV: %w", row, err)
		}

		for _, f := range record {
			bytesRead += len(f)
		}
		if bytesRead > maxUploadBytes {
			return Result{}, fmt.Errorf("upload exceeds %d byte limit", maxUploadBytes)
		}

		ts, err := time.Parse(time.RFC3339, record[0])
		if err != nil {
			return Result{}, fmt.Errorf("row %d: invalid timestamp: %w", row, err)
		}

		values := make([]float64, len(meta.Features))
		for i, raw := range record[1:] {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return Result{}, fmt.Errorf("row %d: non-numeric value in column %q: %w", row, header[i+1], err)
			}
			values[i] = v
		}

		timestamps = append(timestamps, ts)
		matrix = append(matrix, values)
	}

	predicted := make([]float64, len(matrix))
	for i, row := range matrix {
		v, err := model.Predict(ctx, row)
		if err != nil {
			return Result{}, fmt.Errorf("predict row %d: %w", i, err)
		}
		predicted[i] = v
	}

	result := Result{Timestamps: timestamps, Predicted: predicted}

	if len(timestamps) > 0 {
		from := timestamps[0]
		to := timestamps[len(timestamps)-1].Add(time.Second)
		readings, err := runner.store.Readings(ctx, plantID, from, to)
		if err == nil && len(readings) > 0 {
			metrics, ok, err := metricsengine.ComputeAdhoc(timestamps, predicted, readings)
			if err == nil && ok {
				result.Metrics = metrics
				result.HasMetrics = true
			}
		}
	}

	return result, nil
}

// PredictFromArtifact decodes raw artifact bytes through the Loader and
// runs Run against the resulting Model, closing it afterward regardless
// of outcome. Used by the playground endpoint, which downloads a fresh
// copy of the artifact per request rather than reusing a pipeline's
// already-decoded model.
func (runner *Runner) PredictFromArtifact(ctx context.Context, meta domain.ModelMetadata, raw []byte, plantID int, r io.Reader) (Result, error) {
	model, err := runner.loader.Decode(ctx, meta, raw)
	if err != nil {
		return Result{}, fmt.Errorf("decode artifact for model %d: %w", meta.ID, err)
	}
	defer model.Close(ctx)

	return runner.Run(ctx, model, meta, plantID, r)
}
