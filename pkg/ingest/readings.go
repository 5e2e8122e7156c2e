// Package ingest validates and stores ground-truth power readings
// uploaded as CSV, then triggers metric recomputation. Row-level errors
// are collected across the whole file and any error rejects the whole
// upload.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/sunwatt/forecaster/pkg/domain"
	"github.com/sunwatt/forecaster/pkg/metricsengine"
	"github.com/sunwatt/forecaster/pkg/state"
	"github.com/sunwatt/forecaster/pkg/storage"
)

// RowError describes one malformed CSV row. Row is 1-indexed.
type RowError struct {
	Row     int
	Message string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// ValidationError carries every row error found in an upload. The whole
// upload is rejected if this is non-empty.
type ValidationError struct {
	Errors []RowError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%d row error(s), first: %s", len(e.Errors), e.Errors[0])
}

// Ingestor validates and persists readings, then triggers metric
// recomputation across every model of the plant.
type Ingestor struct {
	store   storage.Store
	cache   *state.Cache
	engine  *metricsengine.Engine
	log     *slog.Logger
}

// New creates an Ingestor.
func New(store storage.Store, cache *state.Cache, engine *metricsengine.Engine, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{store: store, cache: cache, engine: engine, log: log}
}

// parseRows validates the no-header, two-column "timestamp,power_w" CSV
// contract, collecting every row error rather than stopping at the first.
func parseRows(r io.Reader) ([]domain.PowerReading, []RowError) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // validated manually so column-count errors are row errors, not parse panics

	var readings []domain.PowerReading
	var rowErrs []RowError
	seen := make(map[time.Time]bool)

	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: row, Message: "malformed CSV row: " + err.Error()})
			continue
		}

		if len(record) != 2 {
			rowErrs = append(rowErrs, RowError{Row: row, Message: fmt.Sprintf("expected 2 columns, got %d", len(record))})
			continue
		}

		ts, err := time.Parse(time.RFC3339, record[0])
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: row, Message: "invalid timestamp: " + err.Error()})
			continue
		}

		if seen[ts] {
			rowErrs = append(rowErrs, RowError{Row: row, Message: "duplicate timestamp within file"})
			continue
		}

		power, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: row, Message: "non-numeric power value: " + err.Error()})
			continue
		}

		seen[ts] = true
		readings = append(readings, domain.PowerReading{Timestamp: ts, PowerW: power})
	}

	return readings, rowErrs
}

// Ingest validates a CSV upload for plantID, and on success, stores the
// readings and triggers metric recomputation for every model bound to
// the plant. Metric recomputation failures are logged, not returned.
func (i *Ingestor) Ingest(ctx context.Context, plantID int, r io.Reader) error {
	readings, rowErrs := parseRows(r)
	if len(rowErrs) > 0 {
		return &ValidationError{Errors: rowErrs}
	}

	for idx := range readings {
		readings[idx].PlantID = plantID
	}

	if err := i.store.SaveReadings(ctx, readings); err != nil {
		return fmt.Errorf("save readings for plant %d: %w", plantID, err)
	}

	models, err := i.cache.ActiveModels(plantID)
	if err != nil {
		i.log.Warn("could not look up models for metric recompute", "plant_id", plantID, "error", err)
		return nil
	}

	// Recompute over every prediction/reading pair on record for the
	// model, not just this batch's own timestamp span — an ingest must
	// not narrow metrics a prior full recompute already produced.
	from, to := metricsengine.FullRange()

	for _, m := range models {
		if err := i.engine.CalculateHorizonMetrics(ctx, m.ID, plantID, from, to); err != nil {
			i.log.Error("horizon metrics recompute failed", "model_id", m.ID, "error", err)
		}
		if err := i.engine.CalculateCycleMetrics(ctx, m.ID, plantID, from, to); err != nil {
			i.log.Error("cycle metrics recompute failed", "model_id", m.ID, "error", err)
		}
	}

	return nil
}
