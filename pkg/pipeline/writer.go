// Package pipeline orchestrates the scheduled, multi-stage prediction run:
// refresh cluster state, fan out weather retrieval, build per-model
// feature matrices, invoke inference, horizon-tag the results, and
// persist everything through a bounded, fire-and-forget write queue. The
// queue-plus-dedicated-writer-goroutine shape mirrors the teacher's own
// discipline of keeping a single owner per mutable resource and draining
// background work on shutdown instead of spawning unboundedly.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sunwatt/forecaster/pkg/domain"
	"github.com/sunwatt/forecaster/pkg/storage"
)

// defaultQueueSize bounds the number of pending forecast/prediction
// batches awaiting the background writer. A full queue means persistence
// cannot keep up with cycle cadence; new batches are dropped and logged
// rather than blocking the pipeline or growing without bound.
const defaultQueueSize = 256

type writeJob struct {
	forecast *domain.WeatherForecast
	preds    []domain.PowerPrediction
}

// Writer is the fire-and-forget persistence task spec.md §4.7 describes:
// the pipeline enqueues a batch, a single background goroutine executes
// it against storage.Store, and logs success or failure. Shutdown closes
// the queue and waits for the goroutine to drain it.
type Writer struct {
	store storage.Store
	log   *slog.Logger
	jobs  chan writeJob
	wg    sync.WaitGroup
}

// NewWriter starts the background writer goroutine against store.
func NewWriter(store storage.Store, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	w := &Writer{store: store, log: log, jobs: make(chan writeJob, defaultQueueSize)}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *Writer) run() {
	defer w.wg.Done()
	for job := range w.jobs {
		ctx := context.Background()
		switch {
		case job.forecast != nil:
			if err := w.store.SaveForecast(ctx, *job.forecast); err != nil {
				w.log.Error("persist forecast failed", "plant_id", job.forecast.PlantID, "error", err)
				continue
			}
			w.log.Debug("persisted forecast", "plant_id", job.forecast.PlantID, "points", len(job.forecast.Points))
		case len(job.preds) > 0:
			if err := w.store.SavePredictions(ctx, job.preds); err != nil {
				w.log.Error("persist predictions failed", "model_id", job.preds[0].ModelID, "count", len(job.preds), "error", err)
				continue
			}
			w.log.Debug("persisted predictions", "model_id", job.preds[0].ModelID, "count", len(job.preds))
		}
	}
}

// EnqueueForecast submits f for background persistence. Non-blocking: if
// the queue is full, the forecast is dropped and a warning is logged.
func (w *Writer) EnqueueForecast(f domain.WeatherForecast) {
	select {
	case w.jobs <- writeJob{forecast: &f}:
	default:
		w.log.Warn("persistence queue full, dropping forecast", "plant_id", f.PlantID)
	}
}

// EnqueuePredictions submits a batch of predictions for background
// persistence. Non-blocking, same drop-and-log policy as EnqueueForecast.
func (w *Writer) EnqueuePredictions(preds []domain.PowerPrediction) {
	if len(preds) == 0 {
		return
	}
	select {
	case w.jobs <- writeJob{preds: preds}:
	default:
		w.log.Warn("persistence queue full, dropping predictions", "model_id", preds[0].ModelID, "count", len(preds))
	}
}

// Close stops accepting new work, drains whatever is already queued, and
// waits for the writer goroutine to exit, or returns early if d elapses
// first so shutdown cannot hang forever on a stuck store.
func (w *Writer) Close(d time.Duration) {
	close(w.jobs)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d):
		w.log.Warn("persistence writer drain timed out", "timeout", d)
	}
}

// DrainTimeout is the default bound passed to Close during shutdown.
const DrainTimeout = 30 * time.Second
