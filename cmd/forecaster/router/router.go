// Package router configures the forecaster's HTTP surface: health and
// status, pipeline trigger, forecast/reading/metric reads, readings
// ingest, and the playground ad-hoc prediction endpoints (spec.md §6).
// Route registration follows the same flat mux-plus-handler-functions
// shape as the teacher's own cmd/forecaster/router, extended from one
// snapshot-read endpoint to the forecaster's full read/write surface.
package router

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sunwatt/forecaster/cmd/forecaster/metrics"
	"github.com/sunwatt/forecaster/pkg/clients"
	"github.com/sunwatt/forecaster/pkg/domain"
	"github.com/sunwatt/forecaster/pkg/httpx"
	"github.com/sunwatt/forecaster/pkg/ingest"
	"github.com/sunwatt/forecaster/pkg/metricsengine"
	"github.com/sunwatt/forecaster/pkg/playground"
	"github.com/sunwatt/forecaster/pkg/scheduler"
	"github.com/sunwatt/forecaster/pkg/state"
	"github.com/sunwatt/forecaster/pkg/storage"
)

// maxMultipartMemory bounds how much of a multipart upload ParseMultipartForm
// buffers in memory before spilling to a temp file.
const maxMultipartMemory = 32 << 20 // 32 MiB

// Deps collects every dependency the handlers need. All fields are
// required except Metrics, which may be nil.
type Deps struct {
	Store      storage.Store
	Cache      *state.Cache
	Engine     *metricsengine.Engine
	Ingestor   *ingest.Ingestor
	Playground *playground.Runner
	ModelMgr   *clients.ModelManagerClient
	Scheduler  *scheduler.Scheduler
	Metrics    *metrics.Metrics
	Log        *slog.Logger
}

// SetupRoutes builds the forecaster's HTTP mux.
func SetupRoutes(d Deps) *http.ServeMux {
	if d.Log == nil {
		d.Log = slog.Default()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /", handleHealth())
	mux.HandleFunc("GET /internal/status", handleStatus(d))
	mux.HandleFunc("POST /generate", handleGenerate(d))

	mux.HandleFunc("GET /forecast/time_of_forecast/{model_id}", handleForecastByCycle(d))
	mux.HandleFunc("GET /forecast/{model_id}/timestamps", handleForecastTimestamps(d))
	mux.HandleFunc("GET /forecast/{model_id}", handleForecastLatest(d))

	mux.HandleFunc("GET /reading/{id}", handleReadingsGet(d))
	mux.HandleFunc("POST /reading/{plant_id}", handleReadingsIngest(d))

	mux.HandleFunc("GET /metric/horizon/{model_id}", handleHorizonMetrics(d))
	mux.HandleFunc("GET /metric/cycle/{model_id}", handleCycleMetrics(d))
	mux.HandleFunc("POST /metric/calculate/{model_id}", handleCalculateMetrics(d))

	mux.HandleFunc("GET /playground/model/{model_id}/features", handlePlaygroundFeatures(d))
	mux.HandleFunc("POST /playground/predict/{model_id}", handlePlaygroundPredict(d))

	if d.Metrics != nil {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return mux
}

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "forecaster is running"})
	}
}

func handleStatus(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plants, err := d.Cache.ActivePlants()
		if err != nil {
			httpx.ServiceUnavailable(w, err)
			return
		}

		modelCount := 0
		for _, p := range plants {
			models, err := d.Cache.ActiveModels(p.ID)
			if err != nil {
				continue
			}
			modelCount += len(models)
		}

		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"service":              "forecaster",
			"power_plants":         len(plants),
			"models":               modelCount,
			"prediction_scheduler": d.Scheduler.Status(),
		})
	}
}

func handleGenerate(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()
		if raw := r.URL.Query().Get("start_date"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid start_date: "+err.Error())
				return
			}
			now = parsed
		}

		if err := d.Scheduler.RunNow(r.Context(), now); err != nil {
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "pipeline run failed: "+err.Error())
			return
		}

		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "completed"})
	}
}

func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	from, to := metricsengine.FullRange()

	if raw := r.URL.Query().Get("start_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}
	return from, to, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	return strconv.Atoi(r.PathValue(name))
}

func handleForecastLatest(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		modelID, err := pathInt(r, "model_id")
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid model_id")
			return
		}
		from, to, err := parseDateRange(r)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid date range: "+err.Error())
			return
		}

		preds, err := d.Store.Predictions(r.Context(), modelID, from, to)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		latest := make(map[time.Time]domain.PowerPrediction, len(preds))
		for _, p := range preds {
			cur, ok := latest[p.PredictionTime]
			if !ok || p.CreatedAt.After(cur.CreatedAt) {
				latest[p.PredictionTime] = p
			}
		}

		out := make([]domain.PowerPrediction, 0, len(latest))
		for _, p := range latest {
			out = append(out, p)
		}
		sortPredictionsByTime(out)

		httpx.WriteJSON(w, http.StatusOK, out)
	}
}

func handleForecastByCycle(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		modelID, err := pathInt(r, "model_id")
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid model_id")
			return
		}
		tofRaw := r.URL.Query().Get("tof")
		if tofRaw == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "tof query parameter required")
			return
		}
		tof, err := time.Parse(time.RFC3339, tofRaw)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid tof: "+err.Error())
			return
		}

		from, to := metricsengine.FullRange()
		preds, err := d.Store.Predictions(r.Context(), modelID, from, to)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		var out []domain.PowerPrediction
		for _, p := range preds {
			if p.CreatedAt.Equal(tof) {
				out = append(out, p)
			}
		}
		sortPredictionsByTime(out)

		httpx.WriteJSON(w, http.StatusOK, out)
	}
}

func handleForecastTimestamps(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		modelID, err := pathInt(r, "model_id")
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid model_id")
			return
		}

		from, to := metricsengine.FullRange()
		preds, err := d.Store.Predictions(r.Context(), modelID, from, to)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		seen := make(map[time.Time]bool)
		var timestamps []time.Time
		for _, p := range preds {
			if !seen[p.CreatedAt] {
				seen[p.CreatedAt] = true
				timestamps = append(timestamps, p.CreatedAt)
			}
		}
		sortTimesDesc(timestamps)

		httpx.WriteJSON(w, http.StatusOK, timestamps)
	}
}

func handleReadingsGet(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plantID, err := pathInt(r, "id")
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid id")
			return
		}
		from, to, err := parseDateRange(r)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid date range: "+err.Error())
			return
		}

		readings, err := d.Store.Readings(r.Context(), plantID, from, to)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		httpx.WriteJSON(w, http.StatusOK, readings)
	}
}

func handleReadingsIngest(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plantID, err := pathInt(r, "plant_id")
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid plant_id")
			return
		}

		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "missing file field: "+err.Error())
			return
		}
		defer file.Close()

		if err := d.Ingestor.Ingest(r.Context(), plantID, file); err != nil {
			var verr *ingest.ValidationError
			if asValidationError(err, &verr) {
				httpx.WriteJSON(w, http.StatusBadRequest, map[string]any{"success": false, "errors": verr.Errors})
				return
			}
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func asValidationError(err error, target **ingest.ValidationError) bool {
	if ve, ok := err.(*ingest.ValidationError); ok {
		*target = ve
		return true
	}
	return false
}

func handleHorizonMetrics(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		modelID, err := pathInt(r, "model_id")
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid model_id")
			return
		}

		metrics, err := d.Store.HorizonMetrics(r.Context(), modelID)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		httpx.WriteJSON(w, http.StatusOK, metrics)
	}
}

func handleCycleMetrics(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		modelID, err := pathInt(r, "model_id")
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid model_id")
			return
		}
		from, to, err := parseDateRange(r)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid date range: "+err.Error())
			return
		}

		metrics, err := d.Store.CycleMetrics(r.Context(), modelID, from, to)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		httpx.WriteJSON(w, http.StatusOK, metrics)
	}
}

func handleCalculateMetrics(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		modelID, err := pathInt(r, "model_id")
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid model_id")
			return
		}

		meta, err := d.ModelMgr.Model(r.Context(), modelID)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "model not found")
			return
		}

		from, to := metricsengine.FullRange()
		horizonErr := d.Engine.CalculateHorizonMetrics(r.Context(), modelID, meta.PlantID, from, to)
		cycleErr := d.Engine.CalculateCycleMetrics(r.Context(), modelID, meta.PlantID, from, to)
		if horizonErr != nil || cycleErr != nil {
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "completed"})
	}
}

func handlePlaygroundFeatures(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		modelID, err := pathInt(r, "model_id")
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid model_id")
			return
		}

		meta, err := d.ModelMgr.Model(r.Context(), modelID)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "model not found")
			return
		}

		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"model_id":   meta.ID,
			"name":       meta.Name,
			"version":    meta.Version,
			"file_type":  meta.FileType,
			"features":   meta.Features,
			"plant_id":   meta.PlantID,
			"plant_name": meta.PlantName,
		})
	}
}

func handlePlaygroundPredict(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		modelID, err := pathInt(r, "model_id")
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid model_id")
			return
		}

		meta, err := d.ModelMgr.Model(r.Context(), modelID)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "model not found")
			return
		}

		raw, err := d.ModelMgr.DownloadArtifact(r.Context(), modelID)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "artifact download failed")
			return
		}

		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "missing file field: "+err.Error())
			return
		}
		defer file.Close()

		result, err := d.Playground.PredictFromArtifact(r.Context(), meta, raw, meta.PlantID, file)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		httpx.WriteJSON(w, http.StatusOK, result)
	}
}

func sortPredictionsByTime(preds []domain.PowerPrediction) {
	sort.Slice(preds, func(i, j int) bool {
		return preds[i].PredictionTime.Before(preds[j].PredictionTime)
	})
}

func sortTimesDesc(times []time.Time) {
	sort.Slice(times, func(i, j int) bool {
		return times[i].After(times[j])
	})
}
