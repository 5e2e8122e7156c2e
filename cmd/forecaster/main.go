// Command forecaster runs the solar power prediction service.
//
// On a fixed schedule (00:00/06:00/12:00/18:00 Europe/Zagreb) the
// forecaster refreshes its view of active plants and models, fetches a
// 72-hour weather forecast per plant, builds per-model feature matrices,
// runs inference inside sandboxed WASM artifacts, and persists the
// resulting predictions. It also serves stored forecasts, readings, and
// accuracy metrics over HTTP, and exposes a playground endpoint for
// ad-hoc inference against an uploaded CSV.
//
// Environment variables:
//
//	DB_HOST                   - Postgres host (required)
//	DB_PORT                   - Postgres port (default: 5432)
//	DB_USER                   - Postgres user (required)
//	DB_PASSWORD               - Postgres password
//	DB_NAME                   - Postgres database name (required)
//	MODEL_MANAGER_BASE_URL    - Model-Manager base URL (required)
//	MODEL_MANAGER_TIMEOUT     - Model-Manager request timeout (default: 10s)
//	WEATHER_BASE_URL          - Weather provider base URL
//	WEATHER_TIMEOUT           - Weather provider request timeout (default: 15s)
//	REDIS_ADDR                - Redis address (optional: scheduler lock + state warm cache)
//	LOG_LEVEL                 - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT                - Logging format: text, json (default: text)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sunwatt/forecaster/cmd/forecaster/config"
	"github.com/sunwatt/forecaster/cmd/forecaster/logger"
	"github.com/sunwatt/forecaster/cmd/forecaster/metrics"
	"github.com/sunwatt/forecaster/cmd/forecaster/router"
	"github.com/sunwatt/forecaster/pkg/artifacts"
	"github.com/sunwatt/forecaster/pkg/clients"
	"github.com/sunwatt/forecaster/pkg/clock"
	"github.com/sunwatt/forecaster/pkg/features"
	"github.com/sunwatt/forecaster/pkg/httpx"
	"github.com/sunwatt/forecaster/pkg/ingest"
	"github.com/sunwatt/forecaster/pkg/metricsengine"
	"github.com/sunwatt/forecaster/pkg/pipeline"
	"github.com/sunwatt/forecaster/pkg/playground"
	"github.com/sunwatt/forecaster/pkg/scheduler"
	"github.com/sunwatt/forecaster/pkg/state"
	"github.com/sunwatt/forecaster/pkg/storage"
)

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting forecaster", "listen", cfg.Listen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewPostgresStore(ctx, storage.PostgresConfig{
		Host:           cfg.DBHost,
		Port:           cfg.DBPort,
		User:           cfg.DBUser,
		Password:       cfg.DBPassword,
		Database:       cfg.DBName,
		MinConnections: int32(cfg.DBMinConnections),
		MaxConnections: int32(cfg.DBMaxConnections),
	})
	if err != nil {
		log.Error("connect to postgres failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	mmClient := clients.NewModelManagerClient(cfg.ModelManagerBaseURL, cfg.ModelManagerTimeout, nil)
	weatherClient, err := clients.NewWeatherClient(cfg.WeatherBaseURL, cfg.WeatherTimeout, clock.RealClock{})
	if err != nil {
		log.Error("create weather client failed", "error", err)
		os.Exit(1)
	}
	loader := artifacts.New(log)
	resolver := features.New(log)
	engine := metricsengine.New(store)

	var warm *state.WarmCache
	var lock scheduler.Lock
	if cfg.RedisAddr != "" {
		warm, err = state.NewWarmCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Error("connect to redis warm cache failed", "error", err)
			os.Exit(1)
		}
		defer warm.Close()

		lock, err = scheduler.NewRedisLock(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "prediction_generation", lockToken())
		if err != nil {
			log.Error("connect to redis scheduler lock failed", "error", err)
			os.Exit(1)
		}
	}

	cache := state.New(mmClient, warm, log)
	modelStore := state.NewModelStore(cache, mmClient, loader, log)
	defer modelStore.Close(context.Background())

	writer := pipeline.NewWriter(store, log)
	met := metrics.New()
	instrumentation := &pipeline.Instrumentation{
		RecordWeatherFetch: met.RecordWeatherFetch,
		RecordFeatureBuild: met.RecordFeatureBuild,
		RecordPredict:      met.RecordPredict,
		RecordCycle:        met.RecordCycle,
		SetPlantsProcessed: met.SetPlantsProcessed,
		RecordModelSkipped: met.RecordModelSkipped,
		RecordError:        met.RecordError,
	}
	pipe := pipeline.New(pipeline.NewStateAdapter(modelStore), weatherClient, resolver, writer, instrumentation, log)

	sched, err := scheduler.New(pipe.Run, lock, log)
	if err != nil {
		log.Error("create scheduler failed", "error", err)
		os.Exit(1)
	}

	ingestor := ingest.New(store, cache, engine, log)
	runner := playground.New(loader, store)

	mux := router.SetupRoutes(router.Deps{
		Store:      store,
		Cache:      cache,
		Engine:     engine,
		Ingestor:   ingestor,
		Playground: runner,
		ModelMgr:   mmClient,
		Scheduler:  sched,
		Metrics:    met,
		Log:        log,
	})

	handler := httpx.RecoveryMiddleware(log)(httpx.LoggingMiddleware(log)(mux))
	httpServer := httpx.NewServer(cfg.Listen, handler, log)

	sched.Start()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		log.Error("scheduler stop failed", "error", err)
	}
	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}
	writer.Close(pipeline.DrainTimeout)

	log.Info("shutdown complete")
}

// lockToken identifies this replica to the distributed scheduler lock, so
// a crashed-and-restarted process never releases a lock a live replica
// currently holds.
func lockToken() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
