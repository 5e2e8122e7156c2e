package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sunwatt/forecaster/pkg/domain"
)

// PostgresConfig configures the pooled connection to the relational store.
type PostgresConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	MinConnections int32
	MaxConnections int32
}

// PostgresStore implements Store over a pgx connection pool. Every write
// is a multi-row upsert with ON CONFLICT DO NOTHING so re-running a cycle
// (after a crash, or a retried pipeline run) never double-inserts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore builds the DSN from cfg, connects, and verifies the
// connection with a bounded ping before returning.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// SaveForecast persists one fetched forecast and its points in a single
// transaction so readers never observe a partially written forecast.
func (s *PostgresStore) SaveForecast(ctx context.Context, f domain.WeatherForecast) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin forecast tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO weather_forecasts (plant_id, fetch_time, latitude, longitude, timezone, elevation)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (plant_id, fetch_time) DO NOTHING
	`, f.PlantID, f.FetchTime, f.Lat, f.Lon, f.Timezone, f.Elevation)
	if err != nil {
		return fmt.Errorf("insert weather_forecasts: %w", err)
	}

	rows := make([][]any, len(f.Points))
	for i, p := range f.Points {
		rows[i] = []any{
			f.PlantID, f.FetchTime, p.Time,
			p.Temperature2m, p.RelativeHumidity2m, p.CloudCoverLow, p.CloudCoverMid, p.CloudCoverTotal,
			p.WindSpeed10m, p.WindDirection10m,
			p.ShortwaveRadiation, p.DiffuseRadiation, p.DirectRadiation,
			p.ShortwaveRadiationInst, p.DiffuseRadiationInst, p.DirectRadiationInst,
			p.ET0FaoEvapotranspiration, p.VapourPressureDeficit, p.IsDay, p.SunshineDuration,
		}
	}

	if len(rows) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"weather_points"},
			[]string{
				"plant_id", "fetch_time", "sample_time",
				"temperature_2m", "relative_humidity_2m", "cloud_cover_low", "cloud_cover_mid", "cloud_cover_total",
				"wind_speed_10m", "wind_direction_10m",
				"shortwave_radiation", "diffuse_radiation", "direct_radiation",
				"shortwave_radiation_instant", "diffuse_radiation_instant", "direct_radiation_instant",
				"et0_fao_evapotranspiration", "vapour_pressure_deficit", "is_day", "sunshine_duration",
			},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy weather_points: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit forecast tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) SavePredictions(ctx context.Context, preds []domain.PowerPrediction) error {
	if len(preds) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range preds {
		batch.Queue(`
			INSERT INTO power_predictions (model_id, created_at, prediction_time, predicted_power, horizon)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (model_id, prediction_time, created_at) DO NOTHING
		`, p.ModelID, p.CreatedAt, p.PredictionTime, p.PredictedPower, p.Horizon)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range preds {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert power_predictions: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Predictions(ctx context.Context, modelID int, from, to time.Time) ([]domain.PowerPrediction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT model_id, created_at, prediction_time, predicted_power, horizon
		FROM power_predictions
		WHERE model_id = $1 AND prediction_time >= $2 AND prediction_time < $3
		ORDER BY prediction_time
	`, modelID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query power_predictions: %w", err)
	}
	defer rows.Close()

	var preds []domain.PowerPrediction
	for rows.Next() {
		var p domain.PowerPrediction
		if err := rows.Scan(&p.ModelID, &p.CreatedAt, &p.PredictionTime, &p.PredictedPower, &p.Horizon); err != nil {
			return nil, fmt.Errorf("scan power_predictions: %w", err)
		}
		preds = append(preds, p)
	}
	return preds, rows.Err()
}

func (s *PostgresStore) SaveReadings(ctx context.Context, readings []domain.PowerReading) error {
	if len(readings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range readings {
		batch.Queue(`
			INSERT INTO power_readings (plant_id, timestamp, power_w)
			VALUES ($1, $2, $3)
			ON CONFLICT (plant_id, timestamp) DO NOTHING
		`, r.PlantID, r.Timestamp, r.PowerW)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range readings {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert power_readings: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Readings(ctx context.Context, plantID int, from, to time.Time) ([]domain.PowerReading, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT plant_id, timestamp, power_w
		FROM power_readings
		WHERE plant_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp
	`, plantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query power_readings: %w", err)
	}
	defer rows.Close()

	var readings []domain.PowerReading
	for rows.Next() {
		var r domain.PowerReading
		if err := rows.Scan(&r.PlantID, &r.Timestamp, &r.PowerW); err != nil {
			return nil, fmt.Errorf("scan power_readings: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// SaveHorizonMetrics replaces the full stored set for the model: horizon
// metrics are always recomputed from scratch across all cycles, never
// incrementally merged.
func (s *PostgresStore) SaveHorizonMetrics(ctx context.Context, metrics []domain.HorizonMetric) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin horizon metrics tx: %w", err)
	}
	defer tx.Rollback(ctx)

	modelID := metrics[0].ModelID
	if _, err := tx.Exec(ctx, `DELETE FROM horizon_metrics WHERE model_id = $1`, modelID); err != nil {
		return fmt.Errorf("clear horizon_metrics: %w", err)
	}

	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO horizon_metrics (model_id, metric_type, horizon, value)
			VALUES ($1, $2, $3, $4)
		`, m.ModelID, m.MetricType, m.Horizon, m.Value)
	}
	br := tx.SendBatch(ctx, batch)
	for range metrics {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert horizon_metrics: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close horizon_metrics batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit horizon metrics tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) HorizonMetrics(ctx context.Context, modelID int) ([]domain.HorizonMetric, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT model_id, metric_type, horizon, value
		FROM horizon_metrics
		WHERE model_id = $1
		ORDER BY metric_type, horizon
	`, modelID)
	if err != nil {
		return nil, fmt.Errorf("query horizon_metrics: %w", err)
	}
	defer rows.Close()

	var metrics []domain.HorizonMetric
	for rows.Next() {
		var m domain.HorizonMetric
		if err := rows.Scan(&m.ModelID, &m.MetricType, &m.Horizon, &m.Value); err != nil {
			return nil, fmt.Errorf("scan horizon_metrics: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// SaveCycleMetrics replaces the stored set for (model, cycle) pairs present
// in metrics, leaving unrelated cycles untouched.
func (s *PostgresStore) SaveCycleMetrics(ctx context.Context, metrics []domain.CycleMetric) error {
	if len(metrics) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO cycle_metrics (model_id, time_of_forecast, metric_type, value)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (model_id, time_of_forecast, metric_type) DO UPDATE SET value = EXCLUDED.value
		`, m.ModelID, m.TimeOfForecast, m.MetricType, m.Value)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metrics {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert cycle_metrics: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) CycleMetrics(ctx context.Context, modelID int, from, to time.Time) ([]domain.CycleMetric, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT model_id, time_of_forecast, metric_type, value
		FROM cycle_metrics
		WHERE model_id = $1 AND time_of_forecast >= $2 AND time_of_forecast < $3
		ORDER BY time_of_forecast
	`, modelID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query cycle_metrics: %w", err)
	}
	defer rows.Close()

	var metrics []domain.CycleMetric
	for rows.Next() {
		var m domain.CycleMetric
		if err := rows.Scan(&m.ModelID, &m.TimeOfForecast, &m.MetricType, &m.Value); err != nil {
			return nil, fmt.Errorf("scan cycle_metrics: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
