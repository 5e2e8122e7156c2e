// Package config provides configuration parsing and management for the
// forecaster.
//
// It handles both command-line flags and environment variables, with
// flags taking precedence over environment variables. The Config struct
// contains everything the forecaster needs to run:
//   - HTTP listen address
//   - Postgres connection and pool sizing
//   - Model-Manager base URL and request timeout
//   - Weather provider base URL
//   - Optional Redis address (scheduler lock + state cache warm backstop)
//   - Logging configuration (level, format)
//
// Required configuration values are validated and the program exits with
// status 1 if they are missing.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
package config

import (
	"fmt"
	"os"
	"time"

	"flag"
)

// Config holds all forecaster configuration.
type Config struct {
	Listen string

	DBHost           string
	DBPort           int
	DBUser           string
	DBPassword       string
	DBName           string
	DBMinConnections int
	DBMaxConnections int

	ModelManagerBaseURL string
	ModelManagerTimeout time.Duration

	WeatherBaseURL string
	WeatherTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogFormat string
	LogLevel  string
}

// ParseFlags parses command-line flags and environment variables into a
// Config. Exits with status 1 if required values (DB_HOST, DB_USER,
// DB_NAME, MODEL_MANAGER_BASE_URL) are missing.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address")

	flag.StringVar(&cfg.DBHost, "db-host", getEnv("DB_HOST", ""), "Postgres host (required)")
	flag.IntVar(&cfg.DBPort, "db-port", getEnvInt("DB_PORT", 5432), "Postgres port")
	flag.StringVar(&cfg.DBUser, "db-user", getEnv("DB_USER", ""), "Postgres user (required)")
	flag.StringVar(&cfg.DBPassword, "db-password", getEnv("DB_PASSWORD", ""), "Postgres password")
	flag.StringVar(&cfg.DBName, "db-name", getEnv("DB_NAME", ""), "Postgres database name (required)")
	flag.IntVar(&cfg.DBMinConnections, "db-min-connections", getEnvInt("DB_MIN_CONNECTIONS", 5), "Postgres pool minimum connections")
	flag.IntVar(&cfg.DBMaxConnections, "db-max-connections", getEnvInt("DB_MAX_CONNECTIONS", 20), "Postgres pool maximum connections")

	flag.StringVar(&cfg.ModelManagerBaseURL, "model-manager-base-url", getEnv("MODEL_MANAGER_BASE_URL", ""), "Model-Manager base URL (required)")
	flag.DurationVar(&cfg.ModelManagerTimeout, "model-manager-timeout", getEnvDuration("MODEL_MANAGER_TIMEOUT", 10*time.Second), "Model-Manager request timeout")

	flag.StringVar(&cfg.WeatherBaseURL, "weather-base-url", getEnv("WEATHER_BASE_URL", "https://api.open-meteo.com/v1"), "Weather provider base URL")
	flag.DurationVar(&cfg.WeatherTimeout, "weather-timeout", getEnvDuration("WEATHER_TIMEOUT", 15*time.Second), "Weather provider request timeout")

	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", ""), "Redis address (optional: scheduler lock + state cache warm backstop)")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password (optional)")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.Parse()

	if cfg.DBHost == "" {
		fmt.Fprintln(os.Stderr, "Error: --db-host is required")
		os.Exit(1)
	}
	if cfg.DBUser == "" {
		fmt.Fprintln(os.Stderr, "Error: --db-user is required")
		os.Exit(1)
	}
	if cfg.DBName == "" {
		fmt.Fprintln(os.Stderr, "Error: --db-name is required")
		os.Exit(1)
	}
	if cfg.ModelManagerBaseURL == "" {
		fmt.Fprintln(os.Stderr, "Error: --model-manager-base-url is required")
		os.Exit(1)
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
