package config

import (
	"flag"
	"os"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "environment variable set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "from-env",
			want:         "from-env",
		},
		{
			name:         "environment variable not set",
			key:          "NONEXISTENT_VAR",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "valid integer",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "42",
			want:         42,
		},
		{
			name:         "invalid integer",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "not-a-number",
			want:         10,
		},
		{
			name:         "not set",
			key:          "NONEXISTENT_INT",
			defaultValue: 99,
			envValue:     "",
			want:         99,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue float64
		envValue     string
		want         float64
	}{
		{
			name:         "valid float",
			key:          "TEST_FLOAT",
			defaultValue: 1.0,
			envValue:     "3.14",
			want:         3.14,
		},
		{
			name:         "invalid float",
			key:          "TEST_FLOAT",
			defaultValue: 2.5,
			envValue:     "not-a-float",
			want:         2.5,
		},
		{
			name:         "not set",
			key:          "NONEXISTENT_FLOAT",
			defaultValue: 9.99,
			envValue:     "",
			want:         9.99,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvFloat(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvFloat() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "valid duration",
			key:          "TEST_DURATION",
			defaultValue: 1 * time.Minute,
			envValue:     "5m",
			want:         5 * time.Minute,
		},
		{
			name:         "invalid duration",
			key:          "TEST_DURATION",
			defaultValue: 30 * time.Second,
			envValue:     "not-a-duration",
			want:         30 * time.Second,
		},
		{
			name:         "not set",
			key:          "NONEXISTENT_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	for k, v := range map[string]string{
		"DB_HOST":                "localhost",
		"DB_USER":                "forecaster",
		"DB_NAME":                "solar",
		"MODEL_MANAGER_BASE_URL": "http://model-manager:8000",
	} {
		os.Setenv(k, v)
		defer os.Unsetenv(k)
	}

	os.Args = []string{"cmd"}

	cfg := ParseFlags()

	// Check defaults
	if cfg.Listen != ":8081" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":8081")
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, want 5432", cfg.DBPort)
	}
	if cfg.DBMinConnections != 5 {
		t.Errorf("DBMinConnections = %d, want 5", cfg.DBMinConnections)
	}
	if cfg.DBMaxConnections != 20 {
		t.Errorf("DBMaxConnections = %d, want 20", cfg.DBMaxConnections)
	}
	if cfg.ModelManagerTimeout != 10*time.Second {
		t.Errorf("ModelManagerTimeout = %v, want 10s", cfg.ModelManagerTimeout)
	}
	if cfg.WeatherBaseURL != "https://api.open-meteo.com/v1" {
		t.Errorf("WeatherBaseURL = %q, want %q", cfg.WeatherBaseURL, "https://api.open-meteo.com/v1")
	}
	if cfg.WeatherTimeout != 15*time.Second {
		t.Errorf("WeatherTimeout = %v, want 15s", cfg.WeatherTimeout)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("RedisAddr = %q, want empty", cfg.RedisAddr)
	}
	if cfg.RedisDB != 0 {
		t.Errorf("RedisDB = %d, want 0", cfg.RedisDB)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, "text")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestConfig_CustomValues(t *testing.T) {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	os.Setenv("DB_HOST", "env-host")
	defer os.Unsetenv("DB_HOST")

	os.Args = []string{
		"cmd",
		"-listen=:9090",
		"-db-host=flag-host",
		"-db-user=forecaster",
		"-db-name=solar",
		"-model-manager-base-url=http://mm:8000",
		"-db-port=6543",
		"-db-max-connections=50",
		"-model-manager-timeout=30s",
		"-log-format=json",
		"-log-level=debug",
	}

	cfg := ParseFlags()

	if cfg.Listen != ":9090" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":9090")
	}
	if cfg.DBHost != "flag-host" {
		t.Errorf("DBHost = %q, want %q (flag overrides env)", cfg.DBHost, "flag-host")
	}
	if cfg.DBPort != 6543 {
		t.Errorf("DBPort = %d, want 6543", cfg.DBPort)
	}
	if cfg.DBMaxConnections != 50 {
		t.Errorf("DBMaxConnections = %d, want 50", cfg.DBMaxConnections)
	}
	if cfg.ModelManagerBaseURL != "http://mm:8000" {
		t.Errorf("ModelManagerBaseURL = %q, want %q", cfg.ModelManagerBaseURL, "http://mm:8000")
	}
	if cfg.ModelManagerTimeout != 30*time.Second {
		t.Errorf("ModelManagerTimeout = %v, want 30s", cfg.ModelManagerTimeout)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, "json")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}
