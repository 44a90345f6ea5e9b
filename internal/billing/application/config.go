package application

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var errMissingDatabaseURL = errors.New("billing config: DATABASE_URL or PG_DSN is required")

// Config holds server-wide configuration for the billing core, assembled
// from environment variables with an optional YAML override file, the same
// approach the teacher uses for shadowrun's configuration.
type Config struct {
	DatabaseURL      string        `yaml:"database_url"`
	HTTPAddr         string        `yaml:"http_addr"`
	TenantID         string        `yaml:"tenant_id"`
	JWTSecret        string        `yaml:"jwt_secret"`
	DefaultGapPolicy string        `yaml:"default_gap_policy"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

// LoadConfig merges env-var defaults with an optional YAML override named by
// BILLING_CONFIG. Env vars supply the defaults; the YAML file, if present,
// overrides whichever keys it sets.
func LoadConfig() (Config, error) {
	cfg := Config{
		DatabaseURL:      getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:         getenvDefault("HTTP_ADDR", ":8080"),
		TenantID:         getenvDefault("TENANT_ID", "tenant-demo"),
		JWTSecret:        getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		DefaultGapPolicy: getenvDefault("BILLING_GAP_STRATEGY", "extrapolate_last"),
		RequestTimeout:   getenvDuration("BILLING_REQUEST_TIMEOUT", 30*time.Second),
	}

	if path := os.Getenv("BILLING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.DatabaseURL == "" {
		return cfg, errMissingDatabaseURL
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
