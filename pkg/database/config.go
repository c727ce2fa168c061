package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Pool sizing defaults. The service runs a handful of concurrent pipelines
// and each touches the store a few times per run, so the pool stays small.
const (
	defaultMaxOpenConns = 10
	defaultMaxIdleConns = 5
	connMaxLifetime     = 30 * time.Minute
	connMaxIdleTime     = 5 * time.Minute
)

// LoadConfigFromEnv reads the database settings. DATABASE_URL, when set,
// supplies the whole connection string; otherwise it is assembled from the
// discrete DB_* variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:             os.Getenv("DATABASE_URL"),
		Database:        envOr("DB_NAME", "researchd"),
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
		ConnMaxIdleTime: connMaxIdleTime,
	}
	if raw := os.Getenv("DB_MAX_OPEN_CONNS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid DB_MAX_OPEN_CONNS %q", raw)
		}
		cfg.MaxOpenConns = n
	}
	if cfg.URL != "" {
		return cfg, nil
	}

	port, err := strconv.Atoi(envOr("DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.Host = envOr("DB_HOST", "localhost")
	cfg.Port = port
	cfg.User = envOr("DB_USER", "researchd")
	cfg.Password = os.Getenv("DB_PASSWORD")
	cfg.SSLMode = envOr("DB_SSLMODE", "disable")
	return cfg, nil
}

func envOr(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
