// Package config holds service configuration loaded from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string
	Port int

	// ShutdownTimeout is the max time to wait for in-flight requests
	// during graceful shutdown.
	ShutdownTimeout time.Duration
}

// PipelineConfig controls pipeline execution.
type PipelineConfig struct {
	// Model is the LLM model used for every stage.
	Model string

	// StageTimeout is the per-stage execution budget for the three
	// analysis stages.
	StageTimeout time.Duration

	// SynthesisTimeout is the budget for the final synthesis stage.
	SynthesisTimeout time.Duration

	// DrainTimeout is the max time to wait for running pipelines to
	// finish during shutdown. Should not exceed StageTimeout.
	DrainTimeout time.Duration

	// DataDir is where stage artifacts and generated images live.
	DataDir string

	// DocsDir holds reference documents uploaded to agent vector stores.
	DocsDir string
}

// Config aggregates all service configuration.
type Config struct {
	Server   ServerConfig
	Pipeline PipelineConfig
}

// DefaultPipelineConfig returns the built-in pipeline defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Model:            "gpt-4.1",
		StageTimeout:     10 * time.Minute,
		SynthesisTimeout: 5 * time.Minute,
		DrainTimeout:     10 * time.Minute,
		DataDir:          "data",
		DocsDir:          "docs",
	}
}

// Load reads configuration from the environment, applying defaults.
// Call godotenv.Load first so .env files are visible.
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8000"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	pipeline := DefaultPipelineConfig()
	pipeline.Model = getEnvOrDefault("PIPELINE_MODEL", pipeline.Model)
	pipeline.DataDir = getEnvOrDefault("DATA_DIR", pipeline.DataDir)
	pipeline.DocsDir = getEnvOrDefault("DOCS_DIR", pipeline.DocsDir)

	if pipeline.StageTimeout, err = durationEnv("STAGE_TIMEOUT", pipeline.StageTimeout); err != nil {
		return nil, err
	}
	if pipeline.SynthesisTimeout, err = durationEnv("SYNTHESIS_TIMEOUT", pipeline.SynthesisTimeout); err != nil {
		return nil, err
	}
	if pipeline.DrainTimeout, err = durationEnv("DRAIN_TIMEOUT", pipeline.DrainTimeout); err != nil {
		return nil, err
	}

	shutdown, err := durationEnv("SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Host:            getEnvOrDefault("HOST", "0.0.0.0"),
			Port:            port,
			ShutdownTimeout: shutdown,
		},
		Pipeline: pipeline,
	}, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return def, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
