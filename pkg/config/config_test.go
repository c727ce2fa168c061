package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "gpt-4.1", cfg.Pipeline.Model)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.StageTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.SynthesisTimeout)
	assert.Equal(t, "data", cfg.Pipeline.DataDir)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PIPELINE_MODEL", "gpt-4.1-mini")
	t.Setenv("STAGE_TIMEOUT", "90s")
	t.Setenv("DATA_DIR", "/var/lib/researchd")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "gpt-4.1-mini", cfg.Pipeline.Model)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.StageTimeout)
	assert.Equal(t, "/var/lib/researchd", cfg.Pipeline.DataDir)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"non-numeric port", "PORT", "eight thousand"},
		{"unparseable duration", "STAGE_TIMEOUT", "ten minutes"},
		{"negative duration", "SYNTHESIS_TIMEOUT", "-5m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
