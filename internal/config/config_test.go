package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cdd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, NewValidator().Validate(cfg))
}

func TestDefaultValues(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 4, cfg.Core.ParallelLimit)
	assert.Equal(t, 5*time.Minute, cfg.Core.Timeout)
	assert.Equal(t, 5, cfg.Queue.Workers)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.Queue.RetryDelay)
	assert.Equal(t, 72*time.Hour, cfg.Queue.Retention)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, 0.65, cfg.Research.ProceedThreshold)
	assert.Equal(t, 0.40, cfg.Research.ReviewThreshold)
	assert.Equal(t, "moderate", cfg.StressTest.DefaultIntensity)
	assert.True(t, cfg.Store.WALMode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
core:
  parallel_limit: 8
  timeout: 10m
queue:
  workers: 2
  retry_delay: 30s
provider:
  name: ollama
  model: llama3
  base_url: http://localhost:11434
research:
  proceed_threshold: 0.7
logging:
  level: debug
  format: text
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Core.ParallelLimit)
	assert.Equal(t, 10*time.Minute, cfg.Core.Timeout)
	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.Equal(t, 30*time.Second, cfg.Queue.RetryDelay)
	assert.Equal(t, "ollama", cfg.Provider.Name)
	assert.Equal(t, "llama3", cfg.Provider.Model)
	assert.Equal(t, 0.7, cfg.Research.ProceedThreshold)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 0.40, cfg.Research.ReviewThreshold)
	assert.Equal(t, 10, cfg.Store.MaxConnections)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader(NewValidator()).Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ErrConfigRead, types.CodeOf(err))
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "queue: [this is: not valid\n")

	_, err := NewLoader(NewValidator()).Load(path)
	require.Error(t, err)
	assert.Equal(t, ErrConfigRead, types.CodeOf(err))
}

func TestLoadWithDefaultsMissingFile(t *testing.T) {
	cfg, err := NewLoader(NewValidator()).LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Queue, cfg.Queue)
}

func TestLoadWithDefaultsExistingFile(t *testing.T) {
	path := writeConfigFile(t, "queue:\n  workers: 9\n")

	cfg, err := NewLoader(NewValidator()).LoadWithDefaults(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Queue.Workers)
}

func TestLoadInterpolatesEnvVars(t *testing.T) {
	t.Setenv("CDD_TEST_API_KEY", "sk-test-12345")
	path := writeConfigFile(t, `
provider:
  api_key: ${CDD_TEST_API_KEY}
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-12345", cfg.Provider.APIKey)
}

func TestLoadLeavesUnsetEnvVarsIntact(t *testing.T) {
	path := writeConfigFile(t, `
provider:
  api_key: ${CDD_DEFINITELY_UNSET_VAR}
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${CDD_DEFINITELY_UNSET_VAR}", cfg.Provider.APIKey)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "max attempts above cap",
			yaml:    "queue:\n  max_attempts: 99\n",
			wantMsg: "queue.max_attempts must be at most 10",
		},
		{
			name:    "zero workers",
			yaml:    "queue:\n  workers: 0\n",
			wantMsg: "queue.workers must be at least 1",
		},
		{
			name:    "unknown provider",
			yaml:    "provider:\n  name: bedrock\n",
			wantMsg: "provider.name must be one of [anthropic openai ollama]",
		},
		{
			name:    "bad base url",
			yaml:    "provider:\n  base_url: not-a-url\n",
			wantMsg: "provider.base_url must be a valid URL",
		},
		{
			name:    "unknown log level",
			yaml:    "logging:\n  level: loud\n",
			wantMsg: "logging.level must be one of [debug info warn error]",
		},
	}

	loader := NewLoader(NewValidator())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.yaml)
			_, err := loader.Load(path)
			require.Error(t, err)
			assert.Equal(t, ErrConfigInvalid, types.CodeOf(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateCrossFieldConstraints(t *testing.T) {
	v := NewValidator()

	cfg := DefaultConfig()
	cfg.Research.MinSourcesPerHypothesis = 6
	cfg.Research.MaxSourcesPerHypothesis = 3
	err := v.Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_sources_per_hypothesis")

	cfg = DefaultConfig()
	cfg.Research.ReviewThreshold = 0.9
	err = v.Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review_threshold")

	cfg = DefaultConfig()
	cfg.Tracing.Enabled = true
	err = v.Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracing.endpoint")

	cfg = DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Endpoint = "localhost:4317"
	assert.NoError(t, v.Validate(cfg))
}

func TestValidateNilConfig(t *testing.T) {
	err := NewValidator().Validate(nil)
	require.Error(t, err)
	assert.Equal(t, ErrConfigInvalid, types.CodeOf(err))
}

func TestFormatFieldPath(t *testing.T) {
	assert.Equal(t, "queue.max_attempts", formatFieldPath("Config.Queue.MaxAttempts"))
	assert.Equal(t, "provider.api_key", formatFieldPath("Config.Provider.APIKey"))
	assert.Equal(t, "store.wal_mode", formatFieldPath("Config.Store.WALMode"))
}
