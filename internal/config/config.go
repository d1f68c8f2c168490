package config

import (
	"time"
)

// Config is the root configuration for the research core.
type Config struct {
	Core       CoreConfig       `mapstructure:"core" yaml:"core" validate:"required"`
	Queue      QueueConfig      `mapstructure:"queue" yaml:"queue" validate:"required"`
	Provider   ProviderConfig   `mapstructure:"provider" yaml:"provider"`
	Research   ResearchConfig   `mapstructure:"research" yaml:"research"`
	StressTest StressTestConfig `mapstructure:"stress_test" yaml:"stress_test"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Tracing    TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
}

// CoreConfig contains core application settings.
type CoreConfig struct {
	DataDir       string        `mapstructure:"data_dir" yaml:"data_dir"`
	ParallelLimit int           `mapstructure:"parallel_limit" yaml:"parallel_limit" validate:"min=1,max=64"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=1s"`
	Debug         bool          `mapstructure:"debug" yaml:"debug"`
}

// QueueConfig contains job queue and retry policy settings.
type QueueConfig struct {
	Workers         int           `mapstructure:"workers" yaml:"workers" validate:"min=1,max=64"`
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=1,max=10"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" validate:"min=1ms"`
	Retention       time.Duration `mapstructure:"retention" yaml:"retention" validate:"min=1m"`
	Depth           int           `mapstructure:"depth" yaml:"depth" validate:"min=1"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval" yaml:"janitor_interval" validate:"min=1s"`
}

// ProviderConfig contains reasoning provider settings. The API key supports
// ${VAR_NAME} environment interpolation so secrets stay out of config files.
type ProviderConfig struct {
	Name        string        `mapstructure:"name" yaml:"name" validate:"omitempty,oneof=anthropic openai ollama"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url,omitempty" validate:"omitempty,url"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ResearchConfig contains research workflow tuning.
type ResearchConfig struct {
	MinSourcesPerHypothesis int     `mapstructure:"min_sources_per_hypothesis" yaml:"min_sources_per_hypothesis" validate:"min=1"`
	MaxSourcesPerHypothesis int     `mapstructure:"max_sources_per_hypothesis" yaml:"max_sources_per_hypothesis" validate:"min=1"`
	ProceedThreshold        float64 `mapstructure:"proceed_threshold" yaml:"proceed_threshold" validate:"min=0,max=1"`
	ReviewThreshold         float64 `mapstructure:"review_threshold" yaml:"review_threshold" validate:"min=0,max=1"`
	CriticalImportance      float64 `mapstructure:"critical_importance" yaml:"critical_importance" validate:"min=0,max=1"`
}

// StressTestConfig contains stress-test workflow tuning.
type StressTestConfig struct {
	DefaultIntensity  string `mapstructure:"default_intensity" yaml:"default_intensity" validate:"omitempty,oneof=light moderate aggressive"`
	MinContradictions int    `mapstructure:"min_contradictions" yaml:"min_contradictions" validate:"min=0"`
}

// StoreConfig contains persistence settings.
type StoreConfig struct {
	Path           string        `mapstructure:"path" yaml:"path"`
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections" validate:"min=1,max=100"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=1s"`
	WALMode        bool          `mapstructure:"wal_mode" yaml:"wal_mode"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=json text"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}
