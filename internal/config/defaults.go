package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	dataDir := defaultDataDir()

	return &Config{
		Core: CoreConfig{
			DataDir:       dataDir,
			ParallelLimit: 4,
			Timeout:       5 * time.Minute,
			Debug:         false,
		},
		Queue: QueueConfig{
			Workers:         5,
			MaxAttempts:     3,
			RetryDelay:      15 * time.Second,
			Retention:       72 * time.Hour,
			Depth:           256,
			JanitorInterval: time.Hour,
		},
		Provider: ProviderConfig{
			Name:        "anthropic",
			Temperature: 0.2,
			Timeout:     2 * time.Minute,
		},
		Research: ResearchConfig{
			MinSourcesPerHypothesis: 2,
			MaxSourcesPerHypothesis: 5,
			ProceedThreshold:        0.65,
			ReviewThreshold:         0.40,
			CriticalImportance:      0.75,
		},
		StressTest: StressTestConfig{
			DefaultIntensity:  "moderate",
			MinContradictions: 1,
		},
		Store: StoreConfig{
			Path:           filepath.Join(dataDir, "cdd.db"),
			MaxConnections: 10,
			Timeout:        30 * time.Second,
			WALMode:        true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled: false,
		},
	}
}

// defaultDataDir returns ~/.cdd, falling back to a temporary directory when
// the user home cannot be determined.
func defaultDataDir() string {
	userHome, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".cdd")
	}
	return filepath.Join(userHome, ".cdd")
}
