package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

const (
	ErrConfigRead    types.ErrorCode = "CONFIG_READ_FAILED"
	ErrConfigDecode  types.ErrorCode = "CONFIG_DECODE_FAILED"
	ErrConfigInvalid types.ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Loader loads configuration from YAML files.
type Loader interface {
	Load(path string) (*Config, error)
	LoadWithDefaults(path string) (*Config, error)
}

type viperLoader struct {
	validator Validator
}

// NewLoader creates a Loader backed by Viper.
func NewLoader(validator Validator) Loader {
	return &viperLoader{validator: validator}
}

// Load reads, interpolates, and validates the configuration file at path.
// Missing file is an error; use LoadWithDefaults for optional configs.
func (l *viperLoader) Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, types.WrapError(ErrConfigRead, "reading config file", err)
	}

	// Interpolate ${VAR_NAME} references across the raw settings before
	// decoding, so secrets can live in the environment instead of the file.
	raw := interpolateEnvVars(v.AllSettings())

	cfg := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     cfg,
	})
	if err != nil {
		return nil, types.WrapError(ErrConfigDecode, "building config decoder", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, types.WrapError(ErrConfigDecode, "decoding config", err)
	}

	if err := l.validator.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithDefaults loads the configuration file at path, or returns the
// validated defaults when the file does not exist.
func (l *viperLoader) LoadWithDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := l.validator.Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return l.Load(path)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateEnvVars recursively replaces ${VAR_NAME} references in the raw
// config tree with environment variable values. Unset variables leave the
// reference intact so validation surfaces them.
func interpolateEnvVars(data any) any {
	switch v := data.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = interpolateEnvVars(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, value := range v {
			result[i] = interpolateEnvVars(value)
		}
		return result
	case string:
		return envVarPattern.ReplaceAllStringFunc(v, func(match string) string {
			name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
			if value, ok := os.LookupEnv(name); ok {
				return value
			}
			return match
		})
	default:
		return v
	}
}
