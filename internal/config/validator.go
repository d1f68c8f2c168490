package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// Validator validates configuration values.
type Validator interface {
	Validate(cfg *Config) error
}

type validatorImpl struct {
	validate *validator.Validate
}

// NewValidator creates a Validator backed by struct-tag validation.
func NewValidator() Validator {
	return &validatorImpl{validate: validator.New()}
}

// Validate checks struct tags plus the cross-field constraints that tags
// cannot express, and returns detailed messages for every violation.
func (v *validatorImpl) Validate(cfg *Config) error {
	if cfg == nil {
		return types.NewError(ErrConfigInvalid, "configuration is nil")
	}

	if err := v.validate.Struct(cfg); err != nil {
		validationErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return types.WrapError(ErrConfigInvalid, "validating config", err)
		}
		messages := make([]string, 0, len(validationErrs))
		for _, e := range validationErrs {
			messages = append(messages, formatValidationError(e))
		}
		return types.NewError(ErrConfigInvalid,
			"configuration validation failed:\n  - "+strings.Join(messages, "\n  - "))
	}

	if cfg.Research.MaxSourcesPerHypothesis < cfg.Research.MinSourcesPerHypothesis {
		return types.NewError(ErrConfigInvalid, fmt.Sprintf(
			"research.max_sources_per_hypothesis (%d) must be >= research.min_sources_per_hypothesis (%d)",
			cfg.Research.MaxSourcesPerHypothesis, cfg.Research.MinSourcesPerHypothesis))
	}
	if cfg.Research.ReviewThreshold > cfg.Research.ProceedThreshold {
		return types.NewError(ErrConfigInvalid, fmt.Sprintf(
			"research.review_threshold (%.2f) must be <= research.proceed_threshold (%.2f)",
			cfg.Research.ReviewThreshold, cfg.Research.ProceedThreshold))
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		return types.NewError(ErrConfigInvalid,
			"tracing.endpoint must be set when tracing is enabled")
	}

	return nil
}

// formatValidationError renders one field violation with its config path.
func formatValidationError(e validator.FieldError) string {
	fieldPath := formatFieldPath(e.Namespace())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldPath)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", fieldPath, e.Param(), e.Value())
	case "url":
		return fmt.Sprintf("%s must be a valid URL (got: %v)", fieldPath, e.Value())
	default:
		return fmt.Sprintf("%s failed validation '%s' (got: %v)", fieldPath, e.Tag(), e.Value())
	}
}

// formatFieldPath converts a validator namespace to the config file's
// key path. Example: "Config.Queue.MaxAttempts" -> "queue.max_attempts".
func formatFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 && parts[0] == "Config" {
		parts = parts[1:]
	}
	for i, part := range parts {
		parts[i] = toSnakeCase(part)
	}
	return strings.Join(parts, ".")
}

func toSnakeCase(s string) string {
	isUpper := func(r rune) bool { return r >= 'A' && r <= 'Z' }

	runes := []rune(s)
	var sb strings.Builder
	for i, r := range runes {
		if isUpper(r) {
			// Break before a new word: after a lower-case rune, or at the
			// end of an acronym run (APIKey -> api_key, WALMode -> wal_mode).
			prevUpper := i > 0 && isUpper(runes[i-1])
			nextLower := i+1 < len(runes) && !isUpper(runes[i+1])
			if i > 0 && (!prevUpper || nextLower) {
				sb.WriteByte('_')
			}
			sb.WriteRune(r - 'A' + 'a')
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
