package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// ProviderConfig configures a model-backed reasoning provider.
type ProviderConfig struct {
	// Name selects the backend: "anthropic", "openai" or "ollama".
	Name string `yaml:"name" mapstructure:"name"`

	// Model is the model identifier passed to the backend.
	Model string `yaml:"model" mapstructure:"model"`

	// APIKey authenticates against hosted backends. Falls back to the
	// backend's conventional environment variable when empty.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// BaseURL overrides the backend endpoint (required for ollama).
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Temperature for generation. Structured extraction wants it low.
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`

	// Timeout bounds every Generate call. Exceeding it is a transient,
	// retryable failure.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ModelProvider implements Provider on top of a langchaingo chat model.
type ModelProvider struct {
	name    string
	model   llms.Model
	timeout time.Duration
	temp    float64
}

// NewProvider constructs a reasoning provider from config.
func NewProvider(cfg ProviderConfig) (*ModelProvider, error) {
	var (
		model llms.Model
		err   error
	)

	switch cfg.Name {
	case "anthropic":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, types.NewError(ErrProviderUnauthorized, "anthropic API key not configured")
		}
		opts := []anthropic.Option{anthropic.WithToken(apiKey)}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		model, err = anthropic.New(opts...)
	case "openai":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, types.NewError(ErrProviderUnauthorized, "openai API key not configured")
		}
		opts := []openai.Option{openai.WithToken(apiKey)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{}
		if cfg.Model != "" {
			opts = append(opts, ollama.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	default:
		return nil, types.NewError(ErrInvalidRequest,
			fmt.Sprintf("unknown reasoning provider %q", cfg.Name))
	}
	if err != nil {
		return nil, TranslateError(cfg.Name, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &ModelProvider{
		name:    cfg.Name,
		model:   model,
		timeout: timeout,
		temp:    cfg.Temperature,
	}, nil
}

// Name returns the backend name.
func (p *ModelProvider) Name() string {
	return p.name
}

// Generate sends the structured prompt and extracts the JSON payload from the
// model's reply. Every call is bounded by the configured timeout; exceeding
// it surfaces as a retryable provider timeout.
func (p *ModelProvider) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	if req.User == "" {
		return nil, types.NewError(ErrInvalidRequest, "user prompt cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	system := req.System
	if req.Schema != "" {
		system += "\n\nRespond with a single JSON value matching this schema, and nothing else:\n" + req.Schema
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, req.User),
	}

	resp, err := p.model.GenerateContent(ctx, messages,
		llms.WithTemperature(p.temp),
	)
	if err != nil {
		return nil, TranslateError(p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewParseError("reasoning provider returned no choices", nil)
	}

	extracted, err := ExtractJSON(resp.Choices[0].Content)
	if err != nil {
		return nil, NewParseError("reasoning provider response is not valid JSON", err)
	}

	return json.RawMessage(extracted), nil
}
