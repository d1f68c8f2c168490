package reasoning

import (
	"context"
	"encoding/json"
)

// Request is a structured prompt for the reasoning provider. Schema is a
// JSON Schema (or schema-shaped description) of the expected response; the
// provider instructs the model to answer with a single matching JSON value.
type Request struct {
	System string
	User   string
	Schema string
}

// Provider turns structured prompts into structured analytical output.
// Implementations are stateless from the core's perspective; transport-level
// failures surface as retryable provider errors, malformed payloads as
// non-retryable parse errors.
type Provider interface {
	// Name returns the provider name (e.g. "anthropic", "openai", "ollama").
	Name() string

	// Generate sends the structured prompt and returns the raw JSON result.
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}
