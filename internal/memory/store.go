package memory

import (
	"context"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// Memory error codes. Embed and search failures are transient: workflows
// degrade (skip similarity checks) rather than abort. Save is load-bearing
// when persisting computed hypotheses, so its failures bubble up as
// retryable job-level errors.
const (
	ErrEmbedFailed  types.ErrorCode = "MEMORY_EMBED_FAILED"
	ErrSearchFailed types.ErrorCode = "MEMORY_SEARCH_FAILED"
	ErrSaveFailed   types.ErrorCode = "MEMORY_SAVE_FAILED"
)

// Record is a stored item in a namespace.
type Record struct {
	ID       types.ID          `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResult is a ranked search hit.
type SearchResult struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
}

// Store is the vector-similarity memory collaborator: a black-box
// embedding and search service. Implementations must be safe for
// concurrent use.
type Store interface {
	// Embed generates an embedding vector for the text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Search returns up to k records from the namespace ranked by similarity
	// to the query vector, optionally restricted by metadata filter.
	Search(ctx context.Context, namespace string, vector []float64, k int, filter map[string]string) ([]SearchResult, error)

	// Save writes a record into the namespace, embedding its content.
	Save(ctx context.Context, namespace string, rec Record) error
}
