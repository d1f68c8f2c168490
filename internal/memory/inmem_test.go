package memory

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedIsDeterministicAndNormalized(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	a, err := store.Embed(ctx, "revenue growth in the enterprise segment")
	require.NoError(t, err)
	b, err := store.Embed(ctx, "revenue growth in the enterprise segment")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, inMemDimensions)
	assert.InDelta(t, 1.0, dot(a, a), 1e-9, "embedding should be L2-normalized")
}

func TestEmbedIsCaseInsensitive(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	a, err := store.Embed(ctx, "Churn Risk")
	require.NoError(t, err)
	b, err := store.Embed(ctx, "churn risk")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEmbedEmptyText(t *testing.T) {
	store := NewInMemoryStore()

	vec, err := store.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, vec, inMemDimensions)
	assert.Zero(t, dot(vec, vec))
}

func TestSearchRanksBySimilarity(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "hypotheses", Record{ID: "h1", Content: "enterprise churn accelerating in north america"}))
	require.NoError(t, store.Save(ctx, "hypotheses", Record{ID: "h2", Content: "margin expansion from pricing changes"}))
	require.NoError(t, store.Save(ctx, "hypotheses", Record{ID: "h3", Content: "churn accelerating in europe"}))

	query, err := store.Embed(ctx, "churn accelerating")
	require.NoError(t, err)

	results, err := store.Search(ctx, "hypotheses", query, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Both churn records outrank the pricing one; scores descend.
	assert.Contains(t, []string{"h1", "h3"}, string(results[0].Record.ID))
	assert.Contains(t, []string{"h1", "h3"}, string(results[1].Record.ID))
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSearchIdenticalContentScoresOne(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "evidence", Record{ID: "e1", Content: "Q3 bookings declined twelve percent"}))

	query, err := store.Embed(ctx, "Q3 bookings declined twelve percent")
	require.NoError(t, err)

	results, err := store.Search(ctx, "evidence", query, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestSearchHonorsMetadataFilter(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "reflexion", Record{
		ID:       "r1",
		Content:  "stress test surfaced supply concentration risk",
		Metadata: map[string]string{"engagement": "eng-1"},
	}))
	require.NoError(t, store.Save(ctx, "reflexion", Record{
		ID:       "r2",
		Content:  "stress test surfaced supply concentration risk",
		Metadata: map[string]string{"engagement": "eng-2"},
	}))

	query, err := store.Embed(ctx, "supply concentration")
	require.NoError(t, err)

	results, err := store.Search(ctx, "reflexion", query, 10, map[string]string{"engagement": "eng-2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "r2", string(results[0].Record.ID))

	// A filter key absent from the record metadata excludes it.
	results, err = store.Search(ctx, "reflexion", query, 10, map[string]string{"outcome": "success"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchEmptyNamespace(t *testing.T) {
	store := NewInMemoryStore()

	query := make([]float64, inMemDimensions)
	results, err := store.Search(context.Background(), "missing", query, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSaveReplacesByID(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "hypotheses", Record{ID: "h1", Content: "original content"}))
	require.NoError(t, store.Save(ctx, "hypotheses", Record{ID: "h1", Content: "revised content"}))

	assert.Equal(t, 1, store.Count("hypotheses"))

	query, err := store.Embed(ctx, "revised content")
	require.NoError(t, err)
	results, err := store.Search(ctx, "hypotheses", query, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "revised content", results[0].Record.Content)
}

func TestNamespacesAreIsolated(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "hypotheses", Record{ID: "a", Content: "alpha"}))
	require.NoError(t, store.Save(ctx, "evidence", Record{ID: "b", Content: "beta"}))

	assert.Equal(t, 1, store.Count("hypotheses"))
	assert.Equal(t, 1, store.Count("evidence"))
	assert.Equal(t, 0, store.Count("reflexion"))
}

func TestStoreHonorsContextCancellation(t *testing.T) {
	store := NewInMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Embed(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Search(ctx, "hypotheses", nil, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)

	err = store.Save(ctx, "hypotheses", Record{ID: "x", Content: "y"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDotHandlesMismatchedLengths(t *testing.T) {
	assert.Equal(t, 2.0, dot([]float64{1, 1, 1}, []float64{1, 1}))
	assert.Zero(t, dot(nil, []float64{1}))
	assert.False(t, math.IsNaN(dot(nil, nil)))
}
