package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laird/nextgen-CDD-sub002/internal/graph"
	"github.com/laird/nextgen-CDD-sub002/internal/queue"
	"github.com/laird/nextgen-CDD-sub002/internal/reasoning"
	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

const testTranscript = "[00:30] Jane: Enterprise retention is above ninety percent\n" +
	"John: Churn in the mid-market segment is accelerating"

func TestExpertCallAppliesEvidence(t *testing.T) {
	provider := reasoning.NewMockProvider()
	provider.Handler = func(req reasoning.Request) (json.RawMessage, error) {
		return json.RawMessage(`{
			"segments": [
				{"index": 0, "sentiment": "supporting", "relevant": true, "summary": "retention above 90%"},
				{"index": 1, "sentiment": "contradicting", "relevant": true, "summary": "mid-market churn rising"}
			]
		}`), nil
	}
	deps := newTestDeps(provider)

	store := deps.Graphs.For("eng-call")
	_, err := store.CreateNode(graph.KindThesis, "the subscription business is durable", "test")
	require.NoError(t, err)
	hyp, err := store.CreateNode(graph.KindSubThesis,
		"enterprise retention stays above ninety percent long term", "test")
	require.NoError(t, err)

	w := NewExpertCallWorkflow(deps)
	job := newTestJob(queue.JobTypeExpertCall, "eng-call", map[string]any{
		"transcript": testTranscript,
		"expertName": "Dr. Reyes",
	})

	outcome, err := w.Run(context.Background(), job)
	require.NoError(t, err)

	results, ok := outcome.Results.(ExpertCallResults)
	require.True(t, ok)
	assert.Equal(t, 2, results.SegmentCount)
	assert.Equal(t, 2, results.RelevantCount)
	assert.Equal(t, 2, results.EvidenceApplied)
	assert.Equal(t, "the subscription business is durable", results.Thesis)

	// Both segments best-match the retention hypothesis: +0.05 - 0.10 = -0.05.
	node, err := store.Node(hyp)
	require.NoError(t, err)
	assert.Equal(t, 0.45, node.Confidence)
	assert.Equal(t, graph.StatusChallenged, node.Status)
	assert.Len(t, node.SourceRefs, 2)

	// The classification request carried the thesis and the numbered segments.
	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "Thesis: the subscription business is durable")
	assert.Contains(t, calls[0].User, "[0] Jane:")
}

func TestExpertCallWithEmptyGraphCreatesFallbackRoot(t *testing.T) {
	provider := reasoning.NewMockProvider()
	provider.Handler = func(req reasoning.Request) (json.RawMessage, error) {
		if !strings.Contains(req.User, "general investment viability") {
			return nil, types.NewError(reasoning.ErrInvalidRequest, "expected fallback thesis")
		}
		return json.RawMessage(`{
			"segments": [
				{"index": 0, "sentiment": "supporting", "relevant": true, "summary": "strong retention"}
			]
		}`), nil
	}
	deps := newTestDeps(provider)

	w := NewExpertCallWorkflow(deps)
	job := newTestJob(queue.JobTypeExpertCall, "eng-blank", map[string]any{
		"transcript": testTranscript,
	})

	outcome, err := w.Run(context.Background(), job)
	require.NoError(t, err)

	results := outcome.Results.(ExpertCallResults)
	assert.Equal(t, "general investment viability", results.Thesis)
	assert.Equal(t, 1, results.EvidenceApplied)

	store := deps.Graphs.For("eng-blank")
	root := store.Root()
	require.NotNil(t, root, "the call is not lost: a fallback root is created")
	assert.Equal(t, "general investment viability", root.Content)
	assert.Equal(t, 0.55, root.Confidence, "one supporting item from the neutral prior")
}

func TestExpertCallIgnoresIrrelevantSegments(t *testing.T) {
	provider := reasoning.NewMockProvider()
	provider.Handler = func(req reasoning.Request) (json.RawMessage, error) {
		return json.RawMessage(`{
			"segments": [
				{"index": 0, "sentiment": "neutral", "relevant": false},
				{"index": 7, "sentiment": "supporting", "relevant": true, "summary": "out of range"}
			]
		}`), nil
	}
	deps := newTestDeps(provider)

	w := NewExpertCallWorkflow(deps)
	job := newTestJob(queue.JobTypeExpertCall, "eng-skip", map[string]any{
		"transcript": testTranscript,
	})

	outcome, err := w.Run(context.Background(), job)
	require.NoError(t, err)

	results := outcome.Results.(ExpertCallResults)
	assert.Equal(t, 0, results.RelevantCount, "irrelevant and out-of-range indexes are dropped")
	assert.Equal(t, 0, results.EvidenceApplied)
}

func TestExpertCallRequiresTranscript(t *testing.T) {
	deps := newTestDeps(reasoning.NewMockProvider())

	w := NewExpertCallWorkflow(deps)
	job := newTestJob(queue.JobTypeExpertCall, "eng-1", map[string]any{
		"transcript": "   ",
	})

	_, err := w.Run(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, ErrEmptyTranscript, types.CodeOf(err))
}
