package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laird/nextgen-CDD-sub002/internal/graph"
	"github.com/laird/nextgen-CDD-sub002/internal/memory"
	"github.com/laird/nextgen-CDD-sub002/internal/queue"
	"github.com/laird/nextgen-CDD-sub002/internal/reasoning"
	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

func newTestDeps(provider reasoning.Provider) Deps {
	return Deps{
		Graphs:   graph.NewManager(),
		Provider: provider,
		Memory:   memory.NewInMemoryStore(),
		Options:  DefaultOptions(),
	}
}

func newTestJob(jobType queue.JobType, engagementID string, config map[string]any) *queue.Job {
	return &queue.Job{
		ID:           types.NewID(),
		EngagementID: engagementID,
		JobType:      jobType,
		Status:       queue.StatusRunning,
		Config:       config,
	}
}

const testDecomposition = `{
  "hypotheses": [
    {
      "content": "enterprise revenue keeps compounding above 20% annually",
      "kind": "sub_thesis",
      "importance": 0.8,
      "testability": 0.7,
      "risk": ""
    },
    {
      "content": "enterprise customers renew because switching costs stay high",
      "kind": "assumption",
      "importance": 0.6,
      "testability": 0.5,
      "risk": "low"
    }
  ]
}`

// scriptedResearchProvider answers decomposition and evidence requests with
// deterministic payloads, keeping evidence content unique per call so the
// memory dedupe never collapses it.
func scriptedResearchProvider() *reasoning.MockProvider {
	p := reasoning.NewMockProvider()
	call := 0
	p.Handler = func(req reasoning.Request) (json.RawMessage, error) {
		if strings.HasPrefix(req.User, "Thesis:") {
			return json.RawMessage(testDecomposition), nil
		}
		call++
		batch := fmt.Sprintf(`{
			"items": [
				{"content": "observation alpha %d", "sentiment": "supporting", "source": "filing"},
				{"content": "observation beta %d", "sentiment": "supporting", "source": "interview"}
			]
		}`, call, call)
		return json.RawMessage(batch), nil
	}
	return p
}

func TestResearchWorkflowEndToEnd(t *testing.T) {
	deps := newTestDeps(scriptedResearchProvider())
	w := NewResearchWorkflow(deps)

	job := newTestJob(queue.JobTypeResearch, "eng-research", map[string]any{
		"thesis":        "the target is a durable compounder worth acquiring",
		"maxHypotheses": 5,
	})

	outcome, err := w.Run(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, outcome.Partial)

	results, ok := outcome.Results.(ResearchResults)
	require.True(t, ok)
	assert.Equal(t, 2, results.HypothesisCount)
	assert.Equal(t, 4, results.EvidenceApplied)
	assert.Equal(t, 0, results.Contradictions)
	require.Len(t, results.Hypotheses, 2)

	store := deps.Graphs.For("eng-research")
	root := store.Root()
	require.NotNil(t, root)
	assert.Equal(t, "the target is a durable compounder worth acquiring", root.Content)
	assert.Equal(t, 3, store.NodeCount(), "root plus two hypotheses")

	// Sub-thesis: initial from importance 0.8 -> 0.44, then 2 supporting -> 0.54.
	subs := store.NodesByKind(graph.KindSubThesis)
	require.Len(t, subs, 1)
	assert.Equal(t, 0.54, subs[0].Confidence)

	// Assumption: initial from low risk -> 0.55, then 2 supporting -> 0.65.
	assumptions := store.NodesByKind(graph.KindAssumption)
	require.Len(t, assumptions, 1)
	assert.Equal(t, 0.65, assumptions[0].Confidence)

	// Assumption links to the sub-thesis, sub-thesis to the root.
	in := store.Incoming(subs[0].ID)
	require.Len(t, in, 1)
	assert.Equal(t, assumptions[0].ID, in[0].SourceID)
	rootIn := store.Incoming(root.ID)
	require.Len(t, rootIn, 1)
	assert.Equal(t, subs[0].ID, rootIn[0].SourceID)

	// Only the importance-0.8 sub-thesis is critical; 0.54 lands in review.
	assert.Equal(t, 0.54, results.AggregateConfidence)
	assert.Equal(t, VerdictReview, results.Verdict)
}

func TestResearchWorkflowEvidenceShortfallIsPartial(t *testing.T) {
	provider := reasoning.NewMockProvider()
	call := 0
	provider.Handler = func(req reasoning.Request) (json.RawMessage, error) {
		if strings.HasPrefix(req.User, "Thesis:") {
			return json.RawMessage(testDecomposition), nil
		}
		call++
		// The sub-thesis gets two items; the assumption only one, below the
		// default minimum of two sources per hypothesis.
		if strings.Contains(req.User, "switching costs") {
			return json.RawMessage(fmt.Sprintf(
				`{"items": [{"content": "lone observation %d", "sentiment": "supporting", "source": "call"}]}`, call)), nil
		}
		return json.RawMessage(fmt.Sprintf(`{
			"items": [
				{"content": "observation gamma %d", "sentiment": "supporting", "source": "filing"},
				{"content": "observation delta %d", "sentiment": "supporting", "source": "interview"}
			]
		}`, call, call)), nil
	}

	deps := newTestDeps(provider)
	w := NewResearchWorkflow(deps)
	job := newTestJob(queue.JobTypeResearch, "eng-short", map[string]any{
		"thesis": "the target is a durable compounder worth acquiring",
	})

	outcome, err := w.Run(context.Background(), job)
	require.NoError(t, err, "a shortfall degrades the outcome, it does not fail the job")
	assert.True(t, outcome.Partial)

	results := outcome.Results.(ResearchResults)
	assert.Equal(t, 1, results.EvidenceShortfalls)

	short := 0
	for _, h := range results.Hypotheses {
		if h.BelowMinimum {
			short++
			assert.Equal(t, graph.KindAssumption, h.Kind)
			assert.Equal(t, 1, h.Sources)
		}
	}
	assert.Equal(t, 1, short)
}

func TestResearchWorkflowRequiresThesis(t *testing.T) {
	deps := newTestDeps(reasoning.NewMockProvider())
	w := NewResearchWorkflow(deps)

	job := newTestJob(queue.JobTypeResearch, "eng-1", map[string]any{})
	_, err := w.Run(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, ErrInvalidConfig, types.CodeOf(err))
}

func TestResearchWorkflowEmptyDecompositionFails(t *testing.T) {
	provider := reasoning.NewMockProvider().Enqueue(`{"hypotheses": []}`)
	deps := newTestDeps(provider)
	w := NewResearchWorkflow(deps)

	job := newTestJob(queue.JobTypeResearch, "eng-1", map[string]any{"thesis": "t"})
	_, err := w.Run(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, ErrInvalidStructure, types.CodeOf(err))
	assert.False(t, types.IsRetryable(err), "structural failures are permanent")
}

func TestResearchWorkflowProviderErrorPassesThrough(t *testing.T) {
	provider := reasoning.NewMockProvider().EnqueueError(
		types.NewRetryableError(reasoning.ErrProviderTimeout, "deadline exceeded"))
	deps := newTestDeps(provider)
	w := NewResearchWorkflow(deps)

	job := newTestJob(queue.JobTypeResearch, "eng-1", map[string]any{"thesis": "t"})
	_, err := w.Run(context.Background(), job)
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err), "transport errors stay retryable for the queue")
}

func TestVerdictIsMonotonic(t *testing.T) {
	opts := DefaultOptions()

	rank := func(v Verdict) int {
		switch v {
		case VerdictReject:
			return 0
		case VerdictReview:
			return 1
		default:
			return 2
		}
	}

	prev := verdictFor(0, opts)
	for c := 0.01; c <= 1.0; c += 0.01 {
		current := verdictFor(c, opts)
		assert.GreaterOrEqual(t, rank(current), rank(prev),
			"confidence %v must not yield a worse verdict", c)
		prev = current
	}

	assert.Equal(t, VerdictReject, verdictFor(0.39, opts))
	assert.Equal(t, VerdictReview, verdictFor(0.40, opts))
	assert.Equal(t, VerdictProceed, verdictFor(0.65, opts))
}

func TestRegistryRejectsUnknownJobType(t *testing.T) {
	deps := newTestDeps(reasoning.NewMockProvider())
	registry := NewDefaultRegistry(deps)

	job := newTestJob(queue.JobType("research"), "eng-1", map[string]any{"thesis": "t"})
	job.JobType = queue.JobType("mystery")

	_, err := registry.Execute(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, ErrUnknownJobType, types.CodeOf(err))
}
