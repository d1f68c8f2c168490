package workflow

import (
	"context"
	"fmt"

	"github.com/laird/nextgen-CDD-sub002/internal/events"
	"github.com/laird/nextgen-CDD-sub002/internal/graph"
	"github.com/laird/nextgen-CDD-sub002/internal/queue"
	"github.com/laird/nextgen-CDD-sub002/internal/reasoning"
	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// Intensity scales how many adversarial challenges each hypothesis receives.
type Intensity string

const (
	IntensityLight      Intensity = "light"
	IntensityModerate   Intensity = "moderate"
	IntensityAggressive Intensity = "aggressive"
)

// challengeCount maps an intensity to the number of adversarial evidence
// items generated per hypothesis.
func challengeCount(i Intensity) int {
	switch i {
	case IntensityLight:
		return 2
	case IntensityAggressive:
		return 6
	default:
		return 4
	}
}

// StressTestConfig is the stress-test job descriptor payload.
type StressTestConfig struct {
	StressTestID  string     `mapstructure:"stressTestId"`
	Intensity     Intensity  `mapstructure:"intensity"`
	HypothesisIDs []types.ID `mapstructure:"hypothesisIds"`
}

// HypothesisOutcome labels one hypothesis's result within a stress test.
type HypothesisOutcome string

const (
	OutcomeCompleted    HypothesisOutcome = "completed"
	OutcomeInconclusive HypothesisOutcome = "inconclusive"
)

// StressResult is the per-hypothesis unit of a stress-test result. One
// hypothesis's failure never escapes its own result.
type StressResult struct {
	NodeID         types.ID          `json:"node_id"`
	Outcome        HypothesisOutcome `json:"outcome"`
	Challenges     int               `json:"challenges"`
	Contradictions int               `json:"contradictions"`
	Confidence     float64           `json:"confidence"`
	Status         graph.NodeStatus  `json:"status"`
	Error          string            `json:"error,omitempty"`
}

// StressTestResults is the stress-test job's results payload.
type StressTestResults struct {
	StressTestID string         `json:"stress_test_id,omitempty"`
	Intensity    Intensity      `json:"intensity"`
	Results      []StressResult `json:"results"`
	Inconclusive int            `json:"inconclusive"`
}

type adversarialBatch struct {
	Items []struct {
		Content   string `json:"content"`
		Sentiment string `json:"sentiment"`
		Source    string `json:"source"`
	} `json:"items"`
}

const adversarialSchema = `{
  "type": "object",
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "content": {"type": "string"},
          "sentiment": {"enum": ["supporting", "contradicting", "neutral"]},
          "source": {"type": "string"}
        },
        "required": ["content", "sentiment"]
      }
    }
  },
  "required": ["items"]
}`

// StressTestWorkflow manufactures contradicting evidence against selected
// hypotheses to test their robustness.
//
// Phases: select-target-hypotheses → generate-adversarial-evidence →
// apply-evidence → require-minimum-contradictions.
type StressTestWorkflow struct {
	base
}

// NewStressTestWorkflow creates the stress-test workflow.
func NewStressTestWorkflow(deps Deps) *StressTestWorkflow {
	return &StressTestWorkflow{base{deps: deps}}
}

// Type returns the job type this workflow handles.
func (w *StressTestWorkflow) Type() queue.JobType {
	return queue.JobTypeStressTest
}

// Run executes the stress-test phase sequence. Hypotheses are processed in
// isolation: any single unit's error is recorded on its result and the rest
// of the batch continues. The outcome is partial when any unit ended
// inconclusive.
func (w *StressTestWorkflow) Run(ctx context.Context, job *queue.Job) (queue.Outcome, error) {
	var cfg StressTestConfig
	if err := decodeConfig(job.Config, &cfg); err != nil {
		return queue.Outcome{}, err
	}
	if cfg.Intensity == "" {
		cfg.Intensity = IntensityModerate
	}

	store := w.deps.Graphs.For(job.EngagementID)

	var targets []types.ID
	err := w.phase(ctx, job, "select-target-hypotheses", func(ctx context.Context) error {
		ids, err := w.selectTargets(store, cfg)
		if err != nil {
			return err
		}
		targets = ids
		return nil
	})
	if err != nil {
		return queue.Outcome{}, err
	}

	results := StressTestResults{
		StressTestID: cfg.StressTestID,
		Intensity:    cfg.Intensity,
	}
	challenges := challengeCount(cfg.Intensity)

	err = w.phase(ctx, job, "generate-adversarial-evidence", func(ctx context.Context) error {
		for _, target := range targets {
			result := w.challenge(ctx, job, store, target, challenges)
			results.Results = append(results.Results, result)
			if result.Outcome == OutcomeInconclusive {
				results.Inconclusive++
			}

			w.emit(job, events.EventRoundComplete, map[string]any{
				"node_id":        target.String(),
				"outcome":        string(result.Outcome),
				"contradictions": result.Contradictions,
			})
		}
		return nil
	})
	if err != nil {
		return queue.Outcome{}, err
	}

	return queue.Outcome{
		Results: results,
		Partial: results.Inconclusive > 0,
	}, nil
}

// selectTargets resolves the target set: the explicitly named hypotheses, or
// every non-refuted sub-thesis and assumption when none were named. Refuted
// hypotheses are already dead and evidence nodes are not claims, so neither
// is worth a challenge round. Unknown ids fail the job before any evidence
// is generated.
func (w *StressTestWorkflow) selectTargets(store *graph.Store, cfg StressTestConfig) ([]types.ID, error) {
	if len(cfg.HypothesisIDs) > 0 {
		for _, id := range cfg.HypothesisIDs {
			if _, err := store.Node(id); err != nil {
				return nil, err
			}
		}
		return cfg.HypothesisIDs, nil
	}

	var targets []types.ID
	for _, node := range store.Nodes() {
		if node.Kind != graph.KindSubThesis && node.Kind != graph.KindAssumption {
			continue
		}
		if node.Status == graph.StatusRefuted {
			continue
		}
		targets = append(targets, node.ID)
	}
	if len(targets) == 0 {
		return nil, types.NewError(ErrInvalidStructure,
			"no hypotheses available to stress-test")
	}
	return targets, nil
}

// challenge runs the full adversarial round for one hypothesis. Errors are
// contained here: whatever goes wrong inside the round, including a panic in
// downstream code, becomes an inconclusive result rather than a job failure.
func (w *StressTestWorkflow) challenge(ctx context.Context, job *queue.Job, store *graph.Store, target types.ID, challenges int) (result StressResult) {
	result = StressResult{NodeID: target, Challenges: challenges}

	defer func() {
		if r := recover(); r != nil {
			w.logger().Error("stress round panicked",
				"job_id", job.ID, "node_id", target, "panic", r)
			result.Outcome = OutcomeInconclusive
			result.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	node, err := store.Node(target)
	if err != nil {
		result.Outcome = OutcomeInconclusive
		result.Error = err.Error()
		return result
	}

	items, err := w.generateAdversarial(ctx, node.Content, challenges)
	if err != nil {
		w.logger().Warn("adversarial generation failed",
			"job_id", job.ID, "node_id", target, "error", err)
		result.Outcome = OutcomeInconclusive
		result.Error = err.Error()
		return result
	}

	confidence, status, err := store.ApplyEvidence(target, items)
	if err != nil {
		result.Outcome = OutcomeInconclusive
		result.Error = err.Error()
		return result
	}
	result.Confidence = confidence
	result.Status = status

	for _, item := range items {
		if item.Sentiment != graph.SentimentContradicting {
			continue
		}
		result.Contradictions++
		w.emit(job, events.EventContradictionDetected, map[string]any{
			"node_id": target.String(),
			"content": item.Content,
		})
	}

	if result.Contradictions < w.deps.Options.MinContradictions {
		result.Outcome = OutcomeInconclusive
		result.Error = fmt.Sprintf("produced %d contradictions, need at least %d",
			result.Contradictions, w.deps.Options.MinContradictions)
		return result
	}

	result.Outcome = OutcomeCompleted
	return result
}

// generateAdversarial asks the provider for challenges aimed at one
// hypothesis. The prompt demands contradicting evidence, but the provider
// may still return mixed sentiments; the minimum-contradictions check
// downstream decides whether the round counts.
func (w *StressTestWorkflow) generateAdversarial(ctx context.Context, content string, count int) ([]graph.Evidence, error) {
	req := reasoning.Request{
		System: "You are a devil's advocate stress-testing an investment hypothesis. " +
			"Produce the strongest contradicting evidence you can find.",
		User:   fmt.Sprintf("Hypothesis: %s\n\nReturn exactly %d evidence items.", content, count),
		Schema: adversarialSchema,
	}

	var batch adversarialBatch
	if err := reasoning.GenerateJSON(ctx, w.deps.Provider, req, &batch); err != nil {
		return nil, err
	}

	items := batch.Items
	if len(items) > count {
		items = items[:count]
	}

	out := make([]graph.Evidence, 0, len(items))
	for _, item := range items {
		sentiment := graph.Sentiment(item.Sentiment)
		if !sentiment.IsValid() {
			sentiment = graph.SentimentContradicting
		}
		out = append(out, graph.Evidence{
			ID:        types.NewID(),
			Sentiment: sentiment,
			Content:   item.Content,
			Source:    item.Source,
		})
	}
	return out, nil
}
