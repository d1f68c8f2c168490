package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/laird/nextgen-CDD-sub002/internal/events"
	"github.com/laird/nextgen-CDD-sub002/internal/graph"
	"github.com/laird/nextgen-CDD-sub002/internal/queue"
	"github.com/laird/nextgen-CDD-sub002/internal/reasoning"
	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// fallbackThesis is classified against when the engagement has no thesis
// statement yet.
const fallbackThesis = "general investment viability"

// ExpertCallConfig is the expert-call job descriptor payload.
type ExpertCallConfig struct {
	Transcript string `mapstructure:"transcript"`
	ExpertName string `mapstructure:"expertName"`
	CallDate   string `mapstructure:"callDate"`
}

// classifiedSegment is the reasoning provider's alignment call for one
// transcript segment.
type classifiedSegment struct {
	Index     int    `json:"index"`
	Sentiment string `json:"sentiment"`
	Relevant  bool   `json:"relevant"`
	Summary   string `json:"summary"`
}

type classification struct {
	Segments []classifiedSegment `json:"segments"`
}

const classificationSchema = `{
  "type": "object",
  "properties": {
    "segments": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "index": {"type": "integer"},
          "sentiment": {"enum": ["supporting", "contradicting", "neutral"]},
          "relevant": {"type": "boolean"},
          "summary": {"type": "string"}
        },
        "required": ["index", "sentiment", "relevant"]
      }
    }
  },
  "required": ["segments"]
}`

// ExpertCallResults is the expert-call job's results payload.
type ExpertCallResults struct {
	SegmentCount    int    `json:"segment_count"`
	RelevantCount   int    `json:"relevant_count"`
	EvidenceApplied int    `json:"evidence_applied"`
	Thesis          string `json:"thesis"`
}

// ExpertCallWorkflow turns an expert-call transcript into evidence applied
// against the engagement's hypothesis graph.
//
// Phases: parse-transcript-into-segments → classify-alignment-to-thesis →
// apply-evidence-from-segments.
type ExpertCallWorkflow struct {
	base
}

// NewExpertCallWorkflow creates the expert-call workflow.
func NewExpertCallWorkflow(deps Deps) *ExpertCallWorkflow {
	return &ExpertCallWorkflow{base{deps: deps}}
}

// Type returns the job type this workflow handles.
func (w *ExpertCallWorkflow) Type() queue.JobType {
	return queue.JobTypeExpertCall
}

// Run executes the expert-call phase sequence.
func (w *ExpertCallWorkflow) Run(ctx context.Context, job *queue.Job) (queue.Outcome, error) {
	var cfg ExpertCallConfig
	if err := decodeConfig(job.Config, &cfg); err != nil {
		return queue.Outcome{}, err
	}
	if strings.TrimSpace(cfg.Transcript) == "" {
		return queue.Outcome{}, types.NewError(ErrEmptyTranscript,
			"expert-call config: transcript is required")
	}

	store := w.deps.Graphs.For(job.EngagementID)

	var (
		segments   []Segment
		classified classification
		results    ExpertCallResults
	)

	err := w.phase(ctx, job, "parse-transcript-into-segments", func(ctx context.Context) error {
		parsed, err := ParseTranscript(cfg.Transcript)
		if err != nil {
			return err
		}
		segments = parsed
		results.SegmentCount = len(parsed)
		return nil
	})
	if err != nil {
		return queue.Outcome{}, err
	}

	err = w.phase(ctx, job, "classify-alignment-to-thesis", func(ctx context.Context) error {
		thesis := fallbackThesis
		if root := store.Root(); root != nil {
			thesis = root.Content
		}
		results.Thesis = thesis
		return w.classify(ctx, thesis, segments, &classified)
	})
	if err != nil {
		return queue.Outcome{}, err
	}

	err = w.phase(ctx, job, "apply-evidence-from-segments", func(ctx context.Context) error {
		applied, err := w.applySegments(job, store, cfg, segments, classified, &results)
		if err != nil {
			return err
		}
		results.EvidenceApplied = applied
		return nil
	})
	if err != nil {
		return queue.Outcome{}, err
	}

	return queue.Outcome{Results: results}, nil
}

// classify asks the provider to align each segment with the thesis.
func (w *ExpertCallWorkflow) classify(ctx context.Context, thesis string, segments []Segment, out *classification) error {
	var sb strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&sb, "[%d] %s: %s\n", i, seg.Speaker, seg.Text)
	}

	req := reasoning.Request{
		System: "You are analyzing an expert-call transcript for due diligence. " +
			"For each numbered segment, judge whether it bears on the thesis and " +
			"with what sentiment.",
		User:   fmt.Sprintf("Thesis: %s\n\nSegments:\n%s", thesis, sb.String()),
		Schema: classificationSchema,
	}
	return reasoning.GenerateJSON(ctx, w.deps.Provider, req, out)
}

// applySegments converts relevant classified segments into evidence and
// commits it. When the graph has a root, each item lands on the hypothesis
// whose content best matches the segment; with no hypotheses yet, a root
// node is created from the fallback thesis so the call is not lost.
func (w *ExpertCallWorkflow) applySegments(job *queue.Job, store *graph.Store, cfg ExpertCallConfig, segments []Segment, classified classification, results *ExpertCallResults) (int, error) {
	var candidates []types.ID
	for _, node := range store.Nodes() {
		if node.Kind == graph.KindThesis {
			continue
		}
		candidates = append(candidates, node.ID)
	}

	rootNode := store.Root()
	var rootID types.ID
	if rootNode == nil {
		id, err := store.CreateNode(graph.KindThesis, fallbackThesis, "expert-call-workflow")
		if err != nil {
			return 0, err
		}
		rootID = id
	} else {
		rootID = rootNode.ID
	}

	source := "expert call"
	if cfg.ExpertName != "" {
		source = fmt.Sprintf("expert call: %s", cfg.ExpertName)
	}

	// Evidence for a node is batched so each hypothesis takes a single
	// atomic confidence update for the whole call.
	batches := make(map[types.ID][]graph.Evidence)

	for _, cls := range classified.Segments {
		if !cls.Relevant || cls.Index < 0 || cls.Index >= len(segments) {
			continue
		}
		seg := segments[cls.Index]

		sentiment := graph.Sentiment(cls.Sentiment)
		if !sentiment.IsValid() {
			sentiment = graph.SentimentNeutral
		}

		content := cls.Summary
		if content == "" {
			content = seg.Text
		}

		target := rootID
		if len(candidates) > 0 {
			if match, ok := store.BestMatchingParent(seg.Text, candidates); ok {
				target = match
			}
		}

		batches[target] = append(batches[target], graph.Evidence{
			ID:        types.NewID(),
			Sentiment: sentiment,
			Content:   content,
			Source:    source,
		})
		results.RelevantCount++

		w.emit(job, events.EventEvidenceFound, map[string]any{
			"node_id":   target.String(),
			"speaker":   seg.Speaker,
			"sentiment": string(sentiment),
			"content":   content,
		})
	}

	applied := 0
	for target, items := range batches {
		confidence, status, err := store.ApplyEvidence(target, items)
		if err != nil {
			return 0, err
		}
		applied += len(items)

		for _, item := range items {
			if item.Sentiment == graph.SentimentContradicting {
				w.emit(job, events.EventContradictionDetected, map[string]any{
					"node_id":    target.String(),
					"confidence": confidence,
					"status":     status.String(),
				})
				break
			}
		}
	}
	return applied, nil
}
