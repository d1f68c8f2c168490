package workflow

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/laird/nextgen-CDD-sub002/internal/events"
	"github.com/laird/nextgen-CDD-sub002/internal/graph"
	"github.com/laird/nextgen-CDD-sub002/internal/memory"
	"github.com/laird/nextgen-CDD-sub002/internal/queue"
	"github.com/laird/nextgen-CDD-sub002/internal/reasoning"
	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// ResearchConfig is the research job descriptor payload.
type ResearchConfig struct {
	Thesis                  string  `mapstructure:"thesis"`
	MaxHypotheses           int     `mapstructure:"maxHypotheses"`
	EnableDeepDive          bool    `mapstructure:"enableDeepDive"`
	ConfidenceThreshold     float64 `mapstructure:"confidenceThreshold"`
	SearchDepth             int     `mapstructure:"searchDepth"`
	MinSourcesPerHypothesis int     `mapstructure:"minSourcesPerHypothesis"`
	MaxSourcesPerHypothesis int     `mapstructure:"maxSourcesPerHypothesis"`
}

// Verdict is the research workflow's recommendation, monotonic in aggregate
// confidence: higher aggregate confidence never yields a worse verdict.
type Verdict string

const (
	VerdictProceed Verdict = "proceed"
	VerdictReview  Verdict = "review"
	VerdictReject  Verdict = "reject"
)

// HypothesisSummary reports one hypothesis in the research results.
// BelowMinimum marks a hypothesis whose gathered evidence fell short of the
// configured minimum; the job outcome is partial when any unit carries it.
type HypothesisSummary struct {
	NodeID       types.ID         `json:"node_id"`
	Content      string           `json:"content"`
	Kind         graph.NodeKind   `json:"kind"`
	Confidence   float64          `json:"confidence"`
	Status       graph.NodeStatus `json:"status"`
	Importance   float64          `json:"importance"`
	Sources      int              `json:"sources"`
	BelowMinimum bool             `json:"below_minimum,omitempty"`
}

// ResearchResults is the research job's results payload.
type ResearchResults struct {
	Verdict             Verdict             `json:"verdict"`
	AggregateConfidence float64             `json:"aggregate_confidence"`
	HypothesisCount     int                 `json:"hypothesis_count"`
	EvidenceApplied     int                 `json:"evidence_applied"`
	Contradictions      int                 `json:"contradictions"`
	EvidenceShortfalls  int                 `json:"evidence_shortfalls,omitempty"`
	Hypotheses          []HypothesisSummary `json:"hypotheses"`
}

// decomposedHypothesis is the reasoning provider's decomposition unit.
type decomposedHypothesis struct {
	Content     string  `json:"content"`
	Kind        string  `json:"kind"`
	Importance  float64 `json:"importance"`
	Testability float64 `json:"testability"`
	Risk        string  `json:"risk"`
}

type decomposition struct {
	Hypotheses []decomposedHypothesis `json:"hypotheses"`
}

const decompositionSchema = `{
  "type": "object",
  "properties": {
    "hypotheses": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "content": {"type": "string"},
          "kind": {"enum": ["sub_thesis", "assumption"]},
          "importance": {"type": "number", "minimum": 0, "maximum": 1},
          "testability": {"type": "number", "minimum": 0, "maximum": 1},
          "risk": {"enum": ["high", "medium", "low", ""]}
        },
        "required": ["content", "kind", "importance"]
      }
    }
  },
  "required": ["hypotheses"]
}`

// evidenceBatch is the reasoning provider's evidence-gathering unit.
type evidenceBatch struct {
	Items []struct {
		Content   string `json:"content"`
		Sentiment string `json:"sentiment"`
		Source    string `json:"source"`
	} `json:"items"`
}

const evidenceSchema = `{
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

// ResearchWorkflow decomposes a thesis into a hypothesis graph, gathers and
// applies evidence, and derives a verdict.
//
// Phases: decompose-thesis → create-nodes-and-edges → gather-evidence →
// apply-evidence → summarize-verdict.
type ResearchWorkflow struct {
	base
}

// NewResearchWorkflow creates the research workflow.
func NewResearchWorkflow(deps Deps) *ResearchWorkflow {
	return &ResearchWorkflow{base{deps: deps}}
}

// Type returns the job type this workflow handles.
func (w *ResearchWorkflow) Type() queue.JobType {
	return queue.JobTypeResearch
}

// Run executes the research phase sequence against the engagement's graph.
func (w *ResearchWorkflow) Run(ctx context.Context, job *queue.Job) (queue.Outcome, error) {
	var cfg ResearchConfig
	if err := decodeConfig(job.Config, &cfg); err != nil {
		return queue.Outcome{}, err
	}
	if cfg.Thesis == "" {
		return queue.Outcome{}, types.NewError(ErrInvalidConfig, "research config: thesis is required")
	}
	w.applyDefaults(&cfg)

	store := w.deps.Graphs.For(job.EngagementID)

	var (
		decomposed decomposition
		importance = make(map[types.ID]float64)
		nodeIDs    []types.ID
		gathered   = make(map[types.ID][]graph.Evidence)
		shortfall  = make(map[types.ID]bool)
		results    ResearchResults
	)

	err := w.phase(ctx, job, "decompose-thesis", func(ctx context.Context) error {
		return w.decompose(ctx, cfg, &decomposed)
	})
	if err != nil {
		return queue.Outcome{}, err
	}

	err = w.phase(ctx, job, "create-nodes-and-edges", func(ctx context.Context) error {
		ids, imp, err := w.createNodes(ctx, job, store, cfg, decomposed)
		if err != nil {
			return err
		}
		nodeIDs = ids
		importance = imp
		return nil
	})
	if err != nil {
		return queue.Outcome{}, err
	}

	err = w.phase(ctx, job, "gather-evidence", func(ctx context.Context) error {
		return w.gatherEvidence(ctx, job, store, cfg, nodeIDs, gathered, shortfall)
	})
	if err != nil {
		return queue.Outcome{}, err
	}

	err = w.phase(ctx, job, "apply-evidence", func(ctx context.Context) error {
		applied, contradictions, err := w.applyEvidence(job, store, gathered)
		if err != nil {
			return err
		}
		results.EvidenceApplied = applied
		results.Contradictions = contradictions
		return nil
	})
	if err != nil {
		return queue.Outcome{}, err
	}

	err = w.phase(ctx, job, "summarize-verdict", func(ctx context.Context) error {
		w.summarize(store, nodeIDs, importance, gathered, shortfall, &results)
		return nil
	})
	if err != nil {
		return queue.Outcome{}, err
	}

	// Evidence shortfalls degrade the outcome to partial; the per-unit
	// status is on each hypothesis summary.
	return queue.Outcome{
		Results: results,
		Partial: results.EvidenceShortfalls > 0,
	}, nil
}

func (w *ResearchWorkflow) applyDefaults(cfg *ResearchConfig) {
	opts := w.deps.Options
	if cfg.MinSourcesPerHypothesis <= 0 {
		cfg.MinSourcesPerHypothesis = opts.MinSources
	}
	if cfg.MaxSourcesPerHypothesis <= 0 {
		cfg.MaxSourcesPerHypothesis = opts.MaxSources
	}
	if cfg.MaxSourcesPerHypothesis < cfg.MinSourcesPerHypothesis {
		cfg.MaxSourcesPerHypothesis = cfg.MinSourcesPerHypothesis
	}
	if cfg.MaxHypotheses <= 0 {
		cfg.MaxHypotheses = 8
	}
}

// decompose asks the reasoning provider to break the thesis into hypotheses.
// An empty decomposition is a structural failure: it would leave the graph
// with no root, which indicates broken reasoning output, not a transient
// condition.
func (w *ResearchWorkflow) decompose(ctx context.Context, cfg ResearchConfig, out *decomposition) error {
	req := reasoning.Request{
		System: "You are an investment research analyst. Decompose the investment thesis " +
			"into testable sub-theses and the assumptions they rest on.",
		User: fmt.Sprintf("Thesis: %s\n\nProduce at most %d hypotheses.",
			cfg.Thesis, cfg.MaxHypotheses),
		Schema: decompositionSchema,
	}
	if err := reasoning.GenerateJSON(ctx, w.deps.Provider, req, out); err != nil {
		return err
	}

	if len(out.Hypotheses) == 0 {
		return types.NewError(ErrInvalidStructure,
			"thesis decomposition produced no hypotheses; graph would have no root")
	}
	if len(out.Hypotheses) > cfg.MaxHypotheses {
		out.Hypotheses = out.Hypotheses[:cfg.MaxHypotheses]
	}
	return nil
}

// createNodes materializes the decomposition: a thesis root, one node per
// hypothesis with its derived initial confidence, and supports edges linking
// each hypothesis to its best matching parent.
func (w *ResearchWorkflow) createNodes(ctx context.Context, job *queue.Job, store *graph.Store, cfg ResearchConfig, dec decomposition) ([]types.ID, map[types.ID]float64, error) {
	createdBy := "research-workflow"

	rootID := store.Root()
	var root types.ID
	if rootID == nil {
		id, err := store.CreateNode(graph.KindThesis, cfg.Thesis, createdBy)
		if err != nil {
			return nil, nil, err
		}
		root = id
	} else {
		root = rootID.ID
	}

	importance := make(map[types.ID]float64)
	var nodeIDs []types.ID
	var subTheses []types.ID

	for _, hyp := range dec.Hypotheses {
		kind := graph.NodeKind(hyp.Kind)
		if kind != graph.KindSubThesis && kind != graph.KindAssumption {
			kind = graph.KindSubThesis
		}

		id, err := store.CreateNode(kind, hyp.Content, createdBy)
		if err != nil {
			return nil, nil, err
		}

		initial := graph.InitialConfidenceFromImportance(hyp.Importance)
		if hyp.Risk != "" {
			initial = graph.InitialConfidenceFromRisk(hyp.Risk, hyp.Testability)
		}
		if err := store.SetConfidence(id, initial); err != nil {
			return nil, nil, err
		}

		parent := root
		if kind == graph.KindAssumption && len(subTheses) > 0 {
			if match, ok := store.BestMatchingParent(hyp.Content, subTheses); ok {
				parent = match
			}
		}
		if _, err := store.CreateEdge(id, parent, graph.RelSupports, hyp.Importance, "decomposition link"); err != nil {
			return nil, nil, err
		}

		// Persisting the computed hypothesis is load-bearing: a miss here
		// loses state the workflow depends on, so the failure is a
		// transient job-level error eligible for retry.
		rec := memory.Record{
			ID:      id,
			Content: hyp.Content,
			Metadata: map[string]string{
				"engagement": job.EngagementID,
				"kind":       kind.String(),
			},
		}
		if err := w.deps.Memory.Save(ctx, nsHypotheses, rec); err != nil {
			return nil, nil, types.WrapRetryableError(memory.ErrSaveFailed,
				"storing computed hypothesis", err)
		}

		importance[id] = hyp.Importance
		nodeIDs = append(nodeIDs, id)
		if kind == graph.KindSubThesis {
			subTheses = append(subTheses, id)
		}

		w.emit(job, events.EventHypothesisGenerated, map[string]any{
			"node_id":    id.String(),
			"kind":       kind.String(),
			"content":    hyp.Content,
			"confidence": initial,
		})
	}

	return nodeIDs, importance, nil
}

// gatherEvidence fans out across hypotheses under the configured parallelism
// limit. Similarity-based deduplication through the memory store is
// best-effort: a search failure degrades to keeping the evidence.
func (w *ResearchWorkflow) gatherEvidence(ctx context.Context, job *queue.Job, store *graph.Store, cfg ResearchConfig, nodeIDs []types.ID, gathered map[types.ID][]graph.Evidence, shortfall map[types.ID]bool) error {
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	limit := w.deps.Options.ParallelLimit
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for _, nodeID := range nodeIDs {
		nodeID := nodeID
		g.Go(func() error {
			node, err := store.Node(nodeID)
			if err != nil {
				return err
			}

			items, err := w.requestEvidence(gctx, node.Content, cfg.MaxSourcesPerHypothesis)
			if err != nil {
				return err
			}
			kept := w.dedupe(gctx, job.EngagementID, items)
			if len(kept) < cfg.MinSourcesPerHypothesis {
				w.logger().Warn("hypothesis below minimum sources",
					"node_id", nodeID, "found", len(kept), "min", cfg.MinSourcesPerHypothesis)
			}

			mu.Lock()
			gathered[nodeID] = kept
			if len(kept) < cfg.MinSourcesPerHypothesis {
				shortfall[nodeID] = true
			}
			mu.Unlock()

			for _, ev := range kept {
				w.emit(job, events.EventEvidenceFound, map[string]any{
					"node_id":   nodeID.String(),
					"sentiment": string(ev.Sentiment),
					"content":   ev.Content,
				})
			}
			return nil
		})
	}

	return g.Wait()
}

// requestEvidence asks the provider for up to max evidence items for one
// hypothesis.
func (w *ResearchWorkflow) requestEvidence(ctx context.Context, content string, max int) ([]graph.Evidence, error) {
	req := reasoning.Request{
		System: "You are gathering evidence for due-diligence research. For the hypothesis, " +
			"report concrete observations with a sentiment for each.",
		User:   fmt.Sprintf("Hypothesis: %s\n\nReturn at most %d evidence items.", content, max),
		Schema: evidenceSchema,
	}

	var batch evidenceBatch
	if err := reasoning.GenerateJSON(ctx, w.deps.Provider, req, &batch); err != nil {
		return nil, err
	}

	items := batch.Items
	if len(items) > max {
		items = items[:max]
	}

	out := make([]graph.Evidence, 0, len(items))
	for _, item := range items {
		sentiment := graph.Sentiment(item.Sentiment)
		if !sentiment.IsValid() {
			sentiment = graph.SentimentNeutral
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

// dedupe drops evidence nearly identical to something already remembered for
// the engagement, and remembers the rest. Both operations are best-effort;
// embedding or search failures degrade to keeping everything.
func (w *ResearchWorkflow) dedupe(ctx context.Context, engagementID string, items []graph.Evidence) []graph.Evidence {
	const duplicateScore = 0.95

	kept := items[:0]
	for _, item := range items {
		vec, err := w.deps.Memory.Embed(ctx, item.Content)
		if err != nil {
			w.logger().Warn("evidence embedding failed, skipping dedupe", "error", err)
			kept = append(kept, item)
			continue
		}

		hits, err := w.deps.Memory.Search(ctx, nsEvidence, vec, 1,
			map[string]string{"engagement": engagementID})
		if err != nil {
			w.logger().Warn("evidence search failed, skipping dedupe", "error", err)
			kept = append(kept, item)
			continue
		}
		if len(hits) > 0 && hits[0].Score >= duplicateScore {
			continue
		}

		rec := memory.Record{
			ID:       item.ID,
			Content:  item.Content,
			Metadata: map[string]string{"engagement": engagementID},
		}
		if err := w.deps.Memory.Save(ctx, nsEvidence, rec); err != nil {
			w.logger().Warn("remembering evidence failed", "error", err)
		}
		kept = append(kept, item)
	}
	return kept
}

// applyEvidence commits each hypothesis's batch atomically through the store.
func (w *ResearchWorkflow) applyEvidence(job *queue.Job, store *graph.Store, gathered map[types.ID][]graph.Evidence) (int, int, error) {
	applied := 0
	contradictions := 0

	for nodeID, items := range gathered {
		if len(items) == 0 {
			continue
		}
		confidence, status, err := store.ApplyEvidence(nodeID, items)
		if err != nil {
			return 0, 0, err
		}
		applied += len(items)

		hasContradicting := false
		for _, item := range items {
			if item.Sentiment == graph.SentimentContradicting {
				contradictions++
				hasContradicting = true
			}
		}
		if hasContradicting {
			w.emit(job, events.EventContradictionDetected, map[string]any{
				"node_id":    nodeID.String(),
				"confidence": confidence,
				"status":     status.String(),
			})
		}
	}
	return applied, contradictions, nil
}

// summarize derives the verdict from aggregate confidence across
// critical-importance hypotheses.
func (w *ResearchWorkflow) summarize(store *graph.Store, nodeIDs []types.ID, importance map[types.ID]float64, gathered map[types.ID][]graph.Evidence, shortfall map[types.ID]bool, results *ResearchResults) {
	var criticalSum float64
	criticalCount := 0

	for _, id := range nodeIDs {
		node, err := store.Node(id)
		if err != nil {
			continue
		}

		if shortfall[id] {
			results.EvidenceShortfalls++
		}
		results.Hypotheses = append(results.Hypotheses, HypothesisSummary{
			NodeID:       id,
			Content:      node.Content,
			Kind:         node.Kind,
			Confidence:   node.Confidence,
			Status:       node.Status,
			Importance:   importance[id],
			Sources:      len(gathered[id]),
			BelowMinimum: shortfall[id],
		})

		if importance[id] >= w.deps.Options.CriticalImportance {
			criticalSum += node.Confidence
			criticalCount++
		}
	}

	// No critical hypotheses: fall back to aggregating over everything.
	if criticalCount == 0 {
		for _, h := range results.Hypotheses {
			criticalSum += h.Confidence
		}
		criticalCount = len(results.Hypotheses)
	}

	aggregate := 0.0
	if criticalCount > 0 {
		aggregate = criticalSum / float64(criticalCount)
	}

	results.HypothesisCount = len(nodeIDs)
	results.AggregateConfidence = aggregate
	results.Verdict = verdictFor(aggregate, w.deps.Options)
}

// verdictFor maps aggregate confidence to a verdict. The mapping is
// monotonic by construction.
func verdictFor(aggregate float64, opts Options) Verdict {
	switch {
	case aggregate >= opts.ProceedThreshold:
		return VerdictProceed
	case aggregate >= opts.ReviewThreshold:
		return VerdictReview
	default:
		return VerdictReject
	}
}
