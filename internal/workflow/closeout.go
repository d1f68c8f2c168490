package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/laird/nextgen-CDD-sub002/internal/graph"
	"github.com/laird/nextgen-CDD-sub002/internal/memory"
	"github.com/laird/nextgen-CDD-sub002/internal/queue"
	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// CloseoutConfig is the closeout job descriptor payload.
type CloseoutConfig struct {
	Outcome string `mapstructure:"outcome"`
	Notes   string `mapstructure:"notes"`
}

// CloseoutResults is the closeout job's results payload: a snapshot of the
// graph's final shape plus the reflexion record derived from it.
type CloseoutResults struct {
	Outcome             string                   `json:"outcome"`
	NodeCount           int                      `json:"node_count"`
	EdgeCount           int                      `json:"edge_count"`
	AggregateConfidence float64                  `json:"aggregate_confidence"`
	StatusCounts        map[graph.NodeStatus]int `json:"status_counts"`
	PatternSignature    string                   `json:"pattern_signature"`
	ReflexionID         types.ID                 `json:"reflexion_id,omitempty"`
}

// CloseoutWorkflow summarizes an engagement's final graph state and records
// a reflexion entry for cross-engagement learning.
//
// Phases: summarize-final-state → emit-reflexion-record.
type CloseoutWorkflow struct {
	base
}

// NewCloseoutWorkflow creates the closeout workflow.
func NewCloseoutWorkflow(deps Deps) *CloseoutWorkflow {
	return &CloseoutWorkflow{base{deps: deps}}
}

// Type returns the job type this workflow handles.
func (w *CloseoutWorkflow) Type() queue.JobType {
	return queue.JobTypeCloseout
}

// Run executes the closeout phase sequence.
func (w *CloseoutWorkflow) Run(ctx context.Context, job *queue.Job) (queue.Outcome, error) {
	var cfg CloseoutConfig
	if err := decodeConfig(job.Config, &cfg); err != nil {
		return queue.Outcome{}, err
	}
	if cfg.Outcome == "" {
		cfg.Outcome = "success"
	}

	store := w.deps.Graphs.For(job.EngagementID)

	results := CloseoutResults{
		Outcome:      cfg.Outcome,
		StatusCounts: make(map[graph.NodeStatus]int),
	}

	err := w.phase(ctx, job, "summarize-final-state", func(ctx context.Context) error {
		w.summarize(store, &results)
		return nil
	})
	if err != nil {
		return queue.Outcome{}, err
	}

	err = w.phase(ctx, job, "emit-reflexion-record", func(ctx context.Context) error {
		// Reflexion persistence is best-effort: the summary already holds
		// the engagement's final state, and losing a learning record is
		// not worth failing the closeout.
		id, err := w.saveReflexion(ctx, job, cfg, &results)
		if err != nil {
			w.logger().Warn("reflexion record not saved",
				"job_id", job.ID, "error", err)
			return nil
		}
		results.ReflexionID = id
		return nil
	})
	if err != nil {
		return queue.Outcome{}, err
	}

	return queue.Outcome{Results: results}, nil
}

// summarize walks the final graph and fills the results snapshot.
func (w *CloseoutWorkflow) summarize(store *graph.Store, results *CloseoutResults) {
	nodes := store.Nodes()
	results.NodeCount = len(nodes)
	results.EdgeCount = len(store.Edges())

	var sum float64
	for _, node := range nodes {
		results.StatusCounts[node.Status]++
		sum += node.Confidence
	}
	if len(nodes) > 0 {
		results.AggregateConfidence = sum / float64(len(nodes))
	}
	results.PatternSignature = patternSignature(nodes)
}

// patternSignature compresses the graph's final shape into a stable string:
// kind:status buckets with counts, sorted lexically. Two engagements whose
// theses decomposed and resolved the same way share a signature.
func patternSignature(nodes []*graph.HypothesisNode) string {
	buckets := make(map[string]int)
	for _, node := range nodes {
		key := fmt.Sprintf("%s:%s", node.Kind, node.Status)
		buckets[key]++
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", key, buckets[key]))
	}
	return strings.Join(parts, ",")
}

// saveReflexion writes the reflexion record into the learning namespace.
func (w *CloseoutWorkflow) saveReflexion(ctx context.Context, job *queue.Job, cfg CloseoutConfig, results *CloseoutResults) (types.ID, error) {
	content := fmt.Sprintf("outcome=%s signature=%s aggregate_confidence=%.2f",
		cfg.Outcome, results.PatternSignature, results.AggregateConfidence)
	if cfg.Notes != "" {
		content += " notes=" + cfg.Notes
	}

	rec := memory.Record{
		ID:      types.NewID(),
		Content: content,
		Metadata: map[string]string{
			"engagement": job.EngagementID,
			"outcome":    cfg.Outcome,
			"signature":  results.PatternSignature,
		},
	}
	if err := w.deps.Memory.Save(ctx, nsReflexion, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}
