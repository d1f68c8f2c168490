package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/laird/nextgen-CDD-sub002/internal/events"
	"github.com/laird/nextgen-CDD-sub002/internal/graph"
	"github.com/laird/nextgen-CDD-sub002/internal/memory"
	"github.com/laird/nextgen-CDD-sub002/internal/queue"
	"github.com/laird/nextgen-CDD-sub002/internal/reasoning"
	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// Workflow error codes.
const (
	ErrUnknownJobType   types.ErrorCode = "WORKFLOW_UNKNOWN_JOB_TYPE"
	ErrInvalidConfig    types.ErrorCode = "WORKFLOW_INVALID_CONFIG"
	ErrInvalidStructure types.ErrorCode = "WORKFLOW_INVALID_STRUCTURE"
	ErrEmptyTranscript  types.ErrorCode = "WORKFLOW_EMPTY_TRANSCRIPT"
)

// Memory namespaces used by the workflows.
const (
	nsHypotheses = "hypotheses"
	nsEvidence   = "evidence"
	nsReflexion  = "reflexion"
)

// Options are the workflow-level tuning parameters shared by all workflows.
type Options struct {
	// ParallelLimit bounds per-phase fan-out (evidence gathering) so the
	// reasoning provider is not overwhelmed.
	ParallelLimit int

	// MinSources / MaxSources bound evidence gathering per hypothesis.
	MinSources int
	MaxSources int

	// Verdict thresholds over aggregate critical-node confidence. Must be
	// monotonic: ProceedThreshold >= ReviewThreshold.
	ProceedThreshold float64
	ReviewThreshold  float64

	// CriticalImportance marks which hypotheses count toward the verdict.
	CriticalImportance float64

	// MinContradictions is the stress-test default when the job config does
	// not override it.
	MinContradictions int
}

// DefaultOptions returns the deployment defaults.
func DefaultOptions() Options {
	return Options{
		ParallelLimit:      4,
		MinSources:         2,
		MaxSources:         5,
		ProceedThreshold:   0.65,
		ReviewThreshold:    0.40,
		CriticalImportance: 0.75,
		MinContradictions:  1,
	}
}

// Deps carries the collaborators every workflow phase shares. All components
// are injected; nothing reaches for globals, so isolated test instances need
// no reset calls.
type Deps struct {
	Graphs   *graph.Manager
	Provider reasoning.Provider
	Memory   memory.Store
	Bus      *events.Bus
	Logger   *slog.Logger
	Options  Options
}

// Workflow is a finite sequence of phases dispatched by job type.
type Workflow interface {
	Type() queue.JobType
	Run(ctx context.Context, job *queue.Job) (queue.Outcome, error)
}

// Registry maps job types to workflows and implements queue.Executor.
type Registry struct {
	mu        sync.RWMutex
	workflows map[queue.JobType]Workflow
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{workflows: make(map[queue.JobType]Workflow)}
}

// Register adds a workflow, replacing any previous one of the same type.
func (r *Registry) Register(w Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[w.Type()] = w
}

// NewDefaultRegistry registers all four workflows against the given deps.
func NewDefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()
	r.Register(NewResearchWorkflow(deps))
	r.Register(NewStressTestWorkflow(deps))
	r.Register(NewExpertCallWorkflow(deps))
	r.Register(NewCloseoutWorkflow(deps))
	return r
}

// Execute dispatches the job to its workflow. An unknown job type is a
// validation failure, never retried.
func (r *Registry) Execute(ctx context.Context, job *queue.Job) (queue.Outcome, error) {
	r.mu.RLock()
	w, ok := r.workflows[job.JobType]
	r.mu.RUnlock()

	if !ok {
		return queue.Outcome{}, types.NewError(ErrUnknownJobType,
			fmt.Sprintf("no workflow registered for job type %q", job.JobType))
	}
	return w.Run(ctx, job)
}

// base provides the shared phase-running convention: cancellation is
// observed at phase boundaries, and every boundary emits a progress event.
type base struct {
	deps Deps
}

func (b *base) logger() *slog.Logger {
	if b.deps.Logger != nil {
		return b.deps.Logger
	}
	return slog.Default()
}

// phase runs one named workflow phase. A context cancelled before the phase
// starts surfaces as the distinct cancelled error kind; mid-phase the
// workflow runs to the next boundary.
func (b *base) phase(ctx context.Context, job *queue.Job, name string, fn func(ctx context.Context) error) error {
	if ctx.Err() != nil {
		return queue.NewCancelledError(job.ID)
	}

	b.emit(job, events.EventPhaseStart, map[string]any{"phase": name})
	if err := fn(ctx); err != nil {
		b.emit(job, events.EventError, map[string]any{"phase": name, "message": err.Error()})
		return err
	}
	b.emit(job, events.EventPhaseComplete, map[string]any{"phase": name})
	return nil
}

// emit publishes a progress event when a bus is attached.
func (b *base) emit(job *queue.Job, t events.EventType, data map[string]any) {
	if b.deps.Bus == nil {
		return
	}
	event := events.New(t, job.ID, job.EngagementID, data)
	if err := b.deps.Bus.Publish(context.Background(), event); err != nil {
		b.logger().Warn("publishing workflow event", "event_type", t, "job_id", job.ID, "error", err)
	}
}

// decodeConfig maps a job's loose config payload onto a typed workflow
// config. Unknown fields are tolerated; type mismatches are field-level
// validation errors.
func decodeConfig(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return types.WrapError(ErrInvalidConfig, "building config decoder", err)
	}
	if err := dec.Decode(raw); err != nil {
		return types.WrapError(ErrInvalidConfig, "job config does not match workflow schema", err)
	}
	return nil
}
