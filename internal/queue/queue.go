package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/laird/nextgen-CDD-sub002/internal/events"
	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// Config holds queue tuning parameters.
type Config struct {
	// Workers bounds the worker pool. Each worker owns one job at a time.
	Workers int

	// MaxAttempts caps attempts per job. Exhausting it moves the job to
	// failed with the last error recorded.
	MaxAttempts int

	// RetryDelay is the fixed delay between attempts. The design favors a
	// fixed delay over exponential backoff for predictability of retry
	// cadence in a human-supervised workflow; do not mix policies.
	RetryDelay time.Duration

	// Retention keeps terminal jobs for audit before garbage collection.
	Retention time.Duration

	// Depth is the pending channel capacity.
	Depth int

	// JanitorInterval is how often retention GC runs.
	JanitorInterval time.Duration
}

// DefaultConfig returns the deployment defaults.
func DefaultConfig() Config {
	return Config{
		Workers:         5,
		MaxAttempts:     3,
		RetryDelay:      15 * time.Second,
		Retention:       72 * time.Hour,
		Depth:           256,
		JanitorInterval: time.Hour,
	}
}

// Queue accepts job descriptors, applies the retry policy, dispatches claimed
// jobs to the workflow executor and reports terminal state. A bounded pool of
// workers each claims one job at a time; a job is owned by exactly one worker
// for the duration of an attempt.
//
// Two jobs for the same engagement never run concurrently: an
// engagement-scoped lock is held for the duration of each attempt.
type Queue struct {
	cfg      Config
	executor Executor
	bus      *events.Bus
	sink     JobSink
	logger   *slog.Logger
	tracer   trace.Tracer

	mu          sync.Mutex
	jobs        map[types.ID]*Job
	done        map[types.ID]chan struct{}
	cancels     map[types.ID]context.CancelFunc
	cancelled   map[types.ID]bool
	engagements map[string]*sync.Mutex
	timers      map[types.ID]*time.Timer
	closed      bool

	pending chan types.ID
	wg      sync.WaitGroup
	stop    context.CancelFunc
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithJobSink sets the persistence boundary for terminal job records.
func WithJobSink(sink JobSink) QueueOption {
	return func(q *Queue) { q.sink = sink }
}

// New creates a queue. The executor dispatches claimed jobs to workflows; the
// bus receives progress events (nil disables emission, for tests).
func New(cfg Config, executor Executor, bus *events.Bus, opts ...QueueOption) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 256
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = time.Hour
	}

	q := &Queue{
		cfg:         cfg,
		executor:    executor,
		bus:         bus,
		logger:      slog.Default(),
		tracer:      otel.Tracer("nextgen-cdd/queue"),
		jobs:        make(map[types.ID]*Job),
		done:        make(map[types.ID]chan struct{}),
		cancels:     make(map[types.ID]context.CancelFunc),
		cancelled:   make(map[types.ID]bool),
		engagements: make(map[string]*sync.Mutex),
		timers:      make(map[types.ID]*time.Timer),
		pending:     make(chan types.ID, cfg.Depth),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the worker pool and the retention janitor.
func (q *Queue) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	q.stop = cancel

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(runCtx)
	}

	q.wg.Add(1)
	go q.janitor(runCtx)
}

// Stop shuts the queue down. Pending retries are dropped; running attempts
// are cancelled through their contexts.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.closed = true
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	q.mu.Unlock()

	if q.stop != nil {
		q.stop()
	}
	q.wg.Wait()
}

// Enqueue registers a job and queues its first attempt. Enqueue is
// idempotent on jobID: re-enqueueing an id that is already queued, running
// or terminal returns the existing record untouched. A zero jobID is
// assigned a fresh one.
func (q *Queue) Enqueue(jobID types.ID, jobType JobType, engagementID string, config map[string]any) (*Job, error) {
	if !jobType.IsValid() {
		return nil, types.NewError(ErrInvalidJob, fmt.Sprintf("invalid job type %q", jobType))
	}
	if engagementID == "" {
		return nil, types.NewError(ErrInvalidJob, "engagement id is required")
	}
	if jobID.IsZero() {
		jobID = types.NewID()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, types.NewError(ErrQueueClosed, "queue is stopped")
	}
	if existing, ok := q.jobs[jobID]; ok {
		cp := existing.clone()
		q.mu.Unlock()
		return cp, nil
	}

	now := time.Now().UTC()
	job := &Job{
		ID:           jobID,
		EngagementID: engagementID,
		JobType:      jobType,
		Status:       StatusQueued,
		Config:       config,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	q.jobs[jobID] = job
	q.done[jobID] = make(chan struct{})

	select {
	case q.pending <- jobID:
	default:
		delete(q.jobs, jobID)
		delete(q.done, jobID)
		q.mu.Unlock()
		return nil, types.NewRetryableError(ErrQueueClosed, "queue is at capacity")
	}
	cp := job.clone()
	q.mu.Unlock()

	q.publish(events.EventStatusUpdate, cp, map[string]any{"status": string(StatusQueued)})
	return cp, nil
}

// Status returns the current status of a job.
func (q *Queue) Status(jobID types.ID) (JobStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return "", false
	}
	return job.Status, true
}

// Job returns a copy of the job record.
func (q *Queue) Job(jobID types.ID) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

// AwaitCompletion blocks until the job reaches a terminal state or the
// timeout elapses. Timing out is a distinct outcome from job failure and
// does not mutate the job.
func (q *Queue) AwaitCompletion(ctx context.Context, jobID types.ID, timeout time.Duration) (*Job, error) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return nil, types.NewError(ErrJobNotFound, fmt.Sprintf("job %s not found", jobID))
	}
	if job.Status.IsTerminal() {
		cp := job.clone()
		q.mu.Unlock()
		return cp, nil
	}
	done := q.done[jobID]
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		result, _ := q.Job(jobID)
		return result, nil
	case <-timer.C:
		return nil, types.NewError(ErrAwaitTimeout,
			fmt.Sprintf("job %s did not reach a terminal state within %s", jobID, timeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests cancellation of a job. The cancellation is observed at the
// next phase boundary; the job fails with the distinct cancelled error kind.
// Cancelling a terminal job is a no-op.
func (q *Queue) Cancel(jobID types.ID) error {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return types.NewError(ErrJobNotFound, fmt.Sprintf("job %s not found", jobID))
	}
	if job.Status.IsTerminal() {
		q.mu.Unlock()
		return nil
	}

	q.cancelled[jobID] = true

	if job.Status == StatusQueued {
		// Not yet claimed: fail in place.
		if timer, ok := q.timers[jobID]; ok {
			timer.Stop()
			delete(q.timers, jobID)
		}
		q.failLocked(job, NewCancelledError(jobID))
		cp := job.clone()
		q.mu.Unlock()
		q.finishJob(cp)
		return nil
	}

	if cancel, ok := q.cancels[jobID]; ok {
		cancel()
	}
	q.mu.Unlock()
	return nil
}

// worker claims pending jobs one at a time until the queue stops.
func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-q.pending:
			q.runJob(ctx, jobID)
		}
	}
}

// runJob executes a single attempt of a job.
func (q *Queue) runJob(ctx context.Context, jobID types.ID) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok || job.Status != StatusQueued {
		// Cancelled or collected while waiting in the channel.
		q.mu.Unlock()
		return
	}

	job.Status = StatusRunning
	job.AttemptsMade++
	job.UpdatedAt = time.Now().UTC()
	if job.StartedAt == nil {
		now := job.UpdatedAt
		job.StartedAt = &now
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	q.cancels[jobID] = cancel
	if q.cancelled[jobID] {
		cancel()
	}
	attempt := job.AttemptsMade
	snapshot := job.clone()
	q.mu.Unlock()

	defer func() {
		cancel()
		q.mu.Lock()
		delete(q.cancels, jobID)
		q.mu.Unlock()
	}()

	q.publish(events.EventStatusUpdate, snapshot, map[string]any{
		"status":   string(StatusRunning),
		"attempts": attempt,
	})

	// Single writer per engagement for the whole attempt.
	engLock := q.engagementLock(snapshot.EngagementID)
	engLock.Lock()
	defer engLock.Unlock()

	spanCtx, span := q.tracer.Start(attemptCtx, "queue.job_attempt",
		trace.WithAttributes(
			attribute.String("job.id", jobID.String()),
			attribute.String("job.type", snapshot.JobType.String()),
			attribute.Int("job.attempt", attempt),
		))
	outcome, err := q.executor.Execute(spanCtx, snapshot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	if err != nil {
		q.handleFailure(job, jobID, attempt, err)
		return
	}
	q.handleSuccess(job, jobID, outcome)
}

// handleFailure applies the retry policy to a failed attempt.
func (q *Queue) handleFailure(job *Job, jobID types.ID, attempt int, err error) {
	q.mu.Lock()

	wasCancelled := q.cancelled[jobID]
	if wasCancelled || IsCancelled(err) {
		q.failLocked(job, NewCancelledError(jobID))
		cp := job.clone()
		q.mu.Unlock()
		q.finishJob(cp)
		return
	}

	if types.IsRetryable(err) && attempt < q.cfg.MaxAttempts && !q.closed {
		job.Status = StatusQueued
		job.UpdatedAt = time.Now().UTC()
		q.timers[jobID] = time.AfterFunc(q.cfg.RetryDelay, func() {
			q.mu.Lock()
			delete(q.timers, jobID)
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			select {
			case q.pending <- jobID:
			default:
				q.logger.Error("retry requeue dropped, queue at capacity", "job_id", jobID)
			}
		})
		cp := job.clone()
		q.mu.Unlock()

		q.logger.Warn("transient job failure, requeued",
			"job_id", jobID, "attempt", attempt, "error", err)
		q.publish(events.EventStatusUpdate, cp, map[string]any{
			"status":   string(StatusQueued),
			"attempts": attempt,
			"retry_in": q.cfg.RetryDelay.String(),
		})
		return
	}

	q.failLocked(job, err)
	cp := job.clone()
	q.mu.Unlock()

	q.logger.Error("job failed", "job_id", jobID, "attempts", attempt, "error", err)
	q.finishJob(cp)
}

// handleSuccess commits results through the saving state.
func (q *Queue) handleSuccess(job *Job, jobID types.ID, outcome Outcome) {
	q.mu.Lock()
	job.Status = StatusSaving
	job.Results = outcome.Results
	job.UpdatedAt = time.Now().UTC()
	cp := job.clone()
	q.mu.Unlock()

	q.publish(events.EventStatusUpdate, cp, map[string]any{"status": string(StatusSaving)})

	// Commit after workflow success. A persistence failure here fails the
	// job rather than re-running a workflow that already succeeded.
	if q.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := q.sink.SaveJob(ctx, cp)
		cancel()
		if err != nil {
			q.mu.Lock()
			q.failLocked(job, types.WrapError(ErrSaveFailed, "persisting job results failed", err))
			cp = job.clone()
			q.mu.Unlock()
			q.finishJob(cp)
			return
		}
	}

	q.mu.Lock()
	if outcome.Partial {
		job.Status = StatusPartial
	} else {
		job.Status = StatusCompleted
	}
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.UpdatedAt = now
	cp = job.clone()
	q.mu.Unlock()

	q.finishJob(cp)
}

// failLocked moves a job to failed and records the last error.
// Caller holds q.mu.
func (q *Queue) failLocked(job *Job, err error) {
	job.Status = StatusFailed
	job.ErrorMessage = err.Error()
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.UpdatedAt = now
}

// finishJob emits terminal events, persists failed jobs for audit, and
// releases waiters.
func (q *Queue) finishJob(job *Job) {
	if job.Status == StatusFailed && q.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := q.sink.SaveJob(ctx, job); err != nil {
			q.logger.Error("persisting failed job record", "job_id", job.ID, "error", err)
		}
		cancel()
	}

	if job.Status == StatusFailed {
		q.publish(events.EventError, job, map[string]any{"message": job.ErrorMessage})
	}
	q.publish(events.EventJobComplete, job, map[string]any{
		"status": string(job.Status),
	})
	q.publish(events.EventCompleted, job, map[string]any{
		"status":   string(job.Status),
		"attempts": job.AttemptsMade,
	})
	q.publish(events.EventStatusUpdate, job, map[string]any{"status": string(job.Status)})

	q.mu.Lock()
	if done, ok := q.done[job.ID]; ok {
		select {
		case <-done:
		default:
			close(done)
		}
	}
	q.mu.Unlock()
}

// janitor garbage-collects terminal jobs past the retention window.
func (q *Queue) janitor(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.collect(time.Now().UTC())
		}
	}
}

// collect removes terminal jobs whose completion is older than the retention
// window. Exposed for tests through CollectNow.
func (q *Queue) collect(now time.Time) int {
	if q.cfg.Retention <= 0 {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, job := range q.jobs {
		if !job.Status.IsTerminal() || job.CompletedAt == nil {
			continue
		}
		if now.Sub(*job.CompletedAt) > q.cfg.Retention {
			delete(q.jobs, id)
			delete(q.done, id)
			delete(q.cancelled, id)
			removed++
		}
	}
	return removed
}

// CollectNow runs one retention pass immediately and returns how many
// records were collected.
func (q *Queue) CollectNow() int {
	return q.collect(time.Now().UTC())
}

// engagementLock returns the single-writer lock for an engagement.
func (q *Queue) engagementLock(engagementID string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()

	lock, ok := q.engagements[engagementID]
	if !ok {
		lock = &sync.Mutex{}
		q.engagements[engagementID] = lock
	}
	return lock
}

// publish emits a progress event when a bus is attached.
func (q *Queue) publish(t events.EventType, job *Job, data map[string]any) {
	if q.bus == nil {
		return
	}
	event := events.New(t, job.ID, job.EngagementID, data)
	if err := q.bus.Publish(context.Background(), event); err != nil {
		q.logger.Warn("publishing progress event", "event_type", t, "job_id", job.ID, "error", err)
	}
}
