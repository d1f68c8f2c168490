package queue

import (
	"context"
	"time"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// JobType identifies which workflow a job runs.
type JobType string

const (
	JobTypeResearch   JobType = "research"
	JobTypeStressTest JobType = "stress_test"
	JobTypeExpertCall JobType = "expert_call"
	JobTypeCloseout   JobType = "closeout"
)

// String returns the string representation of the job type.
func (t JobType) String() string {
	return string(t)
}

// IsValid checks whether the type is a member of the closed enumeration.
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeResearch, JobTypeStressTest, JobTypeExpertCall, JobTypeCloseout:
		return true
	default:
		return false
	}
}

// JobStatus is the externally visible lifecycle state of a research job.
//
// The retry loop running → queued is internal: it is not a distinct visible
// status beyond the incremented attempt count.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusSaving    JobStatus = "saving"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusPartial   JobStatus = "partial"
)

// String returns the string representation of the job status.
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status is final. Terminal jobs are
// immutable and retained for audit until garbage collection.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial:
		return true
	default:
		return false
	}
}

// CanTransitionTo validates a lifecycle transition:
// queued → running → {saving → completed | saving → partial} | failed,
// with running → queued as the bounded retry loop.
func (s JobStatus) CanTransitionTo(target JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusQueued:
		return target == StatusRunning || target == StatusFailed
	case StatusRunning:
		return target == StatusSaving || target == StatusQueued || target == StatusFailed
	case StatusSaving:
		return target == StatusCompleted || target == StatusPartial || target == StatusFailed
	default:
		return false
	}
}

// Job is a research job owned by the queue. EngagementID is an opaque
// foreign reference to the enclosing due-diligence case.
type Job struct {
	ID           types.ID       `json:"id"`
	EngagementID string         `json:"engagement_id"`
	JobType      JobType        `json:"job_type"`
	Status       JobStatus      `json:"status"`
	AttemptsMade int            `json:"attempts_made"`
	Config       map[string]any `json:"config,omitempty"`
	Results      any            `json:"results,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// clone returns a copy safe to hand to callers outside the queue lock.
func (j *Job) clone() *Job {
	cp := *j
	return &cp
}

// Outcome is what a workflow returns on success. Partial marks jobs where
// some units finished inconclusive but the job as a whole did not fail.
type Outcome struct {
	Results any
	Partial bool
}

// Executor dispatches a claimed job to its workflow. The workflow registry
// implements this.
type Executor interface {
	Execute(ctx context.Context, job *Job) (Outcome, error)
}

// JobSink is the persistence boundary: a durable write of the final job
// record, invoked while the job is in the saving state ("commit after
// workflow success") and again for failed jobs for audit.
type JobSink interface {
	SaveJob(ctx context.Context, job *Job) error
}
