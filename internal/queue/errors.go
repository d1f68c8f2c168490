package queue

import "github.com/laird/nextgen-CDD-sub002/internal/types"

// Queue error codes.
const (
	ErrJobNotFound       types.ErrorCode = "QUEUE_JOB_NOT_FOUND"
	ErrInvalidJob        types.ErrorCode = "QUEUE_INVALID_JOB"
	ErrInvalidTransition types.ErrorCode = "QUEUE_INVALID_TRANSITION"
	ErrJobCancelled      types.ErrorCode = "QUEUE_JOB_CANCELLED"
	ErrAwaitTimeout      types.ErrorCode = "QUEUE_AWAIT_TIMEOUT"
	ErrQueueClosed       types.ErrorCode = "QUEUE_CLOSED"
	ErrSaveFailed        types.ErrorCode = "QUEUE_SAVE_FAILED"
)

// NewCancelledError creates the distinct error kind recorded when a job is
// cancelled by external request, distinguishable from provider and timeout
// failures.
func NewCancelledError(jobID types.ID) *types.CoreError {
	return types.NewError(ErrJobCancelled, "job "+jobID.String()+" cancelled by request")
}

// IsCancelled reports whether err records an external cancellation.
func IsCancelled(err error) bool {
	return types.CodeOf(err) == ErrJobCancelled
}
