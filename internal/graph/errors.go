package graph

import "github.com/laird/nextgen-CDD-sub002/internal/types"

// Graph error codes. All graph errors are structural validation failures:
// they indicate a caller bug and are never retried.
const (
	ErrNodeNotFound         types.ErrorCode = "GRAPH_NODE_NOT_FOUND"
	ErrDanglingReference    types.ErrorCode = "GRAPH_DANGLING_REFERENCE"
	ErrInvalidKind          types.ErrorCode = "GRAPH_INVALID_KIND"
	ErrInvalidRelation      types.ErrorCode = "GRAPH_INVALID_RELATIONSHIP"
	ErrInvalidSentiment     types.ErrorCode = "GRAPH_INVALID_SENTIMENT"
	ErrConfidenceOutOfRange types.ErrorCode = "GRAPH_CONFIDENCE_OUT_OF_RANGE"
	ErrStrengthOutOfRange   types.ErrorCode = "GRAPH_STRENGTH_OUT_OF_RANGE"
	ErrDuplicateRoot        types.ErrorCode = "GRAPH_DUPLICATE_ROOT"
	ErrEmptyContent         types.ErrorCode = "GRAPH_EMPTY_CONTENT"
)
