package graph

import (
	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// Relationship classifies a directed causal edge between two hypotheses.
type Relationship string

const (
	RelRequires    Relationship = "requires"
	RelSupports    Relationship = "supports"
	RelContradicts Relationship = "contradicts"
	RelImplies     Relationship = "implies"
)

// String returns the string representation of the relationship.
func (r Relationship) String() string {
	return string(r)
}

// IsValid checks whether the relationship is a member of the closed enumeration.
func (r Relationship) IsValid() bool {
	switch r {
	case RelRequires, RelSupports, RelContradicts, RelImplies:
		return true
	default:
		return false
	}
}

// CausalEdge is a directed, typed, strength-weighted relationship between two
// nodes of the same graph. The (source, target, relationship) triple is unique;
// re-creating it upserts strength and reasoning instead of duplicating.
type CausalEdge struct {
	ID           types.ID     `json:"id"`
	SourceID     types.ID     `json:"source_id"`
	TargetID     types.ID     `json:"target_id"`
	Relationship Relationship `json:"relationship"`
	Strength     float64      `json:"strength"`
	Reasoning    string       `json:"reasoning,omitempty"`
}

// tripleKey identifies an edge by its unique (source, target, relationship)
// triple for upsert lookups.
type tripleKey struct {
	source       types.ID
	target       types.ID
	relationship Relationship
}

func (e *CausalEdge) clone() *CausalEdge {
	cp := *e
	return &cp
}
