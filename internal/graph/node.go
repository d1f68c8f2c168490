package graph

import (
	"time"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// NodeKind classifies a hypothesis node within the thesis graph.
type NodeKind string

const (
	KindThesis     NodeKind = "thesis"
	KindSubThesis  NodeKind = "sub_thesis"
	KindAssumption NodeKind = "assumption"
	KindEvidence   NodeKind = "evidence"
)

// String returns the string representation of the node kind.
func (k NodeKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is a member of the closed enumeration.
func (k NodeKind) IsValid() bool {
	switch k {
	case KindThesis, KindSubThesis, KindAssumption, KindEvidence:
		return true
	default:
		return false
	}
}

// NodeStatus tracks how a hypothesis has fared against applied evidence.
type NodeStatus string

const (
	StatusUntested   NodeStatus = "untested"
	StatusSupported  NodeStatus = "supported"
	StatusChallenged NodeStatus = "challenged"
	StatusRefuted    NodeStatus = "refuted"
)

// String returns the string representation of the node status.
func (s NodeStatus) String() string {
	return string(s)
}

// HypothesisNode is a confidence-scored claim in the thesis graph.
// Confidence is always within [0,1]; the store enforces the bound on every
// mutation path and treats a violation as a caller bug, not user input.
type HypothesisNode struct {
	ID         types.ID   `json:"id"`
	Kind       NodeKind   `json:"kind"`
	Content    string     `json:"content"`
	Confidence float64    `json:"confidence"`
	Status     NodeStatus `json:"status"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	SourceRefs []types.ID `json:"source_refs,omitempty"`
}

// clone returns a copy safe to hand to readers outside the store lock.
func (n *HypothesisNode) clone() *HypothesisNode {
	cp := *n
	if n.SourceRefs != nil {
		cp.SourceRefs = append([]types.ID(nil), n.SourceRefs...)
	}
	return &cp
}

// Sentiment labels an evidence item's direction relative to a hypothesis.
type Sentiment string

const (
	SentimentSupporting    Sentiment = "supporting"
	SentimentContradicting Sentiment = "contradicting"
	SentimentNeutral       Sentiment = "neutral"
)

// IsValid checks whether the sentiment is a member of the closed enumeration.
func (s Sentiment) IsValid() bool {
	switch s {
	case SentimentSupporting, SentimentContradicting, SentimentNeutral:
		return true
	default:
		return false
	}
}

// Evidence is an external observation applied against a hypothesis node.
type Evidence struct {
	ID        types.ID  `json:"id"`
	Sentiment Sentiment `json:"sentiment"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
}
