package graph

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// Store owns all node and edge mutation for a single engagement's thesis
// graph. Workflows hold only transient working copies during a phase and
// commit changes back through this API.
//
// The graph is held as an arena of nodes keyed by ID plus an adjacency index
// of outgoing and incoming edge lists per node ID. Nodes never hold pointers
// to each other, which keeps traversal and serialization cycle-safe.
//
// All methods are safe for concurrent use. Mutations from a single call are
// applied atomically from the perspective of other readers: a reader never
// observes a partially-applied evidence batch.
type Store struct {
	mu sync.RWMutex

	engagementID string

	nodes map[types.ID]*HypothesisNode
	edges map[types.ID]*CausalEdge

	// Adjacency index: outgoing and incoming edge IDs per node ID.
	outgoing map[types.ID][]types.ID
	incoming map[types.ID][]types.ID

	// Upsert index over the unique (source, target, relationship) triple.
	byTriple map[tripleKey]types.ID

	rootID types.ID
}

// NewStore creates an empty graph store for the given engagement.
func NewStore(engagementID string) *Store {
	return &Store{
		engagementID: engagementID,
		nodes:        make(map[types.ID]*HypothesisNode),
		edges:        make(map[types.ID]*CausalEdge),
		outgoing:     make(map[types.ID][]types.ID),
		incoming:     make(map[types.ID][]types.ID),
		byTriple:     make(map[tripleKey]types.ID),
	}
}

// EngagementID returns the engagement this graph belongs to.
func (s *Store) EngagementID() string {
	return s.engagementID
}

// CreateNode adds a hypothesis node with the neutral prior confidence of 0.5
// and status untested. Exactly one node per graph may have kind thesis; it is
// the root of the graph.
func (s *Store) CreateNode(kind NodeKind, content, createdBy string) (types.ID, error) {
	if !kind.IsValid() {
		return "", types.NewError(ErrInvalidKind, fmt.Sprintf("invalid node kind %q", kind))
	}
	if strings.TrimSpace(content) == "" {
		return "", types.NewError(ErrEmptyContent, "node content cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if kind == KindThesis && !s.rootID.IsZero() {
		return "", types.NewError(ErrDuplicateRoot,
			fmt.Sprintf("graph already has a thesis root node %s", s.rootID))
	}

	now := time.Now().UTC()
	node := &HypothesisNode{
		ID:         types.NewID(),
		Kind:       kind,
		Content:    content,
		Confidence: neutralPrior,
		Status:     StatusUntested,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.nodes[node.ID] = node
	if kind == KindThesis {
		s.rootID = node.ID
	}

	return node.ID, nil
}

// SetConfidence overwrites a node's confidence with a caller-supplied raw
// value. A value outside [0,1] is a validation error and mutates nothing:
// out-of-range confidence indicates a caller bug, never user input.
func (s *Store) SetConfidence(nodeID types.ID, confidence float64) error {
	if confidence < 0 || confidence > 1 {
		return types.NewError(ErrConfidenceOutOfRange,
			fmt.Sprintf("confidence %v outside [0,1] for node %s", confidence, nodeID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return types.NewError(ErrNodeNotFound, fmt.Sprintf("node %s not found", nodeID))
	}

	node.Confidence = round2(confidence)
	node.UpdatedAt = time.Now().UTC()
	return nil
}

// CreateEdge adds a directed causal edge between two existing nodes of the
// graph. Either endpoint missing is a dangling-reference validation error and
// creates nothing. A duplicate (source, target, relationship) triple upserts
// strength and reasoning on the existing edge.
func (s *Store) CreateEdge(sourceID, targetID types.ID, rel Relationship, strength float64, reasoning string) (types.ID, error) {
	if !rel.IsValid() {
		return "", types.NewError(ErrInvalidRelation, fmt.Sprintf("invalid relationship %q", rel))
	}
	if strength < 0 || strength > 1 {
		return "", types.NewError(ErrStrengthOutOfRange,
			fmt.Sprintf("strength %v outside [0,1]", strength))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[sourceID]; !ok {
		return "", types.NewError(ErrDanglingReference,
			fmt.Sprintf("edge source %s does not exist in graph", sourceID))
	}
	if _, ok := s.nodes[targetID]; !ok {
		return "", types.NewError(ErrDanglingReference,
			fmt.Sprintf("edge target %s does not exist in graph", targetID))
	}

	key := tripleKey{source: sourceID, target: targetID, relationship: rel}
	if existingID, ok := s.byTriple[key]; ok {
		edge := s.edges[existingID]
		edge.Strength = round2(strength)
		edge.Reasoning = reasoning
		return existingID, nil
	}

	edge := &CausalEdge{
		ID:           types.NewID(),
		SourceID:     sourceID,
		TargetID:     targetID,
		Relationship: rel,
		Strength:     round2(strength),
		Reasoning:    reasoning,
	}

	s.edges[edge.ID] = edge
	s.byTriple[key] = edge.ID
	s.outgoing[sourceID] = append(s.outgoing[sourceID], edge.ID)
	s.incoming[targetID] = append(s.incoming[targetID], edge.ID)

	return edge.ID, nil
}

// ApplyEvidence accumulates the confidence deltas of an evidence batch
// against a node: +0.05 per supporting item, -0.10 per contradicting item,
// 0 for neutral. The sum is added to the current confidence, clamped to
// [0,1] and rounded to two decimals, then the status transition rule is
// evaluated. The whole batch is applied atomically.
func (s *Store) ApplyEvidence(nodeID types.ID, items []Evidence) (float64, NodeStatus, error) {
	for _, item := range items {
		if !item.Sentiment.IsValid() {
			return 0, "", types.NewError(ErrInvalidSentiment,
				fmt.Sprintf("invalid evidence sentiment %q", item.Sentiment))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return 0, "", types.NewError(ErrNodeNotFound, fmt.Sprintf("node %s not found", nodeID))
	}

	delta := 0.0
	anyContradicting := false
	for _, item := range items {
		delta += evidenceDelta(item.Sentiment)
		if item.Sentiment == SentimentContradicting {
			anyContradicting = true
		}
		if !item.ID.IsZero() {
			node.SourceRefs = append(node.SourceRefs, item.ID)
		}
	}

	node.Confidence = round2(clamp01(node.Confidence + delta))
	node.Status = statusAfter(node.Status, node.Confidence, anyContradicting)
	node.UpdatedAt = time.Now().UTC()

	return node.Confidence, node.Status, nil
}

// BestMatchingParent scores candidate content against each candidate node's
// content by lexical similarity and returns the argmax, breaking ties in
// first-seen order. Returns false when the candidate set is empty or none of
// the candidates exist.
func (s *Store) BestMatchingParent(candidateContent string, candidates []types.ID) (types.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bestID types.ID
	bestScore := -1.0
	found := false

	for _, id := range candidates {
		node, ok := s.nodes[id]
		if !ok {
			continue
		}
		score := lexicalSimilarity(candidateContent, node.Content)
		if score > bestScore {
			bestScore = score
			bestID = id
			found = true
		}
	}

	return bestID, found
}

// Node returns a copy of the node with the given ID.
func (s *Store) Node(nodeID types.ID) (*HypothesisNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return nil, types.NewError(ErrNodeNotFound, fmt.Sprintf("node %s not found", nodeID))
	}
	return node.clone(), nil
}

// Root returns a copy of the graph's thesis root node, or nil when no thesis
// node has been created yet.
func (s *Store) Root() *HypothesisNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.rootID.IsZero() {
		return nil
	}
	return s.nodes[s.rootID].clone()
}

// Nodes returns copies of all nodes in the graph.
func (s *Store) Nodes() []*HypothesisNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*HypothesisNode, 0, len(s.nodes))
	for _, node := range s.nodes {
		out = append(out, node.clone())
	}
	return out
}

// NodesByKind returns copies of all nodes with the given kind.
func (s *Store) NodesByKind(kind NodeKind) []*HypothesisNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*HypothesisNode
	for _, node := range s.nodes {
		if node.Kind == kind {
			out = append(out, node.clone())
		}
	}
	return out
}

// Edges returns copies of all edges in the graph.
func (s *Store) Edges() []*CausalEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*CausalEdge, 0, len(s.edges))
	for _, edge := range s.edges {
		out = append(out, edge.clone())
	}
	return out
}

// Outgoing returns copies of the edges leaving the given node.
func (s *Store) Outgoing(nodeID types.ID) []*CausalEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.outgoing[nodeID]
	out := make([]*CausalEdge, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.edges[id].clone())
	}
	return out
}

// Incoming returns copies of the edges arriving at the given node.
func (s *Store) Incoming(nodeID types.ID) []*CausalEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.incoming[nodeID]
	out := make([]*CausalEdge, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.edges[id].clone())
	}
	return out
}

// NodeCount returns the number of nodes in the graph.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Snapshot captures a consistent copy of the whole graph for persistence or
// summarization.
type Snapshot struct {
	EngagementID string            `json:"engagement_id"`
	RootID       types.ID          `json:"root_id,omitempty"`
	Nodes        []*HypothesisNode `json:"nodes"`
	Edges        []*CausalEdge     `json:"edges"`
	TakenAt      time.Time         `json:"taken_at"`
}

// Snapshot returns a consistent point-in-time copy of the graph.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		EngagementID: s.engagementID,
		RootID:       s.rootID,
		Nodes:        make([]*HypothesisNode, 0, len(s.nodes)),
		Edges:        make([]*CausalEdge, 0, len(s.edges)),
		TakenAt:      time.Now().UTC(),
	}
	for _, node := range s.nodes {
		snap.Nodes = append(snap.Nodes, node.clone())
	}
	for _, edge := range s.edges {
		snap.Edges = append(snap.Edges, edge.clone())
	}
	return snap
}
