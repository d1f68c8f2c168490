package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore("eng-test")
}

func TestCreateNodeDefaults(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateNode(KindSubThesis, "margins expand with scale", "tester")
	require.NoError(t, err)

	node, err := s.Node(id)
	require.NoError(t, err)
	assert.Equal(t, 0.5, node.Confidence, "new nodes start at the neutral prior")
	assert.Equal(t, StatusUntested, node.Status)
	assert.Equal(t, KindSubThesis, node.Kind)
	assert.Equal(t, "tester", node.CreatedBy)
	assert.False(t, node.CreatedAt.IsZero())
}

func TestCreateNodeRejectsEmptyContent(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateNode(KindSubThesis, "   ", "tester")
	require.Error(t, err)
	assert.Equal(t, ErrEmptyContent, types.CodeOf(err))
}

func TestCreateNodeSingleRoot(t *testing.T) {
	s := newTestStore(t)

	rootID, err := s.CreateNode(KindThesis, "the deal makes sense", "tester")
	require.NoError(t, err)

	_, err = s.CreateNode(KindThesis, "a second thesis", "tester")
	require.Error(t, err)
	assert.Equal(t, ErrDuplicateRoot, types.CodeOf(err))

	root := s.Root()
	require.NotNil(t, root)
	assert.Equal(t, rootID, root.ID)
}

func TestCreateEdgeReferentialIntegrity(t *testing.T) {
	s := newTestStore(t)

	a, err := s.CreateNode(KindSubThesis, "pricing power holds", "tester")
	require.NoError(t, err)

	_, err = s.CreateEdge(a, types.NewID(), RelSupports, 0.8, "dangling target")
	require.Error(t, err)
	assert.Equal(t, ErrDanglingReference, types.CodeOf(err))
	assert.Empty(t, s.Edges(), "a failed edge creation must create nothing")

	_, err = s.CreateEdge(types.NewID(), a, RelSupports, 0.8, "dangling source")
	require.Error(t, err)
	assert.Equal(t, ErrDanglingReference, types.CodeOf(err))
	assert.Empty(t, s.Edges())
}

func TestCreateEdgeUpsertsTriple(t *testing.T) {
	s := newTestStore(t)

	a, err := s.CreateNode(KindSubThesis, "retention stays above 90%", "tester")
	require.NoError(t, err)
	b, err := s.CreateNode(KindAssumption, "churn is driven by pricing", "tester")
	require.NoError(t, err)

	first, err := s.CreateEdge(b, a, RelSupports, 0.5, "initial reasoning")
	require.NoError(t, err)

	second, err := s.CreateEdge(b, a, RelSupports, 0.9, "revised reasoning")
	require.NoError(t, err)

	assert.Equal(t, first, second, "re-adding the same triple returns the same edge")
	edges := s.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, 0.9, edges[0].Strength, "second call's strength wins")
	assert.Equal(t, "revised reasoning", edges[0].Reasoning)
}

func TestCreateEdgeDistinctRelationships(t *testing.T) {
	s := newTestStore(t)

	a, err := s.CreateNode(KindSubThesis, "unit economics improve", "tester")
	require.NoError(t, err)
	b, err := s.CreateNode(KindAssumption, "CAC keeps falling", "tester")
	require.NoError(t, err)

	_, err = s.CreateEdge(b, a, RelSupports, 0.5, "")
	require.NoError(t, err)
	_, err = s.CreateEdge(b, a, RelRequires, 0.5, "")
	require.NoError(t, err)

	assert.Len(t, s.Edges(), 2, "different relationships are different edges")
}

func TestApplyEvidenceLaw(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateNode(KindSubThesis, "gross margin is durable", "tester")
	require.NoError(t, err)

	// 2 supporting + 1 contradicting from 0.50: +0.10 - 0.10 = 0.50.
	confidence, status, err := s.ApplyEvidence(id, []Evidence{
		{ID: types.NewID(), Sentiment: SentimentSupporting, Content: "audited margins stable"},
		{ID: types.NewID(), Sentiment: SentimentSupporting, Content: "peer comparison favorable"},
		{ID: types.NewID(), Sentiment: SentimentContradicting, Content: "input costs rising"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.50, confidence)
	assert.Equal(t, StatusChallenged, status,
		"0.50 with a contradicting item applied is challenged")

	node, err := s.Node(id)
	require.NoError(t, err)
	assert.Equal(t, 0.50, node.Confidence)
	assert.Len(t, node.SourceRefs, 3, "evidence ids accumulate on the node")
}

func TestApplyEvidenceStatusThresholds(t *testing.T) {
	tests := []struct {
		name       string
		start      float64
		items      []Evidence
		wantConf   float64
		wantStatus NodeStatus
	}{
		{
			name:  "supported at 0.85",
			start: 0.80,
			items: []Evidence{
				{ID: types.NewID(), Sentiment: SentimentSupporting, Content: "a"},
			},
			wantConf:   0.85,
			wantStatus: StatusSupported,
		},
		{
			name:  "refuted at 0.15",
			start: 0.25,
			items: []Evidence{
				{ID: types.NewID(), Sentiment: SentimentContradicting, Content: "b"},
			},
			wantConf:   0.15,
			wantStatus: StatusRefuted,
		},
		{
			name:  "neutral keeps confidence",
			start: 0.50,
			items: []Evidence{
				{ID: types.NewID(), Sentiment: SentimentNeutral, Content: "c"},
			},
			wantConf:   0.50,
			wantStatus: StatusUntested,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			id, err := s.CreateNode(KindSubThesis, "hypothesis under test", "tester")
			require.NoError(t, err)
			require.NoError(t, s.SetConfidence(id, tt.start))

			confidence, status, err := s.ApplyEvidence(id, tt.items)
			require.NoError(t, err)
			assert.Equal(t, tt.wantConf, confidence)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestApplyEvidenceClampsToBounds(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateNode(KindSubThesis, "upside case", "tester")
	require.NoError(t, err)
	require.NoError(t, s.SetConfidence(id, 0.95))

	items := make([]Evidence, 5)
	for i := range items {
		items[i] = Evidence{ID: types.NewID(), Sentiment: SentimentSupporting, Content: "more support"}
	}
	confidence, status, err := s.ApplyEvidence(id, items)
	require.NoError(t, err)
	assert.Equal(t, 1.0, confidence, "confidence never exceeds 1")
	assert.Equal(t, StatusSupported, status)

	items = make([]Evidence, 12)
	for i := range items {
		items[i] = Evidence{ID: types.NewID(), Sentiment: SentimentContradicting, Content: "strong refutation"}
	}
	confidence, status, err = s.ApplyEvidence(id, items)
	require.NoError(t, err)
	assert.Equal(t, 0.0, confidence, "confidence never drops below 0")
	assert.Equal(t, StatusRefuted, status)
}

func TestApplyEvidenceRejectsInvalidSentiment(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateNode(KindSubThesis, "hypothesis", "tester")
	require.NoError(t, err)

	_, _, err = s.ApplyEvidence(id, []Evidence{
		{ID: types.NewID(), Sentiment: SentimentSupporting, Content: "fine"},
		{ID: types.NewID(), Sentiment: Sentiment("enthusiastic"), Content: "not a sentiment"},
	})
	require.Error(t, err)
	assert.Equal(t, ErrInvalidSentiment, types.CodeOf(err))

	node, err := s.Node(id)
	require.NoError(t, err)
	assert.Equal(t, 0.5, node.Confidence, "a rejected batch mutates nothing")
	assert.Empty(t, node.SourceRefs)
}

func TestSetConfidenceRejectsOutOfRange(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateNode(KindSubThesis, "hypothesis", "tester")
	require.NoError(t, err)

	err = s.SetConfidence(id, 1.2)
	require.Error(t, err)
	assert.Equal(t, ErrConfidenceOutOfRange, types.CodeOf(err))

	node, err := s.Node(id)
	require.NoError(t, err)
	assert.Equal(t, 0.5, node.Confidence)
}

func TestBestMatchingParent(t *testing.T) {
	s := newTestStore(t)

	a, err := s.CreateNode(KindSubThesis, "enterprise customers renew because switching costs are high", "tester")
	require.NoError(t, err)
	b, err := s.CreateNode(KindSubThesis, "consumer demand grows in emerging markets", "tester")
	require.NoError(t, err)

	match, ok := s.BestMatchingParent("switching costs keep enterprise customers locked in", []types.ID{a, b})
	require.True(t, ok)
	assert.Equal(t, a, match)

	_, ok = s.BestMatchingParent("anything", nil)
	assert.False(t, ok, "empty candidate set yields no match")
}

func TestBestMatchingParentTieBreaksFirstSeen(t *testing.T) {
	s := newTestStore(t)

	a, err := s.CreateNode(KindSubThesis, "alpha beta gamma delta", "tester")
	require.NoError(t, err)
	b, err := s.CreateNode(KindSubThesis, "alpha beta gamma delta", "tester")
	require.NoError(t, err)

	match, ok := s.BestMatchingParent("alpha beta gamma delta", []types.ID{a, b})
	require.True(t, ok)
	assert.Equal(t, a, match, "ties resolve to the first candidate")
}

func TestAdjacencyIndexes(t *testing.T) {
	s := newTestStore(t)

	root, err := s.CreateNode(KindThesis, "the company is a buy", "tester")
	require.NoError(t, err)
	child, err := s.CreateNode(KindSubThesis, "revenue quality is high", "tester")
	require.NoError(t, err)

	_, err = s.CreateEdge(child, root, RelSupports, 0.7, "")
	require.NoError(t, err)

	out := s.Outgoing(child)
	require.Len(t, out, 1)
	assert.Equal(t, root, out[0].TargetID)

	in := s.Incoming(root)
	require.Len(t, in, 1)
	assert.Equal(t, child, in[0].SourceID)

	assert.Empty(t, s.Outgoing(root))
	assert.Empty(t, s.Incoming(child))
}

func TestSnapshotIsDetached(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateNode(KindThesis, "thesis", "tester")
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap.Nodes, 1)
	snap.Nodes[0].Confidence = 0.99

	node, err := s.Node(id)
	require.NoError(t, err)
	assert.Equal(t, 0.5, node.Confidence, "mutating a snapshot never touches the store")
	assert.Equal(t, "eng-test", snap.EngagementID)
	assert.Equal(t, id, snap.RootID)
}

func TestManagerScopesStoresByEngagement(t *testing.T) {
	m := NewManager()

	s1 := m.For("eng-a")
	s2 := m.For("eng-a")
	s3 := m.For("eng-b")

	assert.Same(t, s1, s2)
	assert.NotSame(t, s1, s3)

	_, err := s1.CreateNode(KindThesis, "thesis for a", "tester")
	require.NoError(t, err)
	assert.Nil(t, s3.Root(), "engagement graphs are isolated")

	assert.Nil(t, m.Snapshot("eng-unknown"))
	require.NotNil(t, m.Snapshot("eng-a"))
}
