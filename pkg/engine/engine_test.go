package engine_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexusdb/plexus/pkg/config"
	"github.com/plexusdb/plexus/pkg/engine"
	"github.com/plexusdb/plexus/pkg/gcontext"
	"github.com/plexusdb/plexus/pkg/model"
	"github.com/plexusdb/plexus/pkg/store"
)

// failingStore lets tests exercise the persist-failure path (§4.2's
// failure model) without needing a real BadgerDB instance to break.
type failingStore struct {
	failNext bool
	saved    int
}

func (s *failingStore) SaveContext(ctx *gcontext.Context) error {
	s.saved++
	if s.failNext {
		s.failNext = false
		return errors.New("disk full")
	}
	return nil
}
func (s *failingStore) LoadContext(id string) (*gcontext.Context, error) { return nil, store.ErrContextNotFound }
func (s *failingStore) LoadAll() (map[string]*gcontext.Context, error)   { return nil, nil }
func (s *failingStore) DeleteContext(id string) error                   { return nil }
func (s *failingStore) Close() error                                     { return nil }

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng := engine.New(nil)
	require.NoError(t, eng.CreateContext("c1", config.DefaultContextConfig()))
	return eng
}

func TestCreateContextAlreadyExists(t *testing.T) {
	eng := newTestEngine(t)
	err := eng.CreateContext("c1", config.DefaultContextConfig())
	assert.ErrorIs(t, err, engine.ErrContextAlreadyExists)
}

func TestEmitUnknownContext(t *testing.T) {
	eng := engine.New(nil)
	_, err := eng.Emit("nope", "adapter-1", model.Emission{})
	assert.ErrorIs(t, err, engine.ErrContextNotFound)
}

func TestEmitEmptyEmissionIsNoOp(t *testing.T) {
	eng := newTestEngine(t)
	result, err := eng.Emit("c1", "adapter-1", model.Emission{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Accepted)
	assert.Empty(t, result.Events)
}

func TestEmitNodesAndEdges(t *testing.T) {
	eng := newTestEngine(t)
	emission := model.Emission{
		Nodes: []model.AnnotatedNode{
			{Node: &model.Node{ID: "fragment:1", Content: model.ContentDocument, Dimension: model.DimensionStructure}},
			{Node: &model.Node{ID: "concept:travel", Content: model.ContentConcept, Dimension: model.DimensionSemantic}},
		},
		Edges: []model.AnnotatedEdge{
			{
				Edge: &model.Edge{
					Source: "fragment:1", Target: "concept:travel", Relationship: "tagged_with",
					SourceDimension: model.DimensionStructure, TargetDimension: model.DimensionSemantic,
				},
				Contribution: 1.0,
			},
		},
	}
	result, err := eng.Emit("c1", "manual-fragment", emission)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Accepted)
	assert.Empty(t, result.Rejections)

	snap, err := eng.Snapshot("c1")
	require.NoError(t, err)
	assert.True(t, snap.HasNode("fragment:1"))
	assert.True(t, snap.HasNode("concept:travel"))

	edge, ok := snap.GetEdge(model.EdgeKey{Source: "fragment:1", Target: "concept:travel", Relationship: "tagged_with", SourceDimension: model.DimensionStructure, TargetDimension: model.DimensionSemantic})
	require.True(t, ok)
	assert.InDelta(t, 1.0, edge.RawWeight, 1e-9)
}

// TestMissingEndpointRejectedButOthersCommit is spec.md §8's endpoint
// validation property: a bad edge is rejected individually, valid items in
// the same emission still commit (I7).
func TestMissingEndpointRejectedButOthersCommit(t *testing.T) {
	eng := newTestEngine(t)
	emission := model.Emission{
		Nodes: []model.AnnotatedNode{
			{Node: &model.Node{ID: "a", Dimension: model.DimensionSemantic}},
			{Node: &model.Node{ID: "b", Dimension: model.DimensionSemantic}},
		},
		Edges: []model.AnnotatedEdge{
			{Edge: &model.Edge{Source: "a", Target: "b", Relationship: "r", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}}, // valid
			{Edge: &model.Edge{Source: "a", Target: "ghost", Relationship: "r", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}}, // invalid
		},
	}
	result, err := eng.Emit("c1", "adapter-1", emission)
	require.NoError(t, err)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, model.ReasonMissingEndpoint, result.Rejections[0].Reason)
	assert.Equal(t, 3, result.Accepted, "2 nodes + 1 valid edge")
}

func TestDimensionMismatchRejected(t *testing.T) {
	eng := newTestEngine(t)
	eng.Emit("c1", "adapter-1", model.Emission{Nodes: []model.AnnotatedNode{
		{Node: &model.Node{ID: "a", Dimension: model.DimensionSemantic}},
		{Node: &model.Node{ID: "b", Dimension: model.DimensionSemantic}},
	}})

	result, err := eng.Emit("c1", "adapter-1", model.Emission{Edges: []model.AnnotatedEdge{
		{Edge: &model.Edge{Source: "a", Target: "b", Relationship: "r", SourceDimension: model.DimensionStructure, TargetDimension: model.DimensionSemantic}},
	}})
	require.NoError(t, err)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, model.ReasonDimensionMismatch, result.Rejections[0].Reason)
}

func TestEdgeAgainstSameEmissionNode(t *testing.T) {
	eng := newTestEngine(t)
	// Node and edge referencing it arrive in the *same* emission (I1: "or
	// in the same emission being committed").
	emission := model.Emission{
		Nodes: []model.AnnotatedNode{
			{Node: &model.Node{ID: "x", Dimension: model.DimensionSemantic}},
			{Node: &model.Node{ID: "y", Dimension: model.DimensionSemantic}},
		},
		Edges: []model.AnnotatedEdge{
			{Edge: &model.Edge{Source: "x", Target: "y", Relationship: "r", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}},
		},
	}
	result, err := eng.Emit("c1", "adapter-1", emission)
	require.NoError(t, err)
	assert.Empty(t, result.Rejections)
	assert.Equal(t, 3, result.Accepted)
}

// TestReinforcementIdempotence is spec.md §8: re-emitting the same edge
// with the same contribution leaves the graph unchanged.
func TestReinforcementIdempotence(t *testing.T) {
	eng := newTestEngine(t)
	eng.Emit("c1", "a", model.Emission{Nodes: []model.AnnotatedNode{
		{Node: &model.Node{ID: "x", Dimension: model.DimensionSemantic}},
		{Node: &model.Node{ID: "y", Dimension: model.DimensionSemantic}},
	}})
	edge := func() model.AnnotatedEdge {
		return model.AnnotatedEdge{Edge: &model.Edge{Source: "x", Target: "y", Relationship: "r", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}, Contribution: 0.8}
	}

	eng.Emit("c1", "adapter-1", model.Emission{Edges: []model.AnnotatedEdge{edge()}})
	snap1, _ := eng.Snapshot("c1")
	e1, _ := snap1.GetEdge(model.EdgeKey{Source: "x", Target: "y", Relationship: "r", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic})

	eng.Emit("c1", "adapter-1", model.Emission{Edges: []model.AnnotatedEdge{edge()}})
	snap2, _ := eng.Snapshot("c1")
	e2, _ := snap2.GetEdge(model.EdgeKey{Source: "x", Target: "y", Relationship: "r", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic})

	assert.Equal(t, e1.Contributions, e2.Contributions)
	assert.Equal(t, e1.RawWeight, e2.RawWeight)
}

// TestCrossAdapterAccumulation is spec.md §8: two different adapters on
// the same edge both keep their slot, and raw weight reflects both.
func TestCrossAdapterAccumulation(t *testing.T) {
	eng := newTestEngine(t)
	eng.Emit("c1", "seed", model.Emission{Nodes: []model.AnnotatedNode{
		{Node: &model.Node{ID: "x", Dimension: model.DimensionSemantic}},
		{Node: &model.Node{ID: "y", Dimension: model.DimensionSemantic}},
	}})
	key := model.EdgeKey{Source: "x", Target: "y", Relationship: "r", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}

	eng.Emit("c1", "adapter-a", model.Emission{Edges: []model.AnnotatedEdge{{Edge: &model.Edge{Source: "x", Target: "y", Relationship: "r", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}, Contribution: 1.0}}})
	eng.Emit("c1", "adapter-b", model.Emission{Edges: []model.AnnotatedEdge{{Edge: &model.Edge{Source: "x", Target: "y", Relationship: "r", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}, Contribution: 400.0}}})

	snap, _ := eng.Snapshot("c1")
	edge, ok := snap.GetEdge(key)
	require.True(t, ok)
	require.Len(t, edge.Contributions, 2)
	assert.InDelta(t, 2.0, edge.RawWeight, 1e-9, "each adapter's single contribution normalizes to its own maximum (1.0 each)")
}

// TestRetractionRoundTrip is spec.md §8 scenario 5, scaled down: edges
// with only the retracted adapter's contribution are pruned; edges with
// other contributions survive with only those remaining.
func TestRetractionRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	eng.Emit("c1", "seed", model.Emission{Nodes: []model.AnnotatedNode{
		{Node: &model.Node{ID: "a", Dimension: model.DimensionSemantic}},
		{Node: &model.Node{ID: "b", Dimension: model.DimensionSemantic}},
		{Node: &model.Node{ID: "c", Dimension: model.DimensionSemantic}},
	}})

	v1Only := model.EdgeKey{Source: "a", Target: "b", Relationship: "similar_to", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}
	v1AndManual := model.EdgeKey{Source: "a", Target: "c", Relationship: "similar_to", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}

	eng.Emit("c1", "embedding:v1", model.Emission{Edges: []model.AnnotatedEdge{
		{Edge: &model.Edge{Source: "a", Target: "b", Relationship: "similar_to", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}, Contribution: 0.9},
		{Edge: &model.Edge{Source: "a", Target: "c", Relationship: "similar_to", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}, Contribution: 0.5},
	}})
	eng.Emit("c1", "manual", model.Emission{Edges: []model.AnnotatedEdge{
		{Edge: &model.Edge{Source: "a", Target: "c", Relationship: "similar_to", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}, Contribution: 1.0},
	}})

	result, err := eng.Emit("c1", "embedding:v1", model.Emission{Retractions: []model.ContributionRetraction{{AdapterID: "embedding:v1"}}})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Events)

	snap, _ := eng.Snapshot("c1")
	_, ok := snap.GetEdge(v1Only)
	assert.False(t, ok, "edge with only the retracted adapter's contribution is pruned")

	remaining, ok := snap.GetEdge(v1AndManual)
	require.True(t, ok)
	require.Len(t, remaining.Contributions, 1)
	assert.Contains(t, remaining.Contributions, "manual")
}

func TestPersistFailureRetainsInMemoryCommit(t *testing.T) {
	st := &failingStore{failNext: true}
	eng := engine.New(st)
	require.NoError(t, eng.CreateContext("c1", config.DefaultContextConfig()))
	st.failNext = true

	_, err := eng.Emit("c1", "adapter-1", model.Emission{Nodes: []model.AnnotatedNode{
		{Node: &model.Node{ID: "x", Dimension: model.DimensionSemantic}},
	}})
	require.Error(t, err, "persist failure surfaces as a commit-stage error")

	snap, serr := eng.Snapshot("c1")
	require.NoError(t, serr)
	assert.True(t, snap.HasNode("x"), "the in-memory commit is not rolled back on a persist failure")
}

func TestRenameContext(t *testing.T) {
	eng := newTestEngine(t)
	eng.Emit("c1", "a", model.Emission{Nodes: []model.AnnotatedNode{{Node: &model.Node{ID: "x"}}}})
	require.NoError(t, eng.RenameContext("c1", "c2"))

	_, err := eng.Snapshot("c1")
	assert.ErrorIs(t, err, engine.ErrContextNotFound)

	snap, err := eng.Snapshot("c2")
	require.NoError(t, err)
	assert.True(t, snap.HasNode("x"))
}

func TestListAndDeleteContexts(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.CreateContext("c0", config.DefaultContextConfig()))
	assert.Equal(t, []string{"c0", "c1"}, eng.ListContexts())

	require.NoError(t, eng.DeleteContext("c0"))
	assert.Equal(t, []string{"c1"}, eng.ListContexts())

	assert.ErrorIs(t, eng.DeleteContext("c0"), engine.ErrContextNotFound)
}
