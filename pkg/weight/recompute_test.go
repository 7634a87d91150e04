package weight_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexusdb/plexus/pkg/gcontext"
	"github.com/plexusdb/plexus/pkg/model"
	"github.com/plexusdb/plexus/pkg/weight"
)

func newEdgeContext(t *testing.T) *gcontext.Context {
	t.Helper()
	ctx := gcontext.New("c1")
	ctx.UpsertNode(&model.Node{ID: "x", Dimension: model.DimensionSemantic})
	ctx.UpsertNode(&model.Node{ID: "y", Dimension: model.DimensionSemantic})
	return ctx
}

func TestRecomputeSingleAdapter(t *testing.T) {
	ctx := newEdgeContext(t)
	key := model.EdgeKey{Source: "x", Target: "y", Relationship: "r", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}
	ctx.AddOrReinforceEdge(key, "adapter-a", 10, nil)

	changed := weight.Recompute(ctx, weight.DefaultFloor)
	require.Len(t, changed, 1)

	e, ok := ctx.GetEdge(key)
	require.True(t, ok)
	assert.InDelta(t, 1.0, e.RawWeight, 1e-9, "a single contribution has zero range and normalizes to 1.0")
}

func TestRecomputeIsIdempotentWhenNothingChanges(t *testing.T) {
	ctx := newEdgeContext(t)
	key := model.EdgeKey{Source: "x", Target: "y", Relationship: "r", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}
	ctx.AddOrReinforceEdge(key, "adapter-a", 10, nil)

	weight.Recompute(ctx, weight.DefaultFloor)
	changed := weight.Recompute(ctx, weight.DefaultFloor)
	assert.Empty(t, changed, "recomputing from an already-settled state reports no changes")
}

func TestPruneEmptiedRemovesZeroWeightOrphans(t *testing.T) {
	ctx := newEdgeContext(t)
	key := model.EdgeKey{Source: "x", Target: "y", Relationship: "r", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}
	ctx.AddOrReinforceEdge(key, "adapter-a", 10, nil)
	weight.Recompute(ctx, weight.DefaultFloor)

	ctx.RetractContribution("adapter-a")
	weight.Recompute(ctx, weight.DefaultFloor)

	pruned := weight.PruneEmptied(ctx)
	require.Len(t, pruned, 1)
	assert.Equal(t, key, pruned[0])
	_, ok := ctx.GetEdge(key)
	assert.False(t, ok, "edge with an empty contribution map and zero weight must be pruned")
}

func TestPruneEmptiedKeepsEdgesWithRemainingContributions(t *testing.T) {
	ctx := newEdgeContext(t)
	key := model.EdgeKey{Source: "x", Target: "y", Relationship: "r", SourceDimension: model.DimensionSemantic, TargetDimension: model.DimensionSemantic}
	ctx.AddOrReinforceEdge(key, "adapter-a", 10, nil)
	ctx.AddOrReinforceEdge(key, "adapter-b", 20, nil)
	weight.Recompute(ctx, weight.DefaultFloor)

	ctx.RetractContribution("adapter-a")
	weight.Recompute(ctx, weight.DefaultFloor)

	pruned := weight.PruneEmptied(ctx)
	assert.Empty(t, pruned)
	_, ok := ctx.GetEdge(key)
	assert.True(t, ok)
}
