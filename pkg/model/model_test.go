package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexusdb/plexus/pkg/model"
)

func TestNodeClone(t *testing.T) {
	n := &model.Node{
		ID:         "concept:travel",
		Type:       "Concept",
		Content:    model.ContentConcept,
		Dimension:  model.DimensionSemantic,
		Properties: map[string]any{"label": "travel"},
	}
	cp := n.Clone()
	require.NotNil(t, cp)
	assert.Equal(t, n.ID, cp.ID)

	cp.Properties["label"] = "mutated"
	assert.Equal(t, "travel", n.Properties["label"], "clone must not alias the original's property map")
}

func TestNodeCloneNil(t *testing.T) {
	var n *model.Node
	assert.Nil(t, n.Clone())
}

func TestEdgeKey(t *testing.T) {
	e := &model.Edge{
		Source: "a", Target: "b", Relationship: "tagged_with",
		SourceDimension: model.DimensionStructure, TargetDimension: model.DimensionSemantic,
	}
	key := e.Key()
	assert.Equal(t, model.NodeID("a"), key.Source)
	assert.Equal(t, model.NodeID("b"), key.Target)
	assert.Equal(t, "tagged_with", key.Relationship)
}

func TestEdgeCloneDeepCopiesContributions(t *testing.T) {
	e := &model.Edge{
		Source: "a", Target: "b", Relationship: "r",
		Contributions: map[string]float64{"adapter-a": 0.5},
	}
	cp := e.Clone()
	cp.Contributions["adapter-a"] = 99
	assert.Equal(t, 0.5, e.Contributions["adapter-a"])
}

func TestEmissionIsEmpty(t *testing.T) {
	assert.True(t, model.Emission{}.IsEmpty())

	assert.False(t, model.Emission{Nodes: []model.AnnotatedNode{{Node: &model.Node{ID: "x"}}}}.IsEmpty())
	assert.False(t, model.Emission{Edges: []model.AnnotatedEdge{{}}}.IsEmpty())
	assert.False(t, model.Emission{Removals: []model.NodeID{"x"}}.IsEmpty())
	assert.False(t, model.Emission{Updates: []model.PropertyUpdate{{}}}.IsEmpty())
	assert.False(t, model.Emission{Retractions: []model.ContributionRetraction{{}}}.IsEmpty())
}
