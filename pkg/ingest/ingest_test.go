package ingest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexusdb/plexus/pkg/config"
	"github.com/plexusdb/plexus/pkg/engine"
	"github.com/plexusdb/plexus/pkg/enrichment"
	"github.com/plexusdb/plexus/pkg/ingest"
	"github.com/plexusdb/plexus/pkg/model"
	"github.com/plexusdb/plexus/pkg/sink"
)

type fakeAdapter struct {
	id, inputKind string
	fn            func(ctx context.Context, s sink.Sink, payload any) error
}

func (a *fakeAdapter) ID() string        { return a.id }
func (a *fakeAdapter) InputKind() string { return a.inputKind }
func (a *fakeAdapter) Process(ctx context.Context, s sink.Sink, payload any) error {
	return a.fn(ctx, s, payload)
}

type transformingAdapter struct {
	fakeAdapter
}

func (a *transformingAdapter) TransformEvents(events []model.GraphEvent) []model.OutboundEvent {
	return []model.OutboundEvent{{Kind: "custom.summary", Detail: map[string]any{"count": len(events)}}}
}

func newTestPipeline(t *testing.T) (*ingest.Pipeline, *ingest.Registry) {
	t.Helper()
	eng := engine.New(nil)
	require.NoError(t, eng.CreateContext("c1", config.DefaultContextConfig()))
	adapters := ingest.NewRegistry()
	return &ingest.Pipeline{Engine: eng, Adapters: adapters, Enrichment: enrichment.NewRegistry()}, adapters
}

func TestIngestNoMatchingAdapter(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.Ingest(context.Background(), "c1", "unknown-kind", nil, config.DefaultContextConfig())
	assert.ErrorIs(t, err, ingest.ErrNoMatchingAdapter)
}

func TestIngestCommitsNodeFromAdapter(t *testing.T) {
	p, adapters := newTestPipeline(t)
	adapters.Register(&fakeAdapter{id: "a1", inputKind: "k1", fn: func(ctx context.Context, s sink.Sink, payload any) error {
		_, err := s.Emit(model.Emission{Nodes: []model.AnnotatedNode{{Node: &model.Node{ID: "x"}}}})
		return err
	}})

	result, err := p.Ingest(context.Background(), "c1", "k1", nil, config.DefaultContextConfig())
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.NotEmpty(t, result.Outbound)

	snap, _ := p.Engine.(*engine.Engine).Snapshot("c1")
	assert.True(t, snap.HasNode("x"))
}

// TestIngestAdapterErrorDoesNotBlockSiblings is §7's aggregation policy: one
// adapter failing must not prevent another, sharing the same input kind,
// from committing.
func TestIngestAdapterErrorDoesNotBlockSiblings(t *testing.T) {
	p, adapters := newTestPipeline(t)
	boom := errors.New("boom")
	adapters.Register(&fakeAdapter{id: "failing", inputKind: "k1", fn: func(ctx context.Context, s sink.Sink, payload any) error {
		return boom
	}})
	adapters.Register(&fakeAdapter{id: "succeeding", inputKind: "k1", fn: func(ctx context.Context, s sink.Sink, payload any) error {
		_, err := s.Emit(model.Emission{Nodes: []model.AnnotatedNode{{Node: &model.Node{ID: "y"}}}})
		return err
	}})

	result, err := p.Ingest(context.Background(), "c1", "k1", nil, config.DefaultContextConfig())
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "failing", result.Errors[0].AdapterID)
	assert.ErrorIs(t, result.Errors[0].Err, boom)

	snap, _ := p.Engine.(*engine.Engine).Snapshot("c1")
	assert.True(t, snap.HasNode("y"), "the succeeding adapter's commit must survive the other's failure")
}

func TestAdapterErrorSkippedHelper(t *testing.T) {
	wrapped := ingest.AdapterError{AdapterID: "a1", Err: ingest.ErrSkipped}
	assert.True(t, wrapped.Skipped())

	other := ingest.AdapterError{AdapterID: "a1", Err: errors.New("hard failure")}
	assert.False(t, other.Skipped())
}

func TestIngestDefaultOutboundTranslatesGraphEvents(t *testing.T) {
	p, adapters := newTestPipeline(t)
	adapters.Register(&fakeAdapter{id: "a1", inputKind: "k1", fn: func(ctx context.Context, s sink.Sink, payload any) error {
		_, err := s.Emit(model.Emission{Nodes: []model.AnnotatedNode{{Node: &model.Node{ID: "x"}}}})
		return err
	}})

	result, err := p.Ingest(context.Background(), "c1", "k1", nil, config.DefaultContextConfig())
	require.NoError(t, err)
	require.Len(t, result.Outbound, 1)
	assert.Equal(t, string(model.EventNodesAdded), result.Outbound[0].Kind)
	assert.Equal(t, "x", result.Outbound[0].Detail["nodeId"])
}

func TestIngestEventTransformerOverridesDefaultOutbound(t *testing.T) {
	p, adapters := newTestPipeline(t)
	adapters.Register(&transformingAdapter{fakeAdapter{id: "a1", inputKind: "k1", fn: func(ctx context.Context, s sink.Sink, payload any) error {
		_, err := s.Emit(model.Emission{Nodes: []model.AnnotatedNode{{Node: &model.Node{ID: "x"}}}})
		return err
	}}})

	result, err := p.Ingest(context.Background(), "c1", "k1", nil, config.DefaultContextConfig())
	require.NoError(t, err)
	require.Len(t, result.Outbound, 1)
	assert.Equal(t, "custom.summary", result.Outbound[0].Kind)
	assert.Equal(t, 1, result.Outbound[0].Detail["count"])
}

func TestIngestRunsEnrichmentAfterAdapters(t *testing.T) {
	eng := engine.New(nil)
	require.NoError(t, eng.CreateContext("c1", config.DefaultContextConfig()))
	eng.Emit("c1", "manual", model.Emission{Nodes: []model.AnnotatedNode{
		{Node: &model.Node{ID: "concept:travel", Content: model.ContentConcept, Dimension: model.DimensionSemantic, Properties: map[string]any{"label": "travel"}}},
	}})

	registry := ingest.NewRegistry()
	registry.Register(&fakeAdapter{id: "fragment", inputKind: "fragment", fn: func(ctx context.Context, s sink.Sink, payload any) error {
		_, err := s.Emit(model.Emission{Nodes: []model.AnnotatedNode{
			{Node: &model.Node{ID: "fragment:1", Content: model.ContentDocument, Dimension: model.DimensionStructure, Properties: map[string]any{"tags": []string{"travel"}}}},
		}})
		return err
	}})

	enrichmentRegistry := enrichment.NewRegistry()
	require.NoError(t, enrichmentRegistry.Register(enrichment.TagConceptBridger{}))

	p := &ingest.Pipeline{Engine: eng, Adapters: registry, Enrichment: enrichmentRegistry}
	_, err := p.Ingest(context.Background(), "c1", "fragment", nil, config.DefaultContextConfig())
	require.NoError(t, err)

	snap, _ := eng.Snapshot("c1")
	_, ok := snap.GetEdge(model.EdgeKey{
		Source: "fragment:1", Target: "concept:travel", Relationship: "references",
		SourceDimension: model.DimensionStructure, TargetDimension: model.DimensionSemantic,
	})
	assert.True(t, ok, "the enrichment loop must run against what the adapter committed")
}
