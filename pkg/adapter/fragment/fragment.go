// Package fragment implements the reference text-fragment ingest adapter:
// a minimal stand-in for the full domain adapters spec.md excludes,
// existing so the engine, sinks, and
// enrichments are exercised end-to-end by more than unit tests against
// fakes.
package fragment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/plexusdb/plexus/pkg/model"
	"github.com/plexusdb/plexus/pkg/sink"
)

// Input is the payload the Adapter accepts: a piece of text, the tags it
// carries, and an opaque source identifier (a chain is reused across every
// fragment from the same source).
type Input struct {
	Text   string
	Tags   []string
	Source string
}

// Adapter turns one Input into a Document node, a provenance chain and mark
// pair, and tagged_with edges from the fragment to on-demand concept nodes.
type Adapter struct {
	id string
}

// New builds a fragment adapter registered under id (e.g. "manual-fragment").
func New(id string) *Adapter {
	if id == "" {
		id = "manual-fragment"
	}
	return &Adapter{id: id}
}

// ID implements ingest.Adapter.
func (a *Adapter) ID() string { return a.id }

// InputKind implements ingest.Adapter.
func (a *Adapter) InputKind() string { return "fragment" }

// Process implements ingest.Adapter. It ignores ctx: a single fragment's
// node/edge construction is fast enough that no suspension point inside it
// needs a cancellation check.
func (a *Adapter) Process(ctx context.Context, s sink.Sink, payload any) error {
	in, ok := payload.(Input)
	if !ok {
		return fmt.Errorf("fragment: unexpected payload type %T", payload)
	}
	if in.Source == "" {
		return fmt.Errorf("fragment: input source must not be empty")
	}

	fragmentID := model.NodeID("fragment:" + uuid.NewString())
	chainID := model.NodeID(fmt.Sprintf("chain:%s:%s", a.id, in.Source))
	markID := model.NodeID(fmt.Sprintf("mark:%s:%s", a.id, fragmentID))

	nodes := []model.AnnotatedNode{
		{Node: &model.Node{
			ID: fragmentID, Type: "Document", Content: model.ContentDocument, Dimension: model.DimensionStructure,
			Properties: map[string]any{"text": in.Text, "source": in.Source},
		}},
		{Node: &model.Node{
			ID: chainID, Type: "Chain", Content: model.ContentProvenance, Dimension: model.DimensionProvenance,
			Properties: map[string]any{"source": in.Source},
		}},
		{Node: &model.Node{
			ID: markID, Type: "Mark", Content: model.ContentProvenance, Dimension: model.DimensionProvenance,
			Properties: map[string]any{"tags": in.Tags, "fragmentId": string(fragmentID)},
		}},
	}

	edges := []model.AnnotatedEdge{
		{
			Edge: &model.Edge{
				Source: chainID, Target: markID, Relationship: "contains",
				SourceDimension: model.DimensionProvenance, TargetDimension: model.DimensionProvenance,
			},
			Contribution: 1,
		},
	}

	for _, tag := range in.Tags {
		norm := normalizeTag(tag)
		if norm == "" {
			continue
		}
		conceptID := model.NodeID("concept:" + norm)
		nodes = append(nodes, model.AnnotatedNode{Node: &model.Node{
			ID: conceptID, Type: "Concept", Content: model.ContentConcept, Dimension: model.DimensionSemantic,
			Properties: map[string]any{"label": norm},
		}})
		edges = append(edges, model.AnnotatedEdge{
			Edge: &model.Edge{
				Source: fragmentID, Target: conceptID, Relationship: "tagged_with",
				SourceDimension: model.DimensionStructure, TargetDimension: model.DimensionSemantic,
			},
			Contribution: 1,
		})
	}

	_, err := s.Emit(model.Emission{Nodes: nodes, Edges: edges})
	return err
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
}
