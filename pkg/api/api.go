// Package api is the façade every external caller (CLI, tests, a future
// transport surface) drives Plexus through: it bundles the engine and the
// ingest pipeline behind a small set of named operations instead of
// exposing the engine's commit primitives directly.
package api

import (
	"context"
	"fmt"

	"github.com/plexusdb/plexus/pkg/adapter/fragment"
	"github.com/plexusdb/plexus/pkg/config"
	"github.com/plexusdb/plexus/pkg/engine"
	"github.com/plexusdb/plexus/pkg/gcontext"
	"github.com/plexusdb/plexus/pkg/ingest"
	"github.com/plexusdb/plexus/pkg/model"
	"github.com/plexusdb/plexus/pkg/query"
)

// API bundles an Engine and an ingest Pipeline into the operation set
// callers use.
type API struct {
	Engine   *engine.Engine
	Pipeline *ingest.Pipeline
}

// New builds an API façade over eng and pipeline.
func New(eng *engine.Engine, pipeline *ingest.Pipeline) *API {
	return &API{Engine: eng, Pipeline: pipeline}
}

// --- context lifecycle ---

// CreateContext registers a new, empty context with the given tuning.
func (a *API) CreateContext(id string, cfg config.ContextConfig) error {
	return a.Engine.CreateContext(id, cfg)
}

// RenameContext moves a context's contents to a new id.
func (a *API) RenameContext(oldID, newID string) error {
	return a.Engine.RenameContext(oldID, newID)
}

// DeleteContext removes a context and everything durably written for it.
func (a *API) DeleteContext(id string) error {
	return a.Engine.DeleteContext(id)
}

// ListContexts returns every known context id, sorted.
func (a *API) ListContexts() []string {
	return a.Engine.ListContexts()
}

// Snapshot returns a read-only deep copy of a context's current state.
func (a *API) Snapshot(contextID string) (*gcontext.Context, error) {
	return a.Engine.Snapshot(contextID)
}

// --- ingest ---

// Ingest routes payload to every adapter registered for inputKind, commits
// their emissions, and drives enrichment to quiescence before returning.
func (a *API) Ingest(ctx context.Context, contextID, inputKind string, payload any) (ingest.Result, error) {
	cfg, err := a.Engine.ContextConfig(contextID)
	if err != nil {
		return ingest.Result{}, err
	}
	return a.Pipeline.Ingest(ctx, contextID, inputKind, payload, cfg)
}

// Annotate is the convenience composite spec.md describes: a single
// externally-visible operation that internally drives Ingest through the
// fragment adapter's input kind, so chain-reuse-by-source and mark
// creation stay implemented exactly once (in the adapter) rather than
// duplicated here. The chain node for source is created on first use and
// reused by every later mark from the same source.
func (a *API) Annotate(ctx context.Context, contextID, source, text string, tags []string) (ingest.Result, error) {
	return a.Ingest(ctx, contextID, "fragment", fragment.Input{Text: text, Tags: tags, Source: source})
}

// --- non-ingest mutations ---

// UpdateMark merges properties into an existing mark node without touching
// its provenance chain membership.
func (a *API) UpdateMark(contextID string, markID model.NodeID, properties map[string]any) (model.CommitResult, error) {
	return a.Engine.Emit(contextID, "api-update-mark", model.Emission{
		Updates: []model.PropertyUpdate{{NodeID: markID, Properties: properties}},
	})
}

// ArchiveChain marks a provenance chain archived in place, rather than
// removing it (removal would cascade-delete every mark it contains).
func (a *API) ArchiveChain(contextID string, chainID model.NodeID) (model.CommitResult, error) {
	return a.Engine.Emit(contextID, "api-archive-chain", model.Emission{
		Updates: []model.PropertyUpdate{{NodeID: chainID, Properties: map[string]any{"archived": true}}},
	})
}

// --- provenance reads ---

// ListChains returns every provenance chain node in a context.
func (a *API) ListChains(contextID string) ([]*model.Node, error) {
	snap, err := a.Engine.Snapshot(contextID)
	if err != nil {
		return nil, err
	}
	return query.FindNodes(snap, func(n *model.Node) bool { return n.Type == "Chain" }), nil
}

// GetChain returns a single provenance chain node by id.
func (a *API) GetChain(contextID string, chainID model.NodeID) (*model.Node, error) {
	snap, err := a.Engine.Snapshot(contextID)
	if err != nil {
		return nil, err
	}
	n, ok := snap.GetNode(chainID)
	if !ok {
		return nil, fmt.Errorf("api: get_chain: %s not found", chainID)
	}
	return n, nil
}

// ListMarks returns every mark a chain contains.
func (a *API) ListMarks(contextID string, chainID model.NodeID) ([]*model.Node, error) {
	snap, err := a.Engine.Snapshot(contextID)
	if err != nil {
		return nil, err
	}
	var out []*model.Node
	for _, e := range snap.OutgoingEdges(chainID, "contains") {
		if n, ok := snap.GetNode(e.Target); ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// ListTags returns the tag list a mark carries.
func (a *API) ListTags(contextID string, markID model.NodeID) ([]string, error) {
	snap, err := a.Engine.Snapshot(contextID)
	if err != nil {
		return nil, err
	}
	n, ok := snap.GetNode(markID)
	if !ok {
		return nil, fmt.Errorf("api: list_tags: %s not found", markID)
	}
	tags, _ := n.Properties["tags"].([]string)
	return tags, nil
}

// GetLinks returns every edge incident to a node, in either direction.
func (a *API) GetLinks(contextID string, nodeID model.NodeID) ([]*model.Edge, error) {
	snap, err := a.Engine.Snapshot(contextID)
	if err != nil {
		return nil, err
	}
	out := snap.OutgoingEdges(nodeID, "")
	out = append(out, snap.IncomingEdges(nodeID, "")...)
	return out, nil
}

// --- graph reads ---

// FindNodes returns every node in a context matching pred.
func (a *API) FindNodes(contextID string, pred func(*model.Node) bool) ([]*model.Node, error) {
	snap, err := a.Engine.Snapshot(contextID)
	if err != nil {
		return nil, err
	}
	return query.FindNodes(snap, pred), nil
}

// Traverse performs a breadth-first walk from start, returning nodes
// grouped by the depth at which each was first reached.
func (a *API) Traverse(contextID string, start model.NodeID, relationship string, maxDepth int, dir query.Direction) ([]query.DepthGroup, error) {
	snap, err := a.Engine.Snapshot(contextID)
	if err != nil {
		return nil, err
	}
	return query.Traverse(snap, start, relationship, maxDepth, dir)
}

// FindPath returns the shortest path between two nodes.
func (a *API) FindPath(contextID string, start, goal model.NodeID, relationship string) (*query.Path, error) {
	snap, err := a.Engine.Snapshot(contextID)
	if err != nil {
		return nil, err
	}
	return query.FindPath(snap, start, goal, relationship)
}

// EvidenceTrail returns the marks, chains, and fragments that evidence a
// concept, plus every edge walked to assemble the answer.
func (a *API) EvidenceTrail(contextID string, conceptID model.NodeID) (*query.EvidenceTrailResult, error) {
	snap, err := a.Engine.Snapshot(contextID)
	if err != nil {
		return nil, err
	}
	return query.EvidenceTrail(snap, conceptID)
}
