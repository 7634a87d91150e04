// Package engine owns every in-memory Context, serializes commits to each
// one individually, and durably persists the result of every commit.
//
// This is the sole place mutation happens: sinks and the ingest pipeline
// call Emit, never the Context mutation methods directly. The commit
// algorithm runs in a fixed phase order (retractions, nodes, property
// updates, edges, removals, weight recompute, persist) so that an edge
// referencing a node from the same emission always resolves, and so raw
// weight is always derived fresh rather than carried stale across a
// retraction.
//
// Example Usage:
//
//	eng := engine.New(st)
//	if err := eng.Hydrate(); err != nil {
//		log.Fatalf("hydrate: %v", err)
//	}
//	eng.CreateContext("demo", config.DefaultContextConfig())
//	result, err := eng.Emit("demo", "manual-fragment", emission)
package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/plexusdb/plexus/pkg/config"
	"github.com/plexusdb/plexus/pkg/gcontext"
	"github.com/plexusdb/plexus/pkg/model"
	"github.com/plexusdb/plexus/pkg/store"
	"github.com/plexusdb/plexus/pkg/weight"
)

// Engine-level errors.
var (
	ErrContextNotFound      = errors.New("engine: context not found")
	ErrContextAlreadyExists = errors.New("engine: context already exists")
)

// MetricsRecorder is the optional observability hook the engine calls on
// every commit. pkg/metrics implements this; nil is a valid Engine.Metrics
// value (every call site nil-checks before invoking it).
type MetricsRecorder interface {
	CommitAccepted(contextID string, n int)
	CommitRejected(contextID string, reason model.RejectionReason)
	EnrichmentRoundCeilingHit(contextID string)
	PersistFailed(contextID string)
}

type contextEntry struct {
	mu  sync.Mutex // serializes commits to this single context
	ctx *gcontext.Context
	cfg config.ContextConfig
}

// Engine holds every context the process knows about and the store they are
// durably written through.
type Engine struct {
	mu      sync.RWMutex // protects the entries map itself, not its values
	entries map[string]*contextEntry
	store   store.Store

	// Metrics is called on every commit if non-nil.
	Metrics MetricsRecorder
}

// New constructs an Engine backed by st. st may be nil, in which case
// commits are never persisted (useful for tests).
func New(st store.Store) *Engine {
	return &Engine{
		entries: make(map[string]*contextEntry),
		store:   st,
	}
}

// Hydrate loads every context the store knows about into memory. Call once
// on startup, before serving any traffic.
func (e *Engine) Hydrate() error {
	if e.store == nil {
		return nil
	}
	loaded, err := e.store.LoadAll()
	if err != nil {
		return fmt.Errorf("engine: hydrate: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ctx := range loaded {
		e.entries[id] = &contextEntry{ctx: ctx, cfg: config.DefaultContextConfig()}
	}
	return nil
}

// CreateContext registers a new, empty context. Returns
// ErrContextAlreadyExists if id is already in use.
func (e *Engine) CreateContext(id string, cfg config.ContextConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entries[id]; ok {
		return ErrContextAlreadyExists
	}
	e.entries[id] = &contextEntry{ctx: gcontext.New(id), cfg: cfg}
	if e.store != nil {
		if err := e.store.SaveContext(e.entries[id].ctx); err != nil {
			delete(e.entries, id)
			return fmt.Errorf("engine: create context %s: %w", id, err)
		}
	}
	return nil
}

// DeleteContext removes a context from memory and from the store.
func (e *Engine) DeleteContext(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entries[id]; !ok {
		return ErrContextNotFound
	}
	delete(e.entries, id)
	if e.store != nil {
		if err := e.store.DeleteContext(id); err != nil {
			return fmt.Errorf("engine: delete context %s: %w", id, err)
		}
	}
	return nil
}

// RenameContext moves a context's contents to a new id. The old id is freed.
func (e *Engine) RenameContext(oldID, newID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.entries[oldID]
	if !ok {
		return ErrContextNotFound
	}
	if _, taken := e.entries[newID]; taken {
		return ErrContextAlreadyExists
	}

	entry.mu.Lock()
	renamed := entry.ctx.CloneAs(newID)
	entry.mu.Unlock()

	newEntry := &contextEntry{ctx: renamed, cfg: entry.cfg}
	if e.store != nil {
		if err := e.store.SaveContext(renamed); err != nil {
			return fmt.Errorf("engine: rename context %s -> %s: %w", oldID, newID, err)
		}
		if err := e.store.DeleteContext(oldID); err != nil {
			return fmt.Errorf("engine: rename context %s -> %s: %w", oldID, newID, err)
		}
	}
	e.entries[newID] = newEntry
	delete(e.entries, oldID)
	return nil
}

// ListContexts returns every known context id, sorted.
func (e *Engine) ListContexts() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.entries))
	for id := range e.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a read-only deep copy of a context's current state.
func (e *Engine) Snapshot(contextID string) (*gcontext.Context, error) {
	entry, err := e.lookup(contextID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.ctx.Clone(), nil
}

// ContextConfig returns the tuning in effect for a context.
func (e *Engine) ContextConfig(contextID string) (config.ContextConfig, error) {
	entry, err := e.lookup(contextID)
	if err != nil {
		return config.ContextConfig{}, err
	}
	return entry.cfg, nil
}

func (e *Engine) lookup(contextID string) (*contextEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.entries[contextID]
	if !ok {
		return nil, ErrContextNotFound
	}
	return entry, nil
}

// Emit commits one emission against a context's commit lock and returns
// which items were accepted, which were rejected and why, and the graph
// events produced. Persistence happens once per call, after every phase
// (spec's I8). Memory and disk diverge after a crash between commit and
// persist, and after a failed save: that error is returned and the
// in-memory commit is kept.
//
// Phase order: retractions, node upserts, property updates, edge upserts,
// node removals, weight recompute + prune, persist.
func (e *Engine) Emit(contextID, adapterID string, emission model.Emission) (model.CommitResult, error) {
	entry, err := e.lookup(contextID)
	if err != nil {
		return model.CommitResult{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if emission.IsEmpty() {
		return model.CommitResult{}, nil
	}

	ctx := entry.ctx
	now := time.Now()
	result := model.CommitResult{}

	// Phase 0: contribution retractions.
	for _, r := range emission.Retractions {
		affected := ctx.RetractContribution(r.AdapterID)
		for _, key := range affected {
			k := key
			result.Events = append(result.Events, model.GraphEvent{
				Kind: model.EventContributionsRetracted, AdapterID: adapterID,
				ContextID: contextID, EdgeKey: &k,
			})
		}
		result.Accepted++
	}

	// Phase 1: node upserts.
	for _, an := range emission.Nodes {
		n := an.Node
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		n.UpdatedAt = now
		if an.Annotation != nil {
			if n.Properties == nil {
				n.Properties = make(map[string]any, 1)
			}
			appendProvenance(n.Properties, buildProvenance(adapterID, contextID, an.Annotation, now))
		}
		existed := ctx.UpsertNode(n)
		kind := model.EventNodesAdded
		if existed {
			kind = model.EventPropertiesUpdated
		}
		result.Events = append(result.Events, model.GraphEvent{Kind: kind, AdapterID: adapterID, ContextID: contextID, NodeID: n.ID})
		result.Accepted++
	}

	// Phase 2: property updates.
	for _, u := range emission.Updates {
		if ctx.ApplyPropertyUpdate(u) {
			result.Events = append(result.Events, model.GraphEvent{Kind: model.EventPropertiesUpdated, AdapterID: adapterID, ContextID: contextID, NodeID: u.NodeID})
			result.Accepted++
		}
	}

	// Phase 3: edge upserts.
	for _, ae := range emission.Edges {
		edge := ae.Edge
		key := edge.Key()

		srcNode, srcOK := ctx.GetNode(key.Source)
		tgtNode, tgtOK := ctx.GetNode(key.Target)
		if !srcOK || !tgtOK {
			result.Rejections = append(result.Rejections, model.Rejection{
				Reason: model.ReasonMissingEndpoint,
				Detail: fmt.Sprintf("%s -[%s]-> %s", key.Source, key.Relationship, key.Target),
			})
			continue
		}
		if srcNode.Dimension != key.SourceDimension || tgtNode.Dimension != key.TargetDimension {
			result.Rejections = append(result.Rejections, model.Rejection{
				Reason: model.ReasonDimensionMismatch,
				Detail: fmt.Sprintf("%s -[%s]-> %s", key.Source, key.Relationship, key.Target),
			})
			continue
		}

		props := edge.Properties
		if ae.Annotation != nil {
			if props == nil {
				props = make(map[string]any, 1)
			}
			appendProvenance(props, buildProvenance(adapterID, contextID, ae.Annotation, now))
		}

		_, existed := ctx.AddOrReinforceEdge(key, adapterID, ae.Contribution, props)
		if !existed {
			k := key
			result.Events = append(result.Events, model.GraphEvent{Kind: model.EventEdgesAdded, AdapterID: adapterID, ContextID: contextID, EdgeKey: &k})
		}
		result.Accepted++
	}

	// Phase 4: node removals (cascades to incident edges).
	for _, id := range emission.Removals {
		removedEdges, existed := ctx.RemoveNode(id)
		if !existed {
			continue
		}
		result.Events = append(result.Events, model.GraphEvent{Kind: model.EventNodesRemoved, AdapterID: adapterID, ContextID: contextID, NodeID: id})
		for _, key := range removedEdges {
			k := key
			result.Events = append(result.Events, model.GraphEvent{Kind: model.EventEdgesRemoved, AdapterID: adapterID, ContextID: contextID, EdgeKey: &k})
		}
		result.Accepted++
	}

	// Phase 5: recompute derived weights, then prune edges that emptied.
	for _, key := range weight.Recompute(ctx, entry.cfg.FloorCoefficient) {
		k := key
		result.Events = append(result.Events, model.GraphEvent{Kind: model.EventWeightsChanged, AdapterID: adapterID, ContextID: contextID, EdgeKey: &k})
	}
	for _, key := range weight.PruneEmptied(ctx) {
		k := key
		result.Events = append(result.Events, model.GraphEvent{Kind: model.EventEdgesRemoved, AdapterID: adapterID, ContextID: contextID, EdgeKey: &k})
	}

	// Phase 6: persist.
	if e.store != nil {
		if err := e.store.SaveContext(ctx); err != nil {
			if e.Metrics != nil {
				e.Metrics.PersistFailed(contextID)
			}
			return result, fmt.Errorf("engine: persist context %s: %w", contextID, err)
		}
	}

	if e.Metrics != nil {
		e.Metrics.CommitAccepted(contextID, result.Accepted)
		for _, rej := range result.Rejections {
			e.Metrics.CommitRejected(contextID, rej.Reason)
		}
	}

	return result, nil
}

func buildProvenance(adapterID, contextID string, a *model.Annotation, now time.Time) model.ProvenanceEntry {
	return model.ProvenanceEntry{
		AdapterID:    adapterID,
		ContextID:    contextID,
		Timestamp:    now,
		InputSummary: a.Detail,
		Annotation:   *a,
	}
}

// provenanceKey is the reserved property key the engine appends framework-
// constructed ProvenanceEntry records under, mirroring the teacher's
// underscore-prefixed system property convention for engine-owned fields.
const provenanceKey = "_provenance"

func appendProvenance(props map[string]any, entry model.ProvenanceEntry) {
	existing, _ := props[provenanceKey].([]model.ProvenanceEntry)
	props[provenanceKey] = append(existing, entry)
}
