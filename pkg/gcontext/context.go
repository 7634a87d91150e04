// Package gcontext implements the bounded subgraph that all graph mutations
// are applied to.
//
// A Context owns its nodes and edges behind insertion-ordered maps so that
// iteration is deterministic, and behind a dimension index and
// outgoing/incoming adjacency indexes for fast dimension lookups and degree
// queries. Every mutation method is intended to be
// called only by the engine's commit path; callers outside the engine
// should treat a Context as read-only.
//
// This mirrors the teacher's MemoryEngine indexing approach (label index,
// outgoing/incoming edge index, RWMutex-guarded maps, deep-copy on
// read/write) generalized to Plexus's edge-key identity (source, target,
// relationship, source dimension, target dimension) instead of a single
// edge type string.
package gcontext

import (
	"sort"
	"sync"

	"github.com/plexusdb/plexus/pkg/model"
)

// Context is an in-memory bounded subgraph: an ordered node map, an ordered
// edge map, a source list, and per-context metadata. Cross-context edges
// are forbidden — every edge's endpoints must live in the same Context (or
// in the same emission being committed).
type Context struct {
	mu sync.RWMutex

	id       string
	nodes    map[model.NodeID]*model.Node
	nodeSeq  []model.NodeID // insertion order
	edges    map[model.EdgeKey]*model.Edge
	edgeSeq  []model.EdgeKey // insertion order

	nodesByDimension map[model.Dimension]map[model.NodeID]struct{}
	outgoing         map[model.NodeID]map[model.EdgeKey]struct{}
	incoming         map[model.NodeID]map[model.EdgeKey]struct{}

	sources  []string
	metadata map[string]any
}

// New creates an empty Context with the given id.
func New(id string) *Context {
	return &Context{
		id:               id,
		nodes:            make(map[model.NodeID]*model.Node),
		edges:            make(map[model.EdgeKey]*model.Edge),
		nodesByDimension: make(map[model.Dimension]map[model.NodeID]struct{}),
		outgoing:         make(map[model.NodeID]map[model.EdgeKey]struct{}),
		incoming:         make(map[model.NodeID]map[model.EdgeKey]struct{}),
		metadata:         make(map[string]any),
	}
}

// ID returns the context's identifier.
func (c *Context) ID() string {
	return c.id
}

// --- reads ---

// GetNode returns a deep copy of the node with the given id, or false if
// absent.
func (c *Context) GetNode(id model.NodeID) (*model.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// HasNode reports whether a node with the given id exists, without paying
// for a copy.
func (c *Context) HasNode(id model.NodeID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.nodes[id]
	return ok
}

// GetEdge returns a deep copy of the edge with the given key, or false if
// absent.
func (c *Context) GetEdge(key model.EdgeKey) (*model.Edge, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.edges[key]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// AllNodes returns deep copies of every node, in insertion order.
func (c *Context) AllNodes() []*model.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Node, 0, len(c.nodeSeq))
	for _, id := range c.nodeSeq {
		if n, ok := c.nodes[id]; ok {
			out = append(out, n.Clone())
		}
	}
	return out
}

// AllEdges returns deep copies of every edge, in insertion order.
func (c *Context) AllEdges() []*model.Edge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Edge, 0, len(c.edgeSeq))
	for _, k := range c.edgeSeq {
		if e, ok := c.edges[k]; ok {
			out = append(out, e.Clone())
		}
	}
	return out
}

// NodesByDimension returns deep copies of every node tagged with the given
// dimension, in insertion order.
func (c *Context) NodesByDimension(dim model.Dimension) []*model.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.nodesByDimension[dim]
	out := make([]*model.Node, 0, len(set))
	for _, id := range c.nodeSeq {
		if _, ok := set[id]; ok {
			out = append(out, c.nodes[id].Clone())
		}
	}
	return out
}

// FindNodes returns deep copies of every node for which pred returns true,
// in insertion order. A linear scan, matching spec's FindNodes primitive.
func (c *Context) FindNodes(pred func(*model.Node) bool) []*model.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Node, 0)
	for _, id := range c.nodeSeq {
		n := c.nodes[id]
		if pred(n) {
			out = append(out, n.Clone())
		}
	}
	return out
}

// OutgoingEdges returns deep copies of edges leaving the given node,
// optionally filtered by relationship (empty string = no filter).
func (c *Context) OutgoingEdges(id model.NodeID, relationship string) []*model.Edge {
	return c.edgesFromIndex(c.outgoing, id, relationship)
}

// IncomingEdges returns deep copies of edges arriving at the given node,
// optionally filtered by relationship.
func (c *Context) IncomingEdges(id model.NodeID, relationship string) []*model.Edge {
	return c.edgesFromIndex(c.incoming, id, relationship)
}

func (c *Context) edgesFromIndex(index map[model.NodeID]map[model.EdgeKey]struct{}, id model.NodeID, relationship string) []*model.Edge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := index[id]
	out := make([]*model.Edge, 0, len(keys))
	for k := range keys {
		if relationship != "" && k.Relationship != relationship {
			continue
		}
		if e, ok := c.edges[k]; ok {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Relationship < out[j].Relationship })
	return out
}

// InDegree returns the number of edges arriving at the given node.
func (c *Context) InDegree(id model.NodeID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.incoming[id])
}

// OutDegree returns the number of edges leaving the given node.
func (c *Context) OutDegree(id model.NodeID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.outgoing[id])
}

// Sources returns the context's opaque source id list.
func (c *Context) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.sources))
	copy(out, c.sources)
	return out
}

// AddSource records an opaque source id if not already present.
func (c *Context) AddSource(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sources {
		if s == source {
			return
		}
	}
	c.sources = append(c.sources, source)
}

// AllMetadata returns a copy of the full metadata map, used by the store
// when snapshotting a context for persistence.
func (c *Context) AllMetadata() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// Metadata returns the value stored under key, if any.
func (c *Context) Metadata(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.metadata[key]
	return v, ok
}

// SetMetadata stores a value under key.
func (c *Context) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// --- mutations: called only by the engine's commit path ---

// UpsertNode adds a new node or replaces an existing one's property map
// wholesale. Returns true if a node with this id already existed.
func (c *Context) UpsertNode(n *model.Node) (existed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsertNodeLocked(n)
}

func (c *Context) upsertNodeLocked(n *model.Node) (existed bool) {
	stored := n.Clone()
	if _, existed = c.nodes[n.ID]; !existed {
		c.nodeSeq = append(c.nodeSeq, n.ID)
	} else {
		// preserve insertion order, drop this node from its previous
		// dimension index slot before re-indexing below
		prev := c.nodes[n.ID]
		if set := c.nodesByDimension[prev.Dimension]; set != nil {
			delete(set, n.ID)
		}
	}
	c.nodes[n.ID] = stored

	if c.nodesByDimension[n.Dimension] == nil {
		c.nodesByDimension[n.Dimension] = make(map[model.NodeID]struct{})
	}
	c.nodesByDimension[n.Dimension][n.ID] = struct{}{}
	return existed
}

// ApplyPropertyUpdate merges a partial property map into an existing node
// (per-key last-writer-wins, untouched keys preserved). No-op if the node
// is absent. Returns true if applied.
func (c *Context) ApplyPropertyUpdate(u model.PropertyUpdate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[u.NodeID]
	if !ok {
		return false
	}
	if n.Properties == nil {
		n.Properties = make(map[string]any, len(u.Properties))
	}
	for k, v := range u.Properties {
		n.Properties[k] = v
	}
	return true
}

// AddOrReinforceEdge adds a new edge, or if one with the same EdgeKey
// already exists, replaces the emitting adapter's contribution slot
// (reinforcement) rather than accumulating it. Returns the stored edge and
// whether it already existed.
func (c *Context) AddOrReinforceEdge(key model.EdgeKey, adapterID string, contribution float64, properties map[string]any) (*model.Edge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, existed := c.edges[key]
	if !existed {
		e := &model.Edge{
			Source:          key.Source,
			Target:          key.Target,
			Relationship:    key.Relationship,
			SourceDimension: key.SourceDimension,
			TargetDimension: key.TargetDimension,
			Properties:      cloneMap(properties),
			Contributions:   map[string]float64{adapterID: contribution},
		}
		c.edges[key] = e
		c.edgeSeq = append(c.edgeSeq, key)
		c.indexEdge(key)
		return e.Clone(), false
	}

	if existing.Contributions == nil {
		existing.Contributions = make(map[string]float64)
	}
	existing.Contributions[adapterID] = contribution
	if properties != nil {
		if existing.Properties == nil {
			existing.Properties = make(map[string]any)
		}
		for k, v := range properties {
			existing.Properties[k] = v
		}
	}
	return existing.Clone(), true
}

func (c *Context) indexEdge(key model.EdgeKey) {
	if c.outgoing[key.Source] == nil {
		c.outgoing[key.Source] = make(map[model.EdgeKey]struct{})
	}
	c.outgoing[key.Source][key] = struct{}{}

	if c.incoming[key.Target] == nil {
		c.incoming[key.Target] = make(map[model.EdgeKey]struct{})
	}
	c.incoming[key.Target][key] = struct{}{}
}

func (c *Context) unindexEdge(key model.EdgeKey) {
	if set := c.outgoing[key.Source]; set != nil {
		delete(set, key)
	}
	if set := c.incoming[key.Target]; set != nil {
		delete(set, key)
	}
}

// RemoveEdge deletes a single edge. Returns true if it existed.
func (c *Context) RemoveEdge(key model.EdgeKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeEdgeLocked(key)
}

func (c *Context) removeEdgeLocked(key model.EdgeKey) bool {
	if _, ok := c.edges[key]; !ok {
		return false
	}
	delete(c.edges, key)
	c.unindexEdge(key)
	c.removeFromSeq(key)
	return true
}

func (c *Context) removeFromSeq(key model.EdgeKey) {
	for i, k := range c.edgeSeq {
		if k == key {
			c.edgeSeq = append(c.edgeSeq[:i], c.edgeSeq[i+1:]...)
			return
		}
	}
}

// RemoveNode deletes a node and cascades removal of every edge incident to
// it (in either direction). A no-op (returns false) if the node is absent.
func (c *Context) RemoveNode(id model.NodeID) (removedEdges []model.EdgeKey, existed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[id]
	if !ok {
		return nil, false
	}

	if set := c.nodesByDimension[n.Dimension]; set != nil {
		delete(set, id)
	}
	delete(c.nodes, id)
	for i, nid := range c.nodeSeq {
		if nid == id {
			c.nodeSeq = append(c.nodeSeq[:i], c.nodeSeq[i+1:]...)
			break
		}
	}

	seen := make(map[model.EdgeKey]struct{})
	for k := range c.outgoing[id] {
		seen[k] = struct{}{}
	}
	for k := range c.incoming[id] {
		seen[k] = struct{}{}
	}
	delete(c.outgoing, id)
	delete(c.incoming, id)

	for k := range seen {
		c.removeEdgeLocked(k)
		removedEdges = append(removedEdges, k)
	}
	return removedEdges, true
}

// SetRawWeight overwrites the derived raw weight of the edge identified by
// key. Called only by the weight model's recompute pass; never authored by
// adapters.
func (c *Context) SetRawWeight(key model.EdgeKey, rawWeight float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.edges[key]
	if !ok {
		return false
	}
	e.RawWeight = rawWeight
	return true
}

// RetractContribution removes a single adapter's slot from every edge's
// contribution map in the context. Returns the edges whose map changed.
func (c *Context) RetractContribution(adapterID string) []model.EdgeKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	var affected []model.EdgeKey
	for _, k := range c.edgeSeq {
		e := c.edges[k]
		if _, ok := e.Contributions[adapterID]; ok {
			delete(e.Contributions, adapterID)
			affected = append(affected, k)
		}
	}
	return affected
}

// SetEdge installs an edge verbatim (used by the store when hydrating a
// context from durable storage, where the full contribution map is already
// known and reinforcement semantics do not apply).
func (c *Context) SetEdge(e *model.Edge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := e.Key()
	if _, existed := c.edges[key]; !existed {
		c.edgeSeq = append(c.edgeSeq, key)
		c.indexEdge(key)
	}
	c.edges[key] = e.Clone()
}

// Edges returns deep copies of every edge currently stored (used by the
// weight model's recompute pass and by enrichments).
func (c *Context) Edges() []*model.Edge {
	return c.AllEdges()
}

// Clone returns a full, independent deep copy of the context, used for the
// enrichment loop's snapshot and for reflexive adapters' ProposalSink.
func (c *Context) Clone() *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cp := New(c.id)
	cp.sources = append([]string(nil), c.sources...)
	for k, v := range c.metadata {
		cp.metadata[k] = v
	}
	for _, id := range c.nodeSeq {
		cp.upsertNodeLocked(c.nodes[id].Clone())
	}
	for _, k := range c.edgeSeq {
		e := c.edges[k]
		cp.edges[k] = e.Clone()
		cp.edgeSeq = append(cp.edgeSeq, k)
		cp.indexEdge(k)
	}
	return cp
}

// CloneAs returns a full deep copy of the context under a new id, used by
// the engine to implement context rename (create-under-new-id-then-delete-
// old, since id is fixed for the lifetime of a Context value).
func (c *Context) CloneAs(newID string) *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cp := New(newID)
	cp.sources = append([]string(nil), c.sources...)
	for k, v := range c.metadata {
		cp.metadata[k] = v
	}
	for _, id := range c.nodeSeq {
		cp.upsertNodeLocked(c.nodes[id].Clone())
	}
	for _, k := range c.edgeSeq {
		e := c.edges[k]
		cp.edges[k] = e.Clone()
		cp.edgeSeq = append(cp.edgeSeq, k)
		cp.indexEdge(k)
	}
	return cp
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
