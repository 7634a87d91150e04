// Package model defines the Plexus data model: nodes, edges, contributions,
// emissions, and the graph events they produce.
//
// Design Principles:
//   - Node identity is the id alone; edge identity is the full endpoint/
//     relationship/dimension tuple (multiple relationships between the same
//     pair are distinct edges).
//   - Raw weight is derived, never authored: it is recomputed from the
//     per-adapter contribution map after every commit or retraction.
//   - Adapters never author provenance entries directly; the engine builds
//     them from adapter-supplied annotations.
//
// Example Usage:
//
//	node := &model.Node{
//		ID:        "concept:travel",
//		Type:      "Concept",
//		Content:   model.ContentConcept,
//		Dimension: model.DimensionSemantic,
//		Properties: map[string]any{"label": "travel"},
//	}
//
//	edge := &model.Edge{
//		Source:          "fragment:abc",
//		Target:          "concept:travel",
//		Relationship:    "tagged_with",
//		SourceDimension: model.DimensionStructure,
//		TargetDimension: model.DimensionSemantic,
//	}
package model

import "time"

// ContentType is a closed-set tag describing what kind of thing a node
// represents.
type ContentType string

// The closed set of content types a node may carry.
const (
	ContentDocument        ContentType = "Document"
	ContentConcept         ContentType = "Concept"
	ContentProvenance      ContentType = "Provenance"
	ContentMovementQuality ContentType = "MovementQuality"
	ContentOther           ContentType = "Other"
)

// Dimension is a closed-set facet tag on nodes and edges.
type Dimension string

// The closed set of dimensions.
const (
	DimensionStructure  Dimension = "structure"
	DimensionSemantic   Dimension = "semantic"
	DimensionRelational Dimension = "relational"
	DimensionTemporal   Dimension = "temporal"
	DimensionProvenance Dimension = "provenance"
)

// NodeID is a strongly-typed unique identifier for graph nodes. Ids are
// often deterministic from content or label (e.g. "concept:travel") so that
// re-emitting the same logical entity upserts rather than duplicates.
type NodeID string

// EdgeKey is the identity tuple of an edge: source, target, relationship,
// and the dimension tag each endpoint is asserted under. Two edges with the
// same endpoints but different relationships are distinct.
type EdgeKey struct {
	Source          NodeID
	Target          NodeID
	Relationship    string
	SourceDimension Dimension
	TargetDimension Dimension
}

// Node is a vertex in the knowledge graph.
//
// Identity is the ID alone. Re-emitting the same ID upserts: the property
// map is replaced wholesale (full-node upsert is last-writer-wins over the
// whole map; use a PropertyUpdate for a per-key merge instead).
type Node struct {
	ID         NodeID         `json:"id"`
	Type       string         `json:"type"`
	Content    ContentType    `json:"content"`
	Dimension  Dimension      `json:"dimension"`
	Properties map[string]any `json:"properties"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the node safe for storage or return to a
// caller without aliasing the receiver's property map.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	cp.Properties = cloneProps(n.Properties)
	return &cp
}

// Edge is a directed relationship between two nodes, carrying the
// per-adapter contribution map its raw weight is derived from.
//
// Edge identity is EdgeKey; multiple relationships between the same pair
// produce distinct edges (they do not share a contribution map).
type Edge struct {
	Source          NodeID         `json:"source"`
	Target          NodeID         `json:"target"`
	Relationship    string         `json:"relationship"`
	SourceDimension Dimension      `json:"sourceDimension"`
	TargetDimension Dimension      `json:"targetDimension"`
	Properties      map[string]any `json:"properties"`

	// Contributions holds each adapter's latest numeric assessment of this
	// edge's strength, keyed by adapter id. Re-emitting from the same
	// adapter replaces its slot (reinforcement), it does not accumulate.
	Contributions map[string]float64 `json:"contributions"`

	// RawWeight is derived: the scale-normalized sum of Contributions.
	// Never authored directly, recomputed after every commit/retraction.
	RawWeight float64 `json:"rawWeight"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key returns the edge's identity tuple.
func (e *Edge) Key() EdgeKey {
	return EdgeKey{
		Source:          e.Source,
		Target:          e.Target,
		Relationship:    e.Relationship,
		SourceDimension: e.SourceDimension,
		TargetDimension: e.TargetDimension,
	}
}

// Clone returns a deep copy of the edge, including its contribution map.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Properties = cloneProps(e.Properties)
	cp.Contributions = make(map[string]float64, len(e.Contributions))
	for k, v := range e.Contributions {
		cp.Contributions[k] = v
	}
	return &cp
}

func cloneProps(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Annotation is adapter-supplied metadata about a node or edge it is
// emitting. The engine, never the adapter, turns an Annotation into a
// ProvenanceEntry.
type Annotation struct {
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Location   string  `json:"location"`
	Detail     string  `json:"detail"`
}

// AnnotatedNode pairs a node with an optional annotation.
type AnnotatedNode struct {
	Node       *Node
	Annotation *Annotation
}

// AnnotatedEdge pairs an edge with an optional annotation. Contribution is
// this emission's value for the emitting adapter's slot; the engine stamps
// the adapter id on commit, so the adapter never sets Contributions itself.
type AnnotatedEdge struct {
	Edge       *Edge
	Contribution float64
	Annotation *Annotation
}

// ProvenanceEntry is a framework-constructed record combining an adapter's
// annotation with the adapter id, a timestamp, an input summary, and the
// context id it was produced in. Adapters never author these directly.
type ProvenanceEntry struct {
	AdapterID    string    `json:"adapterId"`
	ContextID    string    `json:"contextId"`
	Timestamp    time.Time `json:"timestamp"`
	InputSummary string    `json:"inputSummary"`
	Annotation   Annotation `json:"annotation"`
}

// PropertyUpdate is a partial patch to an existing node's property map.
// Untouched keys are preserved; per-key last-writer-wins; a no-op if the
// node is absent.
type PropertyUpdate struct {
	NodeID     NodeID
	Properties map[string]any
}

// ContributionRetraction erases a whole adapter's slot from every edge in
// the context, then the engine recomputes raw weights and prunes edges that
// emptied to zero weight.
type ContributionRetraction struct {
	AdapterID string
}

// Emission is the data unit passed through a sink in one call. Items are
// validated and committed one at a time (I7): a rejected item never blocks
// the rest of the emission.
type Emission struct {
	Nodes       []AnnotatedNode
	Edges       []AnnotatedEdge
	Removals    []NodeID
	Updates     []PropertyUpdate
	Retractions []ContributionRetraction
}

// IsEmpty reports whether the emission carries no items at all.
func (e Emission) IsEmpty() bool {
	return len(e.Nodes) == 0 && len(e.Edges) == 0 && len(e.Removals) == 0 &&
		len(e.Updates) == 0 && len(e.Retractions) == 0
}

// RejectionReason enumerates why a single emission item was not committed.
type RejectionReason string

// The closed set of rejection reasons.
const (
	ReasonMissingEndpoint         RejectionReason = "MissingEndpoint"
	ReasonDimensionMismatch       RejectionReason = "DimensionMismatch"
	ReasonRelationshipNotAllowed  RejectionReason = "RelationshipNotAllowed"
	ReasonRemovalNotAllowed       RejectionReason = "RemovalNotAllowed"
	ReasonContributionClamped     RejectionReason = "ContributionClamped"
)

// Rejection describes one item of an emission that did not commit.
type Rejection struct {
	Reason RejectionReason
	Detail string
}

// EventKind enumerates the kinds of graph events the engine emits.
type EventKind string

// The closed set of graph event kinds.
const (
	EventNodesAdded           EventKind = "NodesAdded"
	EventNodesRemoved         EventKind = "NodesRemoved"
	EventEdgesAdded           EventKind = "EdgesAdded"
	EventEdgesRemoved         EventKind = "EdgesRemoved"
	EventWeightsChanged       EventKind = "WeightsChanged"
	EventContributionsRetracted EventKind = "ContributionsRetracted"
	EventPropertiesUpdated    EventKind = "PropertiesUpdated"
)

// GraphEvent is a single change notification produced by a commit. It
// carries the originating adapter id (the emitter of the emission, or the
// enrichment's id when enrichment-produced) and enough detail for
// enrichments and callers to filter on it.
type GraphEvent struct {
	Kind      EventKind
	AdapterID string
	ContextID string
	NodeID    NodeID  `json:"nodeId,omitempty"`
	EdgeKey   *EdgeKey `json:"edgeKey,omitempty"`
}

// OutboundEvent is a {kind, detail} record adapters may produce from the
// accumulated graph events of a full ingest call. Intended as a
// notification for the caller, not a data payload.
type OutboundEvent struct {
	Kind   string
	Detail map[string]any
}

// CommitResult is the canonical description of what an emit call did:
// which items committed, which were rejected and why, and which graph
// events were produced. Partial success is the normal case.
type CommitResult struct {
	Accepted   int
	Rejections []Rejection
	Events     []GraphEvent
}
