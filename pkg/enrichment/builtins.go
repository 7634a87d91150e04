package enrichment

import (
	"strings"
	"time"

	"github.com/plexusdb/plexus/pkg/gcontext"
	"github.com/plexusdb/plexus/pkg/model"
	"github.com/plexusdb/plexus/pkg/sink"
)

// TagConceptBridger bridges a newly tagged node to the concept nodes its
// tags name, and symmetrically bridges a newly added concept to nodes
// already carrying its label as a tag. Trigger: NodesAdded.
type TagConceptBridger struct {
	// OutputRelationship is the relationship emitted between a tagged node
	// and a concept. Defaults to "references".
	OutputRelationship string
}

func (TagConceptBridger) ID() string { return "tag-concept-bridger" }

func (e TagConceptBridger) Relationships() []string {
	return []string{e.relationship()}
}

func (e TagConceptBridger) relationship() string {
	if e.OutputRelationship == "" {
		return "references"
	}
	return e.OutputRelationship
}

func (e TagConceptBridger) Run(snap *gcontext.Context, events []model.GraphEvent, s *sink.ProposalSink) (model.CommitResult, error) {
	rel := e.relationship()
	var edges []model.AnnotatedEdge

	for _, evt := range events {
		if evt.Kind != model.EventNodesAdded {
			continue
		}
		n, ok := snap.GetNode(evt.NodeID)
		if !ok {
			continue
		}

		if tags := stringSlice(n.Properties["tags"]); len(tags) > 0 {
			for _, tag := range tags {
				conceptID := model.NodeID("concept:" + normalizeTag(tag))
				concept, ok := snap.GetNode(conceptID)
				if !ok {
					continue
				}
				edges = append(edges, bridgeEdge(n.ID, n.Dimension, conceptID, concept.Dimension, rel, snap)...)
			}
			continue
		}

		if n.Content == model.ContentConcept {
			label, _ := n.Properties["label"].(string)
			if label == "" {
				continue
			}
			for _, other := range snap.FindNodes(func(cand *model.Node) bool {
				if cand.ID == n.ID {
					return false
				}
				for _, tag := range stringSlice(cand.Properties["tags"]) {
					if normalizeTag(tag) == label {
						return true
					}
				}
				return false
			}) {
				edges = append(edges, bridgeEdge(other.ID, other.Dimension, n.ID, n.Dimension, rel, snap)...)
			}
		}
	}

	if len(edges) == 0 {
		return model.CommitResult{}, nil
	}
	return s.Emit(model.Emission{Edges: edges})
}

func bridgeEdge(from model.NodeID, fromDim model.Dimension, to model.NodeID, toDim model.Dimension, rel string, snap *gcontext.Context) []model.AnnotatedEdge {
	key := model.EdgeKey{Source: from, Target: to, Relationship: rel, SourceDimension: fromDim, TargetDimension: toDim}
	if _, exists := snap.GetEdge(key); exists {
		return nil
	}
	return []model.AnnotatedEdge{{
		Edge: &model.Edge{
			Source: from, Target: to, Relationship: rel,
			SourceDimension: fromDim, TargetDimension: toDim,
		},
		Contribution: 1.0,
		Annotation:   &model.Annotation{Method: "tag-concept-bridger"},
	}}
}

// CoOccurrence links target nodes of a shared source relationship (default
// tagged_with) in proportion to how many sources they share, scaled by the
// most-shared pair currently in the graph. Trigger: EdgesAdded or
// NodesAdded.
type CoOccurrence struct {
	// SourceRelationship is the relationship whose targets are compared
	// for shared sources. Defaults to "tagged_with".
	SourceRelationship string
	// OutputRelationship is the relationship emitted between co-occurring
	// targets. Defaults to "may_be_related".
	OutputRelationship string
	// OutputDimension tags both endpoints of emitted edges. Defaults to
	// "semantic".
	OutputDimension model.Dimension
}

func (CoOccurrence) ID() string { return "co-occurrence" }

func (e CoOccurrence) Relationships() []string { return []string{e.outputRelationship()} }

func (e CoOccurrence) sourceRelationship() string {
	if e.SourceRelationship == "" {
		return "tagged_with"
	}
	return e.SourceRelationship
}

func (e CoOccurrence) outputRelationship() string {
	if e.OutputRelationship == "" {
		return "may_be_related"
	}
	return e.OutputRelationship
}

func (e CoOccurrence) outputDimension() model.Dimension {
	if e.OutputDimension == "" {
		return model.DimensionSemantic
	}
	return e.OutputDimension
}

func (e CoOccurrence) Run(snap *gcontext.Context, events []model.GraphEvent, s *sink.ProposalSink) (model.CommitResult, error) {
	triggered := false
	for _, evt := range events {
		if evt.Kind == model.EventEdgesAdded || evt.Kind == model.EventNodesAdded {
			triggered = true
			break
		}
	}
	if !triggered {
		return model.CommitResult{}, nil
	}

	sourceRel := e.sourceRelationship()
	outputRel := e.outputRelationship()
	dim := e.outputDimension()

	reverse := make(map[model.NodeID]map[model.NodeID]struct{})
	for _, src := range snap.FindNodes(func(*model.Node) bool { return true }) {
		for _, edge := range snap.OutgoingEdges(src.ID, sourceRel) {
			if reverse[src.ID] == nil {
				reverse[src.ID] = make(map[model.NodeID]struct{})
			}
			reverse[src.ID][edge.Target] = struct{}{}
		}
	}

	type pairCount struct {
		a, b  model.NodeID
		count int
	}
	counts := make(map[model.EdgeKey]*pairCount)
	for _, targets := range reverse {
		ids := make([]model.NodeID, 0, len(targets))
		for id := range targets {
			ids = append(ids, id)
		}
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				a, b := ids[i], ids[j]
				if b < a {
					a, b = b, a
				}
				key := model.EdgeKey{Source: a, Target: b}
				if counts[key] == nil {
					counts[key] = &pairCount{a: a, b: b}
				}
				counts[key].count++
			}
		}
	}

	maxCount := 0
	for _, pc := range counts {
		if pc.count > maxCount {
			maxCount = pc.count
		}
	}
	if maxCount == 0 {
		return model.CommitResult{}, nil
	}

	var edges []model.AnnotatedEdge
	for _, pc := range counts {
		if pc.count == 0 {
			continue
		}
		if !snap.HasNode(pc.a) || !snap.HasNode(pc.b) {
			continue
		}
		contribution := float64(pc.count) / float64(maxCount)

		forward := model.EdgeKey{Source: pc.a, Target: pc.b, Relationship: outputRel, SourceDimension: dim, TargetDimension: dim}
		if _, exists := snap.GetEdge(forward); !exists {
			edges = append(edges, model.AnnotatedEdge{
				Edge: &model.Edge{Source: pc.a, Target: pc.b, Relationship: outputRel, SourceDimension: dim, TargetDimension: dim},
				Contribution: contribution,
				Annotation:   &model.Annotation{Method: "co-occurrence"},
			})
		}
		backward := model.EdgeKey{Source: pc.b, Target: pc.a, Relationship: outputRel, SourceDimension: dim, TargetDimension: dim}
		if _, exists := snap.GetEdge(backward); !exists {
			edges = append(edges, model.AnnotatedEdge{
				Edge: &model.Edge{Source: pc.b, Target: pc.a, Relationship: outputRel, SourceDimension: dim, TargetDimension: dim},
				Contribution: contribution,
				Annotation:   &model.Annotation{Method: "co-occurrence"},
			})
		}
	}
	if len(edges) == 0 {
		return model.CommitResult{}, nil
	}
	return s.Emit(model.Emission{Edges: edges})
}

// DiscoveryGap surfaces a pair of nodes linked by a trigger relationship
// (default similar_to) but by no other relationship in either direction, as
// a candidate worth a human's attention. Trigger: EdgesAdded.
type DiscoveryGap struct {
	// TriggerRelationship is the relationship whose new edges are
	// examined. Defaults to "similar_to".
	TriggerRelationship string
	// OutputRelationship is the relationship emitted for a detected gap.
	// Defaults to "discovery_gap".
	OutputRelationship string
}

func (DiscoveryGap) ID() string { return "discovery-gap" }

func (e DiscoveryGap) Relationships() []string { return []string{e.outputRelationship()} }

func (e DiscoveryGap) triggerRelationship() string {
	if e.TriggerRelationship == "" {
		return "similar_to"
	}
	return e.TriggerRelationship
}

func (e DiscoveryGap) outputRelationship() string {
	if e.OutputRelationship == "" {
		return "discovery_gap"
	}
	return e.OutputRelationship
}

func (e DiscoveryGap) Run(snap *gcontext.Context, events []model.GraphEvent, s *sink.ProposalSink) (model.CommitResult, error) {
	trigger := e.triggerRelationship()
	output := e.outputRelationship()

	var edges []model.AnnotatedEdge
	for _, evt := range events {
		if evt.Kind != model.EventEdgesAdded || evt.EdgeKey == nil || evt.EdgeKey.Relationship != trigger {
			continue
		}
		a, b := evt.EdgeKey.Source, evt.EdgeKey.Target

		anyOtherEdge := false
		for _, edge := range append(snap.OutgoingEdges(a, ""), snap.IncomingEdges(a, "")...) {
			other := edge.Target
			if edge.Target == a {
				other = edge.Source
			}
			if other != b {
				continue
			}
			if edge.Relationship == trigger || edge.Relationship == output {
				continue
			}
			anyOtherEdge = true
			break
		}
		if anyOtherEdge {
			continue
		}

		gapKey := model.EdgeKey{Source: a, Target: b, Relationship: output, SourceDimension: evt.EdgeKey.SourceDimension, TargetDimension: evt.EdgeKey.TargetDimension}
		if _, exists := snap.GetEdge(gapKey); exists {
			continue
		}

		triggerEdge, ok := snap.GetEdge(*evt.EdgeKey)
		if !ok {
			continue
		}

		edges = append(edges, model.AnnotatedEdge{
			Edge: &model.Edge{
				Source: a, Target: b, Relationship: output,
				SourceDimension: evt.EdgeKey.SourceDimension, TargetDimension: evt.EdgeKey.TargetDimension,
			},
			Contribution: triggerEdge.RawWeight,
			Annotation:   &model.Annotation{Method: "discovery-gap"},
		})
	}
	if len(edges) == 0 {
		return model.CommitResult{}, nil
	}
	return s.Emit(model.Emission{Edges: edges})
}

// TemporalProximity links newly added nodes carrying a timestamp property
// to other nodes whose own timestamp falls within a threshold window.
// Trigger: NodesAdded.
type TemporalProximity struct {
	// TimestampProperty names the property holding a time.Time. Defaults
	// to "occurredAt".
	TimestampProperty string
	// Threshold is the proximity window. Defaults to 5 minutes.
	Threshold time.Duration
	// OutputRelationship is the relationship emitted for a proximate
	// pair. Defaults to "temporal_proximity".
	OutputRelationship string
}

func (TemporalProximity) ID() string { return "temporal-proximity" }

func (e TemporalProximity) Relationships() []string { return []string{e.outputRelationship()} }

func (e TemporalProximity) timestampProperty() string {
	if e.TimestampProperty == "" {
		return "occurredAt"
	}
	return e.TimestampProperty
}

func (e TemporalProximity) threshold() time.Duration {
	if e.Threshold <= 0 {
		return 5 * time.Minute
	}
	return e.Threshold
}

func (e TemporalProximity) outputRelationship() string {
	if e.OutputRelationship == "" {
		return "temporal_proximity"
	}
	return e.OutputRelationship
}

func (e TemporalProximity) Run(snap *gcontext.Context, events []model.GraphEvent, s *sink.ProposalSink) (model.CommitResult, error) {
	prop := e.timestampProperty()
	window := e.threshold()
	output := e.outputRelationship()

	all := snap.FindNodes(func(n *model.Node) bool {
		_, ok := n.Properties[prop].(time.Time)
		return ok
	})

	var edges []model.AnnotatedEdge
	for _, evt := range events {
		if evt.Kind != model.EventNodesAdded {
			continue
		}
		n, ok := snap.GetNode(evt.NodeID)
		if !ok {
			continue
		}
		ts, ok := n.Properties[prop].(time.Time)
		if !ok {
			continue
		}
		for _, other := range all {
			if other.ID == n.ID {
				continue
			}
			ots := other.Properties[prop].(time.Time)
			delta := ts.Sub(ots)
			if delta < 0 {
				delta = -delta
			}
			if delta > window {
				continue
			}
			key := model.EdgeKey{Source: n.ID, Target: other.ID, Relationship: output, SourceDimension: n.Dimension, TargetDimension: other.Dimension}
			if _, exists := snap.GetEdge(key); exists {
				continue
			}
			edges = append(edges, model.AnnotatedEdge{
				Edge: &model.Edge{
					Source: n.ID, Target: other.ID, Relationship: output,
					SourceDimension: n.Dimension, TargetDimension: other.Dimension,
				},
				Contribution: 1.0,
				Annotation:   &model.Annotation{Method: "temporal-proximity", Detail: delta.String()},
			})
		}
	}
	if len(edges) == 0 {
		return model.CommitResult{}, nil
	}
	return s.Emit(model.Emission{Edges: edges})
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
}

func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
