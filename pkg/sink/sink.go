// Package sink provides the two surfaces mutations reach the engine
// through: AdapterSink for ingest adapters, and ProposalSink — a
// constrained wrapper — for enrichments.
//
// Neither sink mutates a Context directly; both stamp an adapter id and
// forward to engine.Engine.Emit, which is the only place the commit
// algorithm runs.
package sink

import (
	"fmt"

	"github.com/plexusdb/plexus/pkg/model"
)

// Sink is the common interface both AdapterSink and ProposalSink satisfy.
// Adapters and enrichments should depend on this, not on a concrete sink
// type, so tests can substitute a recording fake.
type Sink interface {
	Emit(emission model.Emission) (model.CommitResult, error)
}

// Emitter is the subset of engine.Engine both sinks need. Defined here
// rather than imported so sink has no dependency on the engine package's
// lifecycle methods.
type Emitter interface {
	Emit(contextID, adapterID string, emission model.Emission) (model.CommitResult, error)
}

// AdapterSink is the unconstrained sink ingest adapters emit through. It
// exists only to stamp the adapter id on every call so adapters never have
// to pass it themselves.
type AdapterSink struct {
	contextID string
	adapterID string
	engine    Emitter
}

// NewAdapterSink builds a sink bound to one context and one adapter id.
func NewAdapterSink(engine Emitter, contextID, adapterID string) *AdapterSink {
	return &AdapterSink{engine: engine, contextID: contextID, adapterID: adapterID}
}

// Emit forwards the emission to the engine unchanged.
func (s *AdapterSink) Emit(emission model.Emission) (model.CommitResult, error) {
	return s.engine.Emit(s.contextID, s.adapterID, emission)
}

// ProposalSink wraps an AdapterSink with the constraints enrichments must
// operate under (I10): only an allow-listed set of relationships may be
// proposed, node removal is never allowed, and contribution magnitude is
// clamped to a configurable cap. Violations are recorded as rejections on
// the returned CommitResult rather than surfaced as errors — an enrichment
// misbehaving on one item must not block the rest of its emission.
type ProposalSink struct {
	inner               *AdapterSink
	allowedRelationships map[string]struct{}
	contributionCap     float64
}

// DefaultAllowedRelationships is the allow-list spec.md's built-in
// enrichments emit under absent an explicit override.
func DefaultAllowedRelationships() []string {
	return []string{"may_be_related"}
}

// NewProposalSink builds a constrained sink for one enrichment. An empty
// allowedRelationships falls back to DefaultAllowedRelationships.
func NewProposalSink(engine Emitter, contextID, enrichmentID string, allowedRelationships []string, contributionCap float64) *ProposalSink {
	if len(allowedRelationships) == 0 {
		allowedRelationships = DefaultAllowedRelationships()
	}
	set := make(map[string]struct{}, len(allowedRelationships))
	for _, r := range allowedRelationships {
		set[r] = struct{}{}
	}
	return &ProposalSink{
		inner:                 NewAdapterSink(engine, contextID, enrichmentID),
		allowedRelationships:  set,
		contributionCap:       contributionCap,
	}
}

// Emit filters emission through the sink's constraints before forwarding
// whatever survives to the engine. Rejections produced here are prepended
// to the engine's own rejections in the returned CommitResult.
func (s *ProposalSink) Emit(emission model.Emission) (model.CommitResult, error) {
	var preRejections []model.Rejection

	if len(emission.Removals) > 0 {
		for _, id := range emission.Removals {
			preRejections = append(preRejections, model.Rejection{
				Reason: model.ReasonRemovalNotAllowed,
				Detail: fmt.Sprintf("enrichment may not remove node %s", id),
			})
		}
		emission.Removals = nil
	}

	filteredEdges := make([]model.AnnotatedEdge, 0, len(emission.Edges))
	for _, ae := range emission.Edges {
		rel := ae.Edge.Relationship
		if _, ok := s.allowedRelationships[rel]; !ok {
			preRejections = append(preRejections, model.Rejection{
				Reason: model.ReasonRelationshipNotAllowed,
				Detail: fmt.Sprintf("relationship %q not in enrichment allow-list", rel),
			})
			continue
		}
		if ae.Contribution > s.contributionCap {
			preRejections = append(preRejections, model.Rejection{
				Reason: model.ReasonContributionClamped,
				Detail: fmt.Sprintf("contribution %v clamped to cap %v", ae.Contribution, s.contributionCap),
			})
			ae.Contribution = s.contributionCap
		} else if ae.Contribution < -s.contributionCap {
			preRejections = append(preRejections, model.Rejection{
				Reason: model.ReasonContributionClamped,
				Detail: fmt.Sprintf("contribution %v clamped to cap %v", ae.Contribution, -s.contributionCap),
			})
			ae.Contribution = -s.contributionCap
		}
		filteredEdges = append(filteredEdges, ae)
	}
	emission.Edges = filteredEdges

	result, err := s.inner.Emit(emission)
	result.Rejections = append(preRejections, result.Rejections...)
	return result, err
}
