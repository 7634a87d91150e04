package enrichment

import (
	"github.com/plexusdb/plexus/pkg/config"
	"github.com/plexusdb/plexus/pkg/gcontext"
	"github.com/plexusdb/plexus/pkg/model"
	"github.com/plexusdb/plexus/pkg/sink"
)

// Engine is the subset of engine.Engine the loop needs: a way to take a
// read-only snapshot of a context, and a way to commit an enrichment's
// proposals. Defined locally so this package does not import pkg/engine.
type Engine interface {
	Snapshot(contextID string) (*gcontext.Context, error)
	Emit(contextID, adapterID string, emission model.Emission) (model.CommitResult, error)
}

// CeilingRecorder is called on every round the loop runs, and again if the
// run hits its round ceiling while events are still being produced, for the
// caller to surface in metrics.
type CeilingRecorder interface {
	EnrichmentRound(contextID string)
	EnrichmentRoundCeilingHit(contextID string)
}

// Run drives every enrichment in registry to quiescence against contextID:
// each round, every enrichment sees the context's current snapshot plus
// every graph event accumulated since the call started, and may propose
// changes through a ProposalSink. The loop stops when a full round produces
// no new events, or after cfg.EnrichmentRoundCeiling rounds, whichever
// comes first. Returns every event produced across all rounds.
func Run(eng Engine, contextID string, registry *Registry, seedEvents []model.GraphEvent, cfg config.ContextConfig, metrics CeilingRecorder) ([]model.GraphEvent, error) {
	accumulated := append([]model.GraphEvent(nil), seedEvents...)
	enrichments := registry.All()
	if len(enrichments) == 0 {
		return accumulated, nil
	}

	for round := 1; round <= cfg.EnrichmentRoundCeiling; round++ {
		if metrics != nil {
			metrics.EnrichmentRound(contextID)
		}
		snapshot, err := eng.Snapshot(contextID)
		if err != nil {
			return accumulated, err
		}

		var roundEvents []model.GraphEvent
		for _, e := range enrichments {
			s := sink.NewProposalSink(eng, contextID, e.ID(), e.Relationships(), cfg.ContributionCap)
			result, err := e.Run(snapshot, accumulated, s)
			if err != nil {
				return accumulated, err
			}
			roundEvents = append(roundEvents, result.Events...)
		}

		if len(roundEvents) == 0 {
			return accumulated, nil
		}
		accumulated = append(accumulated, roundEvents...)
	}

	if metrics != nil {
		metrics.EnrichmentRoundCeilingHit(contextID)
	}
	return accumulated, nil
}
