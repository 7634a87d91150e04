// Package enrichment implements the reactive enrichment loop and the
// built-in enrichments that run against it.
//
// An Enrichment inspects a read-only snapshot of a context plus the graph
// events accumulated so far, and proposes edges through a ProposalSink. The
// loop runs every registered enrichment once per round and repeats until a
// round produces no new events (quiescence) or the round ceiling is hit —
// generalizing the teacher's reflection-based apoc/registry.FunctionRegistry
// to a small, statically-typed interface instead of runtime function
// lookup, since Plexus has a fixed, known set of enrichments rather than a
// user-extensible function library.
package enrichment

import (
	"fmt"
	"sort"
	"sync"

	"github.com/plexusdb/plexus/pkg/gcontext"
	"github.com/plexusdb/plexus/pkg/model"
	"github.com/plexusdb/plexus/pkg/sink"
)

// Enrichment is one reactive graph algorithm the loop drives to quiescence.
// Run receives a read-only snapshot of the context and the graph events
// accumulated across the ingest call so far, and proposes changes through
// sink. Its own CommitResult (including whatever the sink rejected) is
// returned so the loop can fold newly produced events into the next round.
type Enrichment interface {
	ID() string

	// Relationships is the relationship set this enrichment may emit,
	// used as its ProposalSink's allow-list. Declaring it up front (rather
	// than defaulting every enrichment to {may_be_related}) is what lets
	// discovery-gap and tag-concept-bridger emit their own output
	// relationships at all.
	Relationships() []string

	Run(snapshot *gcontext.Context, events []model.GraphEvent, sink *sink.ProposalSink) (model.CommitResult, error)
}

// Registry holds the set of enrichments the loop runs, deduplicated by id.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Enrichment
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Enrichment)}
}

// Register adds an enrichment. Returns an error if its id is already
// registered.
func (r *Registry) Register(e Enrichment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[e.ID()]; exists {
		return fmt.Errorf("enrichment: %q already registered", e.ID())
	}
	r.byID[e.ID()] = e
	r.order = append(r.order, e.ID())
	return nil
}

// All returns every registered enrichment, in registration order.
func (r *Registry) All() []Enrichment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Enrichment, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs returns every registered enrichment id, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}
