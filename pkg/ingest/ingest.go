// Package ingest fans an incoming payload out to every adapter registered
// for its input kind, then drives the enrichment loop against whatever
// those adapters committed — the end-to-end path from raw input to a
// settled, enriched graph.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/plexusdb/plexus/pkg/config"
	"github.com/plexusdb/plexus/pkg/enrichment"
	"github.com/plexusdb/plexus/pkg/model"
	"github.com/plexusdb/plexus/pkg/sink"
)

// ErrNoMatchingAdapter is returned when no adapter is registered for a
// payload's input kind.
var ErrNoMatchingAdapter = errors.New("ingest: no adapter registered for input kind")

// ErrSkipped is the sentinel an adapter wraps its own error with to
// self-report that it cannot run (e.g. a missing external dependency)
// rather than that it failed. Ingest still aggregates the failure, but
// AdapterError.Skipped lets a caller tell the two apart without treating a skip
// as fatal for the ingest call.
var ErrSkipped = errors.New("ingest: adapter skipped")

// AdapterError pairs one adapter's id with the error it returned from
// Process, so a caller can see which adapters failed (or skipped) without
// that failure aborting the other adapters sharing the input kind.
type AdapterError struct {
	AdapterID string
	Err       error
}

func (e AdapterError) Error() string { return fmt.Sprintf("adapter %s: %v", e.AdapterID, e.Err) }
func (e AdapterError) Unwrap() error { return e.Err }

// Skipped reports whether this adapter self-reported ErrSkipped rather
// than a hard failure.
func (e AdapterError) Skipped() bool { return errors.Is(e.Err, ErrSkipped) }

// Adapter is the contract every ingest-time data source implements.
type Adapter interface {
	ID() string
	InputKind() string

	// Process receives a cancellation context, a sink bound to its own
	// adapter id, and the raw payload; it emits whatever nodes, edges,
	// updates, removals, or retractions the payload implies. ctx is
	// checked cooperatively between emissions — an adapter already
	// committed is never rolled back by its cancellation.
	Process(ctx context.Context, s sink.Sink, payload any) error
}

// EventTransformer is an optional adapter extension: given the graph events
// its own commits produced, it returns the outbound notifications callers
// should see instead of the raw graph events.
type EventTransformer interface {
	TransformEvents(events []model.GraphEvent) []model.OutboundEvent
}

// Engine is the subset of engine.Engine the pipeline needs.
type Engine interface {
	Emit(contextID, adapterID string, emission model.Emission) (model.CommitResult, error)
}

// Registry maps input kinds to the adapters that handle them. More than one
// adapter may share an input kind; all of them run, concurrently.
type Registry struct {
	mu      sync.RWMutex
	byKind  map[string][]Adapter
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[string][]Adapter)}
}

// Register adds an adapter under its own InputKind.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[a.InputKind()] = append(r.byKind[a.InputKind()], a)
}

func (r *Registry) forKind(kind string) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Adapter(nil), r.byKind[kind]...)
}

// Pipeline is the ingest entry point: route to adapters, commit their
// emissions, then drive enrichment to quiescence.
type Pipeline struct {
	Engine     Engine
	Adapters   *Registry
	Enrichment *enrichment.Registry
	Metrics    enrichment.CeilingRecorder
}

// Result is what Ingest returns: the outbound events the caller sees, plus
// any per-adapter failures. A non-empty Errors is never itself a reason to
// treat the call as failed — other adapters sharing the input kind still
// ran and their commits still stand (§7's propagation policy).
type Result struct {
	Outbound []model.OutboundEvent
	Errors   []AdapterError
}

// Ingest routes payload to every adapter registered for inputKind and lets
// them commit concurrently (golang.org/x/sync/errgroup, mirroring the
// retrieval pack's same-input-kind fan-out pattern). One adapter's error is
// collected, never propagated as a reason to cancel the others or to skip
// the enrichment loop. Once every adapter has finished or failed, the
// enrichment loop runs to quiescence against whatever was committed before
// the outbound events are returned.
func (p *Pipeline) Ingest(ctx context.Context, contextID, inputKind string, payload any, cfg config.ContextConfig) (Result, error) {
	adapters := p.Adapters.forKind(inputKind)
	if len(adapters) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrNoMatchingAdapter, inputKind)
	}

	var mu sync.Mutex
	var graphEvents []model.GraphEvent
	var adapterErrs []AdapterError
	outbound := make([]model.OutboundEvent, 0)

	var g errgroup.Group
	for _, a := range adapters {
		a := a
		g.Go(func() error {
			recorder := &recordingSink{inner: sink.NewAdapterSink(p.Engine, contextID, a.ID())}
			err := a.Process(ctx, recorder, payload)

			mu.Lock()
			defer mu.Unlock()
			graphEvents = append(graphEvents, recorder.events...)
			if t, ok := a.(EventTransformer); ok {
				outbound = append(outbound, t.TransformEvents(recorder.events)...)
			} else {
				outbound = append(outbound, defaultOutbound(recorder.events)...)
			}
			if err != nil {
				adapterErrs = append(adapterErrs, AdapterError{AdapterID: a.ID(), Err: err})
			}
			return nil // never abort sibling adapters over one's failure
		})
	}
	_ = g.Wait() // goroutines above never return a non-nil error

	if p.Enrichment != nil {
		if eng, ok := p.Engine.(enrichment.Engine); ok {
			if _, err := enrichment.Run(eng, contextID, p.Enrichment, graphEvents, cfg, p.Metrics); err != nil {
				return Result{Outbound: outbound, Errors: adapterErrs}, fmt.Errorf("ingest: enrichment loop: %w", err)
			}
		}
	}

	return Result{Outbound: outbound, Errors: adapterErrs}, nil
}

// recordingSink wraps a Sink so the pipeline can observe every graph event
// an adapter's commits produced, for enrichment seeding and default
// outbound-event translation.
type recordingSink struct {
	inner  sink.Sink
	events []model.GraphEvent
}

func (r *recordingSink) Emit(emission model.Emission) (model.CommitResult, error) {
	result, err := r.inner.Emit(emission)
	r.events = append(r.events, result.Events...)
	return result, err
}

func defaultOutbound(events []model.GraphEvent) []model.OutboundEvent {
	out := make([]model.OutboundEvent, 0, len(events))
	for _, e := range events {
		detail := map[string]any{"adapterId": e.AdapterID, "contextId": e.ContextID}
		if e.NodeID != "" {
			detail["nodeId"] = string(e.NodeID)
		}
		if e.EdgeKey != nil {
			detail["source"] = string(e.EdgeKey.Source)
			detail["target"] = string(e.EdgeKey.Target)
			detail["relationship"] = e.EdgeKey.Relationship
		}
		out = append(out, model.OutboundEvent{Kind: string(e.Kind), Detail: detail})
	}
	return out
}
