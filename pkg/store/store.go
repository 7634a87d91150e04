// Package store provides the persistence abstraction Plexus durably writes
// contexts through, plus a BadgerDB-backed reference implementation.
//
// Save/load is whole-Context, not whole-graph: a Store durably writes one
// Context at a time (save_context), and can load a Context back by id, or
// hydrate every context it knows about on startup (load_all). Node and
// edge writes within a save are upsert-by-id — contribution maps are
// preserved exactly, so a save→load round-trip reproduces the same raw
// weights once recomputed.
package store

import (
	"errors"

	"github.com/plexusdb/plexus/pkg/gcontext"
)

// Common store errors.
var (
	ErrContextNotFound = errors.New("store: context not found")
	ErrStoreClosed     = errors.New("store: closed")
)

// Store is the persistence contract every context is durably written
// through. Implementations must be safe for concurrent SaveContext calls
// across different context ids (§5's shared-resource policy).
type Store interface {
	// SaveContext durably writes the full in-memory Context: nodes, edges,
	// properties, contribution maps, sources, and metadata.
	SaveContext(ctx *gcontext.Context) error

	// LoadContext loads a single context back by id. Returns
	// ErrContextNotFound if no such context was ever saved.
	LoadContext(id string) (*gcontext.Context, error)

	// LoadAll loads every context the store knows about, keyed by id. Used
	// by the engine on startup to hydrate its in-memory map.
	LoadAll() (map[string]*gcontext.Context, error)

	// DeleteContext removes a context and everything durably written for
	// it. A no-op, not an error, if the context does not exist.
	DeleteContext(id string) error

	// Close releases underlying resources (file handles, connections).
	Close() error
}
