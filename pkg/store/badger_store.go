package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/plexusdb/plexus/pkg/gcontext"
	"github.com/plexusdb/plexus/pkg/model"
)

// Key prefixes for BadgerDB storage organization, following the teacher's
// single-byte-prefix scheme (pkg/storage/badger.go in the retrieval pack).
const (
	prefixContextMeta = byte(0x01) // ctxmeta:contextID -> contextMeta
	prefixNode        = byte(0x02) // node:contextID\x00nodeID -> node
	prefixEdge        = byte(0x03) // edge:contextID\x00edgeKey -> edge
)

const keySep = 0x00

// BadgerOptions configures the BadgerDB-backed store.
type BadgerOptions struct {
	// DataDir is the directory badger stores its files under. Required
	// unless InMemory is set.
	DataDir string

	// InMemory runs badger in memory-only mode; useful for tests. Data is
	// not persisted across process restarts.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower, more durable.
	SyncWrites bool
}

// BadgerStore is the reference file-backed Store implementation.
type BadgerStore struct {
	db     *badger.DB
	mu     sync.Mutex // serializes SaveContext's delete-then-rewrite per context
	closed bool
}

// NewBadgerStore opens (creating if absent) a BadgerDB-backed store rooted
// at dataDir.
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerStoreInMemory opens an in-memory BadgerDB store, for tests that
// want persistence semantics without disk I/O.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{InMemory: true})
}

// NewBadgerStoreWithOptions opens a BadgerDB-backed store with full control
// over its options.
func NewBadgerStoreWithOptions(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// SaveContext implements Store. It durably writes every node and edge in
// ctx, replacing whatever was previously stored for this context id so
// that entities removed from memory since the last save also disappear
// from disk (I8: one durable write per emit call).
func (s *BadgerStore) SaveContext(ctx *gcontext.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, nodePrefix(ctx.ID())); err != nil {
			return err
		}
		if err := deletePrefix(txn, edgePrefix(ctx.ID())); err != nil {
			return err
		}

		meta := contextMeta{
			ID:       ctx.ID(),
			Sources:  ctx.Sources(),
			Metadata: ctx.AllMetadata(),
		}
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("store: marshal context meta: %w", err)
		}
		if err := txn.Set(contextMetaKey(ctx.ID()), metaBytes); err != nil {
			return err
		}

		for _, n := range ctx.AllNodes() {
			nb, err := json.Marshal(n)
			if err != nil {
				return fmt.Errorf("store: marshal node %s: %w", n.ID, err)
			}
			if err := txn.Set(nodeKey(ctx.ID(), n.ID), nb); err != nil {
				return err
			}
		}

		for _, e := range ctx.AllEdges() {
			eb, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("store: marshal edge %s->%s: %w", e.Source, e.Target, err)
			}
			if err := txn.Set(edgeKey(ctx.ID(), e.Key()), eb); err != nil {
				return err
			}
		}

		return nil
	})
}

// LoadContext implements Store.
func (s *BadgerStore) LoadContext(id string) (*gcontext.Context, error) {
	var found bool
	ctx := gcontext.New(id)

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(contextMetaKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		var meta contextMeta
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		}); err != nil {
			return err
		}
		for _, src := range meta.Sources {
			ctx.AddSource(src)
		}
		for k, v := range meta.Metadata {
			ctx.SetMetadata(k, v)
		}

		if err := iteratePrefix(txn, nodePrefix(id), func(val []byte) error {
			var n model.Node
			if err := json.Unmarshal(val, &n); err != nil {
				return err
			}
			ctx.UpsertNode(&n)
			return nil
		}); err != nil {
			return err
		}

		return iteratePrefix(txn, edgePrefix(id), func(val []byte) error {
			var e model.Edge
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			ctx.SetEdge(&e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: load context %s: %w", id, err)
	}
	if !found {
		return nil, ErrContextNotFound
	}
	return ctx, nil
}

// LoadAll implements Store.
func (s *BadgerStore) LoadAll() (map[string]*gcontext.Context, error) {
	ids := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte{prefixContextMeta}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			ids = append(ids, string(key[1:]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list contexts: %w", err)
	}

	out := make(map[string]*gcontext.Context, len(ids))
	for _, id := range ids {
		ctx, err := s.LoadContext(id)
		if err != nil {
			return nil, err
		}
		out[id] = ctx
	}
	return out, nil
}

// DeleteContext implements Store.
func (s *BadgerStore) DeleteContext(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, nodePrefix(id)); err != nil {
			return err
		}
		if err := deletePrefix(txn, edgePrefix(id)); err != nil {
			return err
		}
		err := txn.Delete(contextMetaKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type contextMeta struct {
	ID       string         `json:"id"`
	Sources  []string       `json:"sources"`
	Metadata map[string]any `json:"metadata"`
}

func contextMetaKey(id string) []byte {
	return append([]byte{prefixContextMeta}, []byte(id)...)
}

func nodePrefix(contextID string) []byte {
	key := make([]byte, 0, 1+len(contextID)+1)
	key = append(key, prefixNode)
	key = append(key, []byte(contextID)...)
	key = append(key, keySep)
	return key
}

func nodeKey(contextID string, id model.NodeID) []byte {
	return append(nodePrefix(contextID), []byte(id)...)
}

func edgePrefix(contextID string) []byte {
	key := make([]byte, 0, 1+len(contextID)+1)
	key = append(key, prefixEdge)
	key = append(key, []byte(contextID)...)
	key = append(key, keySep)
	return key
}

func edgeKey(contextID string, key model.EdgeKey) []byte {
	parts := []string{
		string(key.Source), string(key.Target), key.Relationship,
		string(key.SourceDimension), string(key.TargetDimension),
	}
	return append(edgePrefix(contextID), []byte(strings.Join(parts, "\x1f"))...)
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func iteratePrefix(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		if err := item.Value(func(val []byte) error {
			return fn(bytesClone(val))
		}); err != nil {
			return err
		}
	}
	return nil
}

func bytesClone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
