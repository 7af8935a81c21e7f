// Package pebblestore implements registry.Backend on an embedded Pebble
// key-value store.
//
// A schema occupies three key families (see keys.go). The info key holds the
// ordered list of version references; its length is the version count and a
// reference's position is its version number. Appends extend the list with a
// merge operand instead of a read-modify-write, so concurrent appenders never
// overwrite each other and need no lock.
package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/google/uuid"

	"github.com/aevon-lab/schema-registry/internal/cache"
	"github.com/aevon-lab/schema-registry/internal/registry"
)

// ComparerName identifies the prefix-extracting comparer in the OPTIONS file.
const ComparerName = "schemaregistry.static32"

// DefaultNameCacheSize is the number of reverse-index entries kept in memory.
const DefaultNameCacheSize = 1024

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("pebble store is closed")

// Options configures a Store.
type Options struct {
	// NameCacheSize bounds the id -> name cache. Zero disables it.
	NameCacheSize int

	// NoSync skips fsync on commit. A crash may lose recent writes.
	NoSync bool
}

// Store implements registry.Backend.
type Store struct {
	db        *pebble.DB
	names     *cache.LRU[registry.ID, string]
	writeOpts *pebble.WriteOptions
	closed    atomic.Bool

	// createMu makes Create's existence check and commit one step. Pebble
	// holds a directory lock, so no other process can write concurrently.
	createMu sync.Mutex
}

var _ registry.Backend = (*Store)(nil)

// Open opens or creates the store at path.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, errors.New("pebble store path is required")
	}

	db, err := pebble.Open(path, newPebbleOptions(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %q: %w", path, err)
	}

	writeOpts := pebble.Sync
	if opts.NoSync {
		writeOpts = pebble.NoSync
	}

	slog.Info("[Pebble] Store opened", "path", path, "name_cache_size", opts.NameCacheSize)

	return &Store{
		db:        db,
		names:     cache.NewLRU[registry.ID, string](opts.NameCacheSize),
		writeOpts: writeOpts,
	}, nil
}

func newPebbleOptions(logger *slog.Logger) *pebble.Options {
	comparer := *pebble.DefaultComparer
	comparer.Split = splitPrefix
	comparer.Name = ComparerName

	return &pebble.Options{
		Comparer: &comparer,
		Merger:   versionMerger,
		Logger:   newSlogLogger(logger),
		Levels: []pebble.LevelOptions{
			{FilterPolicy: bloom.FilterPolicy(10)},
		},
	}
}

// Exists reports whether the info key of id is present.
func (s *Store) Exists(ctx context.Context, id registry.ID) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	_, found, err := s.get(infoKey(id))
	return found, err
}

// Name resolves id through the reverse index.
func (s *Store) Name(ctx context.Context, id registry.ID) (string, bool, error) {
	if err := s.check(ctx); err != nil {
		return "", false, err
	}
	if name, ok := s.names.Get(id); ok {
		return name, true, nil
	}

	value, found, err := s.get(reverseKey(id))
	if err != nil || !found {
		return "", false, err
	}

	name := string(value)
	s.names.Put(id, name)
	return name, true, nil
}

// IDs seeks to the reverse tag and reads ids until the tag stops matching.
func (s *Store) IDs(ctx context.Context) ([]registry.ID, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	iter, err := s.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: reverseTag,
		UpperBound: prefixUpperBound(reverseTag),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var ids []registry.ID
	for valid := iter.First(); valid; valid = iter.Next() {
		if id, ok := idFromReverseKey(iter.Key()); ok {
			ids = append(ids, id)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to scan reverse index: %w", err)
	}
	return ids, nil
}

// Create writes the reverse-index entry and an empty reference list in one
// batch, or returns registry.ErrAlreadyExists if the info key is present. The
// list is merged rather than set so it can never truncate appended references.
func (s *Store) Create(ctx context.Context, id registry.ID, name string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	_, exists, err := s.get(infoKey(id))
	if err != nil {
		return err
	}
	if exists {
		return registry.ErrAlreadyExists
	}

	empty, err := encodeRefs()
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(reverseKey(id), []byte(name), nil); err != nil {
		return fmt.Errorf("failed to stage reverse index: %w", err)
	}
	if err := batch.Merge(infoKey(id), empty, nil); err != nil {
		return fmt.Errorf("failed to stage info key: %w", err)
	}
	if err := batch.Commit(s.writeOpts); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}

	s.names.Put(id, name)
	return nil
}

// AppendVersion stores payload under a fresh key and merges a reference to it
// into the info list, both in one batch. The batch is applied at a single
// sequence number and merge operands are combined in sequence order, so once
// committed the reference's position in the list is fixed: later appends only
// add behind it. Reading the list back therefore yields this append's final,
// unique version number.
func (s *Store) AppendVersion(ctx context.Context, id registry.ID, payload []byte) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	ref := uuid.NewString()
	operand, err := encodeRefs(ref)
	if err != nil {
		return 0, err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(versionKey(id, ref), payload, nil); err != nil {
		return 0, fmt.Errorf("failed to stage version payload: %w", err)
	}
	if err := batch.Merge(infoKey(id), operand, nil); err != nil {
		return 0, fmt.Errorf("failed to stage version reference: %w", err)
	}
	if err := batch.Commit(s.writeOpts); err != nil {
		return 0, fmt.Errorf("failed to commit version: %w", err)
	}

	refs, _, err := s.refs(id)
	if err != nil {
		return 0, err
	}
	idx := slices.Index(refs, ref)
	if idx < 0 {
		return 0, fmt.Errorf("version reference %s missing after commit", ref)
	}
	return idx + 1, nil
}

// Versions returns 1..len(info list).
func (s *Store) Versions(ctx context.Context, id registry.ID) ([]int, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	refs, _, err := s.refs(id)
	if err != nil {
		return nil, err
	}

	numbers := make([]int, len(refs))
	for i := range numbers {
		numbers[i] = i + 1
	}
	return numbers, nil
}

// Version looks up the reference at position number-1 and reads its payload.
func (s *Store) Version(ctx context.Context, id registry.ID, number int) ([]byte, bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, false, err
	}

	refs, found, err := s.refs(id)
	if err != nil || !found {
		return nil, false, err
	}
	idx := number - 1
	if idx < 0 || idx >= len(refs) {
		return nil, false, nil
	}

	payload, found, err := s.get(versionKey(id, refs[idx]))
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, fmt.Errorf("payload for version %d of schema %s is missing", number, id)
	}
	return payload, true, nil
}

// Ping reports whether the store is open.
func (s *Store) Ping(ctx context.Context) error {
	return s.check(ctx)
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	slog.Info("[Pebble] Closing store", "cached_names", s.names.Len())
	s.names.Clear()
	return s.db.Close()
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (s *Store) refs(id registry.ID) ([]string, bool, error) {
	value, found, err := s.get(infoKey(id))
	if err != nil || !found {
		return nil, found, err
	}
	refs, err := decodeRefs(value)
	if err != nil {
		return nil, false, fmt.Errorf("schema %s: %w", id, err)
	}
	return refs, true, nil
}

// get returns a copy of the value at key. Pebble only guarantees the returned
// slice until the closer is closed.
func (s *Store) get(key []byte) ([]byte, bool, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key: %w", err)
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}
