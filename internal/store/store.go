// Package store is the transactional key-value store behind the gateways.
//
// Objects live in named containers. Writes are staged in memory and become
// durable only on Commit, which hands the whole batch to the backend
// atomically. Savepoints let a caller undo part of the staged batch, which is
// how a rejected activity insertion leaves the index untouched.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned by Get when a key does not exist.
var ErrNotFound = errors.New("key not found")

// Op is one write of a committed batch. A nil Value deletes the key.
type Op struct {
	Container string
	Key       string
	Value     []byte
}

// Backend persists committed batches.
type Backend interface {
	Get(ctx context.Context, container, key string) ([]byte, error)
	Keys(ctx context.Context, container string) ([]string, error)
	Apply(ctx context.Context, ops []Op) error
	Backup(ctx context.Context, w io.Writer) error
	Restore(ctx context.Context, r io.Reader) error
	Close() error
}

type staged struct {
	value   []byte
	deleted bool
}

type undoEntry struct {
	container string
	key       string
	prev      *staged // nil when the key had no staged write
}

// Savepoint marks a position in the staged batch.
type Savepoint int

// Store stages writes over a Backend and keeps a scoped cache of decoded
// objects so repeated loads in one session return the same value.
type Store struct {
	backend Backend
	staged  map[string]map[string]*staged
	undo    []undoEntry
	cache   *lru.Cache[string, any]
}

// DefaultCacheSize is used when the configured cache size is not positive.
const DefaultCacheSize = 4096

// New wraps backend. cacheSize bounds the decoded-object cache.
func New(backend Backend, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, any](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating object cache: %w", err)
	}
	return &Store{
		backend: backend,
		staged:  make(map[string]map[string]*staged),
		cache:   cache,
	}, nil
}

func cacheKey(container, key string) string {
	return container + "\x00" + key
}

// Get returns the value at key, including staged writes.
func (s *Store) Get(ctx context.Context, container, key string) ([]byte, error) {
	if st, ok := s.staged[container][key]; ok {
		if st.deleted {
			return nil, ErrNotFound
		}
		return st.value, nil
	}
	v, err := s.backend.Get(ctx, container, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("reading %s/%s: %w", container, key, err)
	}
	return v, nil
}

// Has reports whether key exists.
func (s *Store) Has(ctx context.Context, container, key string) (bool, error) {
	_, err := s.Get(ctx, container, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) stage(container, key string, st *staged) {
	m := s.staged[container]
	if m == nil {
		m = make(map[string]*staged)
		s.staged[container] = m
	}
	s.undo = append(s.undo, undoEntry{container: container, key: key, prev: m[key]})
	m[key] = st
}

// Put stages a write.
func (s *Store) Put(container, key string, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	s.stage(container, key, &staged{value: v})
	s.cache.Remove(cacheKey(container, key))
}

// Delete stages a deletion. Deleting a missing key is not an error.
func (s *Store) Delete(container, key string) {
	s.stage(container, key, &staged{deleted: true})
	s.cache.Remove(cacheKey(container, key))
}

// Keys returns the sorted keys of container, including staged writes.
func (s *Store) Keys(ctx context.Context, container string) ([]string, error) {
	stored, err := s.backend.Keys(ctx, container)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", container, err)
	}
	set := make(map[string]bool, len(stored))
	for _, k := range stored {
		set[k] = true
	}
	for k, st := range s.staged[container] {
		set[k] = !st.deleted
	}
	keys := make([]string, 0, len(set))
	for k, live := range set {
		if live {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of keys in container.
func (s *Store) Len(ctx context.Context, container string) (int, error) {
	keys, err := s.Keys(ctx, container)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Clear stages the deletion of every key in container.
func (s *Store) Clear(ctx context.Context, container string) error {
	keys, err := s.Keys(ctx, container)
	if err != nil {
		return err
	}
	for _, k := range keys {
		s.Delete(container, k)
	}
	return nil
}

// Savepoint returns the current position in the staged batch.
func (s *Store) Savepoint() Savepoint {
	return Savepoint(len(s.undo))
}

// RollbackTo undoes every staged write made after sp.
func (s *Store) RollbackTo(sp Savepoint) {
	for i := len(s.undo) - 1; i >= int(sp); i-- {
		u := s.undo[i]
		if u.prev == nil {
			delete(s.staged[u.container], u.key)
		} else {
			s.staged[u.container][u.key] = u.prev
		}
	}
	s.undo = s.undo[:sp]
	// Decoded objects may carry the undone state.
	s.cache.Purge()
}

// Rollback discards every staged write.
func (s *Store) Rollback() {
	s.RollbackTo(0)
	s.staged = make(map[string]map[string]*staged)
}

// Dirty reports whether there are staged writes.
func (s *Store) Dirty() bool {
	return len(s.undo) > 0
}

// Commit makes all staged writes durable in one batch.
func (s *Store) Commit(ctx context.Context) error {
	if !s.Dirty() {
		return nil
	}
	containers := make([]string, 0, len(s.staged))
	for c := range s.staged {
		containers = append(containers, c)
	}
	sort.Strings(containers)

	var ops []Op
	for _, c := range containers {
		keys := make([]string, 0, len(s.staged[c]))
		for k := range s.staged[c] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			st := s.staged[c][k]
			op := Op{Container: c, Key: k}
			if !st.deleted {
				op.Value = st.value
			}
			ops = append(ops, op)
		}
	}

	if err := s.backend.Apply(ctx, ops); err != nil {
		return fmt.Errorf("committing %d writes: %w", len(ops), err)
	}
	s.staged = make(map[string]map[string]*staged)
	s.undo = nil
	return nil
}

// Backup writes a snapshot of the committed state to w.
func (s *Store) Backup(ctx context.Context, w io.Writer) error {
	if s.Dirty() {
		return fmt.Errorf("backup with uncommitted writes")
	}
	return s.backend.Backup(ctx, w)
}

// Restore replaces the committed state with a snapshot written by Backup.
func (s *Store) Restore(ctx context.Context, r io.Reader) error {
	s.Rollback()
	if err := s.backend.Restore(ctx, r); err != nil {
		return fmt.Errorf("restoring store: %w", err)
	}
	return nil
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

// Close closes the backend, discarding uncommitted writes.
func (s *Store) Close() error {
	s.Rollback()
	return s.backend.Close()
}
