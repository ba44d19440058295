package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryArchive keeps snapshots in memory. It is safe for concurrent use.
type MemoryArchive struct {
	name      string
	mu        sync.RWMutex
	snapshots map[string][]byte
	versions  map[string]int64
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive(name string) *MemoryArchive {
	return &MemoryArchive{
		name:      name,
		snapshots: make(map[string][]byte),
		versions:  make(map[string]int64),
	}
}

func (m *MemoryArchive) Name() string { return m.name }

func (m *MemoryArchive) Put(_ context.Context, projectID string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[projectID] = data
	m.versions[projectID] = version
	return nil
}

func (m *MemoryArchive) Get(_ context.Context, projectID string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.snapshots[projectID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, ErrNoSnapshot)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

func (m *MemoryArchive) Version(_ context.Context, projectID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[projectID], nil
}

func (m *MemoryArchive) ValidateSetup(context.Context) error { return nil }

// Compile-time check
var _ Archive = (*MemoryArchive)(nil)
