package testutil

import (
	"testing"

	"prov-go/internal/store"
)

// NewTestStore creates a store over a fresh in-memory SQLite backend with
// migrations applied. The store is closed when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	backend, err := store.NewSQLiteBackend(":memory:")
	if err != nil {
		t.Fatalf("failed to open store backend: %v", err)
	}
	s, err := store.New(backend, 0)
	if err != nil {
		backend.Close()
		t.Fatalf("failed to create store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}
