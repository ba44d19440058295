package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"prov-go/internal/config"
)

// NewStoreFromConfig creates a Store backed by the configured backend type.
func NewStoreFromConfig(cfg config.StoreConfig, projectID string, logger *slog.Logger) (*Store, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite store")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		backend, err = NewSQLiteBackend(filepath.Join(cfg.DataDir, projectID+".db"))
	case "memory":
		backend, err = NewSQLiteBackend(":memory:")
	case "badger":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for badger store")
		}
		backend, err = NewBadgerBackend(BadgerConfig{
			Path:       filepath.Join(cfg.DataDir, projectID+".badger"),
			SyncWrites: true,
			Logger:     logger,
		})
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	s, err := New(backend, cfg.CacheSize)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return s, nil
}
