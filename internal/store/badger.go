package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures a BadgerBackend.
type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
}

// BadgerBackend keeps objects in Badger under "container/key" keys.
type BadgerBackend struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// NewBadgerBackend opens a Badger database.
func NewBadgerBackend(cfg BadgerConfig) (*BadgerBackend, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent badger store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func badgerKey(container, key string) []byte {
	return []byte(container + "/" + key)
}

func (b *BadgerBackend) Get(_ context.Context, container, key string) ([]byte, error) {
	var v []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(container, key))
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading object: %w", err)
	}
	return v, nil
}

func (b *BadgerBackend) Keys(_ context.Context, container string) ([]string, error) {
	prefix := []byte(container + "/")
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return keys, nil
}

// Apply writes ops in one transaction so a commit is all or nothing.
func (b *BadgerBackend) Apply(_ context.Context, ops []Op) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			k := badgerKey(op.Container, op.Key)
			var err error
			if op.Value == nil {
				err = txn.Delete(k)
			} else {
				err = txn.Set(k, op.Value)
			}
			if err != nil {
				return fmt.Errorf("writing %s/%s: %w", op.Container, op.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("applying batch: %w", err)
	}
	return nil
}

func (b *BadgerBackend) Backup(_ context.Context, w io.Writer) error {
	if _, err := b.db.Backup(w, 0); err != nil {
		return fmt.Errorf("backing up badger store: %w", err)
	}
	return nil
}

func (b *BadgerBackend) Restore(_ context.Context, r io.Reader) error {
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("clearing badger store: %w", err)
	}
	if err := b.db.Load(r, 256); err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	return nil
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

var _ Backend = (*BadgerBackend)(nil)
