package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"prov-go/internal/store/migrations"
)

// SQLiteBackend keeps objects in a single SQLite table keyed by
// (container, key).
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// NewSQLiteBackend opens the store at path (or ":memory:") and applies
// pending migrations.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}
	return &SQLiteBackend{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database; one connection
	// also serializes writers, which matches the single-process model.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Path returns the database path.
func (b *SQLiteBackend) Path() string { return b.path }

// CheckMigrations verifies the schema is up to date.
func (b *SQLiteBackend) CheckMigrations() error {
	return migrations.CheckStatus(b.db)
}

func (b *SQLiteBackend) Get(ctx context.Context, container, key string) ([]byte, error) {
	var v []byte
	err := b.db.QueryRowContext(ctx,
		"SELECT value FROM objects WHERE container = ? AND key = ?", container, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding object: %w", err)
	}
	return v, nil
}

func (b *SQLiteBackend) Keys(ctx context.Context, container string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT key FROM objects WHERE container = ? ORDER BY key", container)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (b *SQLiteBackend) Apply(ctx context.Context, ops []Op) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		if op.Value == nil {
			_, err = tx.ExecContext(ctx,
				"DELETE FROM objects WHERE container = ? AND key = ?", op.Container, op.Key)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO objects (container, key, value, updated_at)
				VALUES (?, ?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT (container, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				op.Container, op.Key, op.Value)
		}
		if err != nil {
			return fmt.Errorf("writing %s/%s: %w", op.Container, op.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// BackupTo writes a complete copy of the database to destPath using
// VACUUM INTO. destPath must not exist.
func (b *SQLiteBackend) BackupTo(ctx context.Context, destPath string) error {
	if _, err := b.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Backup streams a database file snapshot to w.
func (b *SQLiteBackend) Backup(ctx context.Context, w io.Writer) error {
	dir, err := os.MkdirTemp("", "prov-store-backup-*")
	if err != nil {
		return fmt.Errorf("creating temp dir for backup: %w", err)
	}
	defer os.RemoveAll(dir)

	snap := filepath.Join(dir, "snapshot.db")
	if err := b.BackupTo(ctx, snap); err != nil {
		return err
	}
	f, err := os.Open(snap)
	if err != nil {
		return fmt.Errorf("opening backup: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}
	return nil
}

// Restore replaces all objects with those of a snapshot written by Backup.
func (b *SQLiteBackend) Restore(ctx context.Context, r io.Reader) error {
	tmp, err := os.CreateTemp("", "prov-store-restore-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for restore: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}

	// ATTACH cannot run inside a transaction.
	if _, err := b.db.ExecContext(ctx, "ATTACH DATABASE ? AS snapshot", tmp.Name()); err != nil {
		return fmt.Errorf("attaching snapshot: %w", err)
	}
	defer b.db.ExecContext(context.Background(), "DETACH DATABASE snapshot")

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM objects"); err != nil {
		return fmt.Errorf("clearing objects: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO objects (container, key, value, updated_at)
		SELECT container, key, value, updated_at FROM snapshot.objects`); err != nil {
		return fmt.Errorf("copying objects: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

var _ Backend = (*SQLiteBackend)(nil)
