package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileSystemArchive stores snapshots as files:
//
//	<root>/
//	  snapshots/
//	    <projectID>.snapshot
//	    <projectID>.version
type FileSystemArchive struct {
	name string
	root string
	dir  string
}

// NewFileSystemArchive creates an archive rooted at root, creating the
// directory layout if needed.
func NewFileSystemArchive(name, root string) (*FileSystemArchive, error) {
	dir := filepath.Join(root, "snapshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &FileSystemArchive{name: name, root: root, dir: dir}, nil
}

func (a *FileSystemArchive) Name() string { return a.name }

func (a *FileSystemArchive) snapshotPath(projectID string) string {
	return filepath.Join(a.dir, projectID+".snapshot")
}

func (a *FileSystemArchive) versionPath(projectID string) string {
	return filepath.Join(a.dir, projectID+".version")
}

// Put writes the snapshot through a temp file and rename, then records the
// version. A crash between the two leaves the old version, which only makes
// the next startup check more lenient.
func (a *FileSystemArchive) Put(_ context.Context, projectID string, r io.Reader, size int64, version int64) error {
	if err := writeAtomic(a.snapshotPath(projectID), r, size); err != nil {
		return err
	}
	v := strconv.FormatInt(version, 10)
	if err := writeAtomic(a.versionPath(projectID), strings.NewReader(v), int64(len(v))); err != nil {
		return fmt.Errorf("writing version: %w", err)
	}
	return nil
}

func (a *FileSystemArchive) Get(_ context.Context, projectID string, w io.Writer) error {
	f, err := os.Open(a.snapshotPath(projectID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("project %s: %w", projectID, ErrNoSnapshot)
		}
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	return nil
}

func (a *FileSystemArchive) Version(_ context.Context, projectID string) (int64, error) {
	data, err := os.ReadFile(a.versionPath(projectID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup checks that the snapshot directory exists.
func (a *FileSystemArchive) ValidateSetup(context.Context) error {
	info, err := os.Stat(a.dir)
	if err != nil {
		return fmt.Errorf("archive not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive path is not a directory: %s", a.dir)
	}
	return nil
}

func writeAtomic(dest string, r io.Reader, size int64) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("writing data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	success = true
	return nil
}

// Compile-time check
var _ Archive = (*FileSystemArchive)(nil)
