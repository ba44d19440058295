// Package workspace turns files of the project working tree into
// content-addressed entities.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"prov-go/internal/model"
	"prov-go/internal/pathutil"
	"prov-go/internal/prov"
)

// Workspace resolves project-relative paths below a root directory.
type Workspace struct {
	root   string
	ignore *IgnoreMatcher
}

// New creates a Workspace rooted at root. The patterns are combined with the
// defaults and the root's ignore file.
func New(root string, patterns []string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	fromFile, err := ParseIgnoreFile(filepath.Join(abs, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	all := append(append(append([]string(nil), defaultIgnorePatterns...), patterns...), fromFile...)
	return &Workspace{root: abs, ignore: NewIgnoreMatcher(all)}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// Rel converts a path given on the command line, absolute or relative to
// the root, into a clean project-relative path.
func (w *Workspace) Rel(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			return "", fmt.Errorf("relativizing %s: %w", p, err)
		}
		p = rel
	}
	clean := filepath.ToSlash(filepath.Clean(p))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path is outside the workspace: %s", p)
	}
	return pathutil.Clean(clean), nil
}

func (w *Workspace) abs(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

func (w *Workspace) stat(rel string) (fs.FileInfo, error) {
	info, err := os.Lstat(w.abs(rel))
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	mode := info.Mode()
	switch {
	case mode&os.ModeSymlink != 0:
		return nil, fmt.Errorf("symlinks not supported: %s", rel)
	case mode&os.ModeDevice != 0:
		return nil, fmt.Errorf("device files not supported: %s", rel)
	case mode&os.ModeNamedPipe != 0:
		return nil, fmt.Errorf("named pipes not supported: %s", rel)
	case mode&os.ModeSocket != 0:
		return nil, fmt.Errorf("sockets not supported: %s", rel)
	}
	return info, nil
}

// Exists reports whether p exists and is not ignored.
func (w *Workspace) Exists(p string) bool {
	rel, err := w.Rel(p)
	if err != nil || w.ignore.Match(rel) {
		return false
	}
	_, err = w.stat(rel)
	return err == nil
}

// Size returns the size in bytes of the file at p.
func (w *Workspace) Size(p string) (int64, error) {
	rel, err := w.Rel(p)
	if err != nil {
		return 0, err
	}
	info, err := w.stat(rel)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// FindFiles returns the project-relative paths of the regular, non-ignored
// files at or below p, sorted.
func (w *Workspace) FindFiles(p string) ([]string, error) {
	rel, err := w.Rel(p)
	if err != nil {
		return nil, err
	}
	info, err := w.stat(rel)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if w.ignore.Match(rel) {
			return nil, nil
		}
		return []string{rel}, nil
	}

	var files []string
	err = filepath.WalkDir(w.abs(rel), func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		r, err := filepath.Rel(w.root, full)
		if err != nil {
			return err
		}
		r = filepath.ToSlash(r)
		if r != "." && w.ignore.Match(r) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", rel, err)
	}
	sort.Strings(files)
	return files, nil
}

// Resolve returns the entity for p. Files are checksummed with sha256; a
// directory becomes a collection of its files whose checksum covers the
// members' paths and checksums.
func (w *Workspace) Resolve(p string) (model.Entity, error) {
	rel, err := w.Rel(p)
	if err != nil {
		return model.Entity{}, err
	}
	if w.ignore.Match(rel) {
		return model.Entity{}, fmt.Errorf("path is ignored: %s", rel)
	}
	info, err := w.stat(rel)
	if err != nil {
		return model.Entity{}, err
	}
	if !info.IsDir() {
		sum, err := w.checksum(rel)
		if err != nil {
			return model.Entity{}, err
		}
		return model.NewEntity(sum, rel), nil
	}

	files, err := w.FindFiles(rel)
	if err != nil {
		return model.Entity{}, err
	}
	h := sha256.New()
	members := make([]model.Entity, 0, len(files))
	for _, f := range files {
		sum, err := w.checksum(f)
		if err != nil {
			return model.Entity{}, err
		}
		members = append(members, model.NewEntity(sum, f))
		fmt.Fprintf(h, "%s %s\n", sum, f)
	}
	return model.NewCollection(hex.EncodeToString(h.Sum(nil)), rel, members), nil
}

func (w *Workspace) checksum(rel string) (string, error) {
	f, err := os.Open(w.abs(rel))
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", rel, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", rel, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Compile-time check
var _ prov.Workspace = (*Workspace)(nil)
