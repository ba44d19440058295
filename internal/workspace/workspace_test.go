package workspace_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"prov-go/internal/testutil"
	"prov-go/internal/workspace"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func newWorkspace(t *testing.T) (*workspace.Workspace, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "data/raw/a.csv", "a")
	writeFile(t, root, "data/raw/b.csv", "b")
	writeFile(t, root, "data/raw/debug.log", "noise")
	writeFile(t, root, ".git/HEAD", "ref")
	writeFile(t, root, workspace.IgnoreFileName, "*.log\n")
	w, err := workspace.New(root, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w, root
}

func TestWorkspace_Resolve(t *testing.T) {
	w, root := newWorkspace(t)

	t.Run("file entity carries the content checksum", func(t *testing.T) {
		e, err := w.Resolve("data/raw/a.csv")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if e.Checksum != testutil.SHA256Hex([]byte("a")) {
			t.Errorf("Checksum = %s", e.Checksum)
		}
		if e.Path != "data/raw/a.csv" || e.Collection {
			t.Errorf("entity = %+v", e)
		}
	})

	t.Run("absolute paths are made relative", func(t *testing.T) {
		e, err := w.Resolve(filepath.Join(root, "data", "raw", "b.csv"))
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if e.Path != "data/raw/b.csv" {
			t.Errorf("Path = %q", e.Path)
		}
	})

	t.Run("directory becomes a collection without ignored files", func(t *testing.T) {
		e, err := w.Resolve("data/raw")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !e.Collection {
			t.Fatal("directory entity is not a collection")
		}
		var paths []string
		for _, m := range e.Members {
			paths = append(paths, m.Path)
		}
		if diff := cmp.Diff([]string{"data/raw/a.csv", "data/raw/b.csv"}, paths); diff != "" {
			t.Errorf("members mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("collection checksum follows content", func(t *testing.T) {
		before, _ := w.Resolve("data/raw")
		writeFile(t, root, "data/raw/a.csv", "changed")
		after, err := w.Resolve("data/raw")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if before.Checksum == after.Checksum {
			t.Error("collection checksum did not change with member content")
		}
	})

	t.Run("rejects paths outside the workspace", func(t *testing.T) {
		if _, err := w.Resolve("../elsewhere"); err == nil {
			t.Error("Resolve() expected error for a path outside the root")
		}
	})

	t.Run("rejects ignored paths", func(t *testing.T) {
		if _, err := w.Resolve("data/raw/debug.log"); err == nil {
			t.Error("Resolve() expected error for an ignored path")
		}
	})
}

func TestWorkspace_FindFiles(t *testing.T) {
	w, _ := newWorkspace(t)

	files, err := w.FindFiles(".")
	if err != nil {
		t.Fatalf("FindFiles() error = %v", err)
	}
	if diff := cmp.Diff([]string{"data/raw/a.csv", "data/raw/b.csv"}, files); diff != "" {
		t.Errorf("FindFiles() mismatch (-want +got):\n%s", diff)
	}

	if !w.Exists("data/raw/a.csv") {
		t.Error("Exists(a.csv) = false")
	}
	if w.Exists(".git/HEAD") {
		t.Error("Exists(.git/HEAD) = true for an ignored path")
	}
	if size, err := w.Size("data/raw/b.csv"); err != nil || size != 1 {
		t.Errorf("Size() = %d, %v; want 1", size, err)
	}
}
