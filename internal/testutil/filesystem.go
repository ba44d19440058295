package testutil

import (
	"fmt"
	"sort"

	"prov-go/internal/model"
	"prov-go/internal/pathutil"
	"prov-go/internal/prov"
)

// MockWorkspace is an in-memory project tree for testing. Checksums are the
// sha256 of the file content, like the real workspace.
type MockWorkspace struct {
	files map[string][]byte
}

// NewMockWorkspace creates an empty mock workspace.
func NewMockWorkspace() *MockWorkspace {
	return &MockWorkspace{files: make(map[string][]byte)}
}

// AddFile adds or overwrites a file.
func (m *MockWorkspace) AddFile(path string, content string) {
	m.files[pathutil.Clean(path)] = []byte(content)
}

// RemoveFile deletes a file.
func (m *MockWorkspace) RemoveFile(path string) {
	delete(m.files, pathutil.Clean(path))
}

func (m *MockWorkspace) Resolve(path string) (model.Entity, error) {
	path = pathutil.Clean(path)
	if content, ok := m.files[path]; ok {
		return model.NewEntity(SHA256Hex(content), path), nil
	}
	files, _ := m.FindFiles(path)
	if len(files) == 0 {
		return model.Entity{}, fmt.Errorf("file not found: %s", path)
	}
	var members []model.Entity
	var sums []byte
	for _, f := range files {
		e := model.NewEntity(SHA256Hex(m.files[f]), f)
		members = append(members, e)
		sums = append(sums, e.Checksum+" "+f+"\n"...)
	}
	return model.NewCollection(SHA256Hex(sums), path, members), nil
}

func (m *MockWorkspace) FindFiles(path string) ([]string, error) {
	path = pathutil.Clean(path)
	var out []string
	for p := range m.files {
		if pathutil.Within(p, path) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MockWorkspace) Size(path string) (int64, error) {
	content, ok := m.files[pathutil.Clean(path)]
	if !ok {
		return 0, fmt.Errorf("file not found: %s", path)
	}
	return int64(len(content)), nil
}

func (m *MockWorkspace) Exists(path string) bool {
	files, _ := m.FindFiles(path)
	return len(files) > 0
}

// Compile-time check
var _ prov.Workspace = (*MockWorkspace)(nil)
