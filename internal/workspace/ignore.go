package workspace

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"
)

// IgnoreFileName is the per-project ignore file, read from the workspace root.
const IgnoreFileName = ".provignore"

// Always ignored: the ignore file itself and version control metadata.
var defaultIgnorePatterns = []string{IgnoreFileName, ".git"}

type ignorePattern struct {
	glob     string
	anchored bool // contains '/': matched against the whole relative path
}

// IgnoreMatcher decides which workspace paths never become entities.
// Patterns without '/' match any single path component, so "*.log" ignores
// log files anywhere and ".cache" ignores everything below a .cache
// directory. Patterns with '/' match the whole project-relative path or one
// of its parent directories.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher parses raw patterns. Blank lines and '#' comments are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.Trim(raw, "/")
		patterns = append(patterns, ignorePattern{glob: raw, anchored: strings.Contains(raw, "/")})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether the slash-separated relative path is ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if relativePath == "" || len(m.patterns) == 0 {
		return false
	}
	parts := strings.Split(relativePath, "/")
	for _, p := range m.patterns {
		if p.anchored {
			for i := len(parts); i > 0; i-- {
				if ok, _ := path.Match(p.glob, strings.Join(parts[:i], "/")); ok {
					return true
				}
			}
			continue
		}
		for _, part := range parts {
			// Malformed patterns never match.
			if ok, _ := path.Match(p.glob, part); ok {
				return true
			}
		}
	}
	return false
}

// ParseIgnoreFile returns the raw lines of an ignore file, or nil when the
// file does not exist.
func ParseIgnoreFile(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
