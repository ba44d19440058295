// Package pathutil cleans and compares project-relative paths.
//
// A canonical path uses forward slashes, has no leading or trailing slash and
// no "." or ".." components. The project root is the empty string.
//
// Relatedness is decided on path components, never on raw string prefixes:
// "data/a" is an ancestor of "data/a/b.csv" but not of "data/ab.csv".
package pathutil

import (
	"path"
	"strings"
)

// Clean canonicalizes p for use as an index key.
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	if p == "/" {
		return ""
	}
	return strings.TrimPrefix(p, "/")
}

// Split returns the components of p.
func Split(p string) []string {
	p = Clean(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// IsAncestor reports whether dir is a proper ancestor directory of p.
func IsAncestor(dir, p string) bool {
	dir, p = Clean(dir), Clean(p)
	if dir == p {
		return false
	}
	if dir == "" {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}

// AreRelated reports whether a and b are the same path or one is an ancestor
// directory of the other.
func AreRelated(a, b string) bool {
	a, b = Clean(a), Clean(b)
	return a == b || IsAncestor(a, b) || IsAncestor(b, a)
}

// Within reports whether p equals dir or lies below it.
func Within(p, dir string) bool {
	p, dir = Clean(p), Clean(dir)
	return p == dir || IsAncestor(dir, p)
}
