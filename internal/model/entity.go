package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"prov-go/internal/pathutil"
)

// OID returns the store object identifier for an entity id. It is a content
// hash of the id, so changing an id always changes the OID.
func OID(id string) string {
	h := sha256.Sum256([]byte(id))
	return hex.EncodeToString(h[:16])
}

// Entity is a content-addressed file or directory snapshot. Checksum and Path
// together determine its identity. Entity is a value type: copies are
// independent and there are no mutating methods.
type Entity struct {
	ID       string   `json:"id"`
	Checksum string   `json:"checksum"`
	Path     string   `json:"path"`
	Members  []Entity `json:"members,omitempty"`

	// Collection marks a directory-like entity, which may have no members.
	Collection bool `json:"collection,omitempty"`
}

// EntityID returns the deterministic id of an entity.
func EntityID(checksum, path string) string {
	return "/entities/" + checksum + "/" + url.PathEscape(path)
}

// NewEntity creates a file entity.
func NewEntity(checksum, path string) Entity {
	path = pathutil.Clean(path)
	return Entity{ID: EntityID(checksum, path), Checksum: checksum, Path: path}
}

// NewCollection creates a directory entity aggregating members.
func NewCollection(checksum, path string, members []Entity) Entity {
	e := NewEntity(checksum, path)
	e.Collection = true
	e.Members = append([]Entity(nil), members...)
	return e
}

// Equal reports whether two entities describe the same snapshot.
func (e Entity) Equal(o Entity) bool {
	if e.ID != o.ID || e.Checksum != o.Checksum || e.Path != o.Path || e.Collection != o.Collection {
		return false
	}
	if len(e.Members) != len(o.Members) {
		return false
	}
	for i := range e.Members {
		if !e.Members[i].Equal(o.Members[i]) {
			return false
		}
	}
	return true
}

// RemoteEntity references an entity stored in a different repository.
type RemoteEntity struct {
	ID       string `json:"id"`
	Checksum string `json:"checksum"`
	Path     string `json:"path"`
	URL      string `json:"url"`
}

// NewRemoteEntity creates a RemoteEntity; its id is derived from all three fields.
func NewRemoteEntity(checksum, path, rawURL string) RemoteEntity {
	path = pathutil.Clean(path)
	id := "/remote-entity/" + checksum + "/" + url.PathEscape(path) + "/" + url.QueryEscape(strings.TrimRight(rawURL, "/"))
	return RemoteEntity{ID: id, Checksum: checksum, Path: path, URL: rawURL}
}
