// Package archive keeps versioned copies of a project's metadata store
// outside the machine that owns it.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"prov-go/internal/config"
)

// ErrNoSnapshot is returned by Get when nothing was archived for a project.
var ErrNoSnapshot = errors.New("no snapshot archived")

// Archive stores one snapshot per project along with the version it was
// taken at. Put replaces the previous snapshot.
type Archive interface {
	Name() string

	// Put stores size bytes read from r as the snapshot of projectID.
	Put(ctx context.Context, projectID string, r io.Reader, size int64, version int64) error

	// Get writes the snapshot of projectID to w.
	Get(ctx context.Context, projectID string, w io.Writer) error

	// Version returns the version of the archived snapshot, or 0 when there
	// is none.
	Version(ctx context.Context, projectID string) (int64, error)

	// ValidateSetup verifies that the archive is reachable.
	ValidateSetup(ctx context.Context) error
}

// NewArchiveFromConfig creates an Archive for the configured type.
func NewArchiveFromConfig(ctx context.Context, cfg config.ArchiveConfig) (Archive, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryArchive(cfg.Name), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_root to be set")
		}
		return NewFileSystemArchive(cfg.Name, cfg.FSRoot)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 archive requires s3_bucket to be set")
		}
		return NewS3Archive(ctx, S3Config{
			Name:            cfg.Name,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
