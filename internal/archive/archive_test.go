package archive

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"prov-go/internal/config"
)

// archives returns one instance of each local archive type.
func archives(t *testing.T) map[string]Archive {
	t.Helper()
	fsArchive, err := NewFileSystemArchive("local", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemArchive() error = %v", err)
	}
	return map[string]Archive{
		"memory":     NewMemoryArchive("mem"),
		"filesystem": fsArchive,
	}
}

func TestArchive_PutGetVersion(t *testing.T) {
	ctx := context.Background()
	for name, a := range archives(t) {
		t.Run(name, func(t *testing.T) {
			if err := a.ValidateSetup(ctx); err != nil {
				t.Fatalf("ValidateSetup() error = %v", err)
			}

			v, err := a.Version(ctx, "proj")
			if err != nil {
				t.Fatalf("Version() error = %v", err)
			}
			if v != 0 {
				t.Errorf("Version() before Put = %d, want 0", v)
			}

			var buf bytes.Buffer
			if err := a.Get(ctx, "proj", &buf); !errors.Is(err, ErrNoSnapshot) {
				t.Errorf("Get() before Put error = %v, want ErrNoSnapshot", err)
			}

			for i, content := range []string{"first snapshot", "second"} {
				version := int64(i + 1)
				if err := a.Put(ctx, "proj", strings.NewReader(content), int64(len(content)), version); err != nil {
					t.Fatalf("Put() error = %v", err)
				}
				buf.Reset()
				if err := a.Get(ctx, "proj", &buf); err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if buf.String() != content {
					t.Errorf("Get() = %q, want %q", buf.String(), content)
				}
				v, err := a.Version(ctx, "proj")
				if err != nil {
					t.Fatalf("Version() error = %v", err)
				}
				if v != version {
					t.Errorf("Version() = %d, want %d", v, version)
				}
			}

			if v, _ := a.Version(ctx, "other"); v != 0 {
				t.Errorf("Version(other) = %d, want 0", v)
			}
		})
	}
}

func TestArchive_PutSizeMismatch(t *testing.T) {
	ctx := context.Background()
	for name, a := range archives(t) {
		t.Run(name, func(t *testing.T) {
			if err := a.Put(ctx, "proj", strings.NewReader("abc"), 10, 1); err == nil {
				t.Fatal("Put() with wrong size succeeded")
			}
			if v, _ := a.Version(ctx, "proj"); v != 0 {
				t.Errorf("Version() after failed Put = %d, want 0", v)
			}
		})
	}
}

func TestFileSystemArchive_Layout(t *testing.T) {
	root := t.TempDir()
	a, err := NewFileSystemArchive("local", root)
	if err != nil {
		t.Fatalf("NewFileSystemArchive() error = %v", err)
	}
	if err := a.Put(context.Background(), "proj", strings.NewReader("x"), 1, 42); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "snapshots", "proj.version"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "42" {
		t.Errorf("version file = %q, want %q", data, "42")
	}

	entries, err := os.ReadDir(filepath.Join(root, "snapshots"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestNewArchiveFromConfig(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		cfg      config.ArchiveConfig
		wantErr  bool
		wantType string
	}{
		{name: "memory", cfg: config.ArchiveConfig{Type: "memory", Name: "m"}, wantType: "*archive.MemoryArchive"},
		{name: "filesystem", cfg: config.ArchiveConfig{Type: "filesystem", Name: "f", FSRoot: t.TempDir()}, wantType: "*archive.FileSystemArchive"},
		{name: "filesystem without root", cfg: config.ArchiveConfig{Type: "filesystem", Name: "f"}, wantErr: true},
		{
			name: "s3",
			cfg: config.ArchiveConfig{
				Type: "s3", Name: "s", S3Bucket: "meta", S3Prefix: "team", S3Region: "eu-west-1",
				S3Endpoint: "http://localhost:9000", S3AccessKeyID: "key", S3SecretAccessKey: "secret",
			},
			wantType: "*archive.S3Archive",
		},
		{name: "s3 without bucket", cfg: config.ArchiveConfig{Type: "s3", Name: "s"}, wantErr: true},
		{name: "unknown", cfg: config.ArchiveConfig{Type: "tape", Name: "t"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewArchiveFromConfig(ctx, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewArchiveFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Name() != tt.cfg.Name {
				t.Errorf("Name() = %q, want %q", got.Name(), tt.cfg.Name)
			}
			if typ := typeName(got); typ != tt.wantType {
				t.Errorf("type = %s, want %s", typ, tt.wantType)
			}
		})
	}
}

func TestS3Archive_Key(t *testing.T) {
	a, err := NewS3Archive(context.Background(), S3Config{Name: "s", Bucket: "b", Prefix: "team/meta", Region: "us-east-1"})
	if err != nil {
		t.Fatalf("NewS3Archive() error = %v", err)
	}
	if got := a.key("proj"); got != "team/meta/proj.snapshot" {
		t.Errorf("key() = %q, want %q", got, "team/meta/proj.snapshot")
	}

	a.prefix = ""
	if got := a.key("proj"); got != "proj.snapshot" {
		t.Errorf("key() without prefix = %q, want %q", got, "proj.snapshot")
	}
}

func typeName(a Archive) string {
	switch a.(type) {
	case *MemoryArchive:
		return "*archive.MemoryArchive"
	case *FileSystemArchive:
		return "*archive.FileSystemArchive"
	case *S3Archive:
		return "*archive.S3Archive"
	}
	return "unknown"
}
