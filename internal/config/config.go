package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config represents the main configuration for prov.
type Config struct {
	ProjectID  string           `toml:"project_id" validate:"required"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Store      StoreConfig      `toml:"store"`
	Archives   []ArchiveConfig  `toml:"archives" validate:"dive"`
	Encryption EncryptionConfig `toml:"encryption"`
	Workspace  WorkspaceConfig  `toml:"workspace"`
	Metrics    MetricsConfig    `toml:"metrics"`
	User       UserConfig       `toml:"user"`
}

// StoreConfig represents configuration for the provenance store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type      string `toml:"type" validate:"oneof=sqlite memory badger"`
	DataDir   string `toml:"data_dir,omitempty" validate:"required_unless=Type memory"`
	CacheSize int    `toml:"cache_size,omitempty" validate:"gte=0"`
}

// ArchiveConfig represents a destination for metadata snapshots.
type ArchiveConfig struct {
	Type string `toml:"type" validate:"oneof=memory filesystem s3"`
	Name string `toml:"name" validate:"required"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty" validate:"required_if=Type s3"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`

	// Static credentials for S3-compatible endpoints; the default AWS chain
	// is used when unset.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty" validate:"required_with=S3AccessKeyID"`

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty" validate:"required_if=Type filesystem"`
}

// EncryptionConfig holds paths to the age key pair used for archived snapshots.
type EncryptionConfig struct {
	Type           string `toml:"type" validate:"omitempty,oneof=age none"` // "age" (default) or "none"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// WorkspaceConfig describes the project working tree.
type WorkspaceConfig struct {
	Root    string   `toml:"root"`
	DataDir string   `toml:"data_dir,omitempty"`
	Ignore  []string `toml:"ignore"`
}

// MetricsConfig controls the prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `toml:"textfile_path,omitempty"`
}

// UserConfig identifies the person recorded as creator and agent.
type UserConfig struct {
	Name  string `toml:"name"`
	Email string `toml:"email,omitempty" validate:"omitempty,email"`
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(projectID, baseDir string) *Config {
	return &Config{
		ProjectID: projectID,
		BaseDir:   baseDir,
		LogDir:    filepath.Join(baseDir, "log"),
		Store:     StoreConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "store")},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "prov.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "prov.key"),
		},
		Workspace: WorkspaceConfig{Root: ".", DataDir: "data"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes and validates a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
