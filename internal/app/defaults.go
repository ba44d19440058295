package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns default paths, honouring environment overrides:
//   - PROV_CONFIG_PATH: config file (default ~/.config/prov.toml)
//   - PROV_HOME: data directory (default ~/.local/share/prov)
func GetDefaults() (map[string]string, error) {
	configPath, err := fromEnvOrHome("PROV_CONFIG_PATH", ".config", "prov.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := fromEnvOrHome("PROV_HOME", ".local", "share", "prov")
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

func fromEnvOrHome(env string, rel ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, rel...)...), nil
}
