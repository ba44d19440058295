package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGetDefaults(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	share := filepath.Join(home, ".local", "share", "prov")

	tests := []struct {
		name       string
		configPath string
		provHome   string
		want       map[string]string
	}{
		{
			name:       "environment overrides",
			configPath: "/etc/prov/prov.toml",
			provHome:   "/srv/prov",
			want: map[string]string{
				"config_path": "/etc/prov/prov.toml",
				"base_dir":    "/srv/prov",
				"log_dir":     "/srv/prov/log",
			},
		},
		{
			name:     "home only",
			provHome: "/srv/prov",
			want: map[string]string{
				"config_path": filepath.Join(home, ".config", "prov.toml"),
				"base_dir":    "/srv/prov",
				"log_dir":     "/srv/prov/log",
			},
		},
		{
			name: "nothing set",
			want: map[string]string{
				"config_path": filepath.Join(home, ".config", "prov.toml"),
				"base_dir":    share,
				"log_dir":     filepath.Join(share, "log"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PROV_CONFIG_PATH", tt.configPath)
			t.Setenv("PROV_HOME", tt.provHome)

			got, err := GetDefaults()
			if err != nil {
				t.Fatalf("GetDefaults() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("GetDefaults() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
