package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("MAAT_CONFIG_PATH", "/custom/maat.toml")
		t.Setenv("MAAT_HOME", "/srv/maat")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		want := map[string]string{
			"config_path": "/custom/maat.toml",
			"base_dir":    "/srv/maat",
			"log_dir":     "/srv/maat/log",
		}
		for k, v := range want {
			if defaults[k] != v {
				t.Errorf("%s = %q, want %q", k, defaults[k], v)
			}
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("MAAT_CONFIG_PATH", "")
		t.Setenv("MAAT_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()
		wantBase := filepath.Join(homeDir, ".local", "share", "maat")

		want := map[string]string{
			"config_path": filepath.Join(homeDir, ".config", "maat.toml"),
			"base_dir":    wantBase,
			"log_dir":     filepath.Join(wantBase, "log"),
		}
		for k, v := range want {
			if defaults[k] != v {
				t.Errorf("%s = %q, want %q", k, defaults[k], v)
			}
		}
	})
}
