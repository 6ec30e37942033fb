// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, durations and path lookup

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
data_dir: "/var/lib/lizi"
storage:
  backend: "sqlite"
verify:
  default_pick: 2
  challenge_ttl: "3m"
  authorization_ttl: "90s"
  avoid_repeat_window: "1h"
  decoys:
    - "London"
    - "Blue"
vault:
  require_auth_for_writes: true
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DataDir != "/var/lib/lizi" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Storage.SQLitePath != "/var/lib/lizi/lizi.db" {
		t.Errorf("SQLitePath should default under data_dir, got %q", cfg.Storage.SQLitePath)
	}
	if cfg.Verify.DefaultPick != 2 {
		t.Errorf("DefaultPick = %d", cfg.Verify.DefaultPick)
	}
	if cfg.Verify.ChallengeTTL != 3*time.Minute {
		t.Errorf("ChallengeTTL = %v", cfg.Verify.ChallengeTTL)
	}
	if cfg.Verify.AuthorizationTTL != 90*time.Second {
		t.Errorf("AuthorizationTTL = %v", cfg.Verify.AuthorizationTTL)
	}
	if cfg.Verify.AvoidRepeatWindow != time.Hour {
		t.Errorf("AvoidRepeatWindow = %v", cfg.Verify.AvoidRepeatWindow)
	}
	if len(cfg.Verify.Decoys) != 2 || cfg.Verify.Decoys[0] != "London" {
		t.Errorf("Decoys = %v", cfg.Verify.Decoys)
	}
	if !cfg.Vault.RequireAuthForWrites {
		t.Error("RequireAuthForWrites should be true")
	}
	if cfg.Vault.KeyFile != "/var/lib/lizi/master.key" {
		t.Errorf("KeyFile should default under data_dir, got %q", cfg.Vault.KeyFile)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_DefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, "config.yaml", `data_dir: "/tmp/lizi-test"`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("default backend = %q, want file", cfg.Storage.Backend)
	}
	if cfg.Verify.DefaultPick != 3 {
		t.Errorf("default pick = %d, want 3", cfg.Verify.DefaultPick)
	}
	if cfg.Verify.ChallengeTTL != 10*time.Minute {
		t.Errorf("default challenge ttl = %v", cfg.Verify.ChallengeTTL)
	}
	if cfg.Verify.AuthorizationTTL != 5*time.Minute {
		t.Errorf("default authorization ttl = %v", cfg.Verify.AuthorizationTTL)
	}
	if cfg.Verify.UnknownOption != "I don't know" {
		t.Errorf("default unknown option = %q", cfg.Verify.UnknownOption)
	}
	if cfg.Vault.RequireAuthForWrites {
		t.Error("writes should not require auth by default")
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
data_dir = "/srv/lizi"

[verify]
default_pick = 1
challenge_ttl = "2m"

[vault]
passphrase_env = "LIZI_PASSPHRASE"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "/srv/lizi" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Verify.DefaultPick != 1 || cfg.Verify.ChallengeTTL != 2*time.Minute {
		t.Errorf("Verify = %+v", cfg.Verify)
	}
	if cfg.Vault.PassphraseEnv != "LIZI_PASSPHRASE" || cfg.Vault.KeyFile != "" {
		t.Errorf("Vault = %+v", cfg.Vault)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("LIZI_TEST_DIR", "/opt/lizi")
	path := writeConfig(t, "config.yaml", `
data_dir: "${LIZI_TEST_DIR}/data"
vault:
  key_file: "${LIZI_TEST_DIR}/key"
  passphrase_env: "${LIZI_UNSET_VARIABLE}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "/opt/lizi/data" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Vault.KeyFile != "/opt/lizi/key" {
		t.Errorf("KeyFile = %q", cfg.Vault.KeyFile)
	}
	if cfg.Vault.PassphraseEnv != "" {
		t.Errorf("unset variable should expand to empty, got %q", cfg.Vault.PassphraseEnv)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad duration", "verify:\n  challenge_ttl: \"soon\"\n", "challenge_ttl"},
		{"zero ttl", "verify:\n  authorization_ttl: \"0s\"\n", "authorization_ttl"},
		{"negative window", "verify:\n  avoid_repeat_window: \"-1m\"\n", "avoid_repeat_window"},
		{"bad pick", "verify:\n  default_pick: 0\n", "default_pick"},
		{"bad backend", "storage:\n  backend: \"postgres\"\n", "storage.backend"},
		{"bad level", "logging:\n  level: \"loud\"\n", "logging.level"},
		{"bad format", "logging:\n  format: \"xml\"\n", "logging.format"},
		{"invalid yaml", "verify: [unclosed\n", "parsing config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	if cfg.Vault.KeyFile == "" {
		t.Error("default key file should be set")
	}
	if len(cfg.Verify.Decoys) != len(DefaultDecoys) {
		t.Errorf("expected the default decoys, got %v", cfg.Verify.Decoys)
	}
}

func TestLoad_Decoys(t *testing.T) {
	t.Run("kept when unset", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "c.yaml", "verify:\n  default_pick: 2\n"))
		if err != nil {
			t.Fatal(err)
		}
		if len(cfg.Verify.Decoys) < 2 {
			t.Errorf("expected at least two default decoys, got %v", cfg.Verify.Decoys)
		}
	})

	t.Run("empty list disables them", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "c.yaml", "verify:\n  decoys: []\n"))
		if err != nil {
			t.Fatal(err)
		}
		if len(cfg.Verify.Decoys) != 0 {
			t.Errorf("expected no decoys, got %v", cfg.Verify.Decoys)
		}
	})

	t.Run("defaults are not shared", func(t *testing.T) {
		a := Default()
		a.Verify.Decoys[0] = "changed"
		if DefaultDecoys[0] == "changed" {
			t.Error("Default handed out the package-level slice")
		}
	})
}

func TestResolve(t *testing.T) {
	t.Run("explicit path must exist", func(t *testing.T) {
		_, err := Resolve(filepath.Join(t.TempDir(), "missing.yaml"))
		if err == nil {
			t.Error("expected error")
		}
	})

	t.Run("env var wins over xdg", func(t *testing.T) {
		envPath := writeConfig(t, "env.yaml", "{}")
		xdg := t.TempDir()
		if err := os.MkdirAll(filepath.Join(xdg, "lizi"), 0o700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(xdg, "lizi", "config.yaml"), []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv(EnvConfigPath, envPath)
		t.Setenv("XDG_CONFIG_HOME", xdg)

		got, err := Resolve("")
		if err != nil {
			t.Fatal(err)
		}
		if got != envPath {
			t.Errorf("Resolve = %q, want %q", got, envPath)
		}
	})

	t.Run("xdg config", func(t *testing.T) {
		xdg := t.TempDir()
		if err := os.MkdirAll(filepath.Join(xdg, "lizi"), 0o700); err != nil {
			t.Fatal(err)
		}
		want := filepath.Join(xdg, "lizi", "config.yaml")
		if err := os.WriteFile(want, []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv(EnvConfigPath, "")
		t.Setenv("XDG_CONFIG_HOME", xdg)
		t.Setenv("HOME", t.TempDir())

		got, err := Resolve("")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Resolve = %q, want %q", got, want)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv("HOME", t.TempDir())

		got, err := Resolve("")
		if err != nil {
			t.Fatal(err)
		}
		if got != "" {
			t.Errorf("Resolve = %q, want empty", got)
		}
	})
}
