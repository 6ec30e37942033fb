// ABOUTME: Configuration loading and parsing for lizi-tools
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/lizi-tools/internal/store"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "LIZI_CONFIG"

// Config represents the complete lizi-tools configuration
type Config struct {
	DataDir string        `yaml:"data_dir" toml:"data_dir"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Verify  VerifyConfig  `yaml:"verify" toml:"verify"`
	Vault   VaultConfig   `yaml:"vault" toml:"vault"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// StorageConfig selects the document store backend
type StorageConfig struct {
	Backend    string `yaml:"backend" toml:"backend"`
	SQLitePath string `yaml:"sqlite_path" toml:"sqlite_path"`
}

// VerifyConfig holds verification gate settings
type VerifyConfig struct {
	DefaultPick       int           `yaml:"default_pick" toml:"default_pick"`
	ChallengeTTL      time.Duration `yaml:"-" toml:"-"`
	AuthorizationTTL  time.Duration `yaml:"-" toml:"-"`
	AvoidRepeatWindow time.Duration `yaml:"-" toml:"-"`
	Decoys            []string      `yaml:"decoys" toml:"decoys"`
	UnknownOption     string        `yaml:"unknown_option" toml:"unknown_option"`

	// Raw string values for unmarshaling
	ChallengeTTLRaw      string `yaml:"challenge_ttl" toml:"challenge_ttl"`
	AuthorizationTTLRaw  string `yaml:"authorization_ttl" toml:"authorization_ttl"`
	AvoidRepeatWindowRaw string `yaml:"avoid_repeat_window" toml:"avoid_repeat_window"`
}

// VaultConfig holds secret vault settings
type VaultConfig struct {
	// KeyFile holds the base64 master key. Used unless PassphraseEnv is set;
	// defaults to <data_dir>/master.key.
	KeyFile string `yaml:"key_file" toml:"key_file"`
	// PassphraseEnv names an environment variable holding a passphrase.
	PassphraseEnv        string `yaml:"passphrase_env" toml:"passphrase_env"`
	RequireAuthForWrites bool   `yaml:"require_auth_for_writes" toml:"require_auth_for_writes"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DefaultDecoys are the wrong answers offered next to each prompt when the
// config names none. Set verify.decoys to [] to show only the unknown option.
var DefaultDecoys = []string{
	"1999", "2000", "2001",
	"Nanjing", "Shanghai", "Beijing", "Hangzhou",
	"10000", "12000", "15000", "20000",
	"Hohai University", "Nanjing University", "Southeast University",
	"Software Engineering", "Computer Science", "Artificial Intelligence",
	"Jianye District", "Gulou District", "Xuanwu District",
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		DataDir: dataDir,
		Storage: StorageConfig{Backend: store.BackendFile},
		Verify: VerifyConfig{
			DefaultPick:          3,
			ChallengeTTLRaw:      "10m",
			AuthorizationTTLRaw:  "5m",
			AvoidRepeatWindowRaw: "0s",
			Decoys:               append([]string(nil), DefaultDecoys...),
			UnknownOption:        "I don't know",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Keys missing from the file keep their defaults.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault returns the defaults after duration parsing and validation.
func LoadDefault() (*Config, error) {
	cfg := Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve finds the config file to use: explicit, then $LIZI_CONFIG, then
// $XDG_CONFIG_HOME/lizi/config.yaml, then ~/.config/lizi/config.yaml.
// It returns "" when no candidate exists; an explicit path must exist.
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", fmt.Errorf("%s: %w", EnvConfigPath, err)
		}
		return env, nil
	}
	for _, dir := range configDirs() {
		for _, name := range []string{"config.yaml", "config.yml", "config.toml"} {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	return "", nil
}

func configDirs() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "lizi"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "lizi"))
	}
	return dirs
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "lizi")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "lizi", "data")
	}
	return "lizi-data"
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) finish() error {
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	c.DataDir = expandHome(c.DataDir)
	c.Vault.KeyFile = expandHome(c.Vault.KeyFile)
	c.Storage.SQLitePath = expandHome(c.Storage.SQLitePath)
	if c.Vault.KeyFile == "" && c.Vault.PassphraseEnv == "" {
		c.Vault.KeyFile = filepath.Join(c.DataDir, "master.key")
	}
	if c.Storage.Backend == store.BackendSQLite && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(c.DataDir, "lizi.db")
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	switch c.Storage.Backend {
	case store.BackendFile:
	case store.BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", store.BackendFile, store.BackendSQLite, c.Storage.Backend)
	}

	if c.Verify.DefaultPick < 1 {
		return fmt.Errorf("verify.default_pick must be at least 1, got %d", c.Verify.DefaultPick)
	}
	if c.Verify.ChallengeTTL <= 0 {
		return errors.New("verify.challenge_ttl must be positive")
	}
	if c.Verify.AuthorizationTTL <= 0 {
		return errors.New("verify.authorization_ttl must be positive")
	}
	if c.Verify.AvoidRepeatWindow < 0 {
		return errors.New("verify.avoid_repeat_window must not be negative")
	}

	if c.Vault.KeyFile == "" && c.Vault.PassphraseEnv == "" {
		return errors.New("vault.key_file or vault.passphrase_env is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"challenge_ttl", cfg.Verify.ChallengeTTLRaw, &cfg.Verify.ChallengeTTL},
		{"authorization_ttl", cfg.Verify.AuthorizationTTLRaw, &cfg.Verify.AuthorizationTTL},
		{"avoid_repeat_window", cfg.Verify.AvoidRepeatWindowRaw, &cfg.Verify.AvoidRepeatWindow},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
