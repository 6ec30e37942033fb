// ABOUTME: Gateway orchestrator that wires storage, keys, the verification gate, the vault and the tool packs
// ABOUTME: Owns the lifecycle of the document store and serves the packs over MCP stdio

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/2389/lizi-tools/internal/builtins"
	"github.com/2389/lizi-tools/internal/config"
	"github.com/2389/lizi-tools/internal/dedupe"
	"github.com/2389/lizi-tools/internal/mcp"
	"github.com/2389/lizi-tools/internal/packs"
	"github.com/2389/lizi-tools/internal/seal"
	"github.com/2389/lizi-tools/internal/store"
	"github.com/2389/lizi-tools/internal/vault"
	"github.com/2389/lizi-tools/internal/verify"
)

// recentQuestionLimit bounds the repeat-avoidance cache.
const recentQuestionLimit = 1000

// Gateway orchestrates the lizi-tools components for one process.
type Gateway struct {
	config *config.Config
	store  store.DocumentStore
	bank   *verify.Bank
	gate   *verify.Gate
	vault  *vault.Vault
	logger *slog.Logger

	// packRegistry holds the builtin tool packs
	packRegistry *packs.Registry

	// mcpServer serves packRegistry to one MCP client
	mcpServer *mcp.Server
}

// Options carries process-level inputs that do not belong in the config file.
type Options struct {
	// Keys overrides key loading; nil means LoadKeys(cfg, PromptPassphrase).
	Keys seal.KeySource
	// PromptPassphrase is asked for a passphrase when vault.passphrase_env names an unset variable.
	PromptPassphrase func() ([]byte, error)
	// Version is reported to MCP clients.
	Version string
	// Now overrides the clock for the gate session and the watch tool.
	Now func() time.Time
}

// New opens storage, loads keys and builds every component. A bank or vault
// whose document cannot be read is logged and left failed closed; the other
// component keeps working.
func New(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	keys := opts.Keys
	if keys == nil {
		var err error
		keys, err = LoadKeys(cfg, opts.PromptPassphrase, logger)
		if err != nil {
			return nil, err
		}
	}

	s, err := store.Open(cfg.Storage.Backend, cfg.DataDir, cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Backend, err)
	}

	// Both components log and keep their load error; calls fail until repaired.
	bank, _ := verify.OpenBank(ctx, s, keys, logger)
	v, _ := vault.Open(ctx, s, keys, vault.Options{
		RequireAuthForWrites: cfg.Vault.RequireAuthForWrites,
		Logger:               logger,
	})

	var recent *dedupe.Cache
	if cfg.Verify.AvoidRepeatWindow > 0 {
		recent = dedupe.New(cfg.Verify.AvoidRepeatWindow, recentQuestionLimit)
	}
	session := verify.NewSession(cfg.Verify.ChallengeTTL, cfg.Verify.AuthorizationTTL)
	if opts.Now != nil {
		session.SetClock(opts.Now)
	}
	gate := verify.NewGate(bank, verify.NewSelector(recent), session, verify.GateConfig{
		DefaultPick:   cfg.Verify.DefaultPick,
		Decoys:        cfg.Verify.Decoys,
		UnknownOption: cfg.Verify.UnknownOption,
	}, logger)

	registry := packs.NewRegistry(logger, 0)
	if err := registerBuiltinPacks(registry, gate, v, opts.Now); err != nil {
		_ = s.Close()
		return nil, err
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Registry: registry,
		Logger:   logger,
		Version:  opts.Version,
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	return &Gateway{
		config:       cfg,
		store:        s,
		bank:         bank,
		gate:         gate,
		vault:        v,
		logger:       logger.With("component", "gateway"),
		packRegistry: registry,
		mcpServer:    mcpServer,
	}, nil
}

func registerBuiltinPacks(registry *packs.Registry, gate *verify.Gate, v *vault.Vault, now func() time.Time) error {
	if err := registry.RegisterBuiltinPack(builtins.VerifyPack(gate)); err != nil {
		return fmt.Errorf("registering verify pack: %w", err)
	}
	if err := registry.RegisterBuiltinPack(builtins.SecretsPack(v, gate)); err != nil {
		return fmt.Errorf("registering secrets pack: %w", err)
	}
	if err := registry.RegisterBuiltinPack(builtins.ClockPack(now, nil)); err != nil {
		return fmt.Errorf("registering clock pack: %w", err)
	}
	return nil
}

// LoadKeys returns the master key source named by cfg. With
// vault.passphrase_env set the passphrase is read from that variable, or from
// prompt when the variable is empty. Otherwise the key file is read, and
// generated on first use.
func LoadKeys(cfg *config.Config, prompt func() ([]byte, error), logger *slog.Logger) (seal.KeySource, error) {
	if cfg.Vault.PassphraseEnv != "" {
		secret := []byte(os.Getenv(cfg.Vault.PassphraseEnv))
		if len(secret) == 0 {
			if prompt == nil {
				return nil, fmt.Errorf("%s is empty and no terminal is available for a passphrase prompt", cfg.Vault.PassphraseEnv)
			}
			var err error
			secret, err = prompt()
			if err != nil {
				return nil, fmt.Errorf("reading passphrase: %w", err)
			}
			if len(secret) == 0 {
				return nil, errors.New("passphrase is empty")
			}
		}
		return seal.Passphrase{Secret: secret, Params: seal.DefaultArgon2Params}, nil
	}

	key, err := seal.LoadKeyFile(cfg.Vault.KeyFile)
	if errors.Is(err, fs.ErrNotExist) {
		key, err = seal.GenerateKeyFile(cfg.Vault.KeyFile)
		if err != nil {
			return nil, err
		}
		logger.Warn("generated new master key; back it up, secrets cannot be read without it", "path", cfg.Vault.KeyFile)
		return key, nil
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

// Serve runs the MCP server on r and w until r closes or ctx is cancelled.
func (g *Gateway) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	g.logger.Info("serving tools",
		"tools", len(g.packRegistry.Definitions()),
		"backend", g.config.Storage.Backend,
		"data_dir", g.config.DataDir,
	)
	return g.mcpServer.Serve(ctx, r, w)
}

// Call runs one tool directly, bypassing MCP framing.
func (g *Gateway) Call(ctx context.Context, tool string, args json.RawMessage) (json.RawMessage, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return g.packRegistry.Execute(ctx, tool, "cli", "cli", args)
}

// Health summarizes component availability.
type Health struct {
	Backend    string       `json:"backend"`
	DataDir    string       `json:"data_dir"`
	BankSize   int          `json:"bank_size"`
	BankError  string       `json:"bank_error,omitempty"`
	VaultError string       `json:"vault_error,omitempty"`
	Tools      int          `json:"tools"`
	Packs      []PackHealth `json:"packs"`
}

// PackHealth names a registered pack and its tools.
type PackHealth struct {
	ID    string   `json:"id"`
	Tools []string `json:"tools"`
}

// Health reports whether the bank and vault loaded. The bank is reread so the
// size reflects writes made by other processes.
func (g *Gateway) Health(ctx context.Context) Health {
	h := Health{
		Backend: g.config.Storage.Backend,
		DataDir: g.config.DataDir,
	}
	for _, info := range g.packRegistry.ListBuiltinPacks() {
		ph := PackHealth{ID: info.ID, Tools: make([]string, len(info.Tools))}
		for i, tool := range info.Tools {
			ph.Tools[i] = tool.Definition.Name
		}
		h.Tools += len(ph.Tools)
		h.Packs = append(h.Packs, ph)
	}

	if err := g.bank.Err(); err != nil {
		h.BankError = err.Error()
	} else if err := g.bank.Refresh(ctx); err != nil {
		h.BankError = err.Error()
	} else if n, err := g.bank.Size(); err == nil {
		h.BankSize = n
	}
	if err := g.vault.Err(); err != nil {
		h.VaultError = err.Error()
	}
	return h
}

// Close releases the document store.
func (g *Gateway) Close() error {
	return g.store.Close()
}
