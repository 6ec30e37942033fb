// ABOUTME: Entry point for lizi-tools, the verification gate and secret vault tool host
// ABOUTME: Serves the tools over MCP stdio and offers one-shot calls for scripting

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/2389/lizi-tools/internal/apperr"
	"github.com/2389/lizi-tools/internal/config"
	"github.com/2389/lizi-tools/internal/gateway"
	"github.com/2389/lizi-tools/internal/seal"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _ _     _
 | (_)___(_)
 | | |_ /| |
 |_|_/__||_|  tools
`

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: lizi-tools <command> [-config path]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  serve                  Serve lizi_verify, lizi_secrets and lizi_watch over MCP stdio")
	fmt.Fprintln(os.Stderr, "  call TOOL [JSON]       Run one tool call and print the result")
	fmt.Fprintln(os.Stderr, "  status                 Show storage and component health")
	fmt.Fprintln(os.Stderr, "  keygen                 Create the master key file")
	fmt.Fprintln(os.Stderr, "  version                Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "call":
		err = runCall(ctx, os.Args[2:])
	case "status":
		err = runStatus(ctx, os.Args[2:])
	case "keygen":
		err = runKeygen(os.Args[2:])
	case "version":
		fmt.Println(version)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig parses the -config flag for a subcommand and loads the config.
func loadConfig(name string, args []string) (*config.Config, string, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file (.yaml or .toml)")
	if err := fs.Parse(args); err != nil {
		return nil, "", nil, err
	}

	path, err := config.Resolve(*configPath)
	if err != nil {
		return nil, "", nil, err
	}
	var cfg *config.Config
	if path == "" {
		cfg, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, "", nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, fs.Args(), nil
}

func openGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gateway.Gateway, error) {
	gw, err := gateway.New(ctx, cfg, gateway.Options{
		PromptPassphrase: promptPassphrase(),
		Version:          version,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating gateway: %w", err)
	}
	return gw, nil
}

func runServe(ctx context.Context, args []string) error {
	cfg, configPath, _, err := loadConfig("serve", args)
	if err != nil {
		return err
	}

	// stdout carries MCP frames; everything human-readable goes to stderr.
	cyan := color.New(color.FgCyan)
	cyan.Fprint(os.Stderr, banner)
	gray := color.New(color.FgHiBlack)
	gray.Fprintf(os.Stderr, "    version: %s\n\n", version)

	green := color.New(color.FgGreen)
	if configPath == "" {
		configPath = "(defaults)"
	}
	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "Config:    %s\n", configPath)
	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "Storage:   %s (%s)\n", cfg.Storage.Backend, cfg.DataDir)
	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "Transport: MCP stdio\n\n")

	logger := setupLogger(cfg.Logging, os.Stderr)
	logger.Info("starting lizi-tools", "config", configPath, "backend", cfg.Storage.Backend)

	gw, err := openGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer gw.Close()

	return gw.Serve(ctx, os.Stdin, os.Stdout)
}

func runCall(ctx context.Context, args []string) error {
	cfg, _, rest, err := loadConfig("call", args)
	if err != nil {
		return err
	}
	if len(rest) < 1 || len(rest) > 2 {
		return errors.New("usage: lizi-tools call TOOL [JSON]")
	}
	input := json.RawMessage(`{}`)
	if len(rest) == 2 {
		input = json.RawMessage(rest[1])
	}

	logger := setupLogger(cfg.Logging, os.Stderr)
	gw, err := openGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer gw.Close()

	out, err := gw.Call(ctx, rest[0], input)
	if err != nil {
		return fmt.Errorf("%s: %w", apperr.KindOf(err), err)
	}
	fmt.Println(string(out))
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	cfg, _, _, err := loadConfig("status", args)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging, os.Stderr)
	gw, err := openGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer gw.Close()

	h := gw.Health(ctx)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed, color.Bold)

	fmt.Printf("Storage:  %s (%s)\n", h.Backend, h.DataDir)
	fmt.Printf("Tools:    %d\n", h.Tools)
	for _, p := range h.Packs {
		fmt.Printf("  %-18s %s\n", p.ID, strings.Join(p.Tools, ", "))
	}
	fmt.Print("Bank:     ")
	if h.BankError != "" {
		red.Println(h.BankError)
	} else {
		green.Printf("%d questions\n", h.BankSize)
	}
	fmt.Print("Vault:    ")
	if h.VaultError != "" {
		red.Println(h.VaultError)
	} else {
		green.Println("ok")
	}
	return nil
}

func runKeygen(args []string) error {
	cfg, _, _, err := loadConfig("keygen", args)
	if err != nil {
		return err
	}
	if cfg.Vault.PassphraseEnv != "" {
		return fmt.Errorf("vault.passphrase_env is set to %s; key files are not used", cfg.Vault.PassphraseEnv)
	}
	if _, err := seal.GenerateKeyFile(cfg.Vault.KeyFile); err != nil {
		return err
	}
	fmt.Printf("Master key written to %s\n", cfg.Vault.KeyFile)
	color.New(color.FgYellow).Println("Back this file up. Secrets cannot be recovered without it.")
	return nil
}

// promptPassphrase reads a passphrase from the terminal, or returns nil when
// stdin is not a terminal (as under an MCP host).
func promptPassphrase() func() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	return func() ([]byte, error) {
		fmt.Fprint(os.Stderr, "Passphrase: ")
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, err
		}
		return []byte(strings.TrimSpace(string(secret))), nil
	}
}

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = &colorHandler{mu: &sync.Mutex{}, out: w, level: level}
	}
	return slog.New(handler)
}
