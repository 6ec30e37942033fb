// ABOUTME: Shared helpers for builtin pack tests.
// ABOUTME: Builds a real gate and vault over a file store in a temp dir.

package builtins

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/2389/lizi-tools/internal/packs"
	"github.com/2389/lizi-tools/internal/seal"
	"github.com/2389/lizi-tools/internal/store"
	"github.com/2389/lizi-tools/internal/vault"
	"github.com/2389/lizi-tools/internal/verify"
)

func findHandler(pack *packs.BuiltinPack, name string) packs.ToolHandler {
	for _, tool := range pack.Tools {
		if tool.Definition.Name == name {
			return tool.Handler
		}
	}
	return nil
}

type testEnv struct {
	gate    *verify.Gate
	vault   *vault.Vault
	verify  packs.ToolHandler
	secrets packs.ToolHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	ds, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	key := make(seal.MasterKey, seal.MasterKeySize)

	bank, err := verify.OpenBank(ctx, ds, key, nil)
	if err != nil {
		t.Fatalf("OpenBank: %v", err)
	}
	v, err := vault.Open(ctx, ds, key, vault.Options{})
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	gate := verify.NewGate(bank, verify.NewSelector(nil), verify.NewSession(10*time.Minute, 5*time.Minute),
		verify.GateConfig{DefaultPick: 1, UnknownOption: "I don't know"}, nil)

	return &testEnv{
		gate:    gate,
		vault:   v,
		verify:  findHandler(VerifyPack(gate), "lizi_verify"),
		secrets: findHandler(SecretsPack(v, gate), "lizi_secrets"),
	}
}

func call(t *testing.T, h packs.ToolHandler, input string) (map[string]any, error) {
	t.Helper()
	result, err := h(context.Background(), "test-client", json.RawMessage(input))
	if err != nil {
		return nil, err
	}
	var resp map[string]any
	if err := json.Unmarshal(result, &resp); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return resp, nil
}

func mustCall(t *testing.T, h packs.ToolHandler, input string) map[string]any {
	t.Helper()
	resp, err := call(t, h, input)
	if err != nil {
		t.Fatalf("handler error for %s: %v", input, err)
	}
	return resp
}
