// ABOUTME: Tests for the stdio MCP server: handshake, tool listing, tool calls and framing.
// ABOUTME: Uses an in-memory registry with stub tools.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/lizi-tools/internal/apperr"
	"github.com/2389/lizi-tools/internal/packs"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := packs.NewRegistry(slog.Default(), time.Second)
	err := registry.RegisterBuiltinPack(&packs.BuiltinPack{
		ID: "builtin:test",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:            "echo",
					Description:     "Echo input",
					InputSchemaJSON: `{"type":"object"}`,
				},
				Handler: func(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
					return json.Marshal(map[string]any{"caller": callerID, "input": input})
				},
			},
			{
				Definition: &packs.ToolDefinition{Name: "locked"},
				Handler: func(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
					return nil, fmt.Errorf("%w: run a verification first", apperr.ErrNotAuthorized)
				},
			},
			{
				Definition: &packs.ToolDefinition{Name: "picky"},
				Handler: func(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
					return nil, fmt.Errorf("%w: expected 2 answer sets, got 1", apperr.ErrMalformedAnswer)
				},
			},
			{
				Definition: &packs.ToolDefinition{Name: "broken"},
				Handler: func(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
					return nil, fmt.Errorf("open /secret/path: permission denied")
				},
			},
		},
	})
	require.NoError(t, err)

	s, err := NewServer(Config{Registry: registry, Version: "test"})
	require.NoError(t, err)
	return s
}

func handle(t *testing.T, s *Server, body string) *JSONRPCResponse {
	t.Helper()
	return s.Handle(context.Background(), []byte(body))
}

func toolResult(t *testing.T, resp *JSONRPCResponse) MCPCallToolResult {
	t.Helper()
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(MCPCallToolResult)
	require.True(t, ok, "unexpected result type %T", resp.Result)
	require.Len(t, result.Content, 1)
	return result
}

func TestNewServer_RequiresRegistry(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestInitialize(t *testing.T) {
	s := newTestServer(t)

	resp := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"opencode"}}}`)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	assert.Equal(t, "2025-03-26", result["protocolVersion"])
	info := result["serverInfo"].(map[string]any)
	assert.Equal(t, "lizi-tools", info["name"])
	assert.Equal(t, "test", info["version"])

	// Unknown versions get the latest
	resp = handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{"protocolVersion":"1999-01-01"}}`)
	assert.Equal(t, latestProtocolVersion, resp.Result.(map[string]any)["protocolVersion"])
}

func TestClientNameIsCallerID(t *testing.T) {
	s := newTestServer(t)
	handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"clientInfo":{"name":"opencode"}}}`)

	result := toolResult(t, handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"a":1}}}`))
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"caller":"opencode","input":{"a":1}}`, result.Content[0].Text)
}

func TestToolsList(t *testing.T) {
	s := newTestServer(t)

	resp := handle(t, s, `{"jsonrpc":"2.0","id":"list","method":"tools/list"}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, `"list"`, string(resp.ID))

	result := resp.Result.(MCPListToolsResult)
	require.Len(t, result.Tools, 4)
	assert.Equal(t, "broken", result.Tools[0].Name)
	assert.Equal(t, "echo", result.Tools[1].Name)
	assert.JSONEq(t, `{"type":"object"}`, string(result.Tools[0].InputSchema), "missing schema defaults to object")
}

func TestToolsCall_DefaultsArguments(t *testing.T) {
	s := newTestServer(t)

	result := toolResult(t, handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo"}}`))
	assert.JSONEq(t, `{"caller":"mcp-client","input":{}}`, result.Content[0].Text)
}

func TestToolsCall_DomainErrorIsResult(t *testing.T) {
	s := newTestServer(t)

	result := toolResult(t, handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"locked","arguments":{}}}`))
	assert.True(t, result.IsError)

	var body toolError
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &body))
	assert.Equal(t, apperr.KindNotAuthorized, body.Error.Kind)
	assert.Contains(t, body.Error.Message, "not authorized")
	assert.False(t, body.Error.Recoverable)
}

func TestToolsCall_RecoverableErrorIsFlagged(t *testing.T) {
	s := newTestServer(t)

	result := toolResult(t, handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"picky","arguments":{}}}`))
	assert.True(t, result.IsError)

	var body toolError
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &body))
	assert.Equal(t, apperr.KindMalformedAnswer, body.Error.Kind)
	assert.True(t, body.Error.Recoverable)
}

func TestToolsCall_InternalErrorHidesDetail(t *testing.T) {
	s := newTestServer(t)

	result := toolResult(t, handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"broken"}}`))
	assert.True(t, result.IsError)
	assert.NotContains(t, result.Content[0].Text, "/secret/path")
	assert.Contains(t, result.Content[0].Text, "InternalError")
}

func TestProtocolErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{not json`, JSONRPCParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, JSONRPCInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, JSONRPCMethodNotFound},
		{"missing tool name", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`, JSONRPCInvalidParams},
		{"unknown tool", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope"}}`, JSONRPCInvalidParams},
		{"bad params", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":"x"}`, JSONRPCInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := handle(t, s, tt.body)
			require.NotNil(t, resp)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestNotificationsHaveNoResponse(t *testing.T) {
	s := newTestServer(t)
	assert.Nil(t, handle(t, s, `{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.Nil(t, handle(t, s, `{"jsonrpc":"2.0","id":null,"method":"tools/list"}`))
}

func TestServe_Stdio(t *testing.T) {
	s := newTestServer(t)
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"x":"y"}}}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	err := s.Serve(context.Background(), strings.NewReader(in), &out)
	require.NoError(t, err)

	var ids []string
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var resp struct {
			ID    json.RawMessage `json:"id"`
			Error *JSONRPCError   `json:"error"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &resp))
		assert.Nil(t, resp.Error)
		ids = append(ids, string(resp.ID))
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestServe_LastLineWithoutNewline(t *testing.T) {
	s := newTestServer(t)
	var out bytes.Buffer
	err := s.Serve(context.Background(), strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"ping"}`), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"id":7`)
}

func TestServe_OversizedRequest(t *testing.T) {
	s := newTestServer(t)
	huge := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"` + strings.Repeat("x", MaxRequestBodySize) + `"}}`
	in := huge + "\n" + `{"jsonrpc":"2.0","id":2,"method":"ping"}` + "\n"

	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(in), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "request body too large")
	assert.Contains(t, lines[1], `"id":2`)
}

func TestServe_ContextCancel(t *testing.T) {
	s := newTestServer(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, pr, io.Discard) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	// The input was closed, so nothing is left blocked reading it.
	_, err := pw.Write([]byte("{}\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
