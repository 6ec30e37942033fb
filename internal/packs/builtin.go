// ABOUTME: Built-in tool types: a definition, a handler and the pack that groups them.
// ABOUTME: Every lizi tool executes in-process through a ToolHandler.

package packs

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a tool to MCP clients.
type ToolDefinition struct {
	Name        string
	Description string
	// InputSchemaJSON is a JSON Schema object for the tool arguments.
	InputSchemaJSON string
}

// ToolHandler is a function that executes a built-in tool.
// It receives the calling client's ID and the tool input as JSON.
// Returns the result as JSON or an error.
type ToolHandler func(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error)

// BuiltinTool represents a tool that executes in this process.
type BuiltinTool struct {
	Definition *ToolDefinition
	Handler    ToolHandler
}

// BuiltinPack is a collection of built-in tools with a pack ID.
type BuiltinPack struct {
	ID    string
	Tools []*BuiltinTool
}

// builtinEntry stores a builtin tool with its pack ID for registry lookup.
type builtinEntry struct {
	Tool   *BuiltinTool
	PackID string
}
