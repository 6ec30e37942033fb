// ABOUTME: Thread-safe registry of builtin tool packs and the dispatcher that runs their tools.
// ABOUTME: Detects name collisions at registration and bounds each call with a timeout.

package packs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrToolCollision indicates a tool name already exists in another pack.
var ErrToolCollision = errors.New("tool name collision")

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// DefaultTimeout is the default timeout for tool execution.
const DefaultTimeout = 30 * time.Second

// Registry maintains the registered packs and routes calls to their handlers.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]*builtinEntry // tool name -> entry
	packIDs  map[string]struct{}
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRegistry creates a new Registry instance. A zero timeout means DefaultTimeout.
func NewRegistry(logger *slog.Logger, timeout time.Duration) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		builtins: make(map[string]*builtinEntry),
		packIDs:  make(map[string]struct{}),
		timeout:  timeout,
		logger:   logger.With("component", "packs"),
	}
}

// RegisterBuiltinPack registers a pack of built-in tools.
// Returns ErrToolCollision if any tool name is already taken; nothing is registered in that case.
func (r *Registry) RegisterBuiltinPack(pack *BuiltinPack) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(pack.Tools))
	for _, tool := range pack.Tools {
		name := tool.Definition.Name
		if entry, exists := r.builtins[name]; exists {
			return fmt.Errorf("%w: tool '%s' already registered by pack '%s'", ErrToolCollision, name, entry.PackID)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: tool '%s' listed twice in pack '%s'", ErrToolCollision, name, pack.ID)
		}
		seen[name] = struct{}{}
	}

	for _, tool := range pack.Tools {
		r.builtins[tool.Definition.Name] = &builtinEntry{
			Tool:   tool,
			PackID: pack.ID,
		}
	}
	r.packIDs[pack.ID] = struct{}{}

	r.logger.Info("builtin pack registered",
		"pack_id", pack.ID,
		"tool_count", len(pack.Tools),
	)
	return nil
}

// GetBuiltinTool returns a builtin tool by name, or nil if not found.
func (r *Registry) GetBuiltinTool(name string) *BuiltinTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.builtins[name]; ok {
		return entry.Tool
	}
	return nil
}

// BuiltinPackInfo contains information about a registered builtin pack for display.
type BuiltinPackInfo struct {
	ID    string
	Tools []*BuiltinTool
}

// ListBuiltinPacks returns every registered pack sorted by ID, tools sorted by name.
func (r *Registry) ListBuiltinPacks() []BuiltinPackInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	packTools := make(map[string][]*BuiltinTool, len(r.packIDs))
	for id := range r.packIDs {
		packTools[id] = nil
	}
	for _, entry := range r.builtins {
		packTools[entry.PackID] = append(packTools[entry.PackID], entry.Tool)
	}

	result := make([]BuiltinPackInfo, 0, len(packTools))
	for packID, tools := range packTools {
		sort.Slice(tools, func(i, j int) bool { return tools[i].Definition.Name < tools[j].Definition.Name })
		result = append(result, BuiltinPackInfo{ID: packID, Tools: tools})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Definitions returns every tool definition sorted by name.
func (r *Registry) Definitions() []*ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*ToolDefinition, 0, len(r.builtins))
	for _, entry := range r.builtins {
		defs = append(defs, entry.Tool.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named tool with input, bounded by the registry timeout.
// requestID is only used for log correlation.
func (r *Registry) Execute(ctx context.Context, name, requestID, callerID string, input json.RawMessage) (json.RawMessage, error) {
	tool := r.GetBuiltinTool(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	r.logger.Debug("dispatching to builtin",
		"tool_name", name,
		"request_id", requestID,
		"caller_id", callerID,
	)

	result, err := tool.Handler(ctx, callerID, input)
	if err != nil {
		r.logger.Warn("builtin tool error",
			"tool_name", name,
			"request_id", requestID,
			"duration", time.Since(start),
			"error", err,
		)
		return nil, err
	}
	r.logger.Debug("builtin tool completed",
		"tool_name", name,
		"request_id", requestID,
		"duration", time.Since(start),
	)
	return result, nil
}
