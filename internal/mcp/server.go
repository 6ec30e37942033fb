// ABOUTME: MCP server speaking newline-delimited JSON-RPC 2.0 over stdio.
// ABOUTME: Serves tools/list and tools/call from the pack registry; one request at a time.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/lizi-tools/internal/apperr"
	"github.com/2389/lizi-tools/internal/packs"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
	"2025-11-25": true,
}

// latestProtocolVersion is the version we advertise when the client asks for one we don't know
const latestProtocolVersion = "2025-11-25"

// MaxRequestBodySize is the maximum allowed size of one request line (1MB).
const MaxRequestBodySize = 1 << 20

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// MCP-specific types

// MCPToolInfo represents an MCP tool definition.
type MCPToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// MCPListToolsResult is the result for tools/list.
type MCPListToolsResult struct {
	Tools []MCPToolInfo `json:"tools"`
}

// MCPCallToolParams are the params for tools/call.
type MCPCallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPCallToolResult is the result for tools/call.
type MCPCallToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent represents content in a tool result.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

// toolError is the body of an isError tool result.
type toolError struct {
	Error toolErrorDetail `json:"error"`
}

// toolErrorDetail is the error body of an isError result. Recoverable
// errors can be fixed and resent without a new pick.
type toolErrorDetail struct {
	Kind        apperr.Kind `json:"kind"`
	Message     string      `json:"message"`
	Recoverable bool        `json:"recoverable"`
}

// Config holds configuration for the MCP server.
type Config struct {
	Registry *packs.Registry
	Logger   *slog.Logger
	Name     string
	Version  string
}

// Server implements an MCP server over a byte stream pair.
type Server struct {
	registry *packs.Registry
	logger   *slog.Logger
	name     string
	version  string

	mu       sync.Mutex
	clientID string
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "lizi-tools"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return &Server{
		registry: cfg.Registry,
		logger:   logger.With("component", "mcp"),
		name:     name,
		version:  version,
		clientID: "mcp-client",
	}, nil
}

type lineResult struct {
	line    []byte
	tooLong bool
	err     error
}

// Serve reads requests from r and writes responses to w until r reaches EOF
// or ctx is cancelled. Requests are handled strictly in arrival order.
//
// On cancel, r is closed if it is an io.Closer so the reader goroutine can
// exit. Otherwise that goroutine stays parked in Read until r returns.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan lineResult)
	done := make(chan struct{})
	defer close(done)

	go func() {
		br := bufio.NewReaderSize(r, 64*1024)
		for {
			line, tooLong, err := readLine(br, MaxRequestBodySize)
			select {
			case lines <- lineResult{line: line, tooLong: tooLong, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	enc := json.NewEncoder(w)
	s.logger.Info("MCP server listening on stdio")
	for {
		select {
		case <-ctx.Done():
			if c, ok := r.(io.Closer); ok {
				c.Close()
			}
			return ctx.Err()
		case res := <-lines:
			var resp *JSONRPCResponse
			switch {
			case res.tooLong:
				resp = errorResponse(nil, JSONRPCInvalidRequest, "request body too large")
			case len(bytes.TrimSpace(res.line)) > 0:
				resp = s.Handle(ctx, res.line)
			}
			if resp != nil {
				if err := enc.Encode(resp); err != nil {
					return fmt.Errorf("writing response: %w", err)
				}
			}
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					s.logger.Info("MCP client closed stdin")
					return nil
				}
				return fmt.Errorf("reading request: %w", res.err)
			}
		}
	}
}

// readLine returns the next newline-terminated line without the newline.
// A line longer than limit is drained and reported with tooLong set.
func readLine(br *bufio.Reader, limit int) ([]byte, bool, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > limit+1 {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimRight(buf, "\r\n"), tooLong, err
	}
}

// Handle processes one JSON-RPC message. It returns nil for notifications.
func (s *Server) Handle(ctx context.Context, body []byte) *JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return errorResponse(nil, JSONRPCParseError, "invalid JSON")
	}
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version")
	}

	isNotification := len(req.ID) == 0 || string(req.ID) == "null"
	s.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", isNotification,
	)

	// Notifications are accepted without a response
	if isNotification {
		if strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Debug("accepted MCP notification", "method", req.Method)
		} else {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		return nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return errorResponse(req.ID, JSONRPCMethodNotFound, "method not found")
	}
}

// handleInitialize answers the MCP handshake and remembers the client name for logging.
func (s *Server) handleInitialize(req JSONRPCRequest) *JSONRPCResponse {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params")
		}
	}

	version := latestProtocolVersion
	if supportedProtocolVersions[params.ProtocolVersion] {
		version = params.ProtocolVersion
	}
	if params.ClientInfo.Name != "" {
		s.mu.Lock()
		s.clientID = params.ClientInfo.Name
		s.mu.Unlock()
	}

	s.logger.Info("MCP session initialized",
		"protocol_version", version,
		"client", params.ClientInfo.Name,
	)

	return resultResponse(req.ID, map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    s.name,
			"version": s.version,
		},
	})
}

// handleToolsList handles tools/list requests.
func (s *Server) handleToolsList(req JSONRPCRequest) *JSONRPCResponse {
	defs := s.registry.Definitions()
	result := MCPListToolsResult{
		Tools: make([]MCPToolInfo, len(defs)),
	}
	for i, def := range defs {
		schema := def.InputSchemaJSON
		if schema == "" {
			schema = `{"type":"object"}`
		}
		result.Tools[i] = MCPToolInfo{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: json.RawMessage(schema),
		}
	}

	s.logger.Debug("tools/list", "count", len(defs))
	return resultResponse(req.ID, result)
}

// handleToolsCall handles tools/call requests.
func (s *Server) handleToolsCall(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return errorResponse(req.ID, JSONRPCInvalidParams, "tool name is required")
	}
	if s.registry.GetBuiltinTool(params.Name) == nil {
		return errorResponse(req.ID, JSONRPCInvalidParams, "tool not found")
	}

	// Generate request ID for correlation
	requestID := uuid.New().String()

	input := params.Arguments
	if len(input) == 0 || string(input) == "null" {
		input = json.RawMessage("{}")
	}

	s.mu.Lock()
	clientID := s.clientID
	s.mu.Unlock()

	out, err := s.registry.Execute(ctx, params.Name, requestID, clientID, input)
	if err != nil {
		return resultResponse(req.ID, s.toolErrorResult(params.Name, requestID, err))
	}

	s.logger.Debug("tools/call complete",
		"tool_name", params.Name,
		"request_id", requestID,
	)
	return resultResponse(req.ID, MCPCallToolResult{
		Content: []MCPContent{{Type: "text", Text: string(out)}},
	})
}

// toolErrorResult turns a handler error into an isError result the model can read.
func (s *Server) toolErrorResult(toolName, requestID string, err error) MCPCallToolResult {
	kind := apperr.KindOf(err)
	message := err.Error()

	if kind == apperr.KindInternal {
		s.logger.Error("tool execution failed",
			"tool_name", toolName,
			"request_id", requestID,
			"error", err,
		)
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			message = "tool execution timed out"
		case errors.Is(err, context.Canceled):
			message = "request cancelled"
		default:
			message = "tool execution failed"
		}
	} else {
		s.logger.Info("tool returned error",
			"tool_name", toolName,
			"request_id", requestID,
			"kind", kind,
		)
	}

	body, mErr := json.Marshal(toolError{Error: toolErrorDetail{
		Kind:        kind,
		Message:     message,
		Recoverable: apperr.Recoverable(err),
	}})
	if mErr != nil {
		body = []byte(`{"error":{"kind":"InternalError","message":"tool execution failed","recoverable":false}}`)
	}
	return MCPCallToolResult{
		Content: []MCPContent{{Type: "text", Text: string(body)}},
		IsError: true,
	}
}

func resultResponse(id json.RawMessage, result any) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *JSONRPCResponse {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
	}
}
