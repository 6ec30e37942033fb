// Package mcp implements the Model Context Protocol server for lizi-tools.
//
// # Overview
//
// MCP (Model Context Protocol) is a standard for AI tool integration. This
// package serves the registered tool packs to one MCP client over stdio:
// the client starts lizi-tools as a subprocess and exchanges newline-delimited
// JSON-RPC 2.0 messages on its stdin and stdout. Logs go to stderr.
//
// Because the verification session lives in memory, the process must stay up
// between lizi_verify check and lizi_secrets get; a stdio server does exactly
// that for the lifetime of the client.
//
// # Methods
//
//   - initialize - handshake; echoes a supported protocol version
//   - ping - liveness
//   - tools/list - every registered tool with its input schema
//   - tools/call - run one tool
//
// Notifications (messages without an id) are accepted silently.
//
// # Tool Errors
//
// Domain errors are not JSON-RPC errors. They come back as a normal result
// with isError set and a text body of the form:
//
//	{"error": {"kind": "NotAuthorizedError", "message": "not authorized: run a verification first"}}
//
// Unknown tools and malformed params are JSON-RPC errors (-32602).
//
// # Limits
//
// A request line over 1 MiB is rejected with -32600 and skipped.
package mcp
