// Package builtins provides the tool packs served by lizi-tools.
//
// # Tool Packs
//
// Verify Pack (builtin:verify):
//
//   - lizi_verify: status, pick, check, add and setup on the verification gate
//
// Secrets Pack (builtin:secrets):
//
//   - lizi_secrets: list, get, set and delete on the encrypted vault
//
// Clock Pack (builtin:clock):
//
//   - lizi_watch: current local date, time and weekday
//
// # Argument Envelope
//
// lizi_verify and lizi_secrets take {"mode": "...", "data": ...}. data may be
// a JSON object or a string holding JSON, since assistants often send it
// pre-encoded. For get and delete, data may also be the bare key.
//
// # Errors
//
// Handlers return errors wrapping the apperr sentinels. The MCP host turns
// them into {"error": {"kind": ..., "message": ...}} tool results.
package builtins
