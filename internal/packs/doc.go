// Package packs provides the tool pack system behind the MCP host.
//
// # Overview
//
// A pack is a named group of related tools. Every pack in lizi-tools is
// built in: its tools run in-process through a ToolHandler.
//
// # Built-in Packs
//
//	builtin:verify  - lizi_verify, the knowledge-based verification gate
//	builtin:secrets - lizi_secrets, the encrypted vault
//	builtin:clock   - lizi_watch, local date and time
//
// # Tool Routing
//
// Tool names are globally unique across packs; registering a pack whose
// tool name is taken fails with ErrToolCollision and registers nothing.
// Registry.Execute looks the tool up by name and runs it under the
// registry timeout.
//
// # Usage
//
//	registry := packs.NewRegistry(logger, 0)
//	if err := registry.RegisterBuiltinPack(builtins.VerifyPack(gate)); err != nil {
//		return err
//	}
//	result, err := registry.Execute(ctx, "lizi_verify", requestID, callerID, input)
package packs
