// Package gateway assembles lizi-tools from its configuration.
//
// # Overview
//
// New opens the configured document store, loads the master key, and builds
// the question bank, the verification gate and the secret vault on top of it.
// The three builtin packs (lizi_verify, lizi_secrets, lizi_watch) are
// registered into a single registry which is then served over MCP stdio.
//
// # Failure Handling
//
// A store that cannot be opened or a key that cannot be loaded aborts
// startup. A bank or vault document that cannot be decrypted does not: that
// component reports ErrCorrupted or ErrDecryption on every call while the
// other keeps working, and the document on disk is left untouched.
//
// # Keys
//
// LoadKeys reads vault.key_file, generating it on first run, unless
// vault.passphrase_env names a passphrase variable. An empty passphrase
// variable falls back to the PromptPassphrase callback, which the CLI wires
// to a terminal prompt.
package gateway
