// Package store provides whole-document persistence for lizi-tools.
//
// # Overview
//
// The question bank and the secret vault each own exactly one document.
// Components read the document once at startup and replace it on every
// mutation, so the store only needs two operations: Load and Save.
//
// # Backends
//
//   - file: one <name>.json file per document in a 0700 directory. Save
//     writes a temp file in the same directory, fsyncs it and renames it
//     over the old file.
//   - sqlite: a single database with a documents table. Save upserts
//     inside a transaction.
//
// Both backends guarantee that a reader never sees a half-written document.
//
// # Usage
//
//	s, err := store.Open(store.BackendFile, "~/.config/lizi/data", "")
//	data, err := s.Load(ctx, "vault")
//	if errors.Is(err, store.ErrNotFound) {
//		// first run
//	}
//	err = s.Save(ctx, "vault", data)
//
// Documents are opaque bytes here; sealing and JSON encoding belong to the
// owning component.
package store
