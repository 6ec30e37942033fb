// ABOUTME: SecretVault: named secrets sealed with XChaCha20-Poly1305 in one persisted document.
// ABOUTME: Reads require a live authorization from the verification gate on every call.

package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/2389/lizi-tools/internal/apperr"
	"github.com/2389/lizi-tools/internal/seal"
	"github.com/2389/lizi-tools/internal/store"
)

// Document is the store name of the vault.
const Document = "vault"

const (
	// MaxKeyLength is the longest accepted key, in bytes.
	MaxKeyLength = 256
	// MaxValueSize is the largest accepted secret value, in bytes.
	MaxValueSize = 1024 * 1024
	// MaxDescriptionLength bounds the plaintext description, in bytes.
	MaxDescriptionLength = 1024

	vaultVersion = 1
	checkAAD     = "vault-check"
)

var checkPlaintext = []byte("lizi-vault")

// Authorizer reports whether a read is currently allowed.
// verify.Gate and verify.Session both satisfy it.
type Authorizer interface {
	Authorize() error
}

// Options configures a vault.
type Options struct {
	// RequireAuthForWrites makes Set and Delete demand authorization too.
	RequireAuthForWrites bool
	Logger               *slog.Logger
}

// Entry is the listing view of a secret. It never carries the value.
type Entry struct {
	Key         string    `json:"key"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Secret is a decrypted secret returned by Get.
type Secret struct {
	Key         string
	Value       []byte
	Description string
}

type record struct {
	Description string    `json:"description"`
	Nonce       []byte    `json:"nonce"`
	Ciphertext  []byte    `json:"ciphertext"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type document struct {
	Version int               `json:"version"`
	Salt    []byte            `json:"salt"`
	Check   []byte            `json:"check"`
	Entries map[string]record `json:"entries"`
}

// Vault stores secrets. A vault whose document could not be read back
// refuses every operation with the load error.
type Vault struct {
	mu     sync.Mutex
	store  store.DocumentStore
	keys   seal.KeySource
	cipher *seal.Cipher
	doc    document
	err    error
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// Open loads the vault document from ds. Like verify.OpenBank it always
// returns a *Vault; on a damaged document or wrong master key the vault is
// failed closed and the error is also returned.
func Open(ctx context.Context, ds store.DocumentStore, keys seal.KeySource, opts Options) (*Vault, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v := &Vault{
		store:  ds,
		keys:   keys,
		opts:   opts,
		logger: logger.With("component", "vault"),
		now:    time.Now,
	}
	v.err = v.load(ctx)
	if v.err != nil {
		v.logger.Error("vault unavailable", "error", v.err)
	}
	return v, v.err
}

// load reads the persisted vault into memory. A vault that was never saved
// keeps its in-memory document. The derived cipher is reused while the salt is unchanged.
func (v *Vault) load(ctx context.Context) error {
	data, err := v.store.Load(ctx, Document)
	if errors.Is(err, store.ErrNotFound) {
		if v.cipher != nil {
			return nil
		}
		salt, err := seal.NewSalt()
		if err != nil {
			return err
		}
		c, err := seal.Derive(v.keys, salt, Document)
		if err != nil {
			return err
		}
		check, err := c.SealBlob(checkPlaintext, []byte(checkAAD))
		if err != nil {
			return err
		}
		v.cipher = c
		v.doc = document{Version: vaultVersion, Salt: salt, Check: check, Entries: map[string]record{}}
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading vault: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: vault is not valid JSON", apperr.ErrCorrupted)
	}
	if doc.Version != vaultVersion {
		return fmt.Errorf("%w: unsupported vault version %d", apperr.ErrCorrupted, doc.Version)
	}
	c := v.cipher
	if c == nil || !bytes.Equal(doc.Salt, v.doc.Salt) {
		c, err = seal.Derive(v.keys, doc.Salt, Document)
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrCorrupted, err)
		}
	}
	if _, err := c.OpenBlob(doc.Check, []byte(checkAAD)); err != nil {
		return fmt.Errorf("%w: vault cannot be opened (damaged file or wrong master key)", apperr.ErrCorrupted)
	}
	if doc.Entries == nil {
		doc.Entries = map[string]record{}
	}

	v.cipher = c
	v.doc = doc
	v.logger.Debug("vault loaded", "entries", len(doc.Entries))
	return nil
}

// lockAndReload takes the document lock and rereads the vault so the change
// applies on top of writes made by other processes. Must be called with mu held.
func (v *Vault) lockAndReload(ctx context.Context) (func(), error) {
	unlock, err := v.store.Lock(ctx, Document)
	if err != nil {
		return nil, fmt.Errorf("locking vault: %w", err)
	}
	if err := v.load(ctx); err != nil {
		unlock()
		return nil, err
	}
	return unlock, nil
}

// Err returns the load error that failed the vault closed, if any.
func (v *Vault) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Set stores value under key, replacing any previous value.
func (v *Vault) Set(ctx context.Context, auth Authorizer, key string, value []byte, description string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if len(value) > MaxValueSize {
		return fmt.Errorf("%w: value is %d bytes, maximum is %d", apperr.ErrValidation, len(value), MaxValueSize)
	}
	if len(description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d bytes", apperr.ErrValidation, MaxDescriptionLength)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return v.err
	}
	if v.opts.RequireAuthForWrites {
		if err := authorize(auth); err != nil {
			return err
		}
	}
	unlock, err := v.lockAndReload(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	nonce, ct, err := v.cipher.Seal(value, []byte(key))
	if err != nil {
		return fmt.Errorf("sealing secret: %w", err)
	}
	now := v.now().UTC()
	rec := record{Description: description, Nonce: nonce, Ciphertext: ct, CreatedAt: now, UpdatedAt: now}
	if prev, ok := v.doc.Entries[key]; ok {
		rec.CreatedAt = prev.CreatedAt
	}

	next := v.copyEntries()
	next[key] = rec
	if err := v.saveLocked(ctx, next); err != nil {
		return err
	}
	v.logger.Info("secret stored", "key", key)
	return nil
}

// Get decrypts the secret under key. Authorization is checked before the
// key is looked up, so an unauthorized caller cannot learn which keys exist.
func (v *Vault) Get(ctx context.Context, auth Authorizer, key string) (Secret, error) {
	if err := ValidateKey(key); err != nil {
		return Secret{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return Secret{}, v.err
	}
	if err := authorize(auth); err != nil {
		return Secret{}, err
	}
	if err := v.load(ctx); err != nil {
		return Secret{}, err
	}

	rec, ok := v.doc.Entries[key]
	if !ok {
		return Secret{}, fmt.Errorf("%w: %s", apperr.ErrNotFound, key)
	}
	value, err := v.cipher.Open(rec.Nonce, rec.Ciphertext, []byte(key))
	if err != nil {
		v.logger.Warn("secret failed authentication", "key", key)
		return Secret{}, fmt.Errorf("%w: %s", apperr.ErrDecryption, key)
	}
	return Secret{Key: key, Value: value, Description: rec.Description}, nil
}

// Delete removes the secret under key.
func (v *Vault) Delete(ctx context.Context, auth Authorizer, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return v.err
	}
	if v.opts.RequireAuthForWrites {
		if err := authorize(auth); err != nil {
			return err
		}
	}
	unlock, err := v.lockAndReload(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := v.doc.Entries[key]; !ok {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, key)
	}

	next := v.copyEntries()
	delete(next, key)
	if err := v.saveLocked(ctx, next); err != nil {
		return err
	}
	v.logger.Info("secret deleted", "key", key)
	return nil
}

// List returns every entry sorted by key. No value is decrypted.
func (v *Vault) List(ctx context.Context) ([]Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return nil, v.err
	}
	if err := v.load(ctx); err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(v.doc.Entries))
	for k, rec := range v.doc.Entries {
		out = append(out, Entry{Key: k, Description: rec.Description, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ValidateKey checks a secret key: 1 to MaxKeyLength bytes, valid UTF-8, no control characters.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key is required", apperr.ErrValidation)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key exceeds %d bytes", apperr.ErrValidation, MaxKeyLength)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: key is not valid UTF-8", apperr.ErrValidation)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: key contains an invalid character", apperr.ErrValidation)
		}
	}
	return nil
}

func authorize(auth Authorizer) error {
	if auth == nil {
		return apperr.ErrNotAuthorized
	}
	if err := auth.Authorize(); err != nil {
		return fmt.Errorf("%w: run a verification first", apperr.ErrNotAuthorized)
	}
	return nil
}

func (v *Vault) copyEntries() map[string]record {
	next := make(map[string]record, len(v.doc.Entries)+1)
	for k, rec := range v.doc.Entries {
		next[k] = rec
	}
	return next
}

// saveLocked writes the document with entries and swaps it in on success.
// Must be called with mu and the document lock held.
func (v *Vault) saveLocked(ctx context.Context, entries map[string]record) error {
	doc := v.doc
	doc.Entries = entries
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding vault: %w", err)
	}
	if err := v.store.Save(ctx, Document, data); err != nil {
		return fmt.Errorf("saving vault: %w", err)
	}
	v.doc = doc
	return nil
}
