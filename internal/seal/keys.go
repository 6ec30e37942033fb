// ABOUTME: Master key handling and per-document key derivation
// ABOUTME: Key files use HKDF-SHA256; passphrases are stretched with Argon2id first

package seal

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// MasterKeySize is the size of a generated master key.
	MasterKeySize = 32
	// SaltSize is the size of the per-document salt.
	SaltSize = 16

	keyFileMode = 0o600
)

// ErrKeyFileExists is returned by GenerateKeyFile when the target already exists.
var ErrKeyFileExists = errors.New("key file already exists")

// KeySource turns a master secret plus a per-document salt into a document key.
// label separates keys for different documents derived from the same master.
type KeySource interface {
	DeriveKey(salt []byte, label string) ([]byte, error)
}

// MasterKey is a high-entropy key read from a key file.
type MasterKey []byte

// DeriveKey expands the master key with HKDF-SHA256.
func (k MasterKey) DeriveKey(salt []byte, label string) ([]byte, error) {
	if len(k) < MasterKeySize {
		return nil, fmt.Errorf("master key must be at least %d bytes", MasterKeySize)
	}
	return expand(k, salt, label)
}

// Argon2Params configures passphrase stretching.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultArgon2Params are the parameters used for passphrase-derived keys.
var DefaultArgon2Params = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 4,
}

// Passphrase is a low-entropy secret typed by the user.
type Passphrase struct {
	Secret []byte
	Params Argon2Params
}

// DeriveKey stretches the passphrase with Argon2id, then expands per label.
func (p Passphrase) DeriveKey(salt []byte, label string) ([]byte, error) {
	if len(p.Secret) == 0 {
		return nil, fmt.Errorf("passphrase is empty")
	}
	params := p.Params
	if params.Time == 0 {
		params = DefaultArgon2Params
	}
	prk := argon2.IDKey(p.Secret, salt, params.Time, params.Memory, params.Threads, KeySize)
	return expand(prk, salt, label)
}

func expand(secret, salt []byte, label string) ([]byte, error) {
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, secret, salt, []byte("lizi-tools/"+label))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}

// Derive builds a Cipher for one document.
func Derive(src KeySource, salt []byte, label string) (*Cipher, error) {
	if len(salt) < SaltSize {
		return nil, fmt.Errorf("salt must be at least %d bytes", SaltSize)
	}
	key, err := src.DeriveKey(salt, label)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// NewSalt returns a fresh random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// LoadKeyFile reads a base64-encoded master key.
func LoadKeyFile(path string) (MasterKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding key file: %w", err)
	}
	if len(key) < MasterKeySize {
		return nil, fmt.Errorf("key file holds %d bytes, need at least %d", len(key), MasterKeySize)
	}
	return MasterKey(key), nil
}

// GenerateKeyFile writes a new random master key to path with owner-only permissions.
// It never overwrites an existing file: losing the old key loses every secret.
func GenerateKeyFile(path string) (MasterKey, error) {
	key := make([]byte, MasterKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating master key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, keyFileMode)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyFileExists, path)
		}
		return nil, fmt.Errorf("creating key file: %w", err)
	}
	_, writeErr := f.WriteString(base64.StdEncoding.EncodeToString(key) + "\n")
	closeErr := f.Close()
	if writeErr != nil {
		return nil, fmt.Errorf("writing key file: %w", writeErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("closing key file: %w", closeErr)
	}
	return MasterKey(key), nil
}
