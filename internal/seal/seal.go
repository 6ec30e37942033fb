// ABOUTME: Authenticated encryption of opaque payloads with XChaCha20-Poly1305
// ABOUTME: Knows nothing about vault or bank semantics; callers pass associated data

package seal

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the size of a derived document key.
const KeySize = chacha20poly1305.KeySize

// NonceSize is the size of the random nonce generated for every Seal call.
const NonceSize = chacha20poly1305.NonceSizeX

// ErrOpen is returned when a ciphertext fails authentication.
// Corrupted, truncated and tampered payloads are indistinguishable.
var ErrOpen = errors.New("message authentication failed")

// Cipher seals and opens payloads under a single derived key.
type Cipher struct {
	aead cipher.AEAD
}

// New creates a Cipher from a KeySize-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext with a fresh random nonce.
// aad is authenticated but not encrypted; Open must be given the same aad.
func (c *Cipher) Seal(plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}
	return nonce, c.aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open decrypts ciphertext. Returns ErrOpen if nonce, ciphertext or aad were altered.
func (c *Cipher) Open(nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrOpen, len(nonce))
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrOpen
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// SealBlob is Seal with the nonce prepended to the ciphertext.
func (c *Cipher) SealBlob(plaintext, aad []byte) ([]byte, error) {
	nonce, ct, err := c.Seal(plaintext, aad)
	if err != nil {
		return nil, err
	}
	return append(nonce, ct...), nil
}

// OpenBlob reverses SealBlob.
func (c *Cipher) OpenBlob(blob, aad []byte) ([]byte, error) {
	if len(blob) < NonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: blob too short", ErrOpen)
	}
	return c.Open(blob[:NonceSize], blob[NonceSize:], aad)
}
