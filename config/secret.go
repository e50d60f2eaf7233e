package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// secretBox seals and opens at-rest values (currently just apiKey) for the
// config file. The AEAD cipher is built once, from a key generated on
// first run and persisted alongside the config file, and held for the
// life of the Store rather than rebuilt on every Set/load.
type secretBox struct {
	aead cipher.AEAD
}

// newSecretBox loads (or generates) the AES-256 key at keyPath and wraps it
// in an AES-GCM AEAD ready for seal/open.
func newSecretBox(keyPath string) (*secretBox, error) {
	key, err := loadSecretKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading config encryption key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("building config cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("building config cipher: %w", err)
	}
	return &secretBox{aead: gcm}, nil
}

// loadSecretKey reads a 32-byte AES-256 key from path, generating and
// persisting one with owner-only permissions if absent or malformed.
func loadSecretKey(path string) ([]byte, error) {
	if b, err := os.ReadFile(path); err == nil && len(b) == 32 {
		return b, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("persisting key: %w", err)
	}
	return key, nil
}

// seal encrypts plaintext and returns a base64-encoded nonce||ciphertext.
func (b *secretBox) seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	ct := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ct), nil
}

// open reverses seal.
func (b *secretBox) open(b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	ns := b.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("ciphertext shorter than nonce (%d bytes)", ns)
	}
	nonce, ct := raw[:ns], raw[ns:]
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(pt), nil
}
