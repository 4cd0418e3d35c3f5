package credstore

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

// masterSecretBytes is the size of the per-install master secret.
const masterSecretBytes = 32

// KeySource supplies the 32-byte encryption key for the credential store.
// The file-based source below is the default; an OS-keychain or
// hardware-backed source can replace it without touching the store.
type KeySource interface {
	Key() ([]byte, error)
}

// FileKeySource derives the store key from a per-install random master
// secret kept in a 0600 file. The secret is created from crypto/rand on
// first use. The store key is derived with HKDF-SHA256 so the raw secret
// is never used as a cipher key directly.
type FileKeySource struct {
	path string
}

// NewFileKeySource creates a key source backed by the given secret path.
func NewFileKeySource(path string) *FileKeySource {
	return &FileKeySource{path: path}
}

// Key implements KeySource.
func (s *FileKeySource) Key() ([]byte, error) {
	secret, err := s.loadOrCreateSecret()
	if err != nil {
		return nil, err
	}

	h := hkdf.New(sha256.New, secret, nil, []byte("agentauth credential store v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("failed to derive store key: %w", err)
	}
	return key, nil
}

func (s *FileKeySource) loadOrCreateSecret() ([]byte, error) {
	secret, err := os.ReadFile(s.path)
	if err == nil {
		if len(secret) != masterSecretBytes {
			return nil, fmt.Errorf("master secret file %s: %w", s.path, ErrInvalidKeyLength)
		}
		return secret, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read master secret: %w", err)
	}

	secret = make([]byte, masterSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate master secret: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create secret directory: %w", err)
	}
	if err := os.WriteFile(s.path, secret, 0600); err != nil {
		return nil, fmt.Errorf("failed to write master secret: %w", err)
	}

	return secret, nil
}

// StaticKeySource returns a fixed key. Used by tests and by callers that
// already hold key material from an external manager.
type StaticKeySource []byte

// Key implements KeySource.
func (s StaticKeySource) Key() ([]byte, error) {
	if len(s) != 32 {
		return nil, ErrInvalidKeyLength
	}
	return []byte(s), nil
}
