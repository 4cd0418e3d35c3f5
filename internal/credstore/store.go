package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agentauth/internal/audit"
	"agentauth/pkg/logging"
)

// defaultShredPasses is how many random-overwrite passes Delete performs
// before unlinking the file.
const defaultShredPasses = 3

// Store encrypts and persists one provider credential to a single file
// with owner-only permissions. Writes are atomic (temp file + rename)
// and keep a .backup copy of the prior version.
type Store struct {
	path        string
	keySource   KeySource
	shredPasses int
	auditor     audit.Auditor
}

// Option configures a Store.
type Option func(*Store)

// WithShredPasses sets the number of random-overwrite passes on Delete.
func WithShredPasses(passes int) Option {
	return func(s *Store) {
		if passes > 0 {
			s.shredPasses = passes
		}
	}
}

// WithAuditor attaches an audit sink to the store.
func WithAuditor(a audit.Auditor) Option {
	return func(s *Store) {
		s.auditor = a
	}
}

// NewStore creates a credential store writing to path, encrypting with
// keys from the given source.
func NewStore(path string, keySource KeySource, opts ...Option) *Store {
	s := &Store{
		path:        path,
		keySource:   keySource,
		shredPasses: defaultShredPasses,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the credential file path.
func (s *Store) Path() string {
	return s.path
}

// BackupPath returns the path of the prior-version copy kept across writes.
func (s *Store) BackupPath() string {
	return s.path + ".backup"
}

// Store serializes, encrypts and atomically persists the credential.
// The previous file, if any, is copied to the backup path first.
func (s *Store) Store(cred *Credential) error {
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to serialize credential: %w", err)
	}

	ciphertext, nonce, err := s.encrypt(plaintext)
	if err != nil {
		return err
	}

	now := time.Now()
	env := envelope{
		EncryptedContent: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:            base64.StdEncoding.EncodeToString(nonce),
		CreatedAt:        now,
		LastAccessed:     now,
		Version:          envelopeVersion,
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	// Keep the prior version before replacing it.
	if err := s.backupExisting(); err != nil {
		return err
	}

	// Unique temp name per writer: concurrent stores never tear the target,
	// since rename is atomic with respect to readers.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credential-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set credential file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close credential file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace credential file: %w", err)
	}

	s.emit(audit.Event{
		Category: audit.CategoryCredentialStored,
		UserID:   cred.AccountID,
		Success:  true,
		Severity: audit.SeverityInfo,
		Metadata: map[string]any{"provider": cred.Provider},
	})

	logging.Debug("CredStore", "Stored credential for provider=%s account=%s", cred.Provider, cred.AccountID)
	return nil
}

// Load reads, verifies and decrypts the stored credential. Returns
// (nil, nil) if no credential file exists. Files readable by anyone but
// the owner are rejected before a single byte is read.
func (s *Store) Load() (*Credential, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat credential file: %w", err)
	}

	if mode := info.Mode(); mode.Perm()&0077 != 0 {
		return nil, &InvalidPermissionsError{Path: s.path, Mode: mode}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse credential envelope: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.EncryptedContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted_content: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}

	plaintext, err := s.decrypt(ciphertext, nonce)
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return nil, fmt.Errorf("failed to parse credential: %w", err)
	}

	return &cred, nil
}

// Delete overwrites the credential file with random data before
// unlinking it, defending against forensic recovery on non-COW
// filesystems. The backup copy is shredded the same way. Deleting a
// missing file is a no-op.
func (s *Store) Delete() error {
	if err := s.shred(s.path); err != nil {
		return err
	}
	if err := s.shred(s.BackupPath()); err != nil {
		return err
	}

	s.emit(audit.Event{
		Category: audit.CategoryCredentialDeleted,
		Success:  true,
		Severity: audit.SeverityInfo,
	})

	logging.Debug("CredStore", "Deleted credential file")
	return nil
}

// encrypt seals plaintext with AES-256-GCM under the derived store key.
func (s *Store) encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// decrypt opens ciphertext; authentication failure surfaces as an error
// without any credential material in the message.
func (s *Store) decrypt(ciphertext, nonce []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}

	if len(nonce) != gcm.NonceSize() || len(ciphertext) < gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential: %w", err)
	}
	return plaintext, nil
}

func (s *Store) aead() (cipher.AEAD, error) {
	key, err := s.keySource.Key()
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// backupExisting copies the current credential file to the backup path.
func (s *Store) backupExisting() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read credential file for backup: %w", err)
	}

	if err := os.WriteFile(s.BackupPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write credential backup: %w", err)
	}
	return nil
}

// shred overwrites a file with random bytes shredPasses times, syncing
// after each pass, then removes it.
func (s *Store) shred(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat file for shredding: %w", err)
	}

	size := info.Size()
	f, err := os.OpenFile(path, os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open file for shredding: %w", err)
	}

	junk := make([]byte, size)
	for pass := 0; pass < s.shredPasses; pass++ {
		if _, err := rand.Read(junk); err != nil {
			f.Close()
			return fmt.Errorf("failed to generate overwrite data: %w", err)
		}
		if _, err := f.WriteAt(junk, 0); err != nil {
			f.Close()
			return fmt.Errorf("failed to overwrite file: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return fmt.Errorf("failed to sync overwrite pass: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close shredded file: %w", err)
	}
	return os.Remove(path)
}

func (s *Store) emit(event audit.Event) {
	if s.auditor != nil {
		s.auditor.LogEvent(event)
	}
}
