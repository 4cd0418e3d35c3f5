package credstore

import (
	"errors"
	"fmt"
	"io/fs"
)

// Storage errors. None of these ever carries a credential value; they
// reference paths, modes and field names only.
var (
	// ErrInvalidKeyLength indicates the key source produced a key of the
	// wrong size for AES-256.
	ErrInvalidKeyLength = errors.New("invalid key length")

	// ErrCiphertextTooShort indicates a truncated or corrupted envelope.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// InvalidPermissionsError indicates the credential file is readable by
// more than its owner. The store refuses to load such a file.
type InvalidPermissionsError struct {
	Path string
	Mode fs.FileMode
}

// Error implements the error interface.
func (e *InvalidPermissionsError) Error() string {
	return fmt.Sprintf("credential file %s has permissions %04o, want owner-only (0600)", e.Path, e.Mode.Perm())
}
