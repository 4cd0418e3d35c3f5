// Package credstore persists long-lived provider credentials to a single
// encrypted file.
//
// SECURITY: This store handles provider token material. The following
// measures are implemented:
//   - Credentials are sealed with AES-256-GCM; the key is derived with
//     HKDF-SHA256 from a per-install random master secret
//   - Files are created with 0600 permissions and rejected on load if
//     readable by anyone but the owner
//   - Writes are atomic (unique temp file + rename) and keep a .backup
//     copy of the prior version
//   - Delete overwrites the bytes with random data before unlinking
//   - Token values never appear in logs, error messages, or plaintext
//     file bytes; errors reference field names only
//
// Other components interact with credentials exclusively through
// Store/Load/Delete; nothing else touches the file.
package credstore
