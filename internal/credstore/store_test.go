package credstore

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentauth/internal/audit"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	key := StaticKeySource(bytes.Repeat([]byte{0x42}, 32))
	return NewStore(filepath.Join(dir, "credential.json"), key)
}

func testCredential() *Credential {
	return &Credential{
		AccessToken:  "MARKER-ACCESS-TOKEN-12345",
		RefreshToken: "MARKER-REFRESH-TOKEN-67890",
		IDToken:      "MARKER-ID-TOKEN-abcde",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		AccountID:    "account-1",
		Provider:     "anthropic",
	}
}

func TestStoreAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	cred := testCredential()

	require.NoError(t, s.Store(cred))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, cred.AccessToken, loaded.AccessToken)
	assert.Equal(t, cred.RefreshToken, loaded.RefreshToken)
	assert.Equal(t, cred.IDToken, loaded.IDToken)
	assert.True(t, cred.ExpiresAt.Equal(loaded.ExpiresAt))
	assert.Equal(t, cred.AccountID, loaded.AccountID)
	assert.Equal(t, cred.Provider, loaded.Provider)
}

func TestLoad_MissingFile(t *testing.T) {
	s := newTestStore(t)

	cred, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestEncryptionAtRest(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Store(testCredential()))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	// No plaintext secret may appear as a byte-substring of the file.
	for _, marker := range []string{"MARKER-ACCESS-TOKEN", "MARKER-REFRESH-TOKEN", "MARKER-ID-TOKEN"} {
		assert.NotContains(t, string(raw), marker)
	}

	// The file is the documented JSON envelope.
	var env map[string]any
	require.NoError(t, json.Unmarshal(raw, &env))
	for _, field := range []string{"encrypted_content", "nonce", "created_at", "last_accessed", "version"} {
		assert.Contains(t, env, field)
	}
	assert.EqualValues(t, 1, env["version"])
}

func TestFilePermissions(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Store(testCredential()))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoad_RejectsBroadPermissions(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Store(testCredential()))

	require.NoError(t, os.Chmod(s.Path(), 0644))

	_, err := s.Load()
	var permErr *InvalidPermissionsError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, s.Path(), permErr.Path)
}

func TestStore_KeepsBackup(t *testing.T) {
	s := newTestStore(t)

	first := testCredential()
	first.AccountID = "first"
	require.NoError(t, s.Store(first))

	firstBytes, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	second := testCredential()
	second.AccountID = "second"
	require.NoError(t, s.Store(second))

	backup, err := os.ReadFile(s.BackupPath())
	require.NoError(t, err)
	assert.Equal(t, firstBytes, backup, "backup must hold the prior version's bytes")

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.AccountID)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Store(testCredential()))
	require.NoError(t, s.Store(testCredential())) // creates a backup too

	require.NoError(t, s.Delete())

	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(s.BackupPath())
	assert.True(t, os.IsNotExist(err))

	// Deleting again is a no-op.
	require.NoError(t, s.Delete())
}

func TestLoad_WrongKeyFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credential.json")

	writer := NewStore(path, StaticKeySource(bytes.Repeat([]byte{0x01}, 32)))
	require.NoError(t, writer.Store(testCredential()))

	reader := NewStore(path, StaticKeySource(bytes.Repeat([]byte{0x02}, 32)))
	_, err := reader.Load()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "MARKER", "errors must not leak credential material")
}

func TestLoad_TamperedCiphertextFails(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Store(testCredential()))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	// Flip a character in the ciphertext.
	content := []byte(env.EncryptedContent)
	if content[0] == 'A' {
		content[0] = 'B'
	} else {
		content[0] = 'A'
	}
	env.EncryptedContent = string(content)

	tampered, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), tampered, 0600))

	_, err = s.Load()
	require.Error(t, err, "authenticated encryption must reject tampered content")
}

func TestFileKeySource(t *testing.T) {
	dir := t.TempDir()
	src := NewFileKeySource(filepath.Join(dir, "secret"))

	key1, err := src.Key()
	require.NoError(t, err)
	assert.Len(t, key1, 32)

	// Stable across calls.
	key2, err := src.Key()
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	// The secret file is owner-only.
	info, err := os.Stat(filepath.Join(dir, "secret"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// A different install derives a different key.
	other := NewFileKeySource(filepath.Join(dir, "other-secret"))
	key3, err := other.Key()
	require.NoError(t, err)
	assert.NotEqual(t, key1, key3)

	// The derived key is not the raw secret.
	secret, err := os.ReadFile(filepath.Join(dir, "secret"))
	require.NoError(t, err)
	assert.NotEqual(t, secret, key1)
}

func TestStaticKeySource_Validation(t *testing.T) {
	_, err := StaticKeySource([]byte("short")).Key()
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestStore_EmitsAuditEvents(t *testing.T) {
	dir := t.TempDir()
	rec := audit.NewRecorder()
	s := NewStore(filepath.Join(dir, "credential.json"),
		StaticKeySource(bytes.Repeat([]byte{0x42}, 32)),
		WithAuditor(rec))

	require.NoError(t, s.Store(testCredential()))
	require.NoError(t, s.Delete())

	assert.Len(t, rec.EventsByCategory(audit.CategoryCredentialStored), 1)
	assert.Len(t, rec.EventsByCategory(audit.CategoryCredentialDeleted), 1)
}

func TestOAuth2TokenConversion(t *testing.T) {
	cred := testCredential()

	token := cred.ToOAuth2Token()
	assert.Equal(t, cred.AccessToken, token.AccessToken)
	assert.Equal(t, cred.RefreshToken, token.RefreshToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, cred.IDToken, token.Extra("id_token"))

	back := FromOAuth2Token(token, cred.Provider, cred.AccountID)
	assert.Equal(t, cred.AccessToken, back.AccessToken)
	assert.Equal(t, cred.IDToken, back.IDToken)
	assert.Equal(t, cred.Provider, back.Provider)
}

func TestCredentialExpired(t *testing.T) {
	cred := &Credential{}
	assert.False(t, cred.Expired(), "credentials without expiry never expire")

	cred.ExpiresAt = time.Now().Add(-time.Minute)
	assert.True(t, cred.Expired())

	cred.ExpiresAt = time.Now().Add(time.Minute)
	assert.False(t, cred.Expired())
}

func TestStore_ConcurrentWritesNeverTear(t *testing.T) {
	s := newTestStore(t)

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			done <- s.Store(testCredential())
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-done)
	}

	// Whatever won the race, the file must parse and decrypt cleanly.
	loaded, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "anthropic", loaded.Provider)
}
