package credstore

import (
	"time"

	"golang.org/x/oauth2"
)

// envelopeVersion is written into every persisted envelope so the format
// can evolve without breaking existing credential files.
const envelopeVersion = 1

// Credential is the long-lived provider credential persisted between CLI
// invocations. Only its encrypted form ever reaches disk.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	AccountID    string    `json:"account_id,omitempty"`
	Provider     string    `json:"provider"`
}

// Expired reports whether the access token's lifetime has passed.
// Credentials without an expiry never expire.
func (c *Credential) Expired() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(c.ExpiresAt)
}

// ToOAuth2Token converts the credential to an oauth2.Token for use with
// transport collaborators.
func (c *Credential) ToOAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.ExpiresAt,
	}

	if c.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": c.IDToken,
		})
	}

	return token
}

// FromOAuth2Token builds a credential from a provider token response.
func FromOAuth2Token(token *oauth2.Token, provider, accountID string) *Credential {
	cred := &Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Provider:     provider,
		AccountID:    accountID,
	}

	if idToken := token.Extra("id_token"); idToken != nil {
		if s, ok := idToken.(string); ok {
			cred.IDToken = s
		}
	}

	return cred
}

// envelope is the on-disk JSON wrapper. EncryptedContent and Nonce are
// base64-encoded; the plaintext credential never appears in the file.
type envelope struct {
	EncryptedContent string    `json:"encrypted_content"`
	Nonce            string    `json:"nonce"`
	CreatedAt        time.Time `json:"created_at"`
	LastAccessed     time.Time `json:"last_accessed"`
	Version          int       `json:"version"`
}
