package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// Defaults for the session security policy. All are overridable via Config.
const (
	DefaultMaxSessionsPerUser = 5
	DefaultAccessTokenTTL     = time.Hour
	DefaultRefreshTokenTTL    = 24 * time.Hour
	DefaultRotationThreshold  = 30 * time.Minute

	// DefaultHighPrivilegeRotationThreshold applies instead of the regular
	// threshold when the session is flagged high-privilege.
	DefaultHighPrivilegeRotationThreshold = 15 * time.Minute

	DefaultMaxRotationCount = 50

	// tokenBytes is the number of random bytes per issued token. Session
	// IDs, access tokens and refresh tokens are independent random values,
	// never derived from each other.
	tokenBytes = 32
)

// Context is the binding context captured at session creation and checked
// on later operations when binding enforcement is enabled.
type Context struct {
	IPAddress string
	UserAgent string
}

// Session wraps a provider token pair in a validated, rotatable handle.
type Session struct {
	ID       string
	UserID   string
	ClientID string

	AccessToken  string
	RefreshToken string
	Scopes       []string

	CreatedAt        time.Time
	LastAccessed     time.Time
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time

	// RotationCount is monotonic and capped by the manager.
	RotationCount int

	Binding Context

	RequiresMFA   bool
	IsSuspicious  bool
	ForceRotation bool
	HighPrivilege bool
}

// clone returns a copy so callers never hold a pointer into the registry.
func (s *Session) clone() *Session {
	c := *s
	c.Scopes = append([]string(nil), s.Scopes...)
	return &c
}

// RotationResult is returned by RotateTokens. The old token pair is
// invalid the moment this is produced.
type RotationResult struct {
	AccessToken   string
	RefreshToken  string
	ExpiresAt     time.Time
	RotationCount int
}

// Config holds the session security policy.
type Config struct {
	MaxSessionsPerUser             int
	AccessTokenTTL                 time.Duration
	RefreshTokenTTL                time.Duration
	RotationThreshold              time.Duration
	HighPrivilegeRotationThreshold time.Duration
	MaxRotationCount               int

	// EnforceBinding enables IP/user-agent binding checks on validation
	// and rotation.
	EnforceBinding bool
}

// withDefaults fills zero fields with the package defaults.
func (c Config) withDefaults() Config {
	if c.MaxSessionsPerUser <= 0 {
		c.MaxSessionsPerUser = DefaultMaxSessionsPerUser
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.RotationThreshold <= 0 {
		c.RotationThreshold = DefaultRotationThreshold
	}
	if c.HighPrivilegeRotationThreshold <= 0 {
		c.HighPrivilegeRotationThreshold = DefaultHighPrivilegeRotationThreshold
	}
	if c.MaxRotationCount <= 0 {
		c.MaxRotationCount = DefaultMaxRotationCount
	}
	return c
}

// generateToken returns an opaque bearer token: 32 random bytes,
// base64url-encoded without padding.
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
