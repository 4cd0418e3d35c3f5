package oauth

import (
	"time"
)

// FlowTTL is how long an authorization flow stays valid after StartFlow.
// An abandoned login is reclaimed lazily once this window passes; no
// external cancellation is needed.
const FlowTTL = 10 * time.Minute

// DefaultMaxConcurrentFlows bounds the number of simultaneously active
// authorization flows.
const DefaultMaxConcurrentFlows = 3

// minCodeLength rejects implausibly short authorization codes. Real
// providers issue codes far longer than this.
const minCodeLength = 8

// AuthorizationFlow is one PKCE authorization-code flow. A flow is created
// by StartFlow, consumed exactly once by a successful ValidateCallback, or
// discarded on expiry.
type AuthorizationFlow struct {
	// ID identifies the flow across the start/callback round trip.
	ID string

	// ClientID is the OAuth client identifier the flow was started for.
	ClientID string

	// RedirectURI is where the provider sends the authorization callback.
	RedirectURI string

	// CodeVerifier is the PKCE secret. Never transmitted in the
	// authorization URL; only its challenge is.
	CodeVerifier string

	// CodeChallenge is SHA-256(CodeVerifier), base64url-encoded.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string

	// State is the anti-CSRF parameter echoed back by the provider.
	State string

	// Nonce is the replay nonce bound into the authorization request.
	Nonce string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the flow's validity window has passed.
func (f *AuthorizationFlow) Expired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}

// AuthorizationURL is the result of GenerateAuthorizationURL: the full URL
// plus the parameters a caller may need to correlate the callback.
type AuthorizationURL struct {
	URL       string
	State     string
	Challenge string
	Nonce     string
}

// TokenExchangeRequest holds everything an external HTTP collaborator
// needs to exchange the authorization code for tokens. The network round
// trip happens strictly outside this package's locks.
type TokenExchangeRequest struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
}
