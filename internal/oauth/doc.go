// Package oauth implements the PKCE authorization-code flow state machine
// used to authenticate against upstream AI providers.
//
// Each login attempt is one AuthorizationFlow: StartFlow generates the
// PKCE verifier/challenge pair, the anti-CSRF state and a replay nonce;
// GenerateAuthorizationURL builds the provider URL; ValidateCallback
// checks the callback parameters and consumes the flow exactly once,
// returning a TokenExchangeRequest for the external HTTP collaborator.
//
// The flow registry is the only shared state. It is guarded by a
// reader/writer mutex and never holds its lock across network calls; the
// token exchange itself happens entirely outside this package.
//
// Expired flows (10-minute TTL) are swept lazily on every StartFlow call
// rather than on a timer, so the sweep is O(active flows) and bounded by
// the concurrency ceiling.
package oauth
