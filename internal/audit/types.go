package audit

import (
	"time"
)

// Category identifies the kind of security-relevant transition an event
// records.
type Category string

const (
	// CategoryLogin is emitted when a provider login completes.
	CategoryLogin Category = "login"

	// CategoryLogout is emitted when credentials and sessions are destroyed.
	CategoryLogout Category = "logout"

	// CategoryTokenRefresh is emitted when a session's token pair is rotated.
	CategoryTokenRefresh Category = "token_refresh"

	// CategoryOAuthStart is emitted when an authorization flow is started.
	CategoryOAuthStart Category = "oauth_start"

	// CategoryOAuthCallback is emitted when an authorization callback is
	// validated, successfully or not.
	CategoryOAuthCallback Category = "oauth_callback"

	// CategoryOAuthError is emitted when the upstream provider returned an
	// error on the callback.
	CategoryOAuthError Category = "oauth_error"

	// CategorySecurityViolation is emitted for state mismatches, PKCE
	// failures, binding-context mismatches and suspicious-session hits.
	CategorySecurityViolation Category = "security_violation"

	// CategorySessionCreated is emitted when a session is minted.
	CategorySessionCreated Category = "session_created"

	// CategorySessionDestroyed is emitted when a session is removed.
	CategorySessionDestroyed Category = "session_destroyed"

	// CategoryQuotaAllocated is emitted when an agent is admitted and
	// granted a token quota.
	CategoryQuotaAllocated Category = "quota_allocated"

	// CategoryQuotaReleased is emitted when an agent's quota is released
	// or reclaimed by the expiry sweep.
	CategoryQuotaReleased Category = "quota_released"

	// CategoryQuotaExhausted is emitted when admission is refused because a
	// provider's concurrency or daily ceiling is reached.
	CategoryQuotaExhausted Category = "quota_exhausted"

	// CategoryCredentialStored is emitted when a credential is persisted.
	CategoryCredentialStored Category = "credential_stored"

	// CategoryCredentialDeleted is emitted when a credential is shredded.
	CategoryCredentialDeleted Category = "credential_deleted"
)

// Severity grades an event for downstream alerting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event is a single append-only audit record. Events are never mutated
// after emission.
//
// Events carry identifiers and metadata only; token, verifier and
// challenge values must never be placed in Metadata.
type Event struct {
	Timestamp    time.Time      `json:"timestamp"`
	Category     Category       `json:"category"`
	UserID       string         `json:"user_id,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	ClientID     string         `json:"client_id,omitempty"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Severity     Severity       `json:"severity"`
}

// Auditor receives audit events synchronously from the core managers.
// Implementations must be safe for concurrent use and must not block on
// slow sinks; the managers emit inline on security-relevant transitions.
type Auditor interface {
	LogEvent(event Event)
}
