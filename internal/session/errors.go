package session

import (
	"errors"
	"fmt"
)

// Session-state errors. All are recoverable, caller-visible values.
var (
	// ErrSessionNotFound indicates the session ID is unknown or the
	// session was destroyed.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the relevant token lifetime (access on
	// validation, refresh on rotation) has elapsed.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidToken indicates the presented token does not match the
	// session's current token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrRotationRequired signals that the caller must rotate the token
	// pair and retry. It is a deliberate signal, not a failure: rotation
	// is always an explicit, caller-visible step.
	ErrRotationRequired = errors.New("token rotation required")
)

// SecurityViolationError indicates a binding-context mismatch, a
// suspicious-flagged session, or a rotation-count cap hit. The reason
// names the check that fired, never a credential value.
type SecurityViolationError struct {
	Reason string
}

// Error implements the error interface.
func (e *SecurityViolationError) Error() string {
	return fmt.Sprintf("security violation: %s", e.Reason)
}

// ConcurrentLimitExceededError indicates the per-user session ceiling was
// reached when creating a session.
type ConcurrentLimitExceededError struct {
	UserID  string
	Current int
	Max     int
}

// Error implements the error interface.
func (e *ConcurrentLimitExceededError) Error() string {
	return fmt.Sprintf("concurrent session limit exceeded for user %s: %d active, max %d", e.UserID, e.Current, e.Max)
}
