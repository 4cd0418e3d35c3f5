package oauth

import (
	"errors"
	"fmt"
)

// Flow-state errors. All are recoverable, caller-visible values; the
// manager never retries internally.
var (
	// ErrFlowNotFound indicates the flow ID is unknown or was already
	// consumed by a successful callback.
	ErrFlowNotFound = errors.New("authorization flow not found")

	// ErrFlowExpired indicates the flow's 10-minute window has elapsed.
	ErrFlowExpired = errors.New("authorization flow expired")

	// ErrInvalidState indicates the callback's state parameter did not
	// byte-match the one generated for the flow.
	ErrInvalidState = errors.New("state parameter mismatch")

	// ErrInvalidCode indicates the callback carried an empty or
	// implausibly short authorization code.
	ErrInvalidCode = errors.New("invalid authorization code")

	// ErrPKCEVerificationFailed indicates the supplied code verifier does
	// not hash to the stored challenge.
	ErrPKCEVerificationFailed = errors.New("PKCE verification failed")
)

// AuthorizationError carries an error returned by the upstream provider
// on the authorization callback (e.g. access_denied).
type AuthorizationError struct {
	Code        string
	Description string
}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s (%s)", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization failed: %s", e.Code)
}

// TooManyConcurrentFlowsError indicates the active-flow ceiling was
// reached when starting a new flow.
type TooManyConcurrentFlowsError struct {
	Active int
	Max    int
}

// Error implements the error interface.
func (e *TooManyConcurrentFlowsError) Error() string {
	return fmt.Sprintf("too many concurrent authorization flows: %d active, max %d", e.Active, e.Max)
}
