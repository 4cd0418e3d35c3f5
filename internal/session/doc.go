// Package session wraps provider-issued token pairs in validated,
// rotatable sessions.
//
// A session is an opaque (session ID, access token, refresh token)
// triple; the three values are independent random tokens, never derived
// from each other. Validation enforces access-token lifetime, exact token
// match, optional IP/user-agent binding, and the rotation policy: when a
// rotation deadline has passed, ValidateSession fails with
// ErrRotationRequired instead of rotating silently, and the caller is
// expected to invoke RotateTokens and retry exactly once.
//
// Rotation deadlines are evaluated lazily at validation time, so idle
// sessions cost nothing until next touched. The refresh-expiry sweep is
// the only periodic task, driven externally via SweepExpired.
package session
