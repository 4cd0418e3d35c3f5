// Package logging provides leveled, subsystem-tagged logging built on
// log/slog.
//
// Every log call names the subsystem that produced it, which keeps output
// from the concurrent managers (OAuth, Session, CredStore, Quota) separable
// when they interleave:
//
//	logging.Info("Session", "Created session for user=%s", userID)
//	logging.Error("CredStore", err, "Failed to persist credential")
//
// # Sensitive values
//
// Token and verifier values are never logged by any package in this module.
// Session identifiers are truncated before logging:
//
//	logging.Debug("Session", "Validated session=%s", logging.TruncateSessionID(id))
//
// Initialize once at startup with Init; log calls before initialization fall
// back to stderr at INFO level.
package logging
