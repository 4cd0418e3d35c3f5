// Package audit defines the security audit event taxonomy and the Auditor
// interface the core managers emit to.
//
// Every security-relevant transition (flow start, callback validation
// failure, token rotation, binding violation, quota exhaustion) emits one
// Event synchronously before the triggering operation returns. Events are
// append-only; sinks must never mutate them.
//
// Two sinks are provided: LogAuditor writes SECURITY_AUDIT log lines for
// the external append-only log collaborator, and Recorder keeps events in
// memory for tests and the status command. File rotation and retention are
// owned by the external collaborator, not this package.
package audit
