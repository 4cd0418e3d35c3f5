package quota

import (
	"errors"
	"fmt"
)

// Quota errors. All are recoverable, caller-visible values.
var (
	// ErrAgentNotFound indicates the agent holds no quota. Release is
	// deliberately not idempotent: a second release for the same agent
	// returns this to surface double-release bugs in callers.
	ErrAgentNotFound = errors.New("agent quota not found")

	// ErrUnknownProvider indicates a provider name with no configured
	// limits.
	ErrUnknownProvider = errors.New("unknown provider")
)

// AlreadyAllocatedError indicates the agent already holds an active
// quota; exactly one quota per agent exists at a time.
type AlreadyAllocatedError struct {
	AgentID string
}

// Error implements the error interface.
func (e *AlreadyAllocatedError) Error() string {
	return fmt.Sprintf("agent %s already holds an active quota", e.AgentID)
}

// ConcurrentLimitExceededError indicates the provider's concurrent-agent
// ceiling was reached.
type ConcurrentLimitExceededError struct {
	Provider string
	Current  int
	Max      int
}

// Error implements the error interface.
func (e *ConcurrentLimitExceededError) Error() string {
	return fmt.Sprintf("concurrent agent limit exceeded for provider %s: %d active, max %d", e.Provider, e.Current, e.Max)
}

// QuotaExceededError indicates the provider's remaining daily pool cannot
// cover the requested estimate.
type QuotaExceededError struct {
	Provider  string
	Requested uint64
	Available uint64
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded: requested %d tokens, %d available", e.Provider, e.Requested, e.Available)
}
