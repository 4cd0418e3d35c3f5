package quota

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"agentauth/internal/audit"
	"agentauth/pkg/logging"
)

// providerState pairs a provider's static limits with its running daily
// usage counter. The counter is atomic so stats reads never need the
// coordinator lock.
type providerState struct {
	limits ProviderLimits
	usage  atomic.Uint64
}

// Coordinator admits agents against per-provider token pools and
// concurrency ceilings. Allocation and release run under the coordinator
// lock so the pool invariant holds: the sum of outstanding allocations
// plus reported usage never exceeds a provider's daily limit.
type Coordinator struct {
	mu        sync.RWMutex
	quotas    map[string]*AgentQuota
	providers map[string]*providerState

	quotaTTL time.Duration
	policy   ProviderPolicy
	auditor  audit.Auditor

	// now is injectable for tests.
	now func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithQuotaTTL overrides the quota expiry horizon.
func WithQuotaTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.quotaTTL = ttl
		}
	}
}

// WithPolicy overrides the provider selection policy used when an agent
// expresses no preference.
func WithPolicy(p ProviderPolicy) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.policy = p
		}
	}
}

// WithAuditor attaches an audit sink for quota lifecycle events.
func WithAuditor(a audit.Auditor) Option {
	return func(c *Coordinator) {
		c.auditor = a
	}
}

// NewCoordinator creates a coordinator for the given provider limits.
// Zero-valued limits are replaced with defaults.
func NewCoordinator(providers map[string]ProviderLimits, opts ...Option) *Coordinator {
	c := &Coordinator{
		quotas:    make(map[string]*AgentQuota),
		providers: make(map[string]*providerState),
		quotaTTL:  DefaultQuotaTTL,
		policy:    LeastLoadedPolicy,
		now:       time.Now,
	}
	for name, limits := range providers {
		c.providers[name] = &providerState{limits: limits.withDefaults()}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthenticateAgent admits an agent and carves an allocation out of the
// chosen provider's remaining daily pool. The allocation is conservative:
// half of the smaller of the estimate and the remaining pool, so a single
// agent can never drain a provider. An empty preferredProvider lets the
// coordinator's policy choose.
func (c *Coordinator) AuthenticateAgent(agentID string, estimatedTokens uint64, preferredProvider string) (*AgentQuota, error) {
	now := c.now()

	c.mu.Lock()

	if _, exists := c.quotas[agentID]; exists {
		c.mu.Unlock()
		return nil, &AlreadyAllocatedError{AgentID: agentID}
	}

	provider := preferredProvider
	if provider == "" {
		provider = c.policy(c.statsLocked())
	}
	state, ok := c.providers[provider]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	active := c.activeAgentsLocked(provider)
	if active >= state.limits.MaxConcurrentAgents {
		c.mu.Unlock()
		concErr := &ConcurrentLimitExceededError{Provider: provider, Current: active, Max: state.limits.MaxConcurrentAgents}
		c.emitExhausted(agentID, provider, concErr)
		return nil, concErr
	}

	available := saturatingSub(state.limits.DailyTokenLimit, state.usage.Load())
	if estimatedTokens > available {
		c.mu.Unlock()
		quotaErr := &QuotaExceededError{Provider: provider, Requested: estimatedTokens, Available: available}
		c.emitExhausted(agentID, provider, quotaErr)
		return nil, quotaErr
	}

	allocated := min(estimatedTokens, available) / 2
	state.usage.Add(allocated)

	quota := &AgentQuota{
		AgentID:         agentID,
		Provider:        provider,
		AllocatedTokens: allocated,
		CreatedAt:       now,
		ExpiresAt:       now.Add(c.quotaTTL),
	}
	c.quotas[agentID] = quota
	snapshot := quota.clone()

	c.mu.Unlock()

	logging.Info("Quota", "Allocated %d tokens on %s for agent %s", allocated, provider, agentID)
	c.emit(audit.Event{
		Category: audit.CategoryQuotaAllocated,
		UserID:   agentID,
		Success:  true,
		Severity: audit.SeverityInfo,
		Metadata: map[string]any{
			"provider":  provider,
			"allocated": allocated,
			"estimated": estimatedTokens,
		},
	})

	return snapshot, nil
}

// BindSession records the session minted for an admitted agent so that
// release and status reporting can correlate the two.
func (c *Coordinator) BindSession(agentID, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	quota, ok := c.quotas[agentID]
	if !ok {
		return ErrAgentNotFound
	}
	quota.SessionID = sessionID
	return nil
}

// UpdateAgentUsage adds caller-reported token consumption to the agent's
// usage counter. The counter only grows; reclamation happens at release.
func (c *Coordinator) UpdateAgentUsage(agentID string, tokensUsed uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	quota, ok := c.quotas[agentID]
	if !ok {
		return ErrAgentNotFound
	}
	quota.UsedTokens += tokensUsed
	return nil
}

// ReleaseAgentQuota removes the agent's quota and returns unused tokens
// to the provider pool. It reports the agent's final usage. Releasing an
// unknown agent is an error, not a no-op.
func (c *Coordinator) ReleaseAgentQuota(agentID string) (uint64, error) {
	c.mu.Lock()

	quota, ok := c.quotas[agentID]
	if !ok {
		c.mu.Unlock()
		return 0, ErrAgentNotFound
	}
	delete(c.quotas, agentID)
	c.reclaimLocked(quota)
	used := quota.UsedTokens
	provider := quota.Provider

	c.mu.Unlock()

	logging.Info("Quota", "Released quota for agent %s on %s: %d of %d tokens used", agentID, provider, used, quota.AllocatedTokens)
	c.emit(audit.Event{
		Category:  audit.CategoryQuotaReleased,
		UserID:    agentID,
		SessionID: quota.SessionID,
		Success:   true,
		Severity:  audit.SeverityInfo,
		Metadata: map[string]any{
			"provider": provider,
			"used":     used,
		},
	})

	return used, nil
}

// CleanupExpiredQuotas releases every quota past its TTL, reclaiming the
// unused tokens, and returns how many were swept.
func (c *Coordinator) CleanupExpiredQuotas() int {
	now := c.now()

	c.mu.Lock()
	var swept []*AgentQuota
	for agentID, quota := range c.quotas {
		if quota.Expired(now) {
			delete(c.quotas, agentID)
			c.reclaimLocked(quota)
			swept = append(swept, quota)
		}
	}
	c.mu.Unlock()

	for _, quota := range swept {
		logging.Info("Quota", "Swept expired quota for agent %s on %s", quota.AgentID, quota.Provider)
		c.emit(audit.Event{
			Category:  audit.CategoryQuotaReleased,
			UserID:    quota.AgentID,
			SessionID: quota.SessionID,
			Success:   true,
			Severity:  audit.SeverityInfo,
			Metadata:  map[string]any{"provider": quota.Provider, "reason": "expired"},
		})
	}
	return len(swept)
}

// ResetDailyUsage sweeps expired quotas, then zeroes every provider's
// usage counter. Outstanding allocations are re-charged against the
// fresh pool so the invariant holds across the boundary.
func (c *Coordinator) ResetDailyUsage() {
	c.CleanupExpiredQuotas()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, state := range c.providers {
		state.usage.Store(0)
	}
	for _, quota := range c.quotas {
		if state, ok := c.providers[quota.Provider]; ok {
			state.usage.Add(quota.AllocatedTokens)
		}
	}
}

// CanHandleRequest checks admissibility without mutating any state. A nil
// return means an identical AuthenticateAgent call would currently be
// admitted.
func (c *Coordinator) CanHandleRequest(provider string, estimatedTokens uint64) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.providers[provider]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	active := c.activeAgentsLocked(provider)
	if active >= state.limits.MaxConcurrentAgents {
		return &ConcurrentLimitExceededError{Provider: provider, Current: active, Max: state.limits.MaxConcurrentAgents}
	}
	available := saturatingSub(state.limits.DailyTokenLimit, state.usage.Load())
	if estimatedTokens > available {
		return &QuotaExceededError{Provider: provider, Requested: estimatedTokens, Available: available}
	}
	return nil
}

// GetAgentQuota returns a copy of the agent's active quota.
func (c *Coordinator) GetAgentQuota(agentID string) (*AgentQuota, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	quota, ok := c.quotas[agentID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return quota.clone(), nil
}

// GetUsageStats returns a snapshot per provider, sorted by name.
func (c *Coordinator) GetUsageStats() []ProviderStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.statsLocked()
	sort.Slice(stats, func(i, j int) bool { return stats[i].Provider < stats[j].Provider })
	return stats
}

// ActiveAgents returns how many agents currently hold a quota.
func (c *Coordinator) ActiveAgents() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotas)
}

// reclaimLocked returns a released quota's unused allocation to its
// provider pool. Caller must hold the write lock.
func (c *Coordinator) reclaimLocked(quota *AgentQuota) {
	state, ok := c.providers[quota.Provider]
	if !ok {
		return
	}
	unused := saturatingSub(quota.AllocatedTokens, quota.UsedTokens)
	saturatingCounterSub(&state.usage, unused)
}

// statsLocked builds provider snapshots. Caller must hold at least the
// read lock.
func (c *Coordinator) statsLocked() []ProviderStats {
	stats := make([]ProviderStats, 0, len(c.providers))
	for name, state := range c.providers {
		usage := state.usage.Load()
		stats = append(stats, ProviderStats{
			Provider:        name,
			DailyTokenLimit: state.limits.DailyTokenLimit,
			CurrentUsage:    usage,
			Available:       saturatingSub(state.limits.DailyTokenLimit, usage),
			ActiveAgents:    c.activeAgentsLocked(name),
			MaxConcurrent:   state.limits.MaxConcurrentAgents,
		})
	}
	return stats
}

func (c *Coordinator) activeAgentsLocked(provider string) int {
	count := 0
	for _, quota := range c.quotas {
		if quota.Provider == provider {
			count++
		}
	}
	return count
}

func (c *Coordinator) emitExhausted(agentID, provider string, cause error) {
	logging.Warn("Quota", "Admission denied for agent %s on %s: %v", agentID, provider, cause)
	c.emit(audit.Event{
		Category:     audit.CategoryQuotaExhausted,
		UserID:       agentID,
		Success:      false,
		ErrorMessage: cause.Error(),
		Severity:     audit.SeverityWarning,
		Metadata:     map[string]any{"provider": provider},
	})
}

// emit forwards an event to the auditor. Never called with the lock held.
func (c *Coordinator) emit(event audit.Event) {
	if c.auditor == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = c.now()
	}
	c.auditor.LogEvent(event)
}

// saturatingSub subtracts without wrapping below zero.
func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// saturatingCounterSub subtracts from an atomic counter, clamping at
// zero, via a compare-and-swap loop.
func saturatingCounterSub(counter *atomic.Uint64, delta uint64) {
	for {
		current := counter.Load()
		next := saturatingSub(current, delta)
		if counter.CompareAndSwap(current, next) {
			return
		}
	}
}
