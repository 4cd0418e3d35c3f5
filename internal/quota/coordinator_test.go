package quota

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentauth/internal/audit"
)

func testProviders() map[string]ProviderLimits {
	return map[string]ProviderLimits{
		"anthropic": {DailyTokenLimit: 1000, MaxConcurrentAgents: 5},
		"openai":    {DailyTokenLimit: 2000, MaxConcurrentAgents: 3},
	}
}

func TestAuthenticateAgent_ConservativeAllocation(t *testing.T) {
	c := NewCoordinator(testProviders())

	quota, err := c.AuthenticateAgent("a1", 100, "anthropic")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), quota.AllocatedTokens)
	assert.Equal(t, "anthropic", quota.Provider)
	assert.Equal(t, uint64(0), quota.UsedTokens)

	_, err = c.AuthenticateAgent("a2", 2000, "anthropic")
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, uint64(2000), quotaErr.Requested)
	assert.Equal(t, uint64(950), quotaErr.Available)
}

func TestAuthenticateAgent_LargeEstimateHalvesRemainder(t *testing.T) {
	c := NewCoordinator(testProviders())

	// Estimate equal to the whole pool: allocation is half the pool.
	quota, err := c.AuthenticateAgent("a1", 1000, "anthropic")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), quota.AllocatedTokens)
}

func TestAuthenticateAgent_DuplicateAgent(t *testing.T) {
	c := NewCoordinator(testProviders())

	_, err := c.AuthenticateAgent("a1", 100, "anthropic")
	require.NoError(t, err)

	_, err = c.AuthenticateAgent("a1", 100, "openai")
	var dupErr *AlreadyAllocatedError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "a1", dupErr.AgentID)
}

func TestAuthenticateAgent_UnknownProvider(t *testing.T) {
	c := NewCoordinator(testProviders())

	_, err := c.AuthenticateAgent("a1", 100, "mystery")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestAuthenticateAgent_ConcurrencyCeiling(t *testing.T) {
	c := NewCoordinator(testProviders())

	for i := 0; i < 3; i++ {
		_, err := c.AuthenticateAgent(fmt.Sprintf("agent-%d", i), 10, "openai")
		require.NoError(t, err)
	}

	_, err := c.AuthenticateAgent("agent-overflow", 10, "openai")
	var concErr *ConcurrentLimitExceededError
	require.ErrorAs(t, err, &concErr)
	assert.Equal(t, 3, concErr.Current)
	assert.Equal(t, 3, concErr.Max)

	// A different provider still admits.
	_, err = c.AuthenticateAgent("agent-overflow", 10, "anthropic")
	assert.NoError(t, err)
}

func TestAuthenticateAgent_PolicyPicksLeastLoaded(t *testing.T) {
	c := NewCoordinator(testProviders())

	_, err := c.AuthenticateAgent("a1", 10, "anthropic")
	require.NoError(t, err)

	// No preference: the idle provider wins.
	quota, err := c.AuthenticateAgent("a2", 10, "")
	require.NoError(t, err)
	assert.Equal(t, "openai", quota.Provider)
}

func TestAuthenticateAgent_CustomPolicy(t *testing.T) {
	c := NewCoordinator(testProviders(), WithPolicy(func(stats []ProviderStats) string {
		return "anthropic"
	}))

	quota, err := c.AuthenticateAgent("a1", 10, "")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", quota.Provider)
}

func TestReleaseAgentQuota_ReclaimsUnused(t *testing.T) {
	c := NewCoordinator(testProviders())

	_, err := c.AuthenticateAgent("a1", 100, "anthropic")
	require.NoError(t, err)
	require.NoError(t, c.UpdateAgentUsage("a1", 30))

	used, err := c.ReleaseAgentQuota("a1")
	require.NoError(t, err)
	assert.Equal(t, uint64(30), used)

	// Only the reported usage remains charged against the pool.
	stats := c.GetUsageStats()
	require.Len(t, stats, 2)
	for _, s := range stats {
		if s.Provider == "anthropic" {
			assert.Equal(t, uint64(30), s.CurrentUsage)
			assert.Equal(t, uint64(970), s.Available)
			assert.Equal(t, 0, s.ActiveAgents)
		}
	}
}

func TestReleaseAgentQuota_NotIdempotent(t *testing.T) {
	c := NewCoordinator(testProviders())

	_, err := c.AuthenticateAgent("a1", 100, "anthropic")
	require.NoError(t, err)

	_, err = c.ReleaseAgentQuota("a1")
	require.NoError(t, err)

	_, err = c.ReleaseAgentQuota("a1")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestReleaseAgentQuota_OverreportedUsageSaturates(t *testing.T) {
	c := NewCoordinator(testProviders())

	quota, err := c.AuthenticateAgent("a1", 100, "anthropic")
	require.NoError(t, err)

	// Usage beyond the allocation never pushes the pool negative.
	require.NoError(t, c.UpdateAgentUsage("a1", quota.AllocatedTokens+500))
	_, err = c.ReleaseAgentQuota("a1")
	require.NoError(t, err)

	for _, s := range c.GetUsageStats() {
		assert.LessOrEqual(t, s.CurrentUsage, s.DailyTokenLimit+500)
		assert.Equal(t, 0, s.ActiveAgents)
	}
}

func TestUpdateAgentUsage_UnknownAgent(t *testing.T) {
	c := NewCoordinator(testProviders())
	assert.ErrorIs(t, c.UpdateAgentUsage("ghost", 10), ErrAgentNotFound)
}

func TestUpdateAgentUsage_Accumulates(t *testing.T) {
	c := NewCoordinator(testProviders())

	_, err := c.AuthenticateAgent("a1", 100, "anthropic")
	require.NoError(t, err)
	require.NoError(t, c.UpdateAgentUsage("a1", 10))
	require.NoError(t, c.UpdateAgentUsage("a1", 15))

	quota, err := c.GetAgentQuota("a1")
	require.NoError(t, err)
	assert.Equal(t, uint64(25), quota.UsedTokens)
}

func TestBindSession(t *testing.T) {
	c := NewCoordinator(testProviders())

	_, err := c.AuthenticateAgent("a1", 100, "anthropic")
	require.NoError(t, err)
	require.NoError(t, c.BindSession("a1", "sess-123"))

	quota, err := c.GetAgentQuota("a1")
	require.NoError(t, err)
	assert.Equal(t, "sess-123", quota.SessionID)

	assert.ErrorIs(t, c.BindSession("ghost", "sess-456"), ErrAgentNotFound)
}

func TestCleanupExpiredQuotas(t *testing.T) {
	c := NewCoordinator(testProviders(), WithQuotaTTL(time.Hour))

	_, err := c.AuthenticateAgent("stale", 100, "anthropic")
	require.NoError(t, err)

	c.now = func() time.Time { return time.Now().Add(90 * time.Minute) }
	_, err = c.AuthenticateAgent("fresh", 100, "anthropic")
	require.NoError(t, err)

	swept := c.CleanupExpiredQuotas()
	assert.Equal(t, 1, swept)

	_, err = c.GetAgentQuota("stale")
	assert.ErrorIs(t, err, ErrAgentNotFound)
	_, err = c.GetAgentQuota("fresh")
	assert.NoError(t, err)
}

func TestResetDailyUsage_KeepsOutstandingAllocations(t *testing.T) {
	c := NewCoordinator(testProviders())

	quota, err := c.AuthenticateAgent("a1", 100, "anthropic")
	require.NoError(t, err)

	_, err = c.AuthenticateAgent("done", 200, "anthropic")
	require.NoError(t, err)
	require.NoError(t, c.UpdateAgentUsage("done", 80))
	_, err = c.ReleaseAgentQuota("done")
	require.NoError(t, err)

	c.ResetDailyUsage()

	// Released usage is forgotten, live allocations stay charged.
	for _, s := range c.GetUsageStats() {
		if s.Provider == "anthropic" {
			assert.Equal(t, quota.AllocatedTokens, s.CurrentUsage)
		}
	}
}

func TestCanHandleRequest(t *testing.T) {
	c := NewCoordinator(testProviders())

	assert.NoError(t, c.CanHandleRequest("anthropic", 500))
	assert.ErrorIs(t, c.CanHandleRequest("mystery", 10), ErrUnknownProvider)

	var quotaErr *QuotaExceededError
	assert.ErrorAs(t, c.CanHandleRequest("anthropic", 5000), &quotaErr)

	// Dry run never charges the pool.
	for _, s := range c.GetUsageStats() {
		assert.Equal(t, uint64(0), s.CurrentUsage)
	}
}

func TestAllocationsNeverExceedDailyLimit(t *testing.T) {
	providers := map[string]ProviderLimits{
		"anthropic": {DailyTokenLimit: 1000, MaxConcurrentAgents: 100},
	}
	c := NewCoordinator(providers)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Denials are expected once the pool thins out.
			_, _ = c.AuthenticateAgent(fmt.Sprintf("agent-%d", n), 400, "anthropic")
		}(i)
	}
	wg.Wait()

	var total uint64
	for i := 0; i < 50; i++ {
		quota, err := c.GetAgentQuota(fmt.Sprintf("agent-%d", i))
		if err == nil {
			total += quota.AllocatedTokens
		}
	}
	assert.LessOrEqual(t, total, uint64(1000))

	stats := c.GetUsageStats()
	require.Len(t, stats, 1)
	assert.Equal(t, total, stats[0].CurrentUsage)
}

func TestAuthenticateAgent_AuditEvents(t *testing.T) {
	recorder := audit.NewRecorder()
	c := NewCoordinator(testProviders(), WithAuditor(recorder))

	_, err := c.AuthenticateAgent("a1", 100, "anthropic")
	require.NoError(t, err)

	_, err = c.AuthenticateAgent("a2", 2000, "anthropic")
	require.Error(t, err)

	_, err = c.ReleaseAgentQuota("a1")
	require.NoError(t, err)

	allocated := recorder.EventsByCategory(audit.CategoryQuotaAllocated)
	require.Len(t, allocated, 1)
	assert.Equal(t, "a1", allocated[0].UserID)
	assert.Equal(t, "anthropic", allocated[0].Metadata["provider"])
	assert.Equal(t, uint64(50), allocated[0].Metadata["allocated"])
	assert.Equal(t, uint64(100), allocated[0].Metadata["estimated"])

	exhausted := recorder.EventsByCategory(audit.CategoryQuotaExhausted)
	require.Len(t, exhausted, 1)
	assert.False(t, exhausted[0].Success)

	released := recorder.EventsByCategory(audit.CategoryQuotaReleased)
	require.Len(t, released, 1)
}

func TestLeastLoadedPolicy_TieBreaksByAvailability(t *testing.T) {
	stats := []ProviderStats{
		{Provider: "small", ActiveAgents: 0, Available: 100},
		{Provider: "big", ActiveAgents: 0, Available: 500},
	}
	assert.Equal(t, "big", LeastLoadedPolicy(stats))
	assert.Equal(t, "", LeastLoadedPolicy(nil))
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, (&QuotaExceededError{Provider: "anthropic", Requested: 2000, Available: 950}).Error(), "2000")
	assert.Contains(t, (&ConcurrentLimitExceededError{Provider: "openai", Current: 3, Max: 3}).Error(), "openai")
	assert.Contains(t, (&AlreadyAllocatedError{AgentID: "a1"}).Error(), "a1")
	assert.True(t, errors.Is(fmt.Errorf("wrap: %w", ErrAgentNotFound), ErrAgentNotFound))
}
