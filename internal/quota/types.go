package quota

import (
	"time"
)

// Default limits applied when a provider config omits them.
const (
	// DefaultQuotaTTL bounds how long an unreleased quota survives
	// before the cleanup sweep reclaims it.
	DefaultQuotaTTL = 2 * time.Hour

	// DefaultDailyTokenLimit is the per-provider daily token pool.
	DefaultDailyTokenLimit uint64 = 1_000_000

	// DefaultMaxConcurrentAgents caps agents active on one provider.
	DefaultMaxConcurrentAgents = 10
)

// ProviderLimits configures one upstream provider's admission ceilings.
type ProviderLimits struct {
	// DailyTokenLimit is the provider's daily token pool. Allocations
	// draw from it and releases return the unused remainder.
	DailyTokenLimit uint64 `yaml:"dailyTokenLimit" json:"dailyTokenLimit"`

	// MaxConcurrentAgents caps how many agents may hold a quota on
	// this provider at once.
	MaxConcurrentAgents int `yaml:"maxConcurrentAgents" json:"maxConcurrentAgents"`
}

func (l ProviderLimits) withDefaults() ProviderLimits {
	if l.DailyTokenLimit == 0 {
		l.DailyTokenLimit = DefaultDailyTokenLimit
	}
	if l.MaxConcurrentAgents <= 0 {
		l.MaxConcurrentAgents = DefaultMaxConcurrentAgents
	}
	return l
}

// AgentQuota is one agent's active allocation against a provider.
type AgentQuota struct {
	AgentID         string    `json:"agentId"`
	Provider        string    `json:"provider"`
	AllocatedTokens uint64    `json:"allocatedTokens"`
	UsedTokens      uint64    `json:"usedTokens"`
	SessionID       string    `json:"sessionId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// Expired reports whether the quota's TTL elapsed at the given time.
func (q *AgentQuota) Expired(now time.Time) bool {
	return now.After(q.ExpiresAt)
}

// clone returns a copy safe to hand to callers after the lock drops.
func (q *AgentQuota) clone() *AgentQuota {
	c := *q
	return &c
}

// ProviderStats is a point-in-time snapshot of one provider's pool.
type ProviderStats struct {
	Provider        string `json:"provider"`
	DailyTokenLimit uint64 `json:"dailyTokenLimit"`
	CurrentUsage    uint64 `json:"currentUsage"`
	Available       uint64 `json:"available"`
	ActiveAgents    int    `json:"activeAgents"`
	MaxConcurrent   int    `json:"maxConcurrent"`
}

// ProviderPolicy picks a provider for an agent that expressed no
// preference. It receives snapshots for every configured provider and
// returns the chosen provider name.
type ProviderPolicy func(stats []ProviderStats) string

// LeastLoadedPolicy picks the provider with the fewest active agents,
// breaking ties by the larger remaining token pool. It is the default.
func LeastLoadedPolicy(stats []ProviderStats) string {
	if len(stats) == 0 {
		return ""
	}
	best := stats[0]
	for _, s := range stats[1:] {
		if s.ActiveAgents < best.ActiveAgents ||
			(s.ActiveAgents == best.ActiveAgents && s.Available > best.Available) {
			best = s
		}
	}
	return best.Provider
}
