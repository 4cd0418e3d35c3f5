package config

import (
	"time"

	"agentauth/internal/oauth"
	"agentauth/internal/quota"
	"agentauth/internal/session"
)

const (
	// DefaultOAuthCallbackURI is the loopback redirect used by the
	// device's local callback listener.
	DefaultOAuthCallbackURI = "http://127.0.0.1:8484/oauth/callback"

	// DefaultSessionSweepInterval is how often expired sessions are
	// reaped.
	DefaultSessionSweepInterval = 5 * time.Minute

	// DefaultQuotaSweepInterval is how often expired agent quotas are
	// reclaimed.
	DefaultQuotaSweepInterval = 15 * time.Minute
)

// GetDefaultConfig returns the default configuration. Loading merges the
// user's config.yaml on top of it, so every field here must be safe to
// run with as-is.
func GetDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
		OAuth: OAuthConfig{
			RedirectURI:        DefaultOAuthCallbackURI,
			Scopes:             []string{"openid", "profile"},
			MaxConcurrentFlows: oauth.DefaultMaxConcurrentFlows,
		},
		Session: SessionConfig{
			MaxSessionsPerUser:             session.DefaultMaxSessionsPerUser,
			AccessTokenTTL:                 Duration(session.DefaultAccessTokenTTL),
			RefreshTokenTTL:                Duration(session.DefaultRefreshTokenTTL),
			RotationThreshold:              Duration(session.DefaultRotationThreshold),
			HighPrivilegeRotationThreshold: Duration(session.DefaultHighPrivilegeRotationThreshold),
			MaxRotationCount:               session.DefaultMaxRotationCount,
			EnforceBinding:                 true,
		},
		Store: StoreConfig{
			ShredPasses: 3,
		},
		Quota: QuotaConfig{
			Providers: map[string]quota.ProviderLimits{
				"anthropic": {
					DailyTokenLimit:     quota.DefaultDailyTokenLimit,
					MaxConcurrentAgents: quota.DefaultMaxConcurrentAgents,
				},
			},
			QuotaTTL: Duration(quota.DefaultQuotaTTL),
		},
		Runtime: RuntimeConfig{
			SessionSweepInterval: Duration(DefaultSessionSweepInterval),
			QuotaSweepInterval:   Duration(DefaultQuotaSweepInterval),
		},
	}
}

// SessionManagerConfig translates the YAML session section into the
// session manager's config.
func (c Config) SessionManagerConfig() session.Config {
	return session.Config{
		MaxSessionsPerUser:             c.Session.MaxSessionsPerUser,
		AccessTokenTTL:                 c.Session.AccessTokenTTL.Std(),
		RefreshTokenTTL:                c.Session.RefreshTokenTTL.Std(),
		RotationThreshold:              c.Session.RotationThreshold.Std(),
		HighPrivilegeRotationThreshold: c.Session.HighPrivilegeRotationThreshold.Std(),
		MaxRotationCount:               c.Session.MaxRotationCount,
		EnforceBinding:                 c.Session.EnforceBinding,
	}
}
