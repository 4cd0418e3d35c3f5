package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"agentauth/internal/quota"
)

// Config is the top-level configuration structure for agentauth.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	OAuth   OAuthConfig   `yaml:"oauth"`
	Session SessionConfig `yaml:"session"`
	Store   StoreConfig   `yaml:"store"`
	Quota   QuotaConfig   `yaml:"quota"`
	Runtime RuntimeConfig `yaml:"runtime"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Format string `yaml:"format,omitempty"` // "text" or "json" (default: text)
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error (default: info)
}

// OAuthConfig describes the authorization server and local flow limits.
type OAuthConfig struct {
	ClientID              string   `yaml:"clientId,omitempty"`
	AuthorizationEndpoint string   `yaml:"authorizationEndpoint,omitempty"`
	TokenEndpoint         string   `yaml:"tokenEndpoint,omitempty"`
	RedirectURI           string   `yaml:"redirectUri,omitempty"`
	Scopes                []string `yaml:"scopes,omitempty"`
	MaxConcurrentFlows    int      `yaml:"maxConcurrentFlows,omitempty"`
}

// SessionConfig controls session lifetimes and rotation.
type SessionConfig struct {
	MaxSessionsPerUser             int      `yaml:"maxSessionsPerUser,omitempty"`
	AccessTokenTTL                 Duration `yaml:"accessTokenTtl,omitempty"`
	RefreshTokenTTL                Duration `yaml:"refreshTokenTtl,omitempty"`
	RotationThreshold              Duration `yaml:"rotationThreshold,omitempty"`
	HighPrivilegeRotationThreshold Duration `yaml:"highPrivilegeRotationThreshold,omitempty"`
	MaxRotationCount               int      `yaml:"maxRotationCount,omitempty"`
	EnforceBinding                 bool     `yaml:"enforceBinding,omitempty"`
}

// StoreConfig controls the on-disk credential store.
type StoreConfig struct {
	Directory   string `yaml:"directory,omitempty"`   // default: <config dir>/credentials
	ShredPasses int    `yaml:"shredPasses,omitempty"` // overwrite passes on delete
}

// QuotaConfig configures per-provider admission limits.
type QuotaConfig struct {
	Providers map[string]quota.ProviderLimits `yaml:"providers,omitempty"`
	QuotaTTL  Duration                        `yaml:"quotaTtl,omitempty"`
}

// RuntimeConfig controls the background sweep loops.
type RuntimeConfig struct {
	SessionSweepInterval Duration `yaml:"sessionSweepInterval,omitempty"`
	QuotaSweepInterval   Duration `yaml:"quotaSweepInterval,omitempty"`
}

// Duration wraps time.Duration so YAML values can use Go duration
// strings like "30m" or "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30m\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
