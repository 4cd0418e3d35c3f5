package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentauth/internal/session"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0600))
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, session.DefaultMaxSessionsPerUser, cfg.Session.MaxSessionsPerUser)
	assert.Equal(t, filepath.Join(dir, credentialsSubdir), cfg.Store.Directory)
	assert.Contains(t, cfg.Quota.Providers, "anthropic")
}

func TestLoadConfig_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
logging:
  format: json
session:
  maxSessionsPerUser: 2
  rotationThreshold: 10m
quota:
  providers:
    openai:
      dailyTokenLimit: 500
      maxConcurrentAgents: 2
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 2, cfg.Session.MaxSessionsPerUser)
	assert.Equal(t, 10*time.Minute, cfg.Session.RotationThreshold.Std())
	// Untouched fields keep their defaults.
	assert.Equal(t, session.DefaultAccessTokenTTL, cfg.Session.AccessTokenTTL.Std())
	assert.Equal(t, uint64(500), cfg.Quota.Providers["openai"].DailyTokenLimit)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "logging: [not a mapping")

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
session:
  accessTokenTtl: soon
`)

	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadConfig_ExplicitStoreDirectoryKept(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
store:
  directory: /var/lib/agentauth/creds
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/agentauth/creds", cfg.Store.Directory)
}

func TestValidate(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Logging.Format = "xml"
	cfg.OAuth.TokenEndpoint = "not-a-url"
	cfg.Session.AccessTokenTTL = Duration(48 * time.Hour)

	err := cfg.Validate()
	require.Error(t, err)
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 3)
	assert.Contains(t, err.Error(), "logging.format")
	assert.Contains(t, err.Error(), "oauth.tokenEndpoint")
}

func TestSessionManagerConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Session.MaxSessionsPerUser = 7
	cfg.Session.EnforceBinding = false

	mc := cfg.SessionManagerConfig()
	assert.Equal(t, 7, mc.MaxSessionsPerUser)
	assert.False(t, mc.EnforceBinding)
	assert.Equal(t, session.DefaultRotationThreshold, mc.RotationThreshold)
}

func TestDurationMarshalRoundTrip(t *testing.T) {
	out, err := Duration(90 * time.Minute).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1h30m0s", out)
}
