package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Validate checks the configuration for values that would misbehave at
// runtime. It returns ValidationErrors listing every problem found.
func (c Config) Validate() error {
	var errs ValidationErrors

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs.Add("logging.format", "must be \"text\" or \"json\"", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs.Add("logging.level", "must be one of debug, info, warn, error", c.Logging.Level)
	}

	if c.OAuth.MaxConcurrentFlows < 0 {
		errs.Add("oauth.maxConcurrentFlows", "must not be negative", c.OAuth.MaxConcurrentFlows)
	}
	validateURL(&errs, "oauth.authorizationEndpoint", c.OAuth.AuthorizationEndpoint)
	validateURL(&errs, "oauth.tokenEndpoint", c.OAuth.TokenEndpoint)
	validateURL(&errs, "oauth.redirectUri", c.OAuth.RedirectURI)

	if c.Session.MaxSessionsPerUser < 0 {
		errs.Add("session.maxSessionsPerUser", "must not be negative", c.Session.MaxSessionsPerUser)
	}
	if c.Session.AccessTokenTTL.Std() > c.Session.RefreshTokenTTL.Std() {
		errs.Add("session.accessTokenTtl", "must not exceed refreshTokenTtl")
	}

	if c.Store.ShredPasses < 0 {
		errs.Add("store.shredPasses", "must not be negative", c.Store.ShredPasses)
	}

	for name, limits := range c.Quota.Providers {
		if name == "" {
			errs.Add("quota.providers", "provider name must not be empty")
		}
		if limits.MaxConcurrentAgents < 0 {
			errs.Add(fmt.Sprintf("quota.providers.%s.maxConcurrentAgents", name), "must not be negative", limits.MaxConcurrentAgents)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateURL accepts empty values; endpoints are only required once a
// login actually runs.
func validateURL(errs *ValidationErrors, field, raw string) {
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs.Add(field, "must be an absolute URL", raw)
	}
}
