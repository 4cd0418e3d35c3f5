// Package config loads and validates agentauth configuration.
//
// Configuration lives in a single directory (default ~/.config/agentauth)
// holding config.yaml plus the credential store. Loading starts from
// built-in defaults and merges the user's file on top, so a missing or
// partial config.yaml always yields a runnable configuration. A Watcher
// can reload the file on change.
package config
