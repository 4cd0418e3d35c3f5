// Package runtime assembles the authentication components into one
// coordinated unit: OAuth flows, sessions, the encrypted credential
// store and agent quotas, sharing a single audit pipeline.
//
// The runtime owns the login and logout orchestration, agent admission
// and teardown, and the background loops that sweep expired sessions
// and unreleased quotas.
package runtime
