package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"agentauth/internal/oauth"
	"agentauth/internal/session"
)

// Exit codes for CLI commands.
// These follow common conventions for authentication tooling.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow or a security check failed.
	ExitCodeAuthFailed = 3
)

// Global flags shared by all subcommands.
var (
	configPath string
	debug      bool
)

// rootCmd represents the base command for the agentauth application.
var rootCmd = &cobra.Command{
	Use:   "agentauth",
	Short: "Authenticate users and agents against model providers",
	Long: `agentauth manages the authentication state of a local agent runtime:
browser-based OAuth login with PKCE, encrypted credential storage,
session lifecycles with token rotation, and per-provider agent quotas.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This is called from the main package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "agentauth version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error
// type, giving scripts a way to distinguish "log in again" from "someone
// tampered with the flow".
func getExitCode(err error) int {
	if errors.Is(err, session.ErrSessionExpired) ||
		errors.Is(err, session.ErrSessionNotFound) ||
		errors.Is(err, session.ErrRotationRequired) ||
		errors.Is(err, oauth.ErrFlowExpired) ||
		errors.Is(err, oauth.ErrFlowNotFound) {
		return ExitCodeAuthRequired
	}

	var violation *session.SecurityViolationError
	if errors.As(err, &violation) {
		return ExitCodeAuthFailed
	}
	var authErr *oauth.AuthorizationError
	if errors.As(err, &authErr) {
		return ExitCodeAuthFailed
	}
	if errors.Is(err, oauth.ErrInvalidState) ||
		errors.Is(err, oauth.ErrInvalidCode) ||
		errors.Is(err, oauth.ErrPKCEVerificationFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "config directory (default is $HOME/.config/agentauth)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newVersionCmd())
}
