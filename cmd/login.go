package cmd

import (
	"bufio"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"agentauth/internal/session"
)

// Login-specific flags
var (
	loginUser     string
	loginProvider string
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate to a model provider via OAuth",
		Long: `Authenticate to a model provider using a browser-based OAuth flow
with PKCE.

The command prints an authorization URL to open in a browser. After
approving access, paste the redirect URL (or just the code and state
query values) back into the prompt. The resulting credential is
encrypted at rest and a session is minted for the user.

Examples:
  agentauth login --user alice
  agentauth login --user alice --provider anthropic`,
		RunE: runLogin,
	}

	cmd.Flags().StringVar(&loginUser, "user", "", "user identity to create the session for")
	cmd.Flags().StringVar(&loginProvider, "provider", "anthropic", "provider the credential belongs to")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runLogin(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	flowID, authURL, err := rt.BeginLogin()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Open the following URL in your browser to authorize access:")
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", authURL.URL)
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprint(cmd.OutOrStdout(), "Paste the redirect URL here: ")

	callback, err := readCallback(bufio.NewReader(cmd.InOrStdin()))
	if err != nil {
		return err
	}

	result, err := rt.CompleteLogin(cmd.Context(), flowID, callback.code, callback.state, callback.errorParam, callback.errorDescription, loginUser, loginProvider, session.Context{})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", loginUser)
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s expires at %s.\n",
		result.Session.ID, result.Session.ExpiresAt.Format("15:04:05 MST"))
	return nil
}

// callbackValues holds the query values the provider sent back on the
// redirect.
type callbackValues struct {
	code             string
	state            string
	errorParam       string
	errorDescription string
}

// readCallback parses the pasted redirect. A full URL yields its code,
// state and error query values; a bare "code state" pair works too.
func readCallback(reader *bufio.Reader) (callbackValues, error) {
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return callbackValues{}, fmt.Errorf("failed to read callback input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return callbackValues{}, fmt.Errorf("empty callback input")
	}

	if strings.Contains(line, "://") {
		parsed, parseErr := url.Parse(line)
		if parseErr != nil {
			return callbackValues{}, fmt.Errorf("invalid redirect URL: %w", parseErr)
		}
		query := parsed.Query()
		return callbackValues{
			code:             query.Get("code"),
			state:            query.Get("state"),
			errorParam:       query.Get("error"),
			errorDescription: query.Get("error_description"),
		}, nil
	}

	fields := strings.Fields(line)
	if len(fields) != 2 {
		return callbackValues{}, fmt.Errorf("expected a redirect URL or \"<code> <state>\"")
	}
	return callbackValues{code: fields[0], state: fields[1]}, nil
}
