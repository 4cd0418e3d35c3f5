package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutUser string

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Destroy sessions and remove the stored credential",
		Long: `Destroy all of a user's sessions and securely remove the stored
credential. The credential file is overwritten with random data before
deletion.`,
		RunE: runLogout,
	}

	cmd.Flags().StringVar(&logoutUser, "user", "", "user identity to log out")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runLogout(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	destroyed, err := rt.Logout(logoutUser)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Logged out %s: %d session(s) destroyed, credential removed.\n", logoutUser, destroyed)
	return nil
}
