package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var sweepWatch bool

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired sessions and unreleased quotas",
		Long: `Remove sessions whose refresh tokens expired and reclaim agent
quotas past their TTL.

With --watch the command keeps running and sweeps periodically at the
configured intervals until interrupted.`,
		RunE: runSweep,
	}

	cmd.Flags().BoolVar(&sweepWatch, "watch", false, "keep sweeping at the configured intervals")

	return cmd
}

func runSweep(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	sessions, quotas := rt.SweepOnce()
	fmt.Fprintf(cmd.OutOrStdout(), "Swept %d session(s), reclaimed %d quota(s).\n", sessions, quotas)

	if !sweepWatch {
		return nil
	}

	if err := rt.Start(cmd.Context()); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-cmd.Context().Done():
	case <-sigCh:
	}

	return rt.Stop()
}
