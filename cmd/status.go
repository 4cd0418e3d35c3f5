package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication and quota status",
		Long: `Show the stored credential, active sessions and flows, and the
per-provider quota pools.`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	status, err := rt.Status()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Credential")
	if status.CredentialPresent {
		cred := status.Credential
		state := text.FgGreen.Sprint("valid")
		if cred.Expired() {
			state = text.FgRed.Sprint("expired")
		}
		fmt.Fprintf(out, "  Account:   %s\n", cred.AccountID)
		fmt.Fprintf(out, "  Provider:  %s\n", cred.Provider)
		fmt.Fprintf(out, "  State:     %s\n", state)
		if !cred.ExpiresAt.IsZero() {
			fmt.Fprintf(out, "  Expires:   %s\n", cred.ExpiresAt.Local().Format(time.RFC1123))
		}
	} else {
		fmt.Fprintf(out, "  %s\n", text.FgYellow.Sprint("none stored, run \"agentauth login\""))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Active sessions:  %d\n", status.ActiveSessions)
	fmt.Fprintf(out, "Pending flows:    %d\n", status.ActiveFlows)
	fmt.Fprintf(out, "Active agents:    %d\n", status.ActiveAgents)
	fmt.Fprintln(out)

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Provider", "Daily Limit", "Used", "Available", "Agents"})
	for _, p := range status.Providers {
		t.AppendRow(table.Row{
			p.Provider,
			p.DailyTokenLimit,
			p.CurrentUsage,
			p.Available,
			fmt.Sprintf("%d/%d", p.ActiveAgents, p.MaxConcurrent),
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()

	return nil
}
