package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run token refresh outside the schedule",
}

var refreshRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Refresh every stale token once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		report := app.RefreshJob.Tick(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, refreshed %d, failed %d\n",
			report.Scanned, report.Refreshed, report.Failed)
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Maintain authorization sessions",
}

var sessionsReapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Destroy expired sessions once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		report := app.Reaper.Tick(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, reaped %d, failed %d\n",
			report.Scanned, report.Reaped, report.Failed)
		return nil
	},
}

func init() {
	refreshCmd.AddCommand(refreshRunCmd)
	sessionsCmd.AddCommand(sessionsReapCmd)
}
