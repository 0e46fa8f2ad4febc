package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newCleanupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired sessions and orphaned credentials, then exit",
		Long: `cleanup runs the same sweep the server performs at startup:
credentials with no task file and no archive are removed, then sessions
that are expired or point at a missing credential.

Do not run it against a data directory a live server is using.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.buildCore()
			if err != nil {
				return err
			}
			defer c.tasks.Close()

			report, err := c.reaper.RunOnce()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if report.Empty() {
				fmt.Fprintln(out, color.GreenString("No cleanup needed."))
				return nil
			}
			fmt.Fprintln(out, color.YellowString("Cleanup complete:"))
			fmt.Fprintf(out, "  expired sessions:    %d\n", report.ExpiredSessions)
			fmt.Fprintf(out, "  orphaned sessions:   %d\n", report.OrphanSessions)
			fmt.Fprintf(out, "  orphaned passwords:  %d\n", report.OrphanCredentials)
			return nil
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), a.cfg.Version)
		},
	}
}
