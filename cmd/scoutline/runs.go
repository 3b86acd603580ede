package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List all runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer engine.Close() //nolint:errcheck // exiting anyway

		runs, err := engine.ListRuns(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(runs)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the progress of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer engine.Close() //nolint:errcheck // exiting anyway

		status, err := engine.RunStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Request cancellation of a running run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer engine.Close() //nolint:errcheck // exiting anyway

		if err := engine.CancelRun(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("run %s cancelling\n", args[0])
		return nil
	},
}

var prospectsCmd = &cobra.Command{
	Use:   "prospects <run-id>",
	Short: "List the prospects a run admitted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer engine.Close() //nolint:errcheck // exiting anyway

		prospects, err := engine.RunProspects(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(prospects)
	},
}

func init() {
	rootCmd.AddCommand(runsCmd, statusCmd, cancelCmd, prospectsCmd)
}
