package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Extract emails from the bios of stored prospects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer engine.Close() //nolint:errcheck // exiting anyway

		result, err := engine.EnrichEmails(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("scanned %d prospects, extracted %d emails\n", result.Scanned, result.Extracted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}
