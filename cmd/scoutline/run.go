package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scoutline-dev/scoutline"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
	"github.com/scoutline-dev/scoutline/pkg/runner"
)

const pollInterval = 2 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch a discovery run and wait for it to finish",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := runConfigFromFlags(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer engine.Close() //nolint:errcheck // exiting anyway

		runID, err := engine.LaunchRun(ctx, cfg)
		if err != nil {
			return err
		}
		fmt.Printf("run %s launched\n", runID)

		status, err := waitForRun(ctx, engine, runID)
		if err != nil {
			return err
		}
		fmt.Printf("run %s %s: processed %d, found %d\n",
			runID, status.Status, status.TotalProcessed, status.TotalFound)
		if status.Errors != "" {
			fmt.Fprintf(os.Stderr, "errors:\n%s\n", status.Errors)
		}

		prospects, err := engine.RunProspects(context.Background(), runID)
		if err != nil {
			return err
		}
		return printJSON(prospects)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSlice("platforms", []string{"instagram"}, "platforms to search (instagram, tiktok, youtube)")
	runCmd.Flags().StringSlice("regions", nil, "region codes to target (e.g. CZ, SK)")
	runCmd.Flags().StringSlice("keywords", nil, "bio keywords a prospect must match")
	runCmd.Flags().StringSlice("exclude-keywords", nil, "bio keywords that disqualify a prospect")
	runCmd.Flags().StringSlice("hashtags", nil, "hashtags to mine")
	runCmd.Flags().Int("min-followers", 1000, "minimum follower count")
	runCmd.Flags().Int("max-followers", 1000000, "maximum follower count")
	runCmd.Flags().Int("target", 10, "number of prospects to find")
}

func runConfigFromFlags(cmd *cobra.Command) (prospect.RunConfig, error) {
	platformNames, _ := cmd.Flags().GetStringSlice("platforms")
	var platforms []prospect.Platform
	for _, name := range platformNames {
		platforms = append(platforms, prospect.Platform(name))
	}

	regions, _ := cmd.Flags().GetStringSlice("regions")
	keywords, _ := cmd.Flags().GetStringSlice("keywords")
	exclude, _ := cmd.Flags().GetStringSlice("exclude-keywords")
	hashtags, _ := cmd.Flags().GetStringSlice("hashtags")
	minFollowers, _ := cmd.Flags().GetInt("min-followers")
	maxFollowers, _ := cmd.Flags().GetInt("max-followers")
	target, _ := cmd.Flags().GetInt("target")

	cfg := prospect.RunConfig{
		Platforms:       platforms,
		Regions:         regions,
		Keywords:        keywords,
		ExcludeKeywords: exclude,
		Hashtags:        hashtags,
		MinFollowers:    minFollowers,
		MaxFollowers:    maxFollowers,
		TargetCount:     target,
	}
	return cfg, cfg.Validate()
}

// waitForRun polls until the run is terminal. On interrupt it requests
// cancellation and keeps polling so the run can wind down cleanly.
func waitForRun(ctx context.Context, engine *scoutline.Engine, runID string) (*runner.Progress, error) {
	cancelRequested := false
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, err := engine.RunStatus(context.Background(), runID)
		if err != nil {
			return nil, err
		}
		if status.Status.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			if !cancelRequested {
				cancelRequested = true
				fmt.Fprintln(os.Stderr, "interrupt received, cancelling run")
				if err := engine.CancelRun(context.Background(), runID); err != nil {
					return nil, err
				}
			}
			time.Sleep(pollInterval)
		case <-ticker.C:
		}
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
