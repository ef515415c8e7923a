package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/modalprogress/internal/app"
	"github.com/JakeFAU/modalprogress/internal/workload"
)

func newRunCmd(rc *rootCmd) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workload behind the progress display",
	}
	cmd.PersistentFlags().String("title", "", "run title (defaults to display.title)")
	cmd.AddCommand(newSyntheticCmd(rc), newFetchCmd(rc))
	return cmd
}

func newSyntheticCmd(rc *rootCmd) *cobra.Command {
	var job workload.Synthetic
	cmd := &cobra.Command{
		Use:   "synthetic",
		Short: "Report a fixed number of steps with a delay between them",
		Long: `Runs a synthetic workload that reports --steps increments, sleeping --delay
before each one. --fail-after makes the run fail part way and --unknown-total
starts without an estimate so the total grows as steps land.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if job.Steps < 0 || job.FailAfter < 0 || job.Delay < 0 {
				return fmt.Errorf("steps, fail-after and delay must be >= 0")
			}
			title, _ := cmd.Flags().GetString("title") //nolint:errcheck // flag is registered on run
			return rc.runJob(cmd, app.Job{
				Title:    title,
				Estimate: job.Estimate(),
				Work:     job.Run,
			})
		},
	}
	cmd.Flags().IntVar(&job.Steps, "steps", 20, "number of steps to report")
	cmd.Flags().DurationVar(&job.Delay, "delay", 250*time.Millisecond, "pause before each step")
	cmd.Flags().IntVar(&job.FailAfter, "fail-after", 0, "fail after this many steps (0 never fails)")
	cmd.Flags().BoolVar(&job.UnknownTotal, "unknown-total", false, "start without an estimate")
	return cmd
}

func newFetchCmd(rc *rootCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch URL...",
		Short: "Fetch pages from the given seed URLs, one step per page",
		Long: `Fetches each seed URL and, up to fetch.max_depth, same-host links found on
those pages. Each fetched page is one step; the total grows as links are
discovered, bounded by fetch.max_pages.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rc.app == nil {
				return fmt.Errorf("application services not initialized")
			}
			title, _ := cmd.Flags().GetString("title") //nolint:errcheck // flag is registered on run
			return rc.runJob(cmd, app.Job{
				Title:         title,
				InitialAction: "Starting fetch",
				Estimate:      int64(len(args)),
				Work:          rc.app.NewFetcher().Run,
				Arg:           args,
			})
		},
	}
}
