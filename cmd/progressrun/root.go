package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/modalprogress/internal/app"
	"github.com/JakeFAU/modalprogress/internal/config"
	"github.com/JakeFAU/modalprogress/internal/engine"
)

// errRunCancelled is returned by run commands whose run ended cancelled.
var errRunCancelled = errors.New("run cancelled")

// rootDeps carries process handles the commands would otherwise reach for
// globally, so tests can swap them.
type rootDeps struct {
	stdin      io.Reader
	logger     *zap.Logger
	registerer prometheus.Registerer
}

type rootCmd struct {
	deps       rootDeps
	cfgFile    string
	renderMode string
	serve      bool

	app *app.App
}

// newRootCmd creates and configures the root command.
func newRootCmd(deps rootDeps) *cobra.Command {
	rc := &rootCmd{deps: deps}
	cmd := &cobra.Command{
		Use:   "progressrun",
		Short: "Run long-lived work behind a cancellable progress display.",
		Long: `progressrun runs one unit of work at a time on a background worker and shows
its progress: a bar, the current action, "N / M" counts and an estimate of
the time remaining. The run can be cancelled from the keyboard, by signal or
through the observer API.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the application once flags are parsed and before any RunE.
		PersistentPreRunE: rc.setup,
	}

	cmd.PersistentFlags().StringVar(&rc.cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&rc.renderMode, "render", "", "render surface: tui, text or none (overrides render.mode)")
	cmd.PersistentFlags().BoolVar(&rc.serve, "serve", false, "serve the observer API while the run is active (overrides server.enabled)")

	cmd.AddCommand(newRunCmd(rc))
	return cmd
}

func (rc *rootCmd) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(rc.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("render") {
		cfg.Render.Mode = rc.renderMode
	}
	if cmd.Flags().Changed("serve") {
		cfg.Server.Enabled = rc.serve
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	rc.app, err = app.Build(cmd.Context(), cfg, app.Options{
		ConfigPath: rc.cfgFile,
		Logger:     rc.deps.logger,
		Stdin:      rc.deps.stdin,
		Stdout:     cmd.OutOrStdout(),
		Registerer: rc.deps.registerer,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	return nil
}

// runJob runs job and releases the application whatever the outcome.
func (rc *rootCmd) runJob(cmd *cobra.Command, job app.Job) error {
	if rc.app == nil {
		return errors.New("application services not initialized")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 10*time.Second)
		defer cancel()
		_ = rc.app.Close(ctx) //nolint:errcheck // logged by Close
	}()

	res, err := rc.app.Run(cmd.Context(), job)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d / %d in %s (run %s)\n",
		res.Outcome, res.Current, res.Total, res.Elapsed.Round(time.Millisecond), res.RunID)
	if res.Outcome == engine.Cancelled {
		return errRunCancelled
	}
	return nil
}
