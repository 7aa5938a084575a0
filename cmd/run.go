// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/lotpilot-cli/internal/config"
	"github.com/xkilldash9x/lotpilot-cli/internal/observability"
	"github.com/xkilldash9x/lotpilot-cli/internal/pipeline"
	"github.com/xkilldash9x/lotpilot-cli/internal/ui"
	"github.com/xkilldash9x/lotpilot-cli/internal/ui/cdp"
)

// newRunCmd creates the `run` command: a fresh run against one target,
// writing into a new timestamped run directory.
func newRunCmd() *cobra.Command {
	var (
		inputPath  string
		targetName string
		mode       string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Processes an input file against a configured target",
		RunE: func(cmd *cobra.Command, args []string) error {
			runDir := filepath.Join(cfg.Paths.OutputDir, time.Now().Format("20060102_150405"))
			if err := os.MkdirAll(runDir, 0o755); err != nil {
				return fmt.Errorf("creating run directory: %w", err)
			}
			return executeStage(cmd.Context(), runDir, inputPath, targetName, mode)
		},
	}

	runCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input file with the items to process (required)")
	runCmd.Flags().StringVarP(&targetName, "target", "t", "", "Configured target to drive (required)")
	runCmd.Flags().StringVarP(&mode, "mode", "m", "", "Row selection mode: 'visible' or 'available' (overrides config)")
	_ = runCmd.MarkFlagRequired("input")
	_ = runCmd.MarkFlagRequired("target")

	return runCmd
}

// executeStage wires the components and drives every item of the input
// through the pipeline. Shared by run and resume; the only difference
// between them is whether runDir (and so the ledger) already exists.
func executeStage(ctx context.Context, runDir, inputPath, targetName, mode string) error {
	logger := observability.GetLogger()

	target, err := cfg.Target(targetName)
	if err != nil {
		return err
	}

	selMode := pipeline.SelectionMode(cfg.Pipeline.SelectionMode)
	if mode != "" {
		selMode = pipeline.SelectionMode(mode)
	}
	if selMode != pipeline.SelectVisible && selMode != pipeline.SelectAvailable {
		return fmt.Errorf("invalid selection mode %q", selMode)
	}

	items, err := pipeline.ReadItems(inputPath)
	if err != nil {
		return err
	}
	logger.Info("Input loaded",
		zap.String("path", inputPath),
		zap.Int("items", len(items)),
		zap.String("run_dir", runDir))

	plan, err := pipeline.PlanFromConfig(target, selMode, runDir)
	if err != nil {
		return err
	}

	ledger, err := pipeline.OpenLedger(logger, filepath.Join(runDir, cfg.Paths.LedgerName))
	if err != nil {
		return err
	}
	defer ledger.Close()

	monitor := pipeline.NewMonitor(logger)
	monitor.Start(ctx, os.Stdin)

	sessions := ui.NewSessionManager(logger, backendFactory(logger, cfg), cfg.Pipeline.PollInterval, monitor.Requested)
	defer sessions.CloseAll(context.Background())

	locator := ui.NewLocator(logger, cfg.Pipeline.LocateTimeout)
	exec := ui.NewExecutor(logger, cfg.Pipeline.VerifyTimeout, cfg.Pipeline.PollInterval, monitor.Requested)

	var pace *rate.Limiter
	if cfg.Pipeline.ItemsPerMinute > 0 {
		pace = rate.NewLimiter(rate.Limit(cfg.Pipeline.ItemsPerMinute/60.0), 1)
	}

	ctrl := pipeline.NewController(logger, sessions, locator, exec, ledger, monitor.Requested, pipeline.Options{
		StageAttempts: cfg.Pipeline.StageAttempts,
		PollInterval:  cfg.Pipeline.PollInterval,
		DialogWait:    cfg.Pipeline.DialogWait,
		SubmitPolls:   cfg.Pipeline.SubmitPolls,
		Pace:          pace,
	})

	var summary pipeline.Summary
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		var runErr error
		summary, runErr = ctrl.Run(gctx, plan, items)
		return runErr
	})
	g.Go(func() error {
		// Translate outer-context cancellation (SIGTERM, parent timeout)
		// into a graceful stop, so the current item checkpoints first.
		select {
		case <-gctx.Done():
			monitor.RequestStop()
		case <-done:
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Run complete",
		zap.String("run_id", summary.RunID),
		zap.Int("total", summary.Total),
		zap.Int("recorded", summary.Recorded),
		zap.Int("failed", summary.Failed),
		zap.Int("partial", summary.Partial),
		zap.Int("skipped", summary.Skipped))

	fmt.Printf("\nRun %s complete: %d recorded, %d failed, %d skipped (of %d).\n",
		summary.RunID, summary.Recorded, summary.Failed, summary.Skipped, summary.Total)
	if summary.Recorded+summary.Failed+summary.Skipped < summary.Total {
		fmt.Printf("To continue with the unprocessed items, run: lotpilot resume --run-dir %s --input %s --target %s\n",
			runDir, inputPath, targetName)
	}
	return nil
}

// backendFactory builds the transport for a target descriptor. Only the
// CDP transport ships today; desc.Backend is the seam where an additional
// transport would hook in.
func backendFactory(logger *zap.Logger, cfg *config.Config) ui.BackendFactory {
	return func(ctx context.Context, desc ui.TargetDescriptor) (ui.Backend, error) {
		target, err := cfg.Target(desc.Name)
		if err != nil {
			return nil, err
		}
		switch desc.Backend {
		case "", "cdp":
			return cdp.New(ctx, logger, cfg.Browser, target.URL)
		default:
			return nil, fmt.Errorf("unknown backend %q for target %q", desc.Backend, desc.Name)
		}
	}
}
