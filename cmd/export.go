package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rgonek/confluence-space-export/internal/config"
	"github.com/rgonek/confluence-space-export/internal/confluence"
	"github.com/rgonek/confluence-space-export/internal/exporter"
	"github.com/rgonek/confluence-space-export/internal/queue"
	"github.com/rgonek/confluence-space-export/internal/resume"
	"github.com/rgonek/confluence-space-export/internal/search"
)

var (
	flagSpace               string
	flagOut                 string
	flagRoot                string
	flagConcurrency         int
	flagDryRun              bool
	flagResume              bool
	flagFresh               bool
	flagSkipAttachments     bool
	flagAttachmentThreshold float64
	flagRequestsPerSec      float64
	flagPhaseTimeout        time.Duration
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a space to Markdown",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&flagSpace, "space", "", "space key to export (required)")
	exportCmd.Flags().StringVar(&flagOut, "out", "export", "output directory")
	exportCmd.Flags().StringVar(&flagRoot, "root", "", "export only the subtree under this page ID")
	exportCmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "parallel page workers (default 5)")
	exportCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "walk discovery without writing files")
	exportCmd.Flags().BoolVar(&flagResume, "resume", false, "continue an interrupted export")
	exportCmd.Flags().BoolVar(&flagFresh, "fresh", false, "discard prior export state and start over")
	exportCmd.Flags().BoolVar(&flagSkipAttachments, "skip-attachments", false, "do not download attachments")
	exportCmd.Flags().Float64Var(&flagAttachmentThreshold, "attachment-threshold", 0, "max percentage of failed attachments before the run counts as failed")
	exportCmd.Flags().Float64Var(&flagRequestsPerSec, "requests-per-second", 0, "client-side API rate limit (0 = unlimited)")
	exportCmd.Flags().DurationVar(&flagPhaseTimeout, "phase-timeout", 0, "soft deadline per discovery phase (0 = no deadline)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if flagSpace == "" {
		return exitWith(ExitInvalidUsage, "--space is required")
	}
	if flagResume && flagFresh {
		return exitWith(ExitInvalidUsage, "--resume and --fresh are mutually exclusive")
	}

	cfg, err := config.Load(flagConfig, flagEnvFile)
	if err != nil {
		return exitWith(ExitInvalidUsage, err.Error())
	}

	outputDir := flagOut
	if outputDir == "export" && cfg.File.OutputDir != "" {
		outputDir = cfg.File.OutputDir
	}
	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		return exitWith(ExitInvalidUsage, fmt.Sprintf("resolve output directory: %v", err))
	}

	decision, err := resume.Validate(resume.GuardConfig{
		OutputDir: outputDir,
		SpaceKey:  flagSpace,
		Resume:    flagResume,
		Fresh:     flagFresh,
	})
	if err != nil {
		return exitWith(ExitValidation, err.Error())
	}
	if decision.ShouldAbort {
		if decision.State == resume.StateInterrupted {
			return exitWith(ExitResumeRequired, decision.Message)
		}
		return exitWith(ExitInvalidUsage, decision.Message)
	}
	if decision.Mode == resume.ModeFresh {
		if err := resume.ClearPriorState(outputDir); err != nil {
			return exitWith(ExitValidation, fmt.Sprintf("clear prior state: %v", err))
		}
	}

	logLevel := flagLogLevel
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	logger := newLogger(logLevel)

	api, err := confluence.NewClient(confluence.ClientConfig{
		BaseURL:        cfg.BaseURL,
		Username:       cfg.Username,
		Password:       cfg.Password,
		RequestsPerSec: firstPositive(flagRequestsPerSec, cfg.File.RequestsPerSecond),
	})
	if err != nil {
		return exitWith(ExitInvalidUsage, err.Error())
	}

	thresholds := exporter.DefaultThresholds()
	if pct := firstPositive(flagAttachmentThreshold, cfg.File.AttachmentThreshold); pct > 0 {
		thresholds.MaxAttachmentFailurePercentage = pct
	}
	if cfg.File.AllowRestrictedPages != nil {
		thresholds.AllowRestrictedPages = *cfg.File.AllowRestrictedPages
	}

	exportCfg := exporter.Config{
		BaseURL:         cfg.BaseURL,
		SpaceKey:        flagSpace,
		RootPageID:      flagRoot,
		OutputDir:       outputDir,
		Concurrency:     firstPositiveInt(flagConcurrency, cfg.File.Concurrency),
		DryRun:          flagDryRun,
		SkipAttachments: flagSkipAttachments || cfg.File.SkipAttachments,
		Resume:          decision.Mode == resume.ModeResume,
		PhaseTimeout:    flagPhaseTimeout,
		Thresholds:      thresholds,
		Queue: queue.Options{
			SpaceKey:     flagSpace,
			MaxQueueSize: cfg.File.MaxQueueSize,
			MaxRetries:   cfg.File.MaxRetries,
		},
	}

	ctx, stop := withInterrupt(cmd.Context())
	defer stop()

	progress := newExportProgress(os.Stderr, flagSpace)
	exp := exporter.New(api, exportCfg, logger, progress)
	result, err := exp.Run(ctx)
	if err != nil {
		if errors.Is(err, exporter.ErrValidation) {
			return exitWith(ExitValidation, err.Error())
		}
		return exitWith(ExitContentFailure, err.Error())
	}

	printSummary(cmd.OutOrStdout(), result)

	if result.State == exporter.RunInterrupted {
		return exitWith(ExitInterrupted, "export interrupted; re-run with --resume to continue")
	}
	if !flagDryRun {
		if indexed, err := search.Build(outputDir, filepath.Join(outputDir, exporter.SpacesDirName, flagSpace), exp.Manifest()); err != nil {
			logger.Warn().Err(err).Msg("build search index")
		} else {
			logger.Info().Int("pages", indexed).Msg("search index built")
		}
	}
	if result.ThresholdsExceeded {
		return exitWith(ExitContentFailure, "export finished with failures above the configured thresholds")
	}
	return nil
}

// withInterrupt cancels the context on the first SIGINT/SIGTERM and hard-exits
// with the interrupted code on the second.
func withInterrupt(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signals
		cancel()
		<-signals
		fmt.Fprintln(os.Stderr, "second interrupt: exiting immediately")
		os.Exit(ExitInterrupted)
	}()

	return ctx, func() {
		signal.Stop(signals)
		cancel()
	}
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveInt(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
