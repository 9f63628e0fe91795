package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"imagestreamstack/pkg/combiner"
	"imagestreamstack/pkg/diagnostics"
)

type runOptions struct {
	selectionOptions

	output        string
	extension     string
	pixelSize     float64
	workers       int
	cache         bool
	extractPlanes bool
	planesDir     string
	noProgress    bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <archive>",
		Short: "Write one hyperstack per dataset of an archive",
		Long: "Groups the archive entries by dataset folder, drops particles missing a named channel,\n" +
			"and writes <output>/<dataset>.tif with background-filled, centered planes.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			params, err := buildParams(cmd, cfg, args[0], opts.selectionOptions)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("output") {
				params.OutputDir = opts.output
			}
			if flags.Changed("ext") {
				params.Extension = opts.extension
			}
			if flags.Changed("pixel-size") {
				params.PixelSize = opts.pixelSize
			}
			if flags.Changed("workers") {
				params.Workers = opts.workers
			}
			if flags.Changed("cache") {
				params.CacheDecodes = opts.cache
			}
			if flags.Changed("extract-planes") {
				params.ExtractPlanes = opts.extractPlanes
			}
			if flags.Changed("planes-dir") {
				params.PlanesDir = opts.planesDir
			}
			if !(params.PixelSize > 0) {
				return fmt.Errorf("pixel size must be positive, got %v", params.PixelSize)
			}
			if params.Workers < 1 {
				return fmt.Errorf("workers must be at least 1, got %d", params.Workers)
			}

			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			params.RunID = uuid.NewString()
			logger = logger.With(slog.String("run_id", params.RunID))

			summary := diagnostics.NewSummary()
			reporters := diagnostics.Multi{diagnostics.NewSlogReporter(logger), summary}
			var progress *diagnostics.ProgressReporter
			if !opts.noProgress && diagnostics.IsTerminal(cmd.ErrOrStderr()) {
				progress = diagnostics.NewProgressReporter(cmd.ErrOrStderr())
				reporters = append(reporters, progress)
			}

			options, cleanup, err := combinerOptions(cmd, params)
			if err != nil {
				return err
			}
			defer cleanup()
			options = append(options, combiner.WithReporter(reporters))

			c := combiner.NewCombiner(params, options...)
			effective := c.Params()
			logger.Info("starting run",
				slog.String("archive", effective.ArchivePath),
				slog.String("output", effective.OutputDir),
				slog.Int("workers", effective.Workers))

			start := time.Now()
			result, err := c.Process(cmd.Context())
			if progress != nil {
				progress.Finish()
			}
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), summary.Render())
			logger.Info("run finished",
				slog.Int("datasets", len(result.Datasets)),
				slog.Int("written", len(result.Written())),
				slog.Int("failed", len(summary.Failed())),
				slog.Duration("elapsed", time.Since(start)))
			return nil
		},
	}

	addSelectionFlags(cmd, &opts.selectionOptions)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output directory (default <archive dir>/merged_tiffs)")
	cmd.Flags().StringVar(&opts.extension, "ext", "tif", "Extension of the written stacks")
	cmd.Flags().Float64Var(&opts.pixelSize, "pixel-size", 1.0, "Pixel size in micrometers")
	cmd.Flags().IntVar(&opts.workers, "workers", 1, "Number of datasets processed concurrently")
	cmd.Flags().BoolVar(&opts.cache, "cache", false, "Keep decoded pages in memory between passes")
	cmd.Flags().BoolVar(&opts.extractPlanes, "extract-planes", false, "Also save every assembled plane as a PNG")
	cmd.Flags().StringVar(&opts.planesDir, "planes-dir", "planes", "Directory for extracted planes, relative to the output directory")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}
