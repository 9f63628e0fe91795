package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"imagestreamstack/pkg/channels"
	"imagestreamstack/pkg/combiner"
	"imagestreamstack/pkg/diagnostics"
)

func newChannelsCommand(ctx *commandContext) *cobra.Command {
	channelsCmd := &cobra.Command{
		Use:   "channels",
		Short: "Channel-naming documents",
	}
	channelsCmd.AddCommand(newChannelsTemplateCommand(ctx))
	return channelsCmd
}

func newChannelsTemplateCommand(ctx *commandContext) *cobra.Command {
	var opts selectionOptions
	var dataset string
	var all bool
	var outPath string

	cmd := &cobra.Command{
		Use:   "template <archive>",
		Short: "Write a channel-naming document for the channels of a dataset",
		Long: "Writes the channels discovered in one dataset, with their current names, as a TOML\n" +
			"document to edit and pass back with --channels. Unnamed channels are written as \"--\".",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && dataset != "" {
				return errors.New("--dataset and --all are mutually exclusive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			params, err := buildParams(cmd, cfg, args[0], opts)
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			options, cleanup, err := combinerOptions(cmd, params)
			if err != nil {
				return err
			}
			defer cleanup()
			options = append(options, combiner.WithReporter(diagnostics.NewSlogReporter(logger)))

			reg, err := combiner.NewCombiner(params, options...).Discover(cmd.Context())
			if err != nil {
				return err
			}
			if reg.Len() == 0 {
				return fmt.Errorf("no datasets with %s entries in %s", params.Suffix, args[0])
			}

			var doc channels.Override
			target := strings.TrimSpace(outPath)
			switch {
			case all:
				doc = channels.Override{}
				for _, ds := range reg.Datasets() {
					doc = doc.Merge(channels.FromDataset(ds))
				}
				if target == "" {
					target = "channels.toml"
				}
			default:
				id := dataset
				if id == "" {
					if reg.Len() > 1 {
						return fmt.Errorf("archive holds %d datasets (%s); choose one with --dataset or use --all",
							reg.Len(), strings.Join(reg.IDs(), ", "))
					}
					id = reg.IDs()[0]
				}
				ds := reg.Dataset(id)
				if ds == nil {
					return fmt.Errorf("dataset %q not found; available: %s", id, strings.Join(reg.IDs(), ", "))
				}
				doc = channels.FromDataset(ds)
				if target == "" {
					target = id + ".channels.toml"
				}
			}

			if err := doc.Save(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d channels to %s\n", len(doc), target)
			return nil
		},
	}

	addSelectionFlags(cmd, &opts)
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset folder to describe")
	cmd.Flags().BoolVar(&all, "all", false, "Write one document covering the channels of all datasets")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Destination file (default <dataset>.channels.toml or channels.toml)")
	return cmd
}
