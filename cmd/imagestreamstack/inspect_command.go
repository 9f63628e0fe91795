package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"imagestreamstack/internal/models"
	"imagestreamstack/pkg/combiner"
	"imagestreamstack/pkg/diagnostics"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var opts selectionOptions

	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "List the datasets and channels found in an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			out := cmd.OutOrStdout()
			if reg.Len() == 0 {
				fmt.Fprintf(out, "No datasets with %s entries found\n", params.Suffix)
				return nil
			}
			for _, ds := range reg.Datasets() {
				fmt.Fprintln(out, combiner.Describe(ds))
				fmt.Fprintln(out, renderTable(
					[]string{"Channel", "Name", "Particles"},
					channelRows(ds),
					[]columnAlignment{alignRight, alignLeft, alignRight},
				))
			}
			return nil
		},
	}

	addSelectionFlags(cmd, &opts)
	return cmd
}

// channelRows lists every channel with the number of particles that have it
func channelRows(ds *models.Dataset) [][]string {
	counts := make(map[int]int, len(ds.Channels))
	for _, indices := range ds.GroupedFiles {
		for _, index := range indices {
			counts[index]++
		}
	}
	rows := make([][]string, 0, len(ds.Channels))
	for _, ch := range ds.Channels {
		rows = append(rows, []string{strconv.Itoa(ch.Index), ch.String(), strconv.Itoa(counts[ch.Index])})
	}
	return rows
}
