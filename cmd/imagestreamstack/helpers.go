package main

import (
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"

	"imagestreamstack/pkg/archive"
	"imagestreamstack/pkg/channels"
	"imagestreamstack/pkg/combiner"
	"imagestreamstack/pkg/config"
)

// selectionOptions are the flags shared by every command that reads an archive
type selectionOptions struct {
	suffix       string
	channelsFile string
	defaultNames bool
}

func addSelectionFlags(cmd *cobra.Command, opts *selectionOptions) {
	cmd.Flags().StringVar(&opts.suffix, "suffix", "", "Suffix of image entries (default from config, .ome.tif)")
	cmd.Flags().StringVar(&opts.channelsFile, "channels", "", "TOML channel-naming document applied to all datasets")
	cmd.Flags().BoolVar(&opts.defaultNames, "default-names", false, "Name every channel Ch<N> before applying overrides")
}

// buildParams merges the config file with the command line; flags win
func buildParams(cmd *cobra.Command, cfg *config.Config, archivePath string, sel selectionOptions) (*combiner.Params, error) {
	params := &combiner.Params{
		ArchivePath:   archivePath,
		OutputDir:     cfg.Output.Dir,
		Suffix:        cfg.Input.Suffix,
		Extension:     cfg.Output.Extension,
		DefaultNames:  cfg.Processing.DefaultChannelNames,
		PixelSize:     cfg.Processing.PixelSize,
		Workers:       cfg.Processing.Workers,
		CacheDecodes:  cfg.Processing.CacheDecodes,
		ExtractPlanes: cfg.Output.ExtractPlanes,
		PlanesDir:     cfg.Output.PlanesDir,
	}

	flags := cmd.Flags()
	if flags.Changed("suffix") {
		params.Suffix = sel.suffix
	}
	if flags.Changed("default-names") {
		params.DefaultNames = sel.defaultNames
	}

	global, err := loadOverride(cfg.Channels.File, cfg.Channels.Names)
	if err != nil {
		return nil, err
	}
	if sel.channelsFile != "" {
		fromFlag, err := channels.Load(sel.channelsFile)
		if err != nil {
			return nil, err
		}
		global = global.Merge(fromFlag)
	}
	params.Channels = global

	params.DatasetChannels = make(map[string]channels.Override)
	params.PixelSizes = make(map[string]float64)
	for id, ds := range cfg.Datasets {
		o, err := loadOverride(ds.ChannelFile, ds.Names)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", id, err)
		}
		if len(o) > 0 {
			params.DatasetChannels[id] = o
		}
		if ds.PixelSize > 0 {
			params.PixelSizes[id] = ds.PixelSize
		}
	}
	return params, nil
}

// loadOverride reads an optional document and layers inline names over it
func loadOverride(file string, names map[int]string) (channels.Override, error) {
	o := channels.Override{}
	if file != "" {
		loaded, err := channels.Load(file)
		if err != nil {
			return nil, err
		}
		o = loaded
	}
	return o.Merge(channels.FromNames(names)), nil
}

// combinerOptions adds a storage client for gs:// archives. The returned
// cleanup must be called once the combiner is done.
func combinerOptions(cmd *cobra.Command, params *combiner.Params) ([]combiner.Option, func(), error) {
	if !archive.IsRemote(params.ArchivePath) {
		return nil, func() {}, nil
	}
	client, err := storage.NewClient(cmd.Context())
	if err != nil {
		return nil, nil, fmt.Errorf("create storage client: %w", err)
	}
	return []combiner.Option{combiner.WithStorageClient(client)}, func() { client.Close() }, nil
}
