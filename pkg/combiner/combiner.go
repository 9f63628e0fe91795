package combiner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"imagestreamstack/internal/models"
	"imagestreamstack/pkg/archive"
	"imagestreamstack/pkg/canvas"
	"imagestreamstack/pkg/channels"
	"imagestreamstack/pkg/diagnostics"
	"imagestreamstack/pkg/grouping"
	"imagestreamstack/pkg/imagecodec"
	"imagestreamstack/pkg/metadata"
	"imagestreamstack/pkg/statistics"
	"imagestreamstack/pkg/tiffwriter"
	"imagestreamstack/pkg/visualization"
)

// DefaultOutputDir is the folder created next to the archive when no output
// directory is given
const DefaultOutputDir = "merged_tiffs"

// DefaultPixelSize is the pixel size in micrometers used when none is configured
const DefaultPixelSize = 1.0

// lockName is the advisory lock file kept in the output directory during a run
const lockName = ".imagestreamstack.lock"

// ErrOutputLocked is returned when another run holds the output directory
var ErrOutputLocked = errors.New("output directory is locked by another run")

// Params holds the combination parameters
type Params struct {
	// ArchivePath is the zip archive, a local path or gs://bucket/object
	ArchivePath string

	// OutputDir receives one stack per dataset. Defaults to
	// <archive dir>/merged_tiffs for local archives.
	OutputDir string

	// Suffix selects image entries, with or without the leading dot
	Suffix string

	// Extension of the written stacks, without the dot. Defaults to "tif".
	Extension string

	// Channels names channels in every dataset
	Channels channels.Override

	// DatasetChannels names channels of single datasets, layered over Channels
	DatasetChannels map[string]channels.Override

	// DefaultNames names every discovered channel "Ch<N>" before any override
	DefaultNames bool

	// PixelSize is the default pixel size in micrometers
	PixelSize float64

	// PixelSizes overrides the pixel size per dataset
	PixelSizes map[string]float64

	// Workers is the number of datasets processed concurrently
	Workers int

	// CacheDecodes keeps decoded pages between statistics and assembly
	CacheDecodes bool

	// ExtractPlanes also saves every assembled plane as a PNG
	ExtractPlanes bool

	// PlanesDir receives extracted planes, one subfolder per dataset.
	// Relative paths are resolved against OutputDir. Defaults to "planes".
	PlanesDir string

	// RunID identifies the run in logs, generated when empty
	RunID string
}

// StackWriter persists an assembled stack with its metadata
type StackWriter interface {
	WriteStack(path string, stack *canvas.Stack, md *metadata.Metadata) error
}

// Option configures a Combiner
type Option func(*Combiner)

// WithReporter sets the diagnostics sink
func WithReporter(r diagnostics.Reporter) Option {
	return func(c *Combiner) { c.reporter = r }
}

// WithDecoder replaces the page decoder
func WithDecoder(d imagecodec.Decoder) Option {
	return func(c *Combiner) { c.decoder = d }
}

// WithWriter replaces the stack writer
func WithWriter(w StackWriter) Option {
	return func(c *Combiner) { c.writer = w }
}

// WithStorageClient sets the client used for gs:// archives
func WithStorageClient(client *storage.Client) Option {
	return func(c *Combiner) { c.client = client }
}

// Combiner turns an archive of single-channel pages into one hyperstack per dataset.
//
// Each dataset goes through these steps:
// 1. Applying channel names
// 2. Dropping particles without every named channel
// 3. Measuring background levels and the canvas size
// 4. Assembling the centered stack
// 5. Deriving metadata and writing the file
//
// Datasets are independent: a failure in one is reported and the run moves on.
type Combiner struct {
	params   Params
	reporter diagnostics.Reporter
	decoder  imagecodec.Decoder
	writer   StackWriter
	client   *storage.Client
}

// NewCombiner creates a combiner with the provided parameters.
// Unset parameters take their defaults: a "tif" extension, a merged_tiffs
// directory next to a local archive, a 1.0 micron pixel size, one worker and
// a fresh run id.
//
// Parameters:
//   - params: Parameters for the run; the combiner keeps its own copy
//   - opts: Optional reporter, decoder, writer and storage client overrides
//
// Returns:
//   - A new Combiner ready to Process or Discover the archive
func NewCombiner(params *Params, opts ...Option) *Combiner {
	c := &Combiner{
		params:   *params,
		reporter: diagnostics.Nop{},
		decoder:  imagecodec.TIFFDecoder{},
		writer:   tiffwriter.Writer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reporter == nil {
		c.reporter = diagnostics.Nop{}
	}
	if c.decoder == nil {
		c.decoder = imagecodec.TIFFDecoder{}
	}
	if c.writer == nil {
		c.writer = tiffwriter.Writer{}
	}
	c.applyDefaults()
	return c
}

func (c *Combiner) applyDefaults() {
	p := &c.params
	if p.Extension == "" {
		p.Extension = "tif"
	}
	p.Extension = strings.TrimPrefix(p.Extension, ".")
	if p.OutputDir == "" && !archive.IsRemote(p.ArchivePath) {
		p.OutputDir = filepath.Join(filepath.Dir(p.ArchivePath), DefaultOutputDir)
	}
	if p.PixelSize == 0 {
		p.PixelSize = DefaultPixelSize
	}
	if p.Workers < 1 {
		p.Workers = 1
	}
	if p.RunID == "" {
		p.RunID = uuid.NewString()
	}
	if p.PlanesDir == "" {
		p.PlanesDir = "planes"
	}
	if !filepath.IsAbs(p.PlanesDir) {
		p.PlanesDir = filepath.Join(p.OutputDir, p.PlanesDir)
	}
}

// Params returns the effective parameters after defaults were applied
func (c *Combiner) Params() Params {
	return c.params
}

// DatasetResult is the outcome of one dataset
type DatasetResult struct {
	ID string

	// Path is the written stack, empty unless it was written
	Path string

	// Planes lists the extracted plane images
	Planes []string

	// Removed lists particles dropped for missing channels
	Removed []*grouping.IncompleteParticleError

	// Particles and Channels give the written stack's extent
	Particles int
	Channels  int

	// Skipped is set when validation left nothing to write
	Skipped bool

	// Err is the reason the dataset was skipped or failed
	Err error
}

// Result is the outcome of a run
type Result struct {
	RunID    string
	Datasets []DatasetResult
}

// Written returns the results of datasets that produced a stack
func (r *Result) Written() []DatasetResult {
	var out []DatasetResult
	for _, d := range r.Datasets {
		if d.Path != "" {
			out = append(out, d)
		}
	}
	return out
}

// Process runs the complete pipeline over every dataset of the archive.
// This function performs the following operations:
// 1. Opens the archive and groups its entries into datasets
// 2. Creates and locks the output directory
// 3. Hands datasets to the worker pool, one stack file per dataset
//
// A dataset that is skipped or fails is recorded on its DatasetResult and
// reported; the remaining datasets still run.
//
// Parameters:
//   - ctx: Stops the run; datasets not yet started are left out
//
// Returns:
//   - The per-dataset results in discovery order, together with the run id
//   - An error when the archive or output directory is unusable, including
//     ErrOutputLocked when another run holds the directory
//   - ctx.Err() when the run was cancelled
func (c *Combiner) Process(ctx context.Context) (*Result, error) {
	result := &Result{RunID: c.params.RunID}
	if c.params.OutputDir == "" {
		return result, fmt.Errorf("output directory is required for archive %s", c.params.ArchivePath)
	}
	if !(c.params.PixelSize > 0) {
		return result, fmt.Errorf("%w: %v", tiffwriter.ErrInvalidPixelSize, c.params.PixelSize)
	}

	// Step 1: Open the archive and scan its index
	arch, err := archive.Open(ctx, c.params.ArchivePath, c.client)
	if err != nil {
		return result, fmt.Errorf("failed to open archive: %w", err)
	}
	defer arch.Close()

	reporter := diagnostics.NewLocked(c.reporter)
	reg, err := grouping.Scan(arch.Entries(), c.params.Suffix, reporter)
	if err != nil {
		return result, fmt.Errorf("failed to scan archive: %w", err)
	}

	// Step 2: Claim the output directory
	if err := os.MkdirAll(c.params.OutputDir, 0755); err != nil {
		return result, fmt.Errorf("failed to create output directory: %w", err)
	}
	lock := flock.New(filepath.Join(c.params.OutputDir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return result, fmt.Errorf("failed to lock output directory: %w", err)
	}
	if !locked {
		return result, fmt.Errorf("%w: %s", ErrOutputLocked, c.params.OutputDir)
	}
	defer lock.Unlock()

	// Step 3: Process datasets in parallel
	datasets := reg.Datasets()
	result.Datasets = make([]DatasetResult, len(datasets))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < c.params.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				result.Datasets[i] = c.processDataset(ctx, arch, datasets[i], reporter)
			}
		}()
	}
	for i := range datasets {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// processDataset runs one dataset from naming to writing. Errors are reported
// and recorded on the result, never returned.
func (c *Combiner) processDataset(ctx context.Context, arch archive.Reader, ds *models.Dataset, reporter diagnostics.Reporter) DatasetResult {
	res := DatasetResult{ID: ds.ID}
	if ctx.Err() != nil {
		res.Err = ctx.Err()
		return res
	}

	c.ApplyNames(ds)

	removed, err := grouping.Validate(ds, reporter)
	res.Removed = removed
	if err != nil {
		res.Skipped = true
		res.Err = err
		reporter.DatasetSkipped(ds.ID, err)
		return res
	}

	ds.PixelSizeMicrons = c.PixelSize(ds.ID)
	path, planes, err := c.combine(ctx, arch, ds, reporter)
	res.Path = path
	res.Planes = planes
	if path != "" {
		res.Particles = len(ds.GroupedFiles)
		res.Channels = len(ds.ValidIndices())
		reporter.DatasetWritten(ds.ID, path)
	}
	if err != nil {
		res.Err = err
		if ctx.Err() == nil {
			reporter.DatasetFailed(ds.ID, err)
		}
	}
	return res
}

func (c *Combiner) combine(ctx context.Context, arch archive.Reader, ds *models.Dataset, reporter diagnostics.Reporter) (string, []string, error) {
	src := imagecodec.NewArchiveSource(arch, ds, c.decoder, c.params.CacheDecodes)
	defer src.Release()

	if _, err := statistics.Compute(ctx, ds, src, reporter); err != nil {
		return "", nil, err
	}
	stack, err := canvas.Assemble(ctx, ds, src, reporter)
	if err != nil {
		return "", nil, err
	}
	md, err := metadata.Build(ds, stack)
	if err != nil {
		return "", nil, err
	}

	path := OutputPath(c.params.OutputDir, ds.ID, c.params.Extension)
	if err := c.writer.WriteStack(path, stack, md); err != nil {
		return "", nil, err
	}
	reporter.Progress(ds.ID, diagnostics.StageWrite, 1, 1)

	if !c.params.ExtractPlanes {
		return path, nil, nil
	}
	viewer := visualization.NewViewer(stack, md.Labels)
	planes, err := viewer.SavePlaneSequence(filepath.Join(c.params.PlanesDir, ds.ID))
	if err != nil {
		return path, planes, fmt.Errorf("failed to extract planes: %w", err)
	}
	return path, planes, nil
}

// ApplyNames names the channels of a dataset: default names first when
// enabled, then the run-wide override, then the dataset's own
func (c *Combiner) ApplyNames(ds *models.Dataset) {
	if c.params.DefaultNames {
		channels.DefaultNames(ds).Apply(ds)
	}
	c.params.Channels.Apply(ds)
	if o, ok := c.params.DatasetChannels[ds.ID]; ok {
		o.Apply(ds)
	}
}

// PixelSize returns the pixel size configured for a dataset
func (c *Combiner) PixelSize(id string) float64 {
	if ps, ok := c.params.PixelSizes[id]; ok && ps > 0 {
		return ps
	}
	return c.params.PixelSize
}

// OutputPath returns <dir>/<dataset>.<ext>
func OutputPath(dir, dataset, ext string) string {
	return filepath.Join(dir, dataset+"."+strings.TrimPrefix(ext, "."))
}
