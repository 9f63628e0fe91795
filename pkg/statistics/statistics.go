// Package statistics computes the per-channel background levels and the
// common canvas size of a dataset.
//
// Stage A records the pixel median of every (particle, channel) page in a
// particles x channels matrix while tracking the largest width and height
// seen. Stage B reduces each matrix column with the median, so a few
// unusually bright particles do not lift the background level.
package statistics

import (
	"context"
	"fmt"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"imagestreamstack/internal/models"
	"imagestreamstack/pkg/diagnostics"
	"imagestreamstack/pkg/imagecodec"
)

// Result holds the outcome of the statistics pass
type Result struct {
	// Medians is the background level of every valid channel in index order
	Medians []float64

	// CanvasSize is the maximum width and maximum height over all pages
	CanvasSize models.Size

	// PixelType is the element type shared by all pages
	PixelType models.PixelType

	// PageMedians is the particles x channels matrix of per-page medians
	PageMedians *mat.Dense
}

// Compute runs both statistics stages for a validated dataset.
// This function performs the following operations:
// 1. Decodes every page of the retained particles, in particle order
// 2. Records each page's median into a particles x channels matrix
// 3. Tracks the largest width and height seen across all pages
// 4. Reduces each matrix column to the channel's background median
//
// The medians, canvas size and pixel type are stored on ds. The context is
// checked between particles.
//
// Parameters:
//   - ctx: Cancels the pass between particles
//   - ds: Dataset that has already been validated
//   - src: Source of decoded pages, usually an imagecodec.ArchiveSource
//   - reporter: Receives statistics progress; nil discards it
//
// Returns:
//   - The per-channel medians, canvas size, pixel type and page median matrix
//   - An error if a page cannot be read or decoded, or if pages disagree on
//     pixel type (*imagecodec.DatatypeMismatchError)
//   - ctx.Err() when cancelled between particles
func Compute(ctx context.Context, ds *models.Dataset, src imagecodec.Source, reporter diagnostics.Reporter) (*Result, error) {
	if reporter == nil {
		reporter = diagnostics.Nop{}
	}
	particles := ds.Particles()
	valid := ds.ValidIndices()
	if len(particles) == 0 || len(valid) == 0 {
		return nil, fmt.Errorf("dataset %s: nothing to measure (%d particles, %d channels)", ds.ID, len(particles), len(valid))
	}

	// Stage A: per-page medians and running canvas size
	pageMedians := mat.NewDense(len(particles), len(valid), nil)
	var size models.Size
	for i, particle := range particles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j, channel := range valid {
			plane, err := src.Plane(particle, channel)
			if err != nil {
				return nil, err
			}
			entry, _ := ds.Entry(particle, channel)
			if err := imagecodec.CheckType(ds, entry, plane); err != nil {
				return nil, err
			}
			if plane.Width > size.Width {
				size.Width = plane.Width
			}
			if plane.Height > size.Height {
				size.Height = plane.Height
			}
			m, err := PlaneMedian(plane)
			if err != nil {
				return nil, fmt.Errorf("median of %s: %w", entry, err)
			}
			pageMedians.Set(i, j, m)
		}
		reporter.Progress(ds.ID, diagnostics.StageStatistics, i+1, len(particles))
	}

	// Stage B: median over particles for every channel
	medians, err := ColumnMedians(pageMedians)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", ds.ID, err)
	}

	ds.Medians = medians
	ds.CanvasSize = size
	return &Result{
		Medians:     medians,
		CanvasSize:  size,
		PixelType:   ds.PixelType,
		PageMedians: pageMedians,
	}, nil
}

// PlaneMedian returns the median sample of a plane. For an even number of
// samples it is the mean of the two middle values.
func PlaneMedian(plane *models.Plane) (float64, error) {
	data := make(stats.Float64Data, len(plane.Pix))
	for i, v := range plane.Pix {
		data[i] = float64(v)
	}
	return stats.Median(data)
}

// ColumnMedians reduces every column of m to its median
func ColumnMedians(m *mat.Dense) ([]float64, error) {
	rows, cols := m.Dims()
	out := make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		med, err := stats.Median(col)
		if err != nil {
			return nil, err
		}
		out[j] = med
	}
	return out, nil
}
