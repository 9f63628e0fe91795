package canvas

import (
	"context"
	"fmt"

	"imagestreamstack/internal/models"
	"imagestreamstack/pkg/diagnostics"
	"imagestreamstack/pkg/imagecodec"
)

// Offset returns where a source of length src starts inside a canvas of
// length dst: (dst - src) floor-divided by 2.
func Offset(dst, src int) int {
	d := dst - src
	if d < 0 {
		// floor division, not truncation
		return (d - 1) / 2
	}
	return d / 2
}

// Assemble builds the stack of a dataset after the statistics pass. Every
// plane starts filled with its channel's background level and receives the
// source page, copied verbatim and centered.
func Assemble(ctx context.Context, ds *models.Dataset, src imagecodec.Source, reporter diagnostics.Reporter) (*Stack, error) {
	if reporter == nil {
		reporter = diagnostics.Nop{}
	}
	particles := ds.Particles()
	valid := ds.ValidIndices()
	if len(ds.Medians) != len(valid) {
		return nil, fmt.Errorf("dataset %s: %d background levels for %d channels", ds.ID, len(ds.Medians), len(valid))
	}
	size := ds.CanvasSize
	if size.Width <= 0 || size.Height <= 0 || len(particles) == 0 {
		return nil, fmt.Errorf("dataset %s: statistics have not been computed", ds.ID)
	}

	fill := make([]uint16, len(valid))
	for j, m := range ds.Medians {
		fill[j] = ds.PixelType.Convert(m)
	}

	stack := NewStack(len(particles), len(valid), size.Width, size.Height, ds.PixelType)
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
			if plane.Width > size.Width || plane.Height > size.Height {
				return nil, fmt.Errorf("%s: %dx%d page exceeds %dx%d canvas", entry, plane.Width, plane.Height, size.Width, size.Height)
			}
			place(stack.Plane(i, j), size, plane, fill[j])
		}
		reporter.Progress(ds.ID, diagnostics.StageAssembly, i+1, len(particles))
	}
	return stack, nil
}

// place fills dst with the background value and copies the plane into the
// centered sub-rectangle, overwriting the fill there
func place(dst []uint16, size models.Size, plane *models.Plane, background uint16) {
	for k := range dst {
		dst[k] = background
	}
	offX := Offset(size.Width, plane.Width)
	offY := Offset(size.Height, plane.Height)
	for y := 0; y < plane.Height; y++ {
		row := (offY+y)*size.Width + offX
		copy(dst[row:row+plane.Width], plane.Pix[y*plane.Width:(y+1)*plane.Width])
	}
}
