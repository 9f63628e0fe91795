// Package metadata derives the ImageJ display metadata of an assembled stack:
// per-slice labels, per-channel intensity ranges and the background-level
// property.
package metadata

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"imagestreamstack/internal/models"
	"imagestreamstack/pkg/canvas"
)

// MediansProperty is the name of the property holding the background levels
const MediansProperty = "Medians"

// Range is the display range of one channel
type Range struct {
	// Min is the channel's background level
	Min float64

	// Max is the largest sample of the channel in the assembled stack
	Max float64
}

// Property is one named text property, kept in insertion order
type Property struct {
	Key   string
	Value string
}

// Metadata is everything the stack writer carries besides the samples
type Metadata struct {
	// Axes is the hyperstack axis order, see canvas.AxisOrder
	Axes string

	// Labels has one entry per plane: channel names repeated for every particle
	Labels []string

	// Ranges has one entry per valid channel in index order
	Ranges []Range

	// Properties holds the background-level property
	Properties []Property

	// PixelSizeMicrons is the physical size of one pixel
	PixelSizeMicrons float64
}

// Build derives the metadata of a dataset from its assembled stack
func Build(ds *models.Dataset, stack *canvas.Stack) (*Metadata, error) {
	valid := ds.ValidChannels()
	if len(valid) != stack.Channels || len(ds.Medians) != stack.Channels {
		return nil, fmt.Errorf("dataset %s: %d channels, %d background levels, stack has %d channels",
			ds.ID, len(valid), len(ds.Medians), stack.Channels)
	}

	ranges := make([]Range, len(valid))
	for j := range valid {
		ranges[j] = Range{Min: ds.Medians[j], Max: float64(stack.ChannelMax(j))}
	}

	return &Metadata{
		Axes:             canvas.AxisOrder,
		Labels:           Labels(valid, stack.Particles),
		Ranges:           ranges,
		Properties:       []Property{{Key: MediansProperty, Value: MediansText(ds.Medians)}},
		PixelSizeMicrons: ds.PixelSizeMicrons,
	}, nil
}

// Labels repeats the ordered channel names once per particle
func Labels(valid []models.Channel, particles int) []string {
	labels := make([]string, 0, len(valid)*particles)
	for p := 0; p < particles; p++ {
		for _, ch := range valid {
			labels = append(labels, ch.Name)
		}
	}
	return labels
}

// MediansText serializes background levels as a newline followed by the
// comma-joined values truncated toward zero, e.g. "\n812,97,1040".
func MediansText(medians []float64) string {
	parts := make([]string, len(medians))
	for i, m := range medians {
		parts[i] = strconv.FormatInt(int64(math.Trunc(m)), 10)
	}
	return "\n" + strings.Join(parts, ",")
}

// FlatRanges returns the ranges as [min1, max1, min2, max2, ...]
func (m *Metadata) FlatRanges() []float64 {
	out := make([]float64, 0, 2*len(m.Ranges))
	for _, r := range m.Ranges {
		out = append(out, r.Min, r.Max)
	}
	return out
}

// Property returns the value of a named property
func (m *Metadata) Property(key string) (string, bool) {
	for _, p := range m.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}
