package grouping

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagestreamstack/internal/models"
	"imagestreamstack/pkg/diagnostics"
)

func TestParseEntryName(t *testing.T) {
	tests := []struct {
		name     string
		suffix   string
		particle string
		channel  int
	}{
		{"cell_001_Ch11.ome.tif", ".ome.tif", "cell_001", 11},
		{"cell_001_Ch11.ome.tif", "ome.tif", "cell_001", 11},
		{"42_Ch1.ome.tif", "ome.tif", "42", 1},
		{"a_b_c_Ch3.tif", "tif", "a_b_c", 3},
		{"x_Ch007.tif", ".tif", "x", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			particle, channel, err := ParseEntryName(tt.name, tt.suffix)
			require.NoError(t, err)
			assert.Equal(t, tt.particle, particle)
			assert.Equal(t, tt.channel, channel)
		})
	}
}

func TestParseEntryNameRejectsMalformed(t *testing.T) {
	for _, name := range []string{
		"Ch1.ome.tif",
		"cell.ome.tif",
		"cell_Ch.ome.tif",
		"cell_Ch1a.ome.tif",
		"cell_ch1.ome.tif",
		"cell_C1.ome.tif",
		"_Ch1.ome.tif",
		"cell_Ch0.ome.tif",
		"cell_Ch1.png",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseEntryName(name, "ome.tif")
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, name, parseErr.Entry)
		})
	}
}

func TestScanGroupsByFolder(t *testing.T) {
	summary := diagnostics.NewSummary()
	reg, err := Scan([]string{
		"D1/",
		"D1/c1_Ch1.ome.tif",
		"D1/c1_Ch2.ome.tif",
		"D2/x_y_Ch3.ome.tif",
		"D1/c2_Ch1.ome.tif",
		"D1/notes.txt",
		"D1/broken.ome.tif",
		"loose_Ch1.ome.tif",
		"D2/deep/x_Ch1.ome.tif",
	}, "ome.tif", summary)
	require.NoError(t, err)

	assert.Equal(t, []string{"D1", "D2"}, reg.IDs())
	d1 := reg.Dataset("D1")
	require.NotNil(t, d1)
	assert.Equal(t, []string{"c1", "c2"}, d1.Particles())
	assert.Equal(t, []int{1, 2}, d1.GroupedFiles["c1"])
	assert.Equal(t, []int{1}, d1.GroupedFiles["c2"])
	require.Len(t, d1.Channels, 2)
	for _, ch := range d1.Channels {
		assert.Empty(t, ch.Name)
	}
	entry, err := d1.Entry("c1", 2)
	require.NoError(t, err)
	assert.Equal(t, "D1/c1_Ch2.ome.tif", entry)

	assert.Equal(t, []int{3}, reg.Dataset("D2").GroupedFiles["x_y"])
	assert.ElementsMatch(t, []string{"D1/broken.ome.tif", "loose_Ch1.ome.tif", "D2/deep/x_Ch1.ome.tif"}, summary.SkippedEntries())
	assert.Equal(t, []string{"D1/notes.txt"}, summary.IgnoredEntries())
}

func TestScanRejectsRelativeFolders(t *testing.T) {
	summary := diagnostics.NewSummary()
	reg, err := Scan([]string{
		"../c1_Ch1.ome.tif",
		"./c1_Ch1.ome.tif",
		"D1/c1_Ch1.ome.tif",
	}, "ome.tif", summary)
	require.NoError(t, err)

	assert.Equal(t, []string{"D1"}, reg.IDs())
	assert.Nil(t, reg.Dataset(".."))
	assert.Equal(t, []string{"../c1_Ch1.ome.tif", "./c1_Ch1.ome.tif"}, summary.SkippedEntries())

	var parseErr *ParseError
	require.ErrorAs(t, NewRegistry().Add("../c1_Ch1.ome.tif", "ome.tif"), &parseErr)
	assert.Equal(t, "../c1_Ch1.ome.tif", parseErr.Entry)
}

func TestScanRequiresSuffix(t *testing.T) {
	_, err := Scan(nil, " . ", nil)
	assert.Error(t, err)
}

func newNamedDataset(names map[int]string, particles map[string][]int, order []string) *models.Dataset {
	ds := models.NewDataset("D1")
	for _, p := range order {
		for _, ch := range particles[p] {
			ds.AddFile(p, ch, p)
		}
	}
	for idx, name := range names {
		ds.AddChannel(idx)
		ds.SetChannelName(idx, name)
	}
	return ds
}

func TestValidateKeepsSupersets(t *testing.T) {
	ds := newNamedDataset(
		map[int]string{1: "BF", 2: "DAPI", 3: "CD45"},
		map[string][]int{"a": {1, 2}, "b": {1, 2, 3, 4}, "c": {1, 2, 3}},
		[]string{"a", "b", "c"},
	)
	summary := diagnostics.NewSummary()

	removed, err := Validate(ds, summary)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "a", removed[0].Particle)
	assert.Equal(t, []int{1, 2}, removed[0].Channels)
	assert.Equal(t, []int{3}, removed[0].Missing)

	assert.Equal(t, []string{"b", "c"}, ds.Particles())
	dropped := summary.Dropped()
	require.Len(t, dropped, 1)
	assert.Equal(t, []int{1, 2}, dropped[0].Channels)
}

func TestValidateIgnoresUnnamedChannels(t *testing.T) {
	ds := newNamedDataset(
		map[int]string{1: "BF"},
		map[string][]int{"a": {1}, "b": {1, 2}},
		[]string{"a", "b"},
	)
	ds.AddChannel(2)

	removed, err := Validate(ds, nil)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, []string{"a", "b"}, ds.Particles())
}

func TestValidateEmptyDatasets(t *testing.T) {
	unnamed := newNamedDataset(nil, map[string][]int{"a": {1, 2}}, []string{"a"})
	_, err := Validate(unnamed, nil)
	var empty *EmptyDatasetError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, 0, empty.ValidChannels)

	allIncomplete := newNamedDataset(
		map[int]string{1: "BF", 2: "DAPI"},
		map[string][]int{"a": {1}, "b": {2}},
		[]string{"a", "b"},
	)
	removed, err := Validate(allIncomplete, nil)
	assert.Len(t, removed, 2)
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, 2, empty.ValidChannels)
	assert.Empty(t, allIncomplete.Particles())
}
