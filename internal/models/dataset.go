package models

import (
	"fmt"
	"sort"
)

// Channel represents one acquisition channel of an ImageStream dataset
type Channel struct {
	// Index is the 1-based channel number as it appears in the filenames
	Index int

	// Name is the display name of the channel. An empty name marks a channel
	// that is present in the archive but excluded from the output.
	Name string
}

// UnnamedPlaceholder is how an unnamed channel is displayed and written to
// channel documents
const UnnamedPlaceholder = "--"

// NormalizeName maps the display placeholder for unnamed channels to the
// empty name
func NormalizeName(name string) string {
	if name == UnnamedPlaceholder {
		return ""
	}
	return name
}

// Valid reports whether the channel has a name and therefore ends up in the output
func (c Channel) Valid() bool {
	return c.Name != ""
}

func (c Channel) String() string {
	if c.Name == "" {
		return UnnamedPlaceholder
	}
	return c.Name
}

// EntryKey identifies one source image inside a dataset
type EntryKey struct {
	Particle string
	Channel  int
}

// Size holds the width and height of a canvas in pixels
type Size struct {
	Width  int
	Height int
}

// Dataset collects everything known about one archive folder: its channels,
// the channels recorded for every particle and the statistics needed to
// assemble the output stack.
type Dataset struct {
	// ID is the name of the archive folder and of the output file
	ID string

	// Channels is the channel set, sorted by index with unique indices
	Channels []Channel

	// GroupedFiles maps every particle to the sorted channel indices seen for it
	GroupedFiles map[string][]int

	// Entries maps a (particle, channel) pair to its archive entry path
	Entries map[EntryKey]string

	// Medians holds one background level per valid channel, in index order
	Medians []float64

	// CanvasSize is the running maximum width and height over all decoded images
	CanvasSize Size

	// PixelType is fixed by the first decoded image of the dataset
	PixelType PixelType

	// PixelSizeMicrons is the physical pixel size used for resolution metadata
	PixelSizeMicrons float64

	// particles keeps the order in which particles were first seen
	particles []string
}

// NewDataset creates an empty dataset for the given archive folder
func NewDataset(id string) *Dataset {
	return &Dataset{
		ID:           id,
		GroupedFiles: make(map[string][]int),
		Entries:      make(map[EntryKey]string),
	}
}

func (d *Dataset) String() string {
	return d.ID
}

// AddChannel registers a channel index with an empty name. It returns false
// if the index was already known.
func (d *Dataset) AddChannel(index int) bool {
	i := sort.Search(len(d.Channels), func(i int) bool { return d.Channels[i].Index >= index })
	if i < len(d.Channels) && d.Channels[i].Index == index {
		return false
	}
	d.Channels = append(d.Channels, Channel{})
	copy(d.Channels[i+1:], d.Channels[i:])
	d.Channels[i] = Channel{Index: index}
	return true
}

// SetChannelName assigns a name to a known channel. Unknown indices are ignored
// and reported through the return value.
func (d *Dataset) SetChannelName(index int, name string) bool {
	for i := range d.Channels {
		if d.Channels[i].Index == index {
			d.Channels[i].Name = NormalizeName(name)
			return true
		}
	}
	return false
}

// AddFile records that the given particle has an image for the given channel,
// stored under the archive entry path.
func (d *Dataset) AddFile(particle string, channel int, entry string) {
	d.AddChannel(channel)

	key := EntryKey{Particle: particle, Channel: channel}
	if _, ok := d.Entries[key]; ok {
		return
	}
	d.Entries[key] = entry

	indices, ok := d.GroupedFiles[particle]
	if !ok {
		d.particles = append(d.particles, particle)
	}
	i := sort.SearchInts(indices, channel)
	indices = append(indices, 0)
	copy(indices[i+1:], indices[i:])
	indices[i] = channel
	d.GroupedFiles[particle] = indices
}

// RemoveParticle drops a particle and all of its entries
func (d *Dataset) RemoveParticle(particle string) {
	indices, ok := d.GroupedFiles[particle]
	if !ok {
		return
	}
	for _, ch := range indices {
		delete(d.Entries, EntryKey{Particle: particle, Channel: ch})
	}
	delete(d.GroupedFiles, particle)
	for i, p := range d.particles {
		if p == particle {
			d.particles = append(d.particles[:i], d.particles[i+1:]...)
			break
		}
	}
}

// Particles returns the particle ids in the order they were first seen
func (d *Dataset) Particles() []string {
	out := make([]string, len(d.particles))
	copy(out, d.particles)
	return out
}

// ValidChannels returns the named channels in index order
func (d *Dataset) ValidChannels() []Channel {
	var valid []Channel
	for _, c := range d.Channels {
		if c.Valid() {
			valid = append(valid, c)
		}
	}
	return valid
}

// ValidIndices returns the indices of the named channels in increasing order
func (d *Dataset) ValidIndices() []int {
	var indices []int
	for _, c := range d.Channels {
		if c.Valid() {
			indices = append(indices, c.Index)
		}
	}
	return indices
}

// Entry returns the archive entry path for a particle and channel
func (d *Dataset) Entry(particle string, channel int) (string, error) {
	entry, ok := d.Entries[EntryKey{Particle: particle, Channel: channel}]
	if !ok {
		return "", fmt.Errorf("dataset %s has no entry for particle %s channel %d", d.ID, particle, channel)
	}
	return entry, nil
}
