// Package channels reads and writes channel-naming documents: small TOML
// files mapping channel indices to display names.
//
//	[channels]
//	1 = "BF"
//	2 = "DAPI"
//	3 = "--"
//
// The name "--" (or an empty string) leaves a channel unnamed, which excludes
// it from the output stack.
package channels

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"imagestreamstack/internal/models"
)

// Override maps channel indices to names
type Override map[int]string

type document struct {
	Channels map[string]string `toml:"channels"`
}

// Parse decodes a TOML channel document
func Parse(data []byte) (Override, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing channel document: %w", err)
	}
	out := make(Override, len(doc.Channels))
	for key, name := range doc.Channels {
		index, err := strconv.Atoi(key)
		if err != nil || index < 1 {
			return nil, fmt.Errorf("error parsing channel document: invalid channel index %q", key)
		}
		out[index] = models.NormalizeName(name)
	}
	return out, nil
}

// Load reads a TOML channel document from disk
func Load(path string) (Override, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading channel document: %w", err)
	}
	return Parse(data)
}

// Marshal encodes the override as a TOML channel document with unnamed
// channels written as "--"
func (o Override) Marshal() ([]byte, error) {
	doc := document{Channels: make(map[string]string, len(o))}
	for index, name := range o {
		if name == "" {
			name = models.UnnamedPlaceholder
		}
		doc.Channels[strconv.Itoa(index)] = name
	}
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("error marshaling channel document: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the override to disk, creating parent directories
func (o Override) Save(path string) error {
	data, err := o.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating channel document directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing channel document: %w", err)
	}
	return nil
}

// Indices returns the channel indices of the override in increasing order
func (o Override) Indices() []int {
	indices := make([]int, 0, len(o))
	for index := range o {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}

// Merge returns a copy of o with the entries of other layered on top
func (o Override) Merge(other Override) Override {
	out := make(Override, len(o)+len(other))
	for index, name := range o {
		out[index] = name
	}
	for index, name := range other {
		out[index] = name
	}
	return out
}

// Apply names the dataset's channels. Indices missing from the dataset are
// ignored; dataset channels missing from the override keep their name.
// It returns the number of channels that were renamed.
func (o Override) Apply(ds *models.Dataset) int {
	applied := 0
	for _, index := range o.Indices() {
		if ds.SetChannelName(index, o[index]) {
			applied++
		}
	}
	return applied
}

// FromNames builds an override from inline names, reading "--" as unnamed
func FromNames(names map[int]string) Override {
	out := make(Override, len(names))
	for index, name := range names {
		out[index] = models.NormalizeName(name)
	}
	return out
}

// FromDataset captures the current channel names of a dataset
func FromDataset(ds *models.Dataset) Override {
	out := make(Override, len(ds.Channels))
	for _, ch := range ds.Channels {
		out[ch.Index] = ch.Name
	}
	return out
}

// DefaultNames names every channel of the dataset "Ch<N>"
func DefaultNames(ds *models.Dataset) Override {
	out := make(Override, len(ds.Channels))
	for _, ch := range ds.Channels {
		out[ch.Index] = fmt.Sprintf("Ch%d", ch.Index)
	}
	return out
}
