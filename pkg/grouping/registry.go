package grouping

import (
	"fmt"
	"strings"

	"imagestreamstack/internal/models"
	"imagestreamstack/pkg/diagnostics"
)

// Registry holds the datasets discovered in one archive, in the order their
// folders first appear in the archive index.
type Registry struct {
	datasets map[string]*models.Dataset
	order    []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{datasets: make(map[string]*models.Dataset)}
}

// Dataset returns the dataset for a folder, or nil
func (r *Registry) Dataset(id string) *models.Dataset {
	return r.datasets[id]
}

// Datasets returns all datasets in discovery order
func (r *Registry) Datasets() []*models.Dataset {
	out := make([]*models.Dataset, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.datasets[id])
	}
	return out
}

// IDs returns the dataset ids in discovery order
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of datasets
func (r *Registry) Len() int {
	return len(r.order)
}

func (r *Registry) dataset(id string) *models.Dataset {
	ds, ok := r.datasets[id]
	if !ok {
		ds = models.NewDataset(id)
		r.datasets[id] = ds
		r.order = append(r.order, id)
	}
	return ds
}

// Add registers one archive entry path "<dataset>/<name>". Directory entries
// and files without the suffix are ignored and return nil; anything else that
// cannot be parsed returns a *ParseError.
func (r *Registry) Add(entry, suffix string) error {
	if strings.HasSuffix(entry, "/") {
		return nil
	}
	folder, name, ok := strings.Cut(entry, "/")
	if !ok || folder == "" {
		if HasSuffix(entry, suffix) {
			return &ParseError{Entry: entry, Reason: "not inside a dataset folder"}
		}
		return nil
	}
	if !HasSuffix(name, suffix) {
		return nil
	}
	if folder == "." || folder == ".." {
		return &ParseError{Entry: entry, Reason: "dataset folder must be a plain name"}
	}
	if strings.Contains(name, "/") {
		return &ParseError{Entry: entry, Reason: "nested folders are not supported"}
	}

	particle, channel, err := ParseEntryName(name, suffix)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Entry = entry
		}
		return err
	}
	r.dataset(folder).AddFile(particle, channel, entry)
	return nil
}

// Scan builds a registry from the full archive index. Unparsable entries are
// reported and skipped; the scan itself never fails on them. Files without the
// suffix are reported as ignored.
func Scan(entries []string, suffix string, reporter diagnostics.Reporter) (*Registry, error) {
	if NormalizeSuffix(suffix) == "" {
		return nil, fmt.Errorf("empty entry suffix")
	}
	if reporter == nil {
		reporter = diagnostics.Nop{}
	}
	reg := NewRegistry()
	for _, entry := range entries {
		if !strings.HasSuffix(entry, "/") && !HasSuffix(entry, suffix) {
			reporter.EntryIgnored(entry)
			continue
		}
		if err := reg.Add(entry, suffix); err != nil {
			reporter.EntrySkipped(entry, err)
		}
	}
	return reg, nil
}
