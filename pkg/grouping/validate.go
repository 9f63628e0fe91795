package grouping

import (
	"fmt"

	"imagestreamstack/internal/models"
	"imagestreamstack/pkg/diagnostics"
)

// IncompleteParticleError describes a particle that lacks at least one named
// channel. The particle is dropped as a whole.
type IncompleteParticleError struct {
	Dataset  string
	Particle string
	Channels []int
	Missing  []int
}

func (e *IncompleteParticleError) Error() string {
	return fmt.Sprintf("dataset %s: particle %s only has %v, missing %v", e.Dataset, e.Particle, e.Channels, e.Missing)
}

// EmptyDatasetError reports a dataset that has nothing to write after validation
type EmptyDatasetError struct {
	Dataset       string
	ValidChannels int
	Particles     int
}

func (e *EmptyDatasetError) Error() string {
	if e.ValidChannels == 0 {
		return fmt.Sprintf("dataset %s has no named channels", e.Dataset)
	}
	return fmt.Sprintf("dataset %s has no particles with all %d named channels", e.Dataset, e.ValidChannels)
}

// Validate removes every particle whose channel set is not a superset of the
// dataset's named channels. It returns the removed particles; a dataset left
// without named channels or particles yields an *EmptyDatasetError.
func Validate(ds *models.Dataset, reporter diagnostics.Reporter) ([]*IncompleteParticleError, error) {
	if reporter == nil {
		reporter = diagnostics.Nop{}
	}
	valid := ds.ValidIndices()
	if len(valid) == 0 {
		return nil, &EmptyDatasetError{Dataset: ds.ID, Particles: len(ds.GroupedFiles)}
	}

	var removed []*IncompleteParticleError
	for _, particle := range ds.Particles() {
		have := ds.GroupedFiles[particle]
		missing := missingChannels(have, valid)
		if len(missing) == 0 {
			continue
		}
		incomplete := &IncompleteParticleError{
			Dataset:  ds.ID,
			Particle: particle,
			Channels: append([]int(nil), have...),
			Missing:  missing,
		}
		removed = append(removed, incomplete)
		reporter.ParticleDropped(ds.ID, particle, incomplete.Channels)
		ds.RemoveParticle(particle)
	}

	retained := len(ds.GroupedFiles)
	reporter.ValidationFinished(ds.ID, len(removed), retained)
	if retained == 0 {
		return removed, &EmptyDatasetError{Dataset: ds.ID, ValidChannels: len(valid)}
	}
	return removed, nil
}

// missingChannels returns the entries of want absent from have; both are sorted
func missingChannels(have, want []int) []int {
	var missing []int
	i := 0
	for _, w := range want {
		for i < len(have) && have[i] < w {
			i++
		}
		if i >= len(have) || have[i] != w {
			missing = append(missing, w)
		}
	}
	return missing
}
