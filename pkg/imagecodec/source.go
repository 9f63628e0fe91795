package imagecodec

import (
	"fmt"
	"io"
	"sync"

	"imagestreamstack/internal/models"
)

// Opener opens archive entries by path
type Opener interface {
	Open(name string) (io.ReadCloser, error)
}

// Source yields the decoded plane of one particle and channel of a dataset
type Source interface {
	Plane(particle string, channel int) (*models.Plane, error)
}

// ArchiveSource decodes planes from the archive entries recorded in a
// dataset. With caching enabled every plane is decoded once and kept until
// Release, which costs particles x channels x page area x 2 bytes.
type ArchiveSource struct {
	opener  Opener
	dataset *models.Dataset
	decoder Decoder

	cache   bool
	mu      sync.Mutex
	planes  map[models.EntryKey]*models.Plane
	decodes int
}

// NewArchiveSource creates a source for one dataset
func NewArchiveSource(opener Opener, ds *models.Dataset, decoder Decoder, cache bool) *ArchiveSource {
	if decoder == nil {
		decoder = TIFFDecoder{}
	}
	return &ArchiveSource{
		opener:  opener,
		dataset: ds,
		decoder: decoder,
		cache:   cache,
		planes:  make(map[models.EntryKey]*models.Plane),
	}
}

// Plane decodes, or returns the cached, plane for a particle and channel.
// Errors opening the entry are returned unchanged so callers can classify them.
func (s *ArchiveSource) Plane(particle string, channel int) (*models.Plane, error) {
	key := models.EntryKey{Particle: particle, Channel: channel}
	if s.cache {
		s.mu.Lock()
		plane, ok := s.planes[key]
		s.mu.Unlock()
		if ok {
			return plane, nil
		}
	}

	entry, err := s.dataset.Entry(particle, channel)
	if err != nil {
		return nil, err
	}
	rc, err := s.opener.Open(entry)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	plane, err := s.decoder.Decode(rc)
	if err != nil {
		if unsupported, ok := err.(*UnsupportedImageError); ok {
			unsupported.Entry = entry
			return nil, unsupported
		}
		return nil, fmt.Errorf("failed to decode %s: %w", entry, err)
	}

	s.mu.Lock()
	s.decodes++
	if s.cache {
		s.planes[key] = plane
	}
	s.mu.Unlock()
	return plane, nil
}

// Decodes returns how many pages have been decoded so far
func (s *ArchiveSource) Decodes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decodes
}

// Release drops all cached planes
func (s *ArchiveSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planes = make(map[models.EntryKey]*models.Plane)
}
