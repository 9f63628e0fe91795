// Package archive gives read access to the zip archives exported by the
// ImageStream software. Archives can live on local disk or in Google Cloud
// Storage (gs://bucket/object).
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"cloud.google.com/go/storage"
)

// EntryError reports an archive entry that is missing or cannot be read.
// It aborts the dataset that needed the entry, never the whole run.
type EntryError struct {
	Entry string
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("archive entry %s: %v", e.Entry, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// Reader lists entries by path and opens a decode stream per entry.
// Open is safe for concurrent use.
type Reader interface {
	Entries() []string
	Open(name string) (io.ReadCloser, error)
	Close() error
}

// ReaderAtCloser is the random access handle a zip archive is read through
type ReaderAtCloser interface {
	io.ReaderAt
	io.Closer
}

// ZipArchive is a Reader backed by a zip file
type ZipArchive struct {
	path   string
	src    ReaderAtCloser
	zr     *zip.Reader
	byName map[string]*zip.File
}

// Open opens a zip archive from local disk or, for gs:// paths, from Google
// Cloud Storage. The client is only needed for gs:// paths and may be nil otherwise.
func Open(ctx context.Context, path string, client *storage.Client) (*ZipArchive, error) {
	src, size, err := openSource(ctx, path, client)
	if err != nil {
		return nil, err
	}
	a, err := NewZipArchive(src, size)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to read zip %s: %w", path, err)
	}
	a.path = path
	return a, nil
}

// NewZipArchive reads the central directory of a zip archive of the given size
func NewZipArchive(src ReaderAtCloser, size int64) (*ZipArchive, error) {
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		byName[f.Name] = f
	}
	return &ZipArchive{src: src, zr: zr, byName: byName}, nil
}

func openSource(ctx context.Context, path string, client *storage.Client) (ReaderAtCloser, int64, error) {
	if IsRemote(path) {
		if client == nil {
			return nil, 0, fmt.Errorf("%s: no storage client configured", path)
		}
		return openGoogleStorage(ctx, path, client)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// Path returns the location the archive was opened from
func (a *ZipArchive) Path() string {
	return a.path
}

// Entries returns every entry path in archive index order, directories included
func (a *ZipArchive) Entries() []string {
	names := make([]string, 0, len(a.zr.File))
	for _, f := range a.zr.File {
		names = append(names, f.Name)
	}
	return names
}

// Open returns a stream for the named entry. Missing or unreadable entries
// are reported as *EntryError.
func (a *ZipArchive) Open(name string) (io.ReadCloser, error) {
	f, ok := a.byName[name]
	if !ok {
		return nil, &EntryError{Entry: name, Err: fs.ErrNotExist}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &EntryError{Entry: name, Err: err}
	}
	return rc, nil
}

// Close releases the underlying file or storage handle
func (a *ZipArchive) Close() error {
	if a.src == nil {
		return nil
	}
	err := a.src.Close()
	a.src = nil
	return err
}

// IsRemote reports whether the path points into Google Cloud Storage
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "gs://")
}

// IsNotExist reports whether err is an EntryError for a missing entry
func IsNotExist(err error) bool {
	var entryErr *EntryError
	return errors.As(err, &entryErr) && errors.Is(entryErr.Err, fs.ErrNotExist)
}
