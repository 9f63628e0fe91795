// Package testsupport builds TIFF pages and zip archives for package tests.
package testsupport

import (
	"archive/zip"
	"bytes"
	"hash/crc32"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"
)

// Entry is one file to place in a test archive
type Entry struct {
	Name string
	Data []byte

	// Method, when set, stores Data uncompressed under that method id. An id
	// with no registered decompressor makes the entry unreadable.
	Method uint16
}

// Gray16 creates a 16-bit grayscale image filled by pattern
func Gray16(width, height int, pattern func(x, y int) uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: pattern(x, y)})
		}
	}
	return img
}

// Gray8 creates an 8-bit grayscale image filled by pattern
func Gray8(width, height int, pattern func(x, y int) uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: pattern(x, y)})
		}
	}
	return img
}

// Constant returns a pattern with the same value everywhere
func Constant(v uint16) func(x, y int) uint16 {
	return func(x, y int) uint16 { return v }
}

// EncodeTIFF encodes an image as a single-page uncompressed TIFF
func EncodeTIFF(t testing.TB, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode tiff: %v", err)
	}
	return buf.Bytes()
}

// WriteArchive writes a zip archive holding the entries in the given order
// and returns its path. Names ending in "/" become directory entries.
func WriteArchive(t testing.TB, dir string, entries []Entry) string {
	t.Helper()

	path := filepath.Join(dir, "input.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		if e.Method != 0 {
			writeRaw(t, zw, e)
			continue
		}
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("zip create %s: %v", e.Name, err)
		}
		if len(e.Data) == 0 {
			continue
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("zip write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return path
}

func writeRaw(t testing.TB, zw *zip.Writer, e Entry) {
	t.Helper()
	w, err := zw.CreateRaw(&zip.FileHeader{
		Name:               e.Name,
		Method:             e.Method,
		CRC32:              crc32.ChecksumIEEE(e.Data),
		CompressedSize64:   uint64(len(e.Data)),
		UncompressedSize64: uint64(len(e.Data)),
	})
	if err != nil {
		t.Fatalf("zip create raw %s: %v", e.Name, err)
	}
	if _, err := w.Write(e.Data); err != nil {
		t.Fatalf("zip write %s: %v", e.Name, err)
	}
}
