// Package tiffwriter writes assembled stacks as ImageJ hyperstack TIFF files:
// one uncompressed page per (particle, channel) plane, big-endian, with the
// ImageJ description and the ImageJ metadata tags carrying labels, display
// ranges and properties.
package tiffwriter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"imagestreamstack/pkg/canvas"
	"imagestreamstack/pkg/metadata"
)

var (
	// ErrUnsupportedAxes is returned for an axis order other than canvas.AxisOrder
	ErrUnsupportedAxes = errors.New("unsupported axis order")

	// ErrInvalidPixelSize is returned for a pixel size that is not positive
	ErrInvalidPixelSize = errors.New("pixel size must be positive")

	// ErrTooLarge is returned when the stack does not fit a classic TIFF
	ErrTooLarge = errors.New("stack exceeds 4 GiB TIFF limit")
)

// ImageJVersion is the version string written into the ImageJ description
const ImageJVersion = "1.11a"

// TIFF tags used by the writer
const (
	tagNewSubfileType   = 254
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagImageDescription = 270
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagXResolution      = 282
	tagYResolution      = 283
	tagResolutionUnit   = 296
	tagSampleFormat     = 339
	tagIJMetadataCounts = 50838
	tagIJMetadata       = 50839
)

// TIFF field types
const (
	typeByte     = 1
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
)

var order = binary.BigEndian

// Writer writes stacks to ImageJ hyperstack TIFF files
type Writer struct{}

// WriteStack writes the stack to path. The file is assembled next to the
// target and renamed into place, so a failed write leaves no partial output.
func (Writer) WriteStack(path string, stack *canvas.Stack, md *metadata.Metadata) error {
	var buf bytes.Buffer
	if err := Encode(&buf, stack, md); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// field is one IFD entry with its value already encoded big-endian
type field struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// Encode writes the stack as a multi-page TIFF to w
func Encode(w io.Writer, stack *canvas.Stack, md *metadata.Metadata) error {
	if err := stack.Validate(); err != nil {
		return err
	}
	if md.Axes != canvas.AxisOrder {
		return fmt.Errorf("%w: %q", ErrUnsupportedAxes, md.Axes)
	}
	if !(md.PixelSizeMicrons > 0) || math.IsInf(md.PixelSizeMicrons, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidPixelSize, md.PixelSizeMicrons)
	}
	bps := stack.Type.BitsPerSample()
	if bps == 0 {
		return fmt.Errorf("cannot write samples of type %s", stack.Type)
	}
	if len(md.Labels) != 0 && len(md.Labels) != stack.PlaneCount() {
		return fmt.Errorf("%d labels for %d planes", len(md.Labels), stack.PlaneCount())
	}
	if len(md.Ranges) != 0 && len(md.Ranges) != stack.Channels {
		return fmt.Errorf("%d ranges for %d channels", len(md.Ranges), stack.Channels)
	}

	pageBytes := stack.Width * stack.Height * bps / 8
	description := Description(stack, md.PixelSizeMicrons)
	ijCounts, ijData := ImageJMetadata(md)
	xNum, xDen := rational(1 / md.PixelSizeMicrons)

	var out bytes.Buffer
	out.WriteString("MM")
	binary.Write(&out, order, uint16(42))
	binary.Write(&out, order, uint32(8))

	pos := int64(8)
	pages := stack.PlaneCount()
	for page := 0; page < pages; page++ {
		fields := []field{
			longField(tagNewSubfileType, 0),
			longField(tagImageWidth, uint32(stack.Width)),
			longField(tagImageLength, uint32(stack.Height)),
			shortField(tagBitsPerSample, uint16(bps)),
			shortField(tagCompression, 1),
			shortField(tagPhotometric, 1),
			longField(tagStripOffsets, 0),
			shortField(tagSamplesPerPixel, 1),
			longField(tagRowsPerStrip, uint32(stack.Height)),
			longField(tagStripByteCounts, uint32(pageBytes)),
			rationalField(tagXResolution, xNum, xDen),
			rationalField(tagYResolution, xNum, xDen),
			shortField(tagResolutionUnit, 1),
			shortField(tagSampleFormat, 1),
		}
		if page == 0 {
			fields = append(fields, asciiField(tagImageDescription, description))
			if len(ijCounts) > 0 {
				fields = append(fields, longField(tagIJMetadataCounts, ijCounts...))
				fields = append(fields, field{tag: tagIJMetadata, typ: typeByte, count: uint32(len(ijData)), data: ijData})
			}
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].tag < fields[j].tag })

		ifdLen := int64(2 + 12*len(fields) + 4)
		var extraLen int64
		for _, f := range fields {
			if len(f.data) > 4 {
				extraLen += padded(len(f.data))
			}
		}
		pixelOff := pos + ifdLen + extraLen
		next := pixelOff + padded(pageBytes)
		if next > math.MaxUint32 {
			return ErrTooLarge
		}
		for i := range fields {
			if fields[i].tag == tagStripOffsets {
				fields[i].data = longBytes(uint32(pixelOff))
			}
		}
		nextIFD := uint32(next)
		if page == pages-1 {
			nextIFD = 0
		}

		writeIFD(&out, fields, pos+ifdLen, nextIFD)
		writePixels(&out, stack.PlaneAt(page), bps)
		if pageBytes%2 == 1 {
			out.WriteByte(0)
		}
		pos = next
	}

	_, err := w.Write(out.Bytes())
	return err
}

// writeIFD writes the entry table followed by the out-of-line values, which
// start at extraOff
func writeIFD(out *bytes.Buffer, fields []field, extraOff int64, next uint32) {
	binary.Write(out, order, uint16(len(fields)))
	var extra bytes.Buffer
	for _, f := range fields {
		binary.Write(out, order, f.tag)
		binary.Write(out, order, f.typ)
		binary.Write(out, order, f.count)
		if len(f.data) <= 4 {
			var inline [4]byte
			copy(inline[:], f.data)
			out.Write(inline[:])
			continue
		}
		binary.Write(out, order, uint32(extraOff+int64(extra.Len())))
		extra.Write(f.data)
		if len(f.data)%2 == 1 {
			extra.WriteByte(0)
		}
	}
	binary.Write(out, order, next)
	out.Write(extra.Bytes())
}

func writePixels(out *bytes.Buffer, plane []uint16, bps int) {
	if bps == 8 {
		row := make([]byte, len(plane))
		for i, v := range plane {
			row[i] = byte(v)
		}
		out.Write(row)
		return
	}
	row := make([]byte, 2*len(plane))
	for i, v := range plane {
		order.PutUint16(row[2*i:], v)
	}
	out.Write(row)
}

// Description returns the ImageJ hyperstack description of the first page
func Description(stack *canvas.Stack, pixelSize float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ImageJ=%s\n", ImageJVersion)
	fmt.Fprintf(&b, "images=%d\n", stack.PlaneCount())
	fmt.Fprintf(&b, "channels=%d\n", stack.Channels)
	fmt.Fprintf(&b, "frames=%d\n", stack.Particles)
	b.WriteString("hyperstack=true\n")
	b.WriteString("mode=grayscale\n")
	b.WriteString("unit=um\n")
	fmt.Fprintf(&b, "spacing=%s\n", strconv.FormatFloat(pixelSize, 'g', -1, 64))
	b.WriteString("loop=false\n")
	return b.String()
}

func padded(n int) int64 {
	return int64(n + n%2)
}

func shortBytes(values ...uint16) []byte {
	b := make([]byte, 2*len(values))
	for i, v := range values {
		order.PutUint16(b[2*i:], v)
	}
	return b
}

func longBytes(values ...uint32) []byte {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		order.PutUint32(b[4*i:], v)
	}
	return b
}

func shortField(tag uint16, values ...uint16) field {
	return field{tag: tag, typ: typeShort, count: uint32(len(values)), data: shortBytes(values...)}
}

func longField(tag uint16, values ...uint32) field {
	return field{tag: tag, typ: typeLong, count: uint32(len(values)), data: longBytes(values...)}
}

func rationalField(tag uint16, num, den uint32) field {
	return field{tag: tag, typ: typeRational, count: 1, data: longBytes(num, den)}
}

func asciiField(tag uint16, s string) field {
	data := append([]byte(s), 0)
	return field{tag: tag, typ: typeASCII, count: uint32(len(data)), data: data}
}

// rational approximates v as num/den with a denominator of at most 10^6
func rational(v float64) (uint32, uint32) {
	den := uint64(1000000)
	for den > 1 && v*float64(den) > math.MaxUint32 {
		den /= 10
	}
	num := uint64(math.Round(v * float64(den)))
	if num > math.MaxUint32 {
		num = math.MaxUint32
	}
	if num == 0 {
		return 0, 1
	}
	g := gcd(num, den)
	return uint32(num / g), uint32(den / g)
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
