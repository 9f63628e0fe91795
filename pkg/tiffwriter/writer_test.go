package tiffwriter

import (
	"bytes"
	"encoding/binary"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"imagestreamstack/internal/models"
	"imagestreamstack/pkg/canvas"
	"imagestreamstack/pkg/metadata"
)

type rawField struct {
	typ   uint16
	count uint32
	value []byte
}

var typeSizes = map[uint16]int{typeByte: 1, typeASCII: 1, typeShort: 2, typeLong: 4, typeRational: 8}

// readIFDs walks the IFD chain of a big-endian TIFF
func readIFDs(t *testing.T, data []byte) []map[uint16]rawField {
	t.Helper()
	require.Equal(t, "MM", string(data[:2]))
	require.Equal(t, uint16(42), order.Uint16(data[2:]))

	var pages []map[uint16]rawField
	off := order.Uint32(data[4:])
	for off != 0 {
		n := int(order.Uint16(data[off:]))
		fields := make(map[uint16]rawField, n)
		for i := 0; i < n; i++ {
			e := data[int(off)+2+12*i:]
			f := rawField{typ: order.Uint16(e[2:]), count: order.Uint32(e[4:])}
			size := typeSizes[f.typ] * int(f.count)
			if size <= 4 {
				f.value = e[8 : 8+size]
			} else {
				at := order.Uint32(e[8:])
				f.value = data[at : int(at)+size]
			}
			fields[order.Uint16(e)] = f
		}
		pages = append(pages, fields)
		off = order.Uint32(data[int(off)+2+12*n:])
	}
	return pages
}

func (f rawField) uint() uint32 {
	if f.typ == typeShort {
		return uint32(order.Uint16(f.value))
	}
	return order.Uint32(f.value)
}

func (f rawField) longs() []uint32 {
	out := make([]uint32, f.count)
	for i := range out {
		out[i] = order.Uint32(f.value[4*i:])
	}
	return out
}

func decodeUTF16(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = order.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units))
}

func testStack(typ models.PixelType) *canvas.Stack {
	stack := canvas.NewStack(2, 2, 3, 2, typ)
	for i := range stack.Data {
		stack.Data[i] = uint16(i * 7)
	}
	return stack
}

func testMetadata() *metadata.Metadata {
	return &metadata.Metadata{
		Axes:             canvas.AxisOrder,
		Labels:           []string{"BF", "DAPI", "BF", "DAPI"},
		Ranges:           []metadata.Range{{Min: 12.5, Max: 35}, {Min: 4, Max: 161}},
		Properties:       []metadata.Property{{Key: metadata.MediansProperty, Value: "\n12,4"}},
		PixelSizeMicrons: 0.5,
	}
}

func TestWriteStackRoundTrip(t *testing.T) {
	stack := testStack(models.PixelUint16)
	md := testMetadata()
	path := filepath.Join(t.TempDir(), "out", "D1.tif")

	require.NoError(t, Writer{}.WriteStack(path, stack, md))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// First page decodes as a plain 16-bit grayscale image
	img, err := tiff.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	gray, ok := img.(*image.Gray16)
	require.True(t, ok, "got %T", img)
	assert.Equal(t, image.Rect(0, 0, 3, 2), gray.Bounds())
	assert.Equal(t, stack.At(0, 0, 2, 1), gray.Gray16At(2, 1).Y)

	pages := readIFDs(t, data)
	require.Len(t, pages, stack.PlaneCount())
	for i, page := range pages {
		assert.Equal(t, uint32(3), page[tagImageWidth].uint())
		assert.Equal(t, uint32(2), page[tagImageLength].uint())
		assert.Equal(t, uint32(16), page[tagBitsPerSample].uint())

		at := page[tagStripOffsets].uint()
		n := page[tagStripByteCounts].uint()
		require.Equal(t, uint32(12), n)
		plane := stack.PlaneAt(i)
		for k, v := range plane {
			assert.Equal(t, v, binary.BigEndian.Uint16(data[at+uint32(2*k):]), "page %d sample %d", i, k)
		}

		xres := page[tagXResolution].longs()
		assert.Equal(t, []uint32{2, 1}, xres)
	}

	first := pages[0]
	desc := first[tagImageDescription]
	assert.Equal(t, Description(stack, 0.5)+"\x00", string(desc.value))
	assert.Contains(t, string(desc.value), "channels=2\nframes=2\n")
	_, ok = pages[1][tagImageDescription]
	assert.False(t, ok)

	counts := first[tagIJMetadataCounts].longs()
	blob := first[tagIJMetadata].value
	require.Len(t, counts, 1+4+1+2)
	assert.Equal(t, uint32(4+3*8), counts[0])
	assert.Equal(t, "IJIJlabl", string(blob[:8]))
	assert.Equal(t, uint32(4), order.Uint32(blob[8:]))
	assert.Equal(t, "rang", string(blob[12:16]))
	assert.Equal(t, uint32(1), order.Uint32(blob[16:]))
	assert.Equal(t, "prop", string(blob[20:24]))
	assert.Equal(t, uint32(2), order.Uint32(blob[24:]))

	var items [][]byte
	pos := counts[0]
	for _, c := range counts[1:] {
		items = append(items, blob[pos:pos+c])
		pos += c
	}
	assert.Equal(t, int(pos), len(blob))
	for i, label := range md.Labels {
		assert.Equal(t, label, decodeUTF16(items[i]))
	}
	ranges := items[4]
	require.Len(t, ranges, 8*4)
	var got []float64
	for i := 0; i < 4; i++ {
		got = append(got, math.Float64frombits(order.Uint64(ranges[8*i:])))
	}
	assert.Equal(t, []float64{12.5, 35, 4, 161}, got)
	assert.Equal(t, "Medians", decodeUTF16(items[5]))
	assert.Equal(t, "\n12,4", decodeUTF16(items[6]))
}

func TestWriteStack8Bit(t *testing.T) {
	stack := canvas.NewStack(1, 1, 3, 3, models.PixelUint8)
	stack.Set(0, 0, 1, 1, 255)
	md := testMetadata()
	md.Labels = []string{"BF"}
	md.Ranges = md.Ranges[:1]

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, stack, md))

	img, err := tiff.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	gray, ok := img.(*image.Gray)
	require.True(t, ok, "got %T", img)
	assert.Equal(t, uint8(255), gray.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(0), gray.GrayAt(0, 0).Y)

	pages := readIFDs(t, buf.Bytes())
	require.Len(t, pages, 1)
	assert.Equal(t, uint32(8), pages[0][tagBitsPerSample].uint())
	assert.Equal(t, uint32(9), pages[0][tagStripByteCounts].uint())
}

func TestWriteStackIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	stack := testStack(models.PixelUint16)
	a := filepath.Join(dir, "a.tif")
	b := filepath.Join(dir, "b.tif")
	require.NoError(t, Writer{}.WriteStack(a, stack, testMetadata()))
	require.NoError(t, Writer{}.WriteStack(b, stack, testMetadata()))

	first, err := os.ReadFile(a)
	require.NoError(t, err)
	second, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestEncodeRejectsBadInput(t *testing.T) {
	stack := testStack(models.PixelUint16)

	md := testMetadata()
	md.Axes = "CTYX"
	assert.ErrorIs(t, Encode(&bytes.Buffer{}, stack, md), ErrUnsupportedAxes)

	md = testMetadata()
	md.PixelSizeMicrons = 0
	assert.ErrorIs(t, Encode(&bytes.Buffer{}, stack, md), ErrInvalidPixelSize)

	md = testMetadata()
	md.Labels = md.Labels[:3]
	assert.Error(t, Encode(&bytes.Buffer{}, stack, md))
}

func TestWriteStackFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	md := testMetadata()
	md.PixelSizeMicrons = -1
	path := filepath.Join(dir, "D1.tif")

	assert.Error(t, Writer{}.WriteStack(path, testStack(models.PixelUint16), md))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRational(t *testing.T) {
	tests := []struct {
		in       float64
		num, den uint32
	}{
		{2, 2, 1},
		{1, 1, 1},
		{0.25, 1, 4},
		{1 / 0.33, 3030303, 1000000},
		{1e6, 1000000, 1},
	}
	for _, tt := range tests {
		num, den := rational(tt.in)
		assert.Equal(t, tt.num, num, "numerator of %v", tt.in)
		assert.Equal(t, tt.den, den, "denominator of %v", tt.in)
	}
}
