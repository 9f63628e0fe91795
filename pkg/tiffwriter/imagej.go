package tiffwriter

import (
	"bytes"
	"encoding/binary"
	"math"
	"unicode/utf16"

	"imagestreamstack/pkg/metadata"
)

// ImageJ metadata block types, as stored in the IJMetadata tag
var (
	ijMagic      = []byte("IJIJ")
	ijLabels     = []byte("labl")
	ijRanges     = []byte("rang")
	ijProperties = []byte("prop")
)

// ImageJMetadata encodes labels, ranges and properties as the ImageJ
// IJMetadata byte block and its IJMetadataByteCounts. The first count covers
// the header ("IJIJ" followed by a type and count per block); every further
// count covers one encoded item. Nothing is returned when there is nothing to store.
func ImageJMetadata(md *metadata.Metadata) ([]uint32, []byte) {
	type block struct {
		typ   []byte
		items [][]byte
	}
	var blocks []block

	if len(md.Labels) > 0 {
		items := make([][]byte, len(md.Labels))
		for i, label := range md.Labels {
			items[i] = utf16BE(label)
		}
		blocks = append(blocks, block{typ: ijLabels, items: items})
	}
	if len(md.Ranges) > 0 {
		blocks = append(blocks, block{typ: ijRanges, items: [][]byte{doublesBE(md.FlatRanges())}})
	}
	if len(md.Properties) > 0 {
		items := make([][]byte, 0, 2*len(md.Properties))
		for _, p := range md.Properties {
			items = append(items, utf16BE(p.Key), utf16BE(p.Value))
		}
		blocks = append(blocks, block{typ: ijProperties, items: items})
	}
	if len(blocks) == 0 {
		return nil, nil
	}

	var header, body bytes.Buffer
	header.Write(ijMagic)
	counts := []uint32{0}
	for _, b := range blocks {
		header.Write(b.typ)
		binary.Write(&header, order, uint32(len(b.items)))
		for _, item := range b.items {
			body.Write(item)
			counts = append(counts, uint32(len(item)))
		}
	}
	counts[0] = uint32(header.Len())
	return counts, append(header.Bytes(), body.Bytes()...)
}

func utf16BE(s string) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(units))
	for i, u := range units {
		order.PutUint16(b[2*i:], u)
	}
	return b
}

func doublesBE(values []float64) []byte {
	b := make([]byte, 8*len(values))
	for i, v := range values {
		order.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return b
}
