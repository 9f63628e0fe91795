package models

import (
	"fmt"
	"math"
)

// PixelType is the element type of a decoded grayscale page
type PixelType int

const (
	// PixelUnknown means no image has been decoded yet
	PixelUnknown PixelType = iota
	PixelUint8
	PixelUint16
)

func (p PixelType) String() string {
	switch p {
	case PixelUint8:
		return "uint8"
	case PixelUint16:
		return "uint16"
	default:
		return "unknown"
	}
}

// BitsPerSample returns the storage size of one sample in bits
func (p PixelType) BitsPerSample() int {
	switch p {
	case PixelUint8:
		return 8
	case PixelUint16:
		return 16
	default:
		return 0
	}
}

// MaxValue returns the largest representable sample value
func (p PixelType) MaxValue() float64 {
	switch p {
	case PixelUint8:
		return math.MaxUint8
	case PixelUint16:
		return math.MaxUint16
	default:
		return 0
	}
}

// Convert stores a real value the way an integer array assignment does:
// truncation toward zero, clamped to the representable range.
func (p PixelType) Convert(v float64) uint16 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if limit := p.MaxValue(); v >= limit {
		return uint16(limit)
	}
	return uint16(math.Trunc(v))
}

// Plane is one decoded single-channel page, stored row-major
type Plane struct {
	Width  int
	Height int
	Type   PixelType
	Pix    []uint16
}

// NewPlane allocates a zeroed plane
func NewPlane(width, height int, typ PixelType) *Plane {
	return &Plane{
		Width:  width,
		Height: height,
		Type:   typ,
		Pix:    make([]uint16, width*height),
	}
}

// At returns the sample at column x and row y
func (p *Plane) At(x, y int) uint16 {
	return p.Pix[y*p.Width+x]
}

// Set stores the sample at column x and row y
func (p *Plane) Set(x, y int, v uint16) {
	p.Pix[y*p.Width+x] = v
}

// Validate checks that the sample buffer matches the declared dimensions
func (p *Plane) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("invalid plane dimensions %dx%d", p.Width, p.Height)
	}
	if len(p.Pix) != p.Width*p.Height {
		return fmt.Errorf("plane has %d samples, expected %d", len(p.Pix), p.Width*p.Height)
	}
	return nil
}
