// Package canvas assembles the per-particle, per-channel pages of a dataset
// into one uniformly sized 4-D stack.
package canvas

import (
	"fmt"

	"imagestreamstack/internal/models"
)

// AxisOrder is the hyperstack layout of a Stack: particles as time points,
// then channels, then rows and columns of each plane.
const AxisOrder = "TCYX"

// AxisDescription spells out AxisOrder
const AxisDescription = "particle,channel,row,column"

// Stack is a 4-D array indexed (particle, channel, x, y). Every plane is
// stored row-major in one contiguous buffer, planes ordered particle-major.
type Stack struct {
	// Particles is the number of particles (time points)
	Particles int

	// Channels is the number of channels per particle
	Channels int

	// Width and Height are the canvas dimensions shared by all planes
	Width  int
	Height int

	// Type is the sample element type
	Type models.PixelType

	// Data holds Particles*Channels*Width*Height samples
	Data []uint16
}

// NewStack allocates a zeroed stack
func NewStack(particles, channels, width, height int, typ models.PixelType) *Stack {
	return &Stack{
		Particles: particles,
		Channels:  channels,
		Width:     width,
		Height:    height,
		Type:      typ,
		Data:      make([]uint16, particles*channels*width*height),
	}
}

// Shape returns (particles, channels, width, height)
func (s *Stack) Shape() [4]int {
	return [4]int{s.Particles, s.Channels, s.Width, s.Height}
}

// PlaneCount returns the number of 2-D planes in the stack
func (s *Stack) PlaneCount() int {
	return s.Particles * s.Channels
}

func (s *Stack) planeOffset(particle, channel int) int {
	return (particle*s.Channels + channel) * s.Width * s.Height
}

// Plane returns the samples of one plane, row-major. The slice aliases the stack.
func (s *Stack) Plane(particle, channel int) []uint16 {
	off := s.planeOffset(particle, channel)
	return s.Data[off : off+s.Width*s.Height]
}

// PlaneAt returns the plane with the given flat index in TCYX page order
func (s *Stack) PlaneAt(index int) []uint16 {
	return s.Plane(index/s.Channels, index%s.Channels)
}

// At returns the sample at (particle, channel, x, y)
func (s *Stack) At(particle, channel, x, y int) uint16 {
	return s.Data[s.planeOffset(particle, channel)+y*s.Width+x]
}

// Set stores the sample at (particle, channel, x, y)
func (s *Stack) Set(particle, channel, x, y int, v uint16) {
	s.Data[s.planeOffset(particle, channel)+y*s.Width+x] = v
}

// ChannelMax returns the largest sample of a channel over all particles
func (s *Stack) ChannelMax(channel int) uint16 {
	var peak uint16
	for p := 0; p < s.Particles; p++ {
		for _, v := range s.Plane(p, channel) {
			if v > peak {
				peak = v
			}
		}
	}
	return peak
}

// Validate checks the buffer size against the shape
func (s *Stack) Validate() error {
	if s.Particles <= 0 || s.Channels <= 0 || s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid stack shape %v", s.Shape())
	}
	if len(s.Data) != s.Particles*s.Channels*s.Width*s.Height {
		return fmt.Errorf("stack has %d samples, shape %v needs %d", len(s.Data), s.Shape(), s.Particles*s.Channels*s.Width*s.Height)
	}
	return nil
}
