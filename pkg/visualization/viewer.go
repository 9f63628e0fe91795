package visualization

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"imagestreamstack/internal/models"
	"imagestreamstack/pkg/canvas"
)

// Viewer exports the planes of an assembled stack as individual images, one
// per (particle, channel), for quick inspection outside ImageJ.
type Viewer struct {
	// stack holds the assembled samples
	stack *canvas.Stack

	// labels has one entry per plane in TCYX order, may be empty
	labels []string
}

// NewViewer creates a viewer over an assembled stack
func NewViewer(stack *canvas.Stack, labels []string) *Viewer {
	return &Viewer{
		stack:  stack,
		labels: labels,
	}
}

// ExtractPlane returns one plane as an 8-bit or 16-bit grayscale image,
// matching the stack's pixel type
func (v *Viewer) ExtractPlane(particle, channel int) (image.Image, error) {
	if particle < 0 || particle >= v.stack.Particles {
		return nil, fmt.Errorf("particle %d out of range [0, %d)", particle, v.stack.Particles)
	}
	if channel < 0 || channel >= v.stack.Channels {
		return nil, fmt.Errorf("channel %d out of range [0, %d)", channel, v.stack.Channels)
	}

	w, h := v.stack.Width, v.stack.Height
	plane := v.stack.Plane(particle, channel)
	switch v.stack.Type {
	case models.PixelUint8:
		img := image.NewGray(image.Rect(0, 0, w, h))
		for i, s := range plane {
			img.Pix[i] = uint8(s)
		}
		return img, nil
	case models.PixelUint16:
		img := image.NewGray16(image.Rect(0, 0, w, h))
		for i, s := range plane {
			img.Pix[2*i] = uint8(s >> 8)
			img.Pix[2*i+1] = uint8(s)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("cannot render samples of type %s", v.stack.Type)
	}
}

// SavePlane saves an extracted plane as a PNG image
func (v *Viewer) SavePlane(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SavePlaneSequence extracts and saves every plane of the stack into outputDir
// and returns the written paths in page order
func (v *Viewer) SavePlaneSequence(outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	var paths []string
	for p := 0; p < v.stack.Particles; p++ {
		for c := 0; c < v.stack.Channels; c++ {
			img, err := v.ExtractPlane(p, c)
			if err != nil {
				return paths, err
			}
			filename := filepath.Join(outputDir, v.planeName(p, c))
			if err := v.SavePlane(img, filename); err != nil {
				return paths, err
			}
			paths = append(paths, filename)
		}
	}
	return paths, nil
}

// planeName builds "plane_t003_c01_DAPI.png", without the label when none is set
func (v *Viewer) planeName(particle, channel int) string {
	name := fmt.Sprintf("plane_t%03d_c%02d", particle, channel)
	index := particle*v.stack.Channels + channel
	if index < len(v.labels) {
		if label := sanitize(v.labels[index]); label != "" {
			name += "_" + label
		}
	}
	return name + ".png"
}

func sanitize(label string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ' || r == '/' || r == '.':
			return '_'
		}
		return -1
	}, label)
}
