// Package imagecodec decodes single-channel microscopy pages into planes.
package imagecodec

import (
	"fmt"
	"image"
	"io"

	"golang.org/x/image/tiff"

	"imagestreamstack/internal/models"
)

// DatatypeMismatchError reports a page whose element type differs from the
// type established by the first decoded page of the dataset. It is fatal for
// that dataset.
type DatatypeMismatchError struct {
	Dataset  string
	Entry    string
	Expected models.PixelType
	Got      models.PixelType
}

func (e *DatatypeMismatchError) Error() string {
	return fmt.Sprintf("dataset %s: %s has pixel type %s, dataset uses %s", e.Dataset, e.Entry, e.Got, e.Expected)
}

// UnsupportedImageError reports a page that is not 8 or 16-bit grayscale
type UnsupportedImageError struct {
	Entry string
	Model string
}

func (e *UnsupportedImageError) Error() string {
	return fmt.Sprintf("%s: unsupported image type %s, expected 8 or 16-bit grayscale", e.Entry, e.Model)
}

// Decoder turns an entry stream into a plane
type Decoder interface {
	Decode(r io.Reader) (*models.Plane, error)
}

// TIFFDecoder decodes the first page of a TIFF file
type TIFFDecoder struct{}

// Decode reads the first page of a TIFF stream
func (TIFFDecoder) Decode(r io.Reader) (*models.Plane, error) {
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, err
	}
	return FromImage(img)
}

// FromImage converts a grayscale image into a plane without rescaling samples
func FromImage(img image.Image) (*models.Plane, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	switch src := img.(type) {
	case *image.Gray16:
		plane := models.NewPlane(width, height, models.PixelUint16)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				plane.Set(x, y, src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
		return plane, nil
	case *image.Gray:
		plane := models.NewPlane(width, height, models.PixelUint8)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				plane.Set(x, y, uint16(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y))
			}
		}
		return plane, nil
	default:
		return nil, &UnsupportedImageError{Model: fmt.Sprintf("%T", img)}
	}
}

// CheckType verifies a decoded plane against the dataset's established pixel
// type, establishing it when none is set yet.
func CheckType(ds *models.Dataset, entry string, plane *models.Plane) error {
	if ds.PixelType == models.PixelUnknown {
		ds.PixelType = plane.Type
		return nil
	}
	if plane.Type != ds.PixelType {
		return &DatatypeMismatchError{
			Dataset:  ds.ID,
			Entry:    entry,
			Expected: ds.PixelType,
			Got:      plane.Type,
		}
	}
	return nil
}
