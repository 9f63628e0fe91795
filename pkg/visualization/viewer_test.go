package visualization

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"imagestreamstack/internal/models"
	"imagestreamstack/pkg/canvas"
)

func testStack(typ models.PixelType) *canvas.Stack {
	stack := canvas.NewStack(2, 2, 4, 3, typ)
	for p := 0; p < 2; p++ {
		for c := 0; c < 2; c++ {
			plane := stack.Plane(p, c)
			for i := range plane {
				plane[i] = uint16(100*p + 10*c + i)
			}
		}
	}
	return stack
}

// TestExtractPlane verifies that planes come out with the stack's pixel type
func TestExtractPlane(t *testing.T) {
	viewer := NewViewer(testStack(models.PixelUint16), nil)

	img, err := viewer.ExtractPlane(1, 1)
	if err != nil {
		t.Fatalf("Failed to extract plane: %v", err)
	}

	gray, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("Expected *image.Gray16, got %T", img)
	}
	if b := gray.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("Expected plane dimensions 4x3, got %dx%d", b.Dx(), b.Dy())
	}
	// sample (2, 1) is index 6 of the plane
	if got := gray.Gray16At(2, 1).Y; got != 116 {
		t.Errorf("Expected sample 116 at (2, 1), got %d", got)
	}

	viewer = NewViewer(testStack(models.PixelUint8), nil)
	img, err = viewer.ExtractPlane(0, 1)
	if err != nil {
		t.Fatalf("Failed to extract 8-bit plane: %v", err)
	}
	if _, ok := img.(*image.Gray); !ok {
		t.Fatalf("Expected *image.Gray, got %T", img)
	}

	if _, err := viewer.ExtractPlane(2, 0); err == nil {
		t.Error("Expected error for out of range particle, got nil")
	}
	if _, err := viewer.ExtractPlane(0, -1); err == nil {
		t.Error("Expected error for out of range channel, got nil")
	}
}

// TestSavePlaneSequence verifies that every plane is written and decodes back
func TestSavePlaneSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	stack := testStack(models.PixelUint16)
	viewer := NewViewer(stack, []string{"BF", "DAPI", "BF", "DAPI"})

	outputDir := filepath.Join(t.TempDir(), "planes")
	paths, err := viewer.SavePlaneSequence(outputDir)
	if err != nil {
		t.Fatalf("Failed to save plane sequence: %v", err)
	}
	if len(paths) != stack.PlaneCount() {
		t.Fatalf("Expected %d files, got %d", stack.PlaneCount(), len(paths))
	}

	want := filepath.Join(outputDir, "plane_t001_c01_DAPI.png")
	if paths[3] != want {
		t.Errorf("Expected %s, got %s", want, paths[3])
	}

	f, err := os.Open(paths[3])
	if err != nil {
		t.Fatalf("Failed to open saved plane: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode saved plane: %v", err)
	}
	gray, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("Expected *image.Gray16, got %T", img)
	}
	if got := gray.Gray16At(0, 0).Y; got != 110 {
		t.Errorf("Expected sample 110 at origin, got %d", got)
	}
}

func TestPlaneNameWithoutLabels(t *testing.T) {
	viewer := NewViewer(testStack(models.PixelUint8), []string{"Ch 1/a"})
	if got := viewer.planeName(0, 0); got != "plane_t000_c00_Ch_1_a.png" {
		t.Errorf("Unexpected name %s", got)
	}
	if got := viewer.planeName(1, 0); got != "plane_t001_c00.png" {
		t.Errorf("Unexpected name %s", got)
	}
}
