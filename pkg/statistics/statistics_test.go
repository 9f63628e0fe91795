package statistics

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagestreamstack/internal/models"
	"imagestreamstack/pkg/imagecodec"
)

// memorySource serves planes from a map keyed by particle and channel
type memorySource map[models.EntryKey]*models.Plane

func (m memorySource) Plane(particle string, channel int) (*models.Plane, error) {
	p, ok := m[models.EntryKey{Particle: particle, Channel: channel}]
	if !ok {
		return nil, fmt.Errorf("no plane for %s/%d", particle, channel)
	}
	return p, nil
}

func constantPlane(width, height int, typ models.PixelType, v uint16) *models.Plane {
	p := models.NewPlane(width, height, typ)
	for i := range p.Pix {
		p.Pix[i] = v
	}
	return p
}

func buildDataset(order []string, channels []int) *models.Dataset {
	ds := models.NewDataset("D1")
	for _, p := range order {
		for _, ch := range channels {
			ds.AddFile(p, ch, fmt.Sprintf("D1/%s_Ch%d.tif", p, ch))
		}
	}
	for _, ch := range channels {
		ds.SetChannelName(ch, fmt.Sprintf("name%d", ch))
	}
	return ds
}

func TestComputeMediansAndCanvas(t *testing.T) {
	src := memorySource{
		{Particle: "a", Channel: 1}: constantPlane(8, 8, models.PixelUint16, 100),
		{Particle: "b", Channel: 1}: constantPlane(4, 12, models.PixelUint16, 300),
		{Particle: "c", Channel: 1}: constantPlane(6, 6, models.PixelUint16, 5000),
		{Particle: "a", Channel: 2}: constantPlane(6, 10, models.PixelUint16, 10),
		{Particle: "b", Channel: 2}: constantPlane(6, 10, models.PixelUint16, 20),
		{Particle: "c", Channel: 2}: constantPlane(6, 10, models.PixelUint16, 31),
	}
	ds := buildDataset([]string{"a", "b", "c"}, []int{1, 2})

	res, err := Compute(context.Background(), ds, src, nil)
	require.NoError(t, err)

	// The bright particle c does not pull the background up
	assert.Equal(t, []float64{300, 20}, res.Medians)
	assert.Equal(t, models.Size{Width: 8, Height: 12}, res.CanvasSize)
	assert.Equal(t, models.PixelUint16, res.PixelType)
	assert.Equal(t, res.Medians, ds.Medians)
	assert.Equal(t, res.CanvasSize, ds.CanvasSize)

	r, c := res.PageMedians.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 5000.0, res.PageMedians.At(2, 0))
}

func TestComputeIsOrderInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	particles := make([]string, 9)
	src := memorySource{}
	for i := range particles {
		particles[i] = fmt.Sprintf("p%d", i)
		for _, ch := range []int{1, 3} {
			src[models.EntryKey{Particle: particles[i], Channel: ch}] = constantPlane(3+i%3, 4, models.PixelUint16, uint16(rng.Intn(1000)))
		}
	}

	base, err := Compute(context.Background(), buildDataset(particles, []int{1, 3}), src, nil)
	require.NoError(t, err)

	for trial := 0; trial < 5; trial++ {
		shuffled := append([]string(nil), particles...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		res, err := Compute(context.Background(), buildDataset(shuffled, []int{1, 3}), src, nil)
		require.NoError(t, err)
		assert.Equal(t, base.Medians, res.Medians)
		assert.Equal(t, base.CanvasSize, res.CanvasSize)
	}
}

func TestComputeDatatypeMismatch(t *testing.T) {
	src := memorySource{
		{Particle: "a", Channel: 1}: constantPlane(2, 2, models.PixelUint16, 1),
		{Particle: "b", Channel: 1}: constantPlane(2, 2, models.PixelUint8, 1),
	}
	ds := buildDataset([]string{"a", "b"}, []int{1})

	_, err := Compute(context.Background(), ds, src, nil)
	var mismatch *imagecodec.DatatypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "D1/b_Ch1.tif", mismatch.Entry)
}

func TestComputeHonorsCancellation(t *testing.T) {
	src := memorySource{{Particle: "a", Channel: 1}: constantPlane(2, 2, models.PixelUint16, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Compute(ctx, buildDataset([]string{"a"}, []int{1}), src, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPlaneMedianEvenCount(t *testing.T) {
	p := models.NewPlane(2, 2, models.PixelUint16)
	copy(p.Pix, []uint16{1, 9, 4, 7})

	m, err := PlaneMedian(p)
	require.NoError(t, err)
	assert.Equal(t, 5.5, m)
}
