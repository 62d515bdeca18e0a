package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(size Size) []float32 {
	out := make([]float32, size.Len())
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			i := (y*size.Width + x) * Channels
			v := float32(x) / float32(size.Width-1)
			out[i], out[i+1], out[i+2] = v, v, v
		}
	}
	return out
}

func TestDrawStaysWithinBounds(t *testing.T) {
	cfg := Augmentation{RotationDegrees: 15, WidthShift: 0.1, HeightShift: 0.1, Zoom: 0.1, HorizontalFlip: true}
	a := NewAugmenter(cfg, testSize, 42)

	flips := 0
	for i := 0; i < 500; i++ {
		tr := a.Draw()
		assert.True(t, tr.Angle >= -15 && tr.Angle <= 15, "angle %v", tr.Angle)
		assert.True(t, tr.ShiftX >= -0.1*float64(testSize.Width) && tr.ShiftX <= 0.1*float64(testSize.Width))
		assert.True(t, tr.ShiftY >= -0.1*float64(testSize.Height) && tr.ShiftY <= 0.1*float64(testSize.Height))
		assert.True(t, tr.Scale >= 0.9 && tr.Scale <= 1.1, "scale %v", tr.Scale)
		if tr.Flip {
			flips++
		}
	}
	assert.Greater(t, flips, 150)
	assert.Less(t, flips, 350)
}

func TestDrawIsSeeded(t *testing.T) {
	cfg := Augmentation{RotationDegrees: 15, Zoom: 0.1, HorizontalFlip: true}
	a := NewAugmenter(cfg, testSize, 7)
	b := NewAugmenter(cfg, testSize, 7)

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Draw(), b.Draw())
	}
}

func TestDrawWithoutAugmentationIsIdentity(t *testing.T) {
	a := NewAugmenter(Augmentation{}, testSize, 1)
	assert.True(t, a.Draw().IsIdentity())
}

func TestApplyIdentityCopies(t *testing.T) {
	src := gradient(testSize)

	out, err := Apply(src, testSize, Transform{Scale: 1})
	require.NoError(t, err)

	assert.Equal(t, src, out)
	out[0] = 5
	assert.NotEqual(t, src[0], out[0])
}

func TestApplyFlipMirrorsRows(t *testing.T) {
	src := gradient(testSize)

	out, err := Apply(src, testSize, Transform{Scale: 1, Flip: true})
	require.NoError(t, err)
	require.Len(t, out, len(src))

	last := (testSize.Width - 1) * Channels
	assert.InDelta(t, src[last], out[0], 1e-5)
	assert.InDelta(t, src[0], out[last], 1e-5)
}

func TestApplyKeepsValueRange(t *testing.T) {
	src := gradient(testSize)

	out, err := Apply(src, testSize, Transform{Angle: 12, ShiftX: 2, ShiftY: -1, Scale: 1.08})
	require.NoError(t, err)

	for _, v := range out {
		assert.True(t, v >= -1e-5 && v <= 1+1e-5, "value %v out of range", v)
	}
}

func TestApplyRejectsWrongLength(t *testing.T) {
	_, err := Apply(make([]float32, 3), testSize, Transform{Scale: 1, Flip: true})
	assert.Error(t, err)
}
