package images

import (
	"image"
	"image/color"

	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Augmentation bounds the random label-preserving transformations.
type Augmentation struct {
	// RotationDegrees is the maximum absolute rotation angle.
	RotationDegrees float64
	// WidthShift is the maximum horizontal shift as a fraction of the width.
	WidthShift float64
	// HeightShift is the maximum vertical shift as a fraction of the height.
	HeightShift float64
	// Zoom is the maximum scale deviation; scales are drawn from [1-Zoom, 1+Zoom].
	Zoom float64
	// HorizontalFlip mirrors half of the samples.
	HorizontalFlip bool
}

// Transform is one concrete draw of augmentation parameters.
type Transform struct {
	// Angle in degrees, counter-clockwise.
	Angle float64
	// ShiftX and ShiftY in pixels.
	ShiftX float64
	ShiftY float64
	// Scale factor, 1 keeps the size.
	Scale float64
	// Flip mirrors around the vertical axis.
	Flip bool
}

// IsIdentity reports whether applying the transform would leave the tensor unchanged.
func (t Transform) IsIdentity() bool {
	return t.Angle == 0 && t.ShiftX == 0 && t.ShiftY == 0 && t.Scale == 1 && !t.Flip
}

// Augmenter draws and applies random transforms to training tensors.
type Augmenter struct {
	cfg  Augmentation
	size Size
	rand *rng.UniformGenerator
}

// NewAugmenter creates an augmenter for tensors of the given size.
//
// Arguments:
//   - cfg: The transformation bounds.
//   - size: The tensor resolution.
//   - seed: Seed of the parameter generator.
//
// Returns:
//   - *Augmenter: The augmenter.
func NewAugmenter(cfg Augmentation, size Size, seed int64) *Augmenter {
	return &Augmenter{
		cfg:  cfg,
		size: size,
		rand: rng.NewUniformGenerator(seed),
	}
}

// Draw samples the parameters of the next transform.
func (a *Augmenter) Draw() Transform {
	t := Transform{
		Angle:  a.symmetric(a.cfg.RotationDegrees),
		ShiftX: a.symmetric(a.cfg.WidthShift) * float64(a.size.Width),
		ShiftY: a.symmetric(a.cfg.HeightShift) * float64(a.size.Height),
		Scale:  1 + a.symmetric(a.cfg.Zoom),
	}
	if a.cfg.HorizontalFlip {
		t.Flip = a.rand.Float64() < 0.5
	}
	return t
}

// symmetric draws uniformly from [-limit, limit]; a zero limit yields zero.
func (a *Augmenter) symmetric(limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return a.rand.Float64Range(-limit, limit)
}

// Augment applies a freshly drawn transform to a tensor.
//
// Arguments:
//   - tensor: The source tensor; it is not modified.
//
// Returns:
//   - []float32: The augmented copy.
//   - error: An error if the tensor does not match the augmenter size.
func (a *Augmenter) Augment(tensor []float32) ([]float32, error) {
	return Apply(tensor, a.size, a.Draw())
}

// Apply warps a tensor with a transform.
//
// Rotation and zoom are about the image centre, shifts are applied afterwards,
// and pixels pulled from outside the image repeat the nearest edge.
//
// Arguments:
//   - tensor: The source tensor; it is not modified.
//   - size: The tensor resolution.
//   - t: The transform.
//
// Returns:
//   - []float32: The transformed copy.
//   - error: An error if the tensor length does not match size.
func Apply(tensor []float32, size Size, t Transform) ([]float32, error) {
	if len(tensor) != size.Len() {
		return nil, errors.Errorf("tensor holds %d values, expected %d", len(tensor), size.Len())
	}
	if t.IsIdentity() {
		out := make([]float32, len(tensor))
		copy(out, tensor)
		return out, nil
	}

	src, err := TensorToMat(tensor, size)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	scale := t.Scale
	if scale == 0 {
		scale = 1
	}
	m := gocv.GetRotationMatrix2D(image.Pt(size.Width/2, size.Height/2), t.Angle, scale)
	defer m.Close()
	m.SetDoubleAt(0, 2, m.GetDoubleAt(0, 2)+t.ShiftX)
	m.SetDoubleAt(1, 2, m.GetDoubleAt(1, 2)+t.ShiftY)

	err = gocv.WarpAffineWithParams(src, &dst, m, size.Point(), gocv.InterpolationLinear,
		gocv.BorderReplicate, color.RGBA{})
	if err != nil {
		return nil, errors.Wrap(err, "warping tensor")
	}

	if t.Flip {
		if err := gocv.Flip(dst, &dst, 1); err != nil {
			return nil, errors.Wrap(err, "flipping tensor")
		}
	}

	return copyFloats(dst, size)
}
