// Package images - Conversion of frames and decoded images into model input tensors.
//
// Every tensor produced here has the same layout: height x width x 3, BGR channel
// order (the order OpenCV decodes and captures in), float32 values in [0, 1].
package images

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Channels is the channel count of every tensor.
const Channels = 3

// Size is the spatial resolution tensors are resized to.
type Size struct {
	Width  int
	Height int
}

// Len is the number of float32 values in a tensor of this size.
func (s Size) Len() int {
	return s.Width * s.Height * Channels
}

// Point returns the size as an image.Point for gocv calls.
func (s Size) Point() image.Point {
	return image.Pt(s.Width, s.Height)
}

// MatToTensor resizes a BGR frame and normalises it to [0, 1].
//
// Single channel and BGRA frames are converted to BGR first.
//
// Arguments:
//   - frame: The source frame; it is not modified.
//   - size: The target resolution.
//
// Returns:
//   - []float32: A freshly allocated HWC tensor of size.Len() values.
//   - error: An error if the frame is empty, has an unsupported channel count or
//     an OpenCV conversion fails.
func MatToTensor(frame gocv.Mat, size Size) ([]float32, error) {
	if frame.Empty() {
		return nil, errors.New("empty frame")
	}

	bgr := gocv.NewMat()
	defer bgr.Close()

	var err error
	switch frame.Channels() {
	case 3:
		err = frame.CopyTo(&bgr)
	case 1:
		err = gocv.CvtColor(frame, &bgr, gocv.ColorGrayToBGR)
	case 4:
		err = gocv.CvtColor(frame, &bgr, gocv.ColorBGRAToBGR)
	default:
		return nil, errors.Errorf("unsupported channel count %d", frame.Channels())
	}
	if err != nil {
		return nil, errors.Wrap(err, "converting to BGR")
	}

	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(bgr, &resized, size.Point(), 0, 0, gocv.InterpolationLinear); err != nil {
		return nil, errors.Wrap(err, "resizing frame")
	}

	scaled := gocv.NewMat()
	defer scaled.Close()
	if err := resized.ConvertToWithParams(&scaled, gocv.MatTypeCV32FC3, 1.0/255.0, 0); err != nil {
		return nil, errors.Wrap(err, "normalising frame")
	}

	return copyFloats(scaled, size)
}

// TensorToMat copies a tensor into a new CV32FC3 Mat. The caller must close it.
func TensorToMat(tensor []float32, size Size) (gocv.Mat, error) {
	if len(tensor) != size.Len() {
		return gocv.NewMat(), errors.Errorf("tensor holds %d values, %dx%dx%d needs %d",
			len(tensor), size.Width, size.Height, Channels, size.Len())
	}

	mat := gocv.NewMatWithSize(size.Height, size.Width, gocv.MatTypeCV32FC3)
	data, err := mat.DataPtrFloat32()
	if err != nil {
		mat.Close()
		return gocv.NewMat(), errors.Wrap(err, "accessing mat data")
	}
	copy(data, tensor)

	return mat, nil
}

// copyFloats copies a continuous CV32FC3 Mat out of C memory.
func copyFloats(mat gocv.Mat, size Size) ([]float32, error) {
	data, err := mat.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "accessing mat data")
	}
	if len(data) != size.Len() {
		return nil, errors.Errorf("mat holds %d values, expected %d", len(data), size.Len())
	}

	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

// FromImage converts a decoded Go image into a tensor.
//
// This is the pure Go path used for still images: the image is resized with
// bilinear interpolation and written in the same BGR order as MatToTensor so
// both paths feed the model identically.
//
// Arguments:
//   - img: The decoded image.
//   - size: The target resolution.
//
// Returns:
//   - []float32: A freshly allocated HWC tensor of size.Len() values.
func FromImage(img image.Image, size Size) []float32 {
	resized := resize.Resize(uint(size.Width), uint(size.Height), img, resize.Bilinear)
	bounds := resized.Bounds()

	out := make([]float32, size.Len())
	i := 0
	for y := bounds.Min.Y; y < bounds.Min.Y+size.Height; y++ {
		for x := bounds.Min.X; x < bounds.Min.X+size.Width; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			out[i] = float32(b>>8) / 255.0
			out[i+1] = float32(g>>8) / 255.0
			out[i+2] = float32(r>>8) / 255.0
			i += Channels
		}
	}
	return out
}
