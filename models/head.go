// Package models - The fire classifier: a frozen backbone followed by a small trainable head.
package models

import (
	"github.com/chewxy/math32"
	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
)

// Head is the trainable classifier on top of the backbone feature map:
// global average pooling, dense+ReLU, dropout (training only), dense+sigmoid.
type Head struct {
	// Channels is the feature map depth.
	Channels int
	// Hidden is the width of the dense bottleneck.
	Hidden int
	// DropoutRate is the drop probability used while training.
	DropoutRate float64
	// W1 is the Channels x Hidden kernel, row-major.
	W1 []float32
	B1 []float32
	// W2 is the Hidden x 1 output kernel.
	W2 []float32
	B2 float32
}

// NewHead creates a head with Glorot-uniform kernels and zero biases.
//
// Arguments:
//   - channels: The feature map depth.
//   - hidden: The bottleneck width.
//   - dropout: The training drop probability.
//   - seed: Seed of the initialiser.
//
// Returns:
//   - *Head: The initialised head.
func NewHead(channels, hidden int, dropout float64, seed int64) *Head {
	r := rng.NewUniformGenerator(seed)
	return &Head{
		Channels:    channels,
		Hidden:      hidden,
		DropoutRate: dropout,
		W1:          glorot(r, channels, hidden),
		B1:          make([]float32, hidden),
		W2:          glorot(r, hidden, 1),
	}
}

func glorot(r *rng.UniformGenerator, fanIn, fanOut int) []float32 {
	limit := math32.Sqrt(6 / float32(fanIn+fanOut))
	w := make([]float32, fanIn*fanOut)
	for i := range w {
		w[i] = float32(r.Float64Range(-float64(limit), float64(limit)))
	}
	return w
}

// Validate checks that the weight slices match the declared shape.
func (h *Head) Validate() error {
	switch {
	case h.Channels <= 0 || h.Hidden <= 0:
		return errors.Errorf("head shape %dx%d", h.Channels, h.Hidden)
	case len(h.W1) != h.Channels*h.Hidden:
		return errors.Errorf("w1 holds %d weights, expected %d", len(h.W1), h.Channels*h.Hidden)
	case len(h.B1) != h.Hidden:
		return errors.Errorf("b1 holds %d weights, expected %d", len(h.B1), h.Hidden)
	case len(h.W2) != h.Hidden:
		return errors.Errorf("w2 holds %d weights, expected %d", len(h.W2), h.Hidden)
	case h.DropoutRate < 0 || h.DropoutRate >= 1:
		return errors.Errorf("dropout rate %v outside [0, 1)", h.DropoutRate)
	}
	return nil
}

// Params returns the parameter counts of the two dense layers.
func (h *Head) Params() (dense, output int) {
	return h.Channels*h.Hidden + h.Hidden, h.Hidden + 1
}

// Clone returns a deep copy.
func (h *Head) Clone() *Head {
	c := *h
	c.W1 = append([]float32(nil), h.W1...)
	c.B1 = append([]float32(nil), h.B1...)
	c.W2 = append([]float32(nil), h.W2...)
	return &c
}

// Pool averages a spatial-major feature map over its spatial positions.
func (h *Head) Pool(features []float32) ([]float32, error) {
	if len(features) == 0 || len(features)%h.Channels != 0 {
		return nil, errors.Errorf("feature map of %d values is not a multiple of %d channels",
			len(features), h.Channels)
	}

	spatial := len(features) / h.Channels
	pooled := make([]float32, h.Channels)
	for s := 0; s < spatial; s++ {
		row := features[s*h.Channels : (s+1)*h.Channels]
		for c, v := range row {
			pooled[c] += v
		}
	}
	for c := range pooled {
		pooled[c] /= float32(spatial)
	}
	return pooled, nil
}

// Forward returns the fire probability of a feature map. Dropout is not applied.
//
// Arguments:
//   - features: A spatial-major feature map.
//
// Returns:
//   - float32: The probability, in [0, 1].
//   - error: An error if the feature map does not match the head.
func (h *Head) Forward(features []float32) (float32, error) {
	pooled, err := h.Pool(features)
	if err != nil {
		return 0, err
	}

	z := h.B2
	for j := 0; j < h.Hidden; j++ {
		a := h.B1[j]
		for c, x := range pooled {
			a += x * h.W1[c*h.Hidden+j]
		}
		if a > 0 {
			z += a * h.W2[j]
		}
	}
	if math32.IsNaN(z) {
		return 0, errors.New("non-finite activation")
	}

	return Sigmoid(z), nil
}

// Sigmoid is the logistic function, computed without overflow for large |z|.
func Sigmoid(z float32) float32 {
	if z >= 0 {
		return 1 / (1 + math32.Exp(-z))
	}
	e := math32.Exp(z)
	return e / (1 + e)
}
