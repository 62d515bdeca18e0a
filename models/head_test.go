package models

import (
	"testing"

	"github.com/chewxy/math32"
	rng "github.com/leesper/go_rng"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHeadShapes(t *testing.T) {
	h := NewHead(1280, 128, 0.5, 42)

	require.NoError(t, h.Validate())
	assert.Len(t, h.W1, 1280*128)
	assert.Len(t, h.B1, 128)
	assert.Len(t, h.W2, 128)

	dense, output := h.Params()
	assert.Equal(t, 1280*128+128, dense)
	assert.Equal(t, 129, output)

	limit := math32.Sqrt(6.0 / (1280 + 128))
	for _, w := range h.W1 {
		assert.True(t, w >= -limit && w <= limit)
	}
}

func TestNewHeadIsSeeded(t *testing.T) {
	assert.Equal(t, NewHead(8, 4, 0.5, 1), NewHead(8, 4, 0.5, 1))
	assert.NotEqual(t, NewHead(8, 4, 0.5, 1).W1, NewHead(8, 4, 0.5, 2).W1)
}

func TestForwardStaysInUnitInterval(t *testing.T) {
	h := NewHead(16, 8, 0.5, 3)
	r := rng.NewUniformGenerator(9)

	for i := 0; i < 200; i++ {
		features := make([]float32, 4*16)
		scale := float64(i) // grows large enough to saturate the sigmoid
		for j := range features {
			features[j] = float32(r.Float64Range(-scale-1, scale+1))
		}

		p, err := h.Forward(features)
		require.NoError(t, err)
		assert.True(t, p >= 0 && p <= 1, "probability %v", p)
	}
}

func TestForwardRejectsMismatchedFeatures(t *testing.T) {
	h := NewHead(16, 8, 0.5, 3)

	_, err := h.Forward(make([]float32, 15))
	assert.Error(t, err)
	_, err = h.Forward(nil)
	assert.Error(t, err)
}

func TestPoolAveragesSpatialPositions(t *testing.T) {
	h := &Head{Channels: 2, Hidden: 1}

	pooled, err := h.Pool([]float32{1, 10, 3, 20, 5, 30})
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 20}, pooled)
}

func TestForwardKnownWeights(t *testing.T) {
	h := &Head{
		Channels: 2,
		Hidden:   2,
		W1:       []float32{1, 0, 0, 1},
		B1:       []float32{0, -10},
		W2:       []float32{2, 1},
		B2:       -1,
	}

	// Hidden unit two is clipped by the ReLU, so z = 2*1 - 1.
	p, err := h.Forward([]float32{1, 3})
	require.NoError(t, err)
	assert.InDelta(t, Sigmoid(1), p, 1e-6)
	assert.InDelta(t, 0.7310586, p, 1e-6)
}

func TestSigmoidExtremes(t *testing.T) {
	assert.Equal(t, float32(0.5), Sigmoid(0))
	assert.InDelta(t, 1.0, Sigmoid(200), 1e-6)
	assert.InDelta(t, 0.0, Sigmoid(-200), 1e-6)
}

func TestCloneIsDeep(t *testing.T) {
	h := NewHead(4, 2, 0.5, 1)
	c := h.Clone()
	c.W1[0] = 42

	assert.NotEqual(t, h.W1[0], c.W1[0])
}
