package models

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-firewatch/images"
	"github.com/nvr-ai/go-firewatch/inference"
)

// Model is a frozen feature extractor followed by a trainable head.
type Model struct {
	Extractor inference.FeatureExtractor
	Head      *Head
	Size      images.Size
	// RunID identifies the training run that produced the weights, if any.
	RunID string
}

// New assembles a model after checking that the head fits the extractor.
func New(extractor inference.FeatureExtractor, head *Head, size images.Size) (*Model, error) {
	if err := head.Validate(); err != nil {
		return nil, err
	}
	if _, channels := extractor.FeatureShape(); channels != head.Channels {
		return nil, errors.Errorf("head expects %d channels, backbone produces %d", head.Channels, channels)
	}
	return &Model{Extractor: extractor, Head: head, Size: size}, nil
}

// BuildConfig describes a fresh model.
type BuildConfig struct {
	Backbone    inference.BackboneConfig
	HiddenUnits int
	Dropout     float64
	Seed        int64
}

// Build opens the backbone and attaches a freshly initialised head.
//
// Arguments:
//   - cfg: The backbone and head description.
//
// Returns:
//   - *Model: The model, to be closed by the caller.
//   - error: An error if the backbone session cannot be created.
func Build(cfg BuildConfig) (*Model, error) {
	backbone, err := inference.NewBackbone(cfg.Backbone)
	if err != nil {
		return nil, errors.Wrap(err, "opening backbone")
	}

	_, channels := backbone.FeatureShape()
	m, err := New(backbone, NewHead(channels, cfg.HiddenUnits, cfg.Dropout, cfg.Seed), cfg.Backbone.Size)
	if err != nil {
		backbone.Close()
		return nil, err
	}
	return m, nil
}

// Predict returns the fire probability of one sample.
//
// Arguments:
//   - sample: An HWC tensor of the model size.
//
// Returns:
//   - float32: The probability, in [0, 1].
//   - error: An error if the sample does not match the model or the forward pass fails.
func (m *Model) Predict(sample []float32) (float32, error) {
	if len(sample) != m.Size.Len() {
		return 0, errors.Errorf("sample holds %d values, model expects %dx%dx%d",
			len(sample), m.Size.Width, m.Size.Height, images.Channels)
	}

	features, err := m.Extractor.Extract(sample)
	if err != nil {
		return 0, err
	}
	return m.Head.Forward(features)
}

// Close releases the extractor.
func (m *Model) Close() error {
	return m.Extractor.Close()
}

// Layer is one line of a model summary.
type Layer struct {
	Name      string
	Output    string
	Params    int
	Trainable bool
}

// Summary lists the layers with their output shapes and parameter counts.
func (m *Model) Summary() []Layer {
	spatial, channels := m.Extractor.FeatureShape()
	dense, output := m.Head.Params()

	return []Layer{
		{Name: "input", Output: fmt.Sprintf("%dx%dx%d", m.Size.Height, m.Size.Width, images.Channels)},
		{Name: "backbone", Output: fmt.Sprintf("%dx%d", spatial, channels)},
		{Name: "global_average_pooling", Output: fmt.Sprintf("%d", channels)},
		{Name: "dense_relu", Output: fmt.Sprintf("%d", m.Head.Hidden), Params: dense, Trainable: true},
		{Name: fmt.Sprintf("dropout_%.2f", m.Head.DropoutRate), Output: fmt.Sprintf("%d", m.Head.Hidden)},
		{Name: "dense_sigmoid", Output: "1", Params: output, Trainable: true},
	}
}

// TrainableParams is the number of parameters the optimiser updates.
func (m *Model) TrainableParams() int {
	n := 0
	for _, l := range m.Summary() {
		if l.Trainable {
			n += l.Params
		}
	}
	return n
}
