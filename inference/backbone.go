package inference

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-firewatch/images"
	"github.com/nvr-ai/go-firewatch/inference/providers"
)

// Layout is the tensor layout a backbone expects and produces.
type Layout string

const (
	// NHWC is batch, height, width, channels (Keras exports).
	NHWC Layout = "nhwc"
	// NCHW is batch, channels, height, width (PyTorch exports).
	NCHW Layout = "nchw"
)

// FeatureExtractor maps a normalised HWC sample to a spatial feature map.
//
// Features are returned spatial-major: S positions of C channels each.
type FeatureExtractor interface {
	Extract(sample []float32) ([]float32, error)
	// FeatureShape returns the number of spatial positions and channels.
	FeatureShape() (spatial, channels int)
	Close() error
}

// SessionOptions tunes the onnxruntime session of a backbone.
type SessionOptions struct {
	// IntraOpThreads bounds per-operator parallelism, 0 lets the runtime decide.
	IntraOpThreads int
	// Provider selects the execution provider, CPU when zero.
	Provider providers.Config
}

// BackboneConfig describes a frozen feature extractor exported to ONNX.
type BackboneConfig struct {
	// ONNX is the serialised model.
	ONNX []byte
	// InputName and OutputName select the graph nodes, empty picks the first one.
	InputName  string
	OutputName string
	// Layout is the layout of both the input and the output tensor.
	Layout Layout
	// Size is the sample resolution.
	Size images.Size
	// Session tunes the runtime session.
	Session SessionOptions
}

// Backbone runs a frozen convolutional feature extractor through onnxruntime.
//
// It exposes no parameters, so nothing downstream can train it.
type Backbone struct {
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	output   *ort.Tensor[float32]
	layout   Layout
	size     images.Size
	spatial  int
	channels int
	names    [2]string
}

// NewBackbone creates a session with preallocated input and output tensors.
//
// The output shape is read from the model; dynamic dimensions are taken as 1.
// InitRuntime must have been called.
//
// Arguments:
//   - cfg: The backbone description.
//
// Returns:
//   - *Backbone: The backbone, to be closed by the caller.
//   - error: An error if the model cannot be inspected or the session created.
func NewBackbone(cfg BackboneConfig) (*Backbone, error) {
	if cfg.Layout != NHWC && cfg.Layout != NCHW {
		return nil, errors.Errorf("unsupported backbone layout %q", cfg.Layout)
	}

	ins, outs, err := ort.GetInputOutputInfoWithONNXData(cfg.ONNX)
	if err != nil {
		return nil, errors.Wrap(err, "reading backbone inputs and outputs")
	}
	in, err := pickInfo(ins, cfg.InputName)
	if err != nil {
		return nil, errors.Wrap(err, "backbone input")
	}
	out, err := pickInfo(outs, cfg.OutputName)
	if err != nil {
		return nil, errors.Wrap(err, "backbone output")
	}

	outShape := concreteShape(out.Dimensions)
	spatial, channels, err := featureGeometry(outShape, cfg.Layout)
	if err != nil {
		return nil, err
	}

	b := &Backbone{
		layout:   cfg.Layout,
		size:     cfg.Size,
		spatial:  spatial,
		channels: channels,
		names:    [2]string{in.Name, out.Name},
	}

	h, w, c := int64(cfg.Size.Height), int64(cfg.Size.Width), int64(images.Channels)
	inShape := ort.NewShape(1, h, w, c)
	if cfg.Layout == NCHW {
		inShape = ort.NewShape(1, c, h, w)
	}

	b.input, err = ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return nil, errors.Wrap(err, "creating input tensor")
	}
	b.output, err = ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		b.Close()
		return nil, errors.Wrap(err, "creating output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		b.Close()
		return nil, errors.Wrap(err, "creating session options")
	}
	defer options.Destroy()

	if cfg.Session.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.Session.IntraOpThreads); err != nil {
			b.Close()
			return nil, errors.Wrap(err, "setting intra-op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		b.Close()
		return nil, errors.Wrap(err, "setting graph optimization level")
	}
	if err := cfg.Session.Provider.Apply(options); err != nil {
		b.Close()
		return nil, err
	}

	b.session, err = ort.NewAdvancedSessionWithONNXData(
		cfg.ONNX,
		[]string{in.Name},
		[]string{out.Name},
		[]ort.Value{b.input},
		[]ort.Value{b.output},
		options,
	)
	if err != nil {
		b.Close()
		return nil, errors.Wrap(err, "creating backbone session")
	}

	return b, nil
}

// Names returns the bound input and output node names.
func (b *Backbone) Names() (input, output string) {
	return b.names[0], b.names[1]
}

// FeatureShape returns the number of spatial positions and channels of a feature map.
func (b *Backbone) FeatureShape() (spatial, channels int) {
	return b.spatial, b.channels
}

// Extract runs the backbone on one sample.
//
// Arguments:
//   - sample: An HWC tensor of the configured size.
//
// Returns:
//   - []float32: A fresh spatial-major feature map of spatial*channels values.
//   - error: An error if the sample has the wrong length or the run fails.
func (b *Backbone) Extract(sample []float32) ([]float32, error) {
	if len(sample) != b.size.Len() {
		return nil, errors.Errorf("sample holds %d values, backbone expects %d", len(sample), b.size.Len())
	}

	dst := b.input.GetData()
	if b.layout == NCHW {
		HWCToCHW(sample, dst, b.size.Height, b.size.Width, images.Channels)
	} else {
		copy(dst, sample)
	}

	if err := b.session.Run(); err != nil {
		return nil, errors.Wrap(err, "running backbone")
	}

	raw := b.output.GetData()
	features := make([]float32, b.spatial*b.channels)
	if b.layout == NCHW {
		CHWToHWC(raw, features, b.channels, b.spatial)
	} else {
		copy(features, raw)
	}
	return features, nil
}

// Close releases the session and its tensors.
func (b *Backbone) Close() error {
	var err error
	if b.session != nil {
		err = b.session.Destroy()
		b.session = nil
	}
	if b.input != nil {
		b.input.Destroy()
		b.input = nil
	}
	if b.output != nil {
		b.output.Destroy()
		b.output = nil
	}
	return errors.Wrap(err, "destroying backbone session")
}

func pickInfo(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, errors.New("model declares none")
	}
	if name == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, errors.Errorf("no node named %q", name)
}

// concreteShape replaces dynamic (negative) dimensions with 1.
func concreteShape(dims ort.Shape) ort.Shape {
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}

// featureGeometry splits a batch-of-one feature map shape into spatial positions and channels.
func featureGeometry(shape ort.Shape, layout Layout) (spatial, channels int, err error) {
	switch len(shape) {
	case 2:
		return 1, int(shape[1]), nil
	case 4:
		if layout == NCHW {
			return int(shape[2] * shape[3]), int(shape[1]), nil
		}
		return int(shape[1] * shape[2]), int(shape[3]), nil
	}
	return 0, 0, errors.Errorf("unsupported backbone output shape %v", shape)
}

// HWCToCHW transposes an interleaved image into planar channels.
func HWCToCHW(src, dst []float32, h, w, c int) {
	plane := h * w
	for p := 0; p < plane; p++ {
		for ch := 0; ch < c; ch++ {
			dst[ch*plane+p] = src[p*c+ch]
		}
	}
}

// CHWToHWC transposes planar channels into spatial-major order.
func CHWToHWC(src, dst []float32, c, plane int) {
	for ch := 0; ch < c; ch++ {
		for p := 0; p < plane; p++ {
			dst[p*c+ch] = src[ch*plane+p]
		}
	}
}
