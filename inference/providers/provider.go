// Package providers - Execution provider selection for onnxruntime sessions.
package providers

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Backend names an onnxruntime execution provider.
type Backend string

const (
	// CPU runs on the default provider and appends nothing.
	CPU Backend = "cpu"
	// CUDA uses NVIDIA CUDA for GPU acceleration.
	CUDA Backend = "cuda"
	// TensorRT uses NVIDIA TensorRT for optimized inference.
	TensorRT Backend = "tensorrt"
	// CoreML uses Apple CoreML for macOS acceleration.
	CoreML Backend = "coreml"
	// OpenVINO uses Intel OpenVINO for inference optimization.
	OpenVINO Backend = "openvino"
)

// Backends lists every supported backend.
var Backends = []Backend{CPU, CUDA, TensorRT, CoreML, OpenVINO}

// ParseBackend maps a case-insensitive name to a Backend. An empty name is CPU.
func ParseBackend(name string) (Backend, error) {
	if name == "" {
		return CPU, nil
	}
	b := Backend(strings.ToLower(name))
	for _, known := range Backends {
		if b == known {
			return b, nil
		}
	}
	return "", errors.Errorf("unknown execution provider %q", name)
}

// Config selects and tunes the execution provider of a session.
type Config struct {
	// Backend is the provider to append; the CPU provider is always the fallback.
	Backend Backend `yaml:"backend"`
	// DeviceID selects the accelerator on multi-device hosts (CUDA, TensorRT, OpenVINO).
	DeviceID int `yaml:"device_id"`
	// Options are passed verbatim to the provider and override the derived ones.
	// See https://onnxruntime.ai/docs/execution-providers/ for each provider's keys.
	Options map[string]string `yaml:"options"`
}

// Settings returns the provider option map: the device id plus Options.
//
// Returns:
//   - map[string]string: The options, nil for CPU and CoreML.
func (c Config) Settings() map[string]string {
	var out map[string]string
	switch c.Backend {
	case CUDA, TensorRT, OpenVINO:
		out = map[string]string{"device_id": strconv.Itoa(c.DeviceID)}
	default:
		if len(c.Options) == 0 {
			return nil
		}
		out = map[string]string{}
	}
	for k, v := range c.Options {
		out[k] = v
	}
	return out
}

// Apply appends the configured provider to the session options.
//
// Arguments:
//   - options: The session options being built.
//
// Returns:
//   - error: An error if the provider is unknown or not available in the loaded runtime.
func (c Config) Apply(options *ort.SessionOptions) error {
	switch c.Backend {
	case "", CPU:
		return nil
	case CUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "creating CUDA options")
		}
		defer cuda.Destroy()
		if err := cuda.Update(c.Settings()); err != nil {
			return errors.Wrap(err, "configuring CUDA")
		}
		return errors.Wrap(options.AppendExecutionProviderCUDA(cuda), "enabling CUDA")
	case TensorRT:
		trt, err := ort.NewTensorRTProviderOptions()
		if err != nil {
			return errors.Wrap(err, "creating TensorRT options")
		}
		defer trt.Destroy()
		if err := trt.Update(c.Settings()); err != nil {
			return errors.Wrap(err, "configuring TensorRT")
		}
		return errors.Wrap(options.AppendExecutionProviderTensorRT(trt), "enabling TensorRT")
	case CoreML:
		return errors.Wrap(options.AppendExecutionProviderCoreML(0), "enabling CoreML")
	case OpenVINO:
		return errors.Wrap(options.AppendExecutionProviderOpenVINO(c.Settings()), "enabling OpenVINO")
	default:
		return errors.Errorf("unknown execution provider %q", c.Backend)
	}
}
