// Package inference - onnxruntime environment and the frozen backbone session.
package inference

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// DefaultLibraryPath returns the onnxruntime shared library path for the current platform.
//
// Returns:
//   - string: The path to the shared library.
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	}
	if runtime.GOARCH == "arm64" {
		return "./third_party/onnxruntime_arm64.so"
	}
	return "./third_party/onnxruntime.so"
}

// InitRuntime initialises the onnxruntime environment once per process.
//
// Calling it again after a successful initialisation is a no-op.
//
// Arguments:
//   - libPath: The shared library path, empty selects DefaultLibraryPath.
//
// Returns:
//   - error: An error if the library is missing or the environment cannot be created.
func InitRuntime(libPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		libPath = DefaultLibraryPath()
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initializing onnxruntime environment")
	}
	return nil
}

// ShutdownRuntime releases the onnxruntime environment. It is safe to call when
// the environment was never initialised.
func ShutdownRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return errors.Wrap(ort.DestroyEnvironment(), "destroying onnxruntime environment")
}
