// Package common - Error kinds shared by the training and live inference pipelines.
package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure so callers can decide between aborting and continuing.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors that carry no kind.
	KindUnknown Kind = iota
	// KindArtifactNotFound means the persisted model file does not exist.
	KindArtifactNotFound
	// KindDeviceUnavailable means the capture device could not be opened.
	KindDeviceUnavailable
	// KindDatasetEmpty means no usable samples were produced.
	KindDatasetEmpty
	// KindDatasetDirectoryMissing means a class directory is absent.
	KindDatasetDirectoryMissing
	// KindFrameAcquisitionFailed means the capture device stopped producing frames.
	KindFrameAcquisitionFailed
	// KindInferenceFailed means a single frame could not be preprocessed or predicted.
	KindInferenceFailed
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindArtifactNotFound:        "artifact not found",
	KindDeviceUnavailable:       "device unavailable",
	KindDatasetEmpty:            "dataset empty",
	KindDatasetDirectoryMissing: "dataset directory missing",
	KindFrameAcquisitionFailed:  "frame acquisition failed",
	KindInferenceFailed:         "inference failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Recoverable reports whether a loop may continue after an error of this kind.
//
// Only per-frame inference failures are recoverable; everything else ends the run.
func (k Kind) Recoverable() bool {
	return k == KindInferenceFailed
}

// Sentinel errors, one per kind, usable with errors.Is.
var (
	ErrArtifactNotFound        = &Error{Kind: KindArtifactNotFound}
	ErrDeviceUnavailable       = &Error{Kind: KindDeviceUnavailable}
	ErrDatasetEmpty            = &Error{Kind: KindDatasetEmpty}
	ErrDatasetDirectoryMissing = &Error{Kind: KindDatasetDirectoryMissing}
	ErrFrameAcquisitionFailed  = &Error{Kind: KindFrameAcquisitionFailed}
	ErrInferenceFailed         = &Error{Kind: KindInferenceFailed}
)

// Error is a kinded error raised by the pipelines.
type Error struct {
	// Kind is the failure class.
	Kind Kind
	// Op names the operation that failed, e.g. "dataset.Load".
	Op string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels above work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// E builds a kinded error.
//
// Arguments:
//   - kind: The failure class.
//   - op: The operation that failed.
//   - err: The underlying cause (may be nil).
//
// Returns:
//   - error: The kinded error.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef builds a kinded error whose cause is a formatted message.
func Ef(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
