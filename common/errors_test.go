package common

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	err := errors.Wrap(E(KindDatasetEmpty, "dataset.Load", nil), "training run")

	assert.Equal(t, KindDatasetEmpty, KindOf(err))
	assert.True(t, errors.Is(err, ErrDatasetEmpty))
	assert.False(t, errors.Is(err, ErrArtifactNotFound))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestRecoverable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindInferenceFailed, true},
		{KindFrameAcquisitionFailed, false},
		{KindArtifactNotFound, false},
		{KindDeviceUnavailable, false},
		{KindDatasetEmpty, false},
		{KindDatasetDirectoryMissing, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Recoverable())
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Ef(KindArtifactNotFound, "models.Load", "no such file %s", "model.bin")

	assert.Equal(t, "models.Load: artifact not found: no such file model.bin", err.Error())
	assert.Equal(t, "inference failed", ErrInferenceFailed.Error())
}
