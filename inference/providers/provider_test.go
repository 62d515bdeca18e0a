package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		name    string
		want    Backend
		wantErr bool
	}{
		{"", CPU, false},
		{"cpu", CPU, false},
		{"CUDA", CUDA, false},
		{"TensorRT", TensorRT, false},
		{"coreml", CoreML, false},
		{"openvino", OpenVINO, false},
		{"vulkan", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBackend(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSettings(t *testing.T) {
	assert.Nil(t, Config{Backend: CPU}.Settings())
	assert.Nil(t, Config{Backend: CoreML}.Settings())

	cuda := Config{Backend: CUDA, DeviceID: 1, Options: map[string]string{"gpu_mem_limit": "1073741824"}}
	assert.Equal(t, map[string]string{"device_id": "1", "gpu_mem_limit": "1073741824"}, cuda.Settings())

	override := Config{Backend: OpenVINO, DeviceID: 2, Options: map[string]string{"device_id": "GPU.0"}}
	assert.Equal(t, "GPU.0", override.Settings()["device_id"])
}

func TestApplyCPUIsNoop(t *testing.T) {
	assert.NoError(t, Config{}.Apply(nil))
	assert.NoError(t, Config{Backend: CPU}.Apply(nil))
	assert.Error(t, Config{Backend: "vulkan"}.Apply(nil))
}
