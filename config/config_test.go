package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 128, cfg.Image.Width)
	assert.Equal(t, 128, cfg.Image.Height)
	assert.Equal(t, 15, cfg.Training.Epochs)
	assert.Equal(t, 5, cfg.Training.Patience)
	assert.InDelta(t, 0.7, cfg.Live.Threshold, 1e-9)
	assert.InDelta(t, 0.001, cfg.Training.LearningRate, 1e-12)
}

func TestValidateTrainingRequiresDatasetRoot(t *testing.T) {
	cfg := Default()

	err := cfg.ValidateTraining()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset.root")

	cfg.Dataset.Root = t.TempDir()
	assert.NoError(t, cfg.ValidateTraining())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero width", func(c *Config) { c.Image.Width = 0 }},
		{"negative height", func(c *Config) { c.Image.Height = -1 }},
		{"threshold above one", func(c *Config) { c.Live.Threshold = 1.5 }},
		{"long quit key", func(c *Config) { c.Live.QuitKey = "quit" }},
		{"unknown layout", func(c *Config) { c.Model.BackboneLayout = "hwc" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
		{"missing artifact path", func(c *Config) { c.Model.ArtifactPath = "" }},
		{"unknown provider", func(c *Config) { c.Runtime.Provider = "vulkan" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateTrainingRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero epochs", func(c *Config) { c.Training.Epochs = 0 }},
		{"zero batch", func(c *Config) { c.Training.BatchSize = 0 }},
		{"split of one", func(c *Config) { c.Training.ValidationSplit = 1 }},
		{"dropout of one", func(c *Config) { c.Model.Dropout = 1 }},
		{"zero patience", func(c *Config) { c.Training.Patience = 0 }},
		{"negative rotation", func(c *Config) { c.Training.Augmentation.RotationDegrees = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Dataset.Root = "/data"
			tt.mutate(cfg)
			assert.Error(t, cfg.ValidateTraining())
		})
	}
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firewatch.yaml")
	yaml := []byte(`
dataset:
  root: /srv/fire
training:
  epochs: 3
live:
  snapshot_cooldown: 2s
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))
	t.Setenv("FIREWATCH_LIVE_THRESHOLD", "0.85")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/fire", cfg.Dataset.Root)
	assert.Equal(t, 3, cfg.Training.Epochs)
	assert.Equal(t, 2*time.Second, cfg.Live.SnapshotCooldown)
	assert.InDelta(t, 0.85, cfg.Live.Threshold, 1e-9)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultPositiveDir, cfg.Dataset.PositiveDir)
	assert.Equal(t, 32, cfg.Training.BatchSize)
	assert.True(t, cfg.Training.Augmentation.HorizontalFlip)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
