package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-firewatch/live"
	"github.com/nvr-ai/go-firewatch/models"
	"github.com/nvr-ai/go-firewatch/training"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "firewatch dev")
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t, "extinguish")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "firewatch:")
}

func TestTrainRequiresDatasetRoot(t *testing.T) {
	t.Setenv("FIREWATCH_DATASET_ROOT", "")
	code, _, stderr := runCLI(t, "train", "--log-level", "error")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "dataset.root is required")
}

func TestTrainMissingClassDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "Fire images"), 0o755))

	code, _, stderr := runCLI(t, "train", "--log-level", "error", "--dataset", root)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "dataset directory missing")
	assert.Contains(t, stderr, "Normal Images")
}

func TestDetectMissingModel(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.bin")

	code, _, stderr := runCLI(t, "detect", "--log-level", "error", "--headless", "--model", missing)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "artifact not found")
}

func TestPredictMissingModel(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.bin")

	code, _, stderr := runCLI(t, "predict", "--log-level", "error", "--model", missing, "fire.jpg")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "artifact not found")
}

func TestInvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firewatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("live:\n  threshold: 3\n"), 0o644))

	code, _, stderr := runCLI(t, "detect", "--config", path, "--log-level", "error")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "live.threshold")
}

func TestRenderVerdict(t *testing.T) {
	line := renderVerdict("a.jpg", live.Classify(0.95, 0.7))
	assert.Contains(t, line, "Fire Detected (0.95)")
	assert.Contains(t, line, "a.jpg")
}

func TestWriteTrainingSummary(t *testing.T) {
	var buf bytes.Buffer
	res := &training.Result{
		RunID:        "run-1",
		ArtifactPath: "model.bin",
		History: &training.History{
			BestEpoch:    2,
			StoppedEarly: true,
			Epochs: []training.EpochMetrics{
				{Epoch: 1, Loss: 0.7, ValLoss: 0.6},
				{Epoch: 2, Loss: 0.5, ValLoss: 0.4},
			},
		},
	}
	layers := []models.Layer{{Name: "backbone", Output: "16x1280"}, {Name: "dense_relu", Output: "128", Params: 163968, Trainable: true}}

	writeTrainingSummary(&buf, layers, res)
	out := buf.String()

	assert.Contains(t, out, "163968")
	assert.Contains(t, out, "0.4000")
	assert.Contains(t, out, "stopped early, best epoch 2")
	assert.Equal(t, 1, strings.Count(out, "run run-1"))
}
