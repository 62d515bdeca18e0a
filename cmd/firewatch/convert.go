package main

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-firewatch/config"
	"github.com/nvr-ai/go-firewatch/dataset"
	"github.com/nvr-ai/go-firewatch/images"
	"github.com/nvr-ai/go-firewatch/inference"
	"github.com/nvr-ai/go-firewatch/inference/providers"
	"github.com/nvr-ai/go-firewatch/live"
	"github.com/nvr-ai/go-firewatch/training"
)

func imageSize(cfg *config.Config) images.Size {
	return images.Size{Width: cfg.Image.Width, Height: cfg.Image.Height}
}

func datasetConfig(cfg *config.Config) dataset.Config {
	return dataset.Config{
		Root:        cfg.Dataset.Root,
		PositiveDir: cfg.Dataset.PositiveDir,
		NegativeDir: cfg.Dataset.NegativeDir,
		Size:        imageSize(cfg),
	}
}

func trainingConfig(cfg *config.Config) training.Config {
	t, a := cfg.Training, cfg.Training.Augmentation
	return training.Config{
		Epochs:          t.Epochs,
		BatchSize:       t.BatchSize,
		LearningRate:    t.LearningRate,
		ValidationSplit: t.ValidationSplit,
		Seed:            t.Seed,
		Patience:        t.Patience,
		Augmentation: images.Augmentation{
			RotationDegrees: a.RotationDegrees,
			WidthShift:      a.WidthShift,
			HeightShift:     a.HeightShift,
			Zoom:            a.Zoom,
			HorizontalFlip:  a.HorizontalFlip,
		},
		ArtifactPath:   cfg.Model.ArtifactPath,
		CheckpointPath: cfg.Model.CheckpointPath,
		HistoryPath:    t.HistoryPath,
	}
}

func liveConfig(cfg *config.Config) live.Config {
	l := cfg.Live
	return live.Config{
		ArtifactPath:     cfg.Model.ArtifactPath,
		DeviceID:         l.DeviceID,
		VideoPath:        l.VideoPath,
		Threshold:        l.Threshold,
		WindowTitle:      l.WindowTitle,
		ShowWindow:       l.ShowWindow,
		QuitKey:          l.QuitKey[0],
		SnapshotDir:      l.SnapshotDir,
		SnapshotCooldown: l.SnapshotCooldown,
	}
}

// backboneConfig reads the pretrained backbone that training embeds into artifacts.
func backboneConfig(cfg *config.Config) (inference.BackboneConfig, error) {
	session, err := sessionOptions(cfg)
	if err != nil {
		return inference.BackboneConfig{}, err
	}
	onnx, err := os.ReadFile(cfg.Model.BackbonePath)
	if err != nil {
		return inference.BackboneConfig{}, errors.Wrap(err, "reading backbone")
	}
	return inference.BackboneConfig{
		ONNX:    onnx,
		Layout:  inference.Layout(cfg.Model.BackboneLayout),
		Size:    imageSize(cfg),
		Session: session,
	}, nil
}

func sessionOptions(cfg *config.Config) (inference.SessionOptions, error) {
	backend, err := providers.ParseBackend(cfg.Runtime.Provider)
	if err != nil {
		return inference.SessionOptions{}, err
	}
	return inference.SessionOptions{
		IntraOpThreads: cfg.Runtime.IntraOpThreads,
		Provider: providers.Config{
			Backend:  backend,
			DeviceID: cfg.Runtime.ProviderDevice,
			Options:  cfg.Runtime.ProviderOptions,
		},
	}, nil
}

// withRuntime initialises onnxruntime for the duration of fn.
func withRuntime(cfg *config.Config, logger *zap.Logger, fn func() error) error {
	if err := inference.InitRuntime(cfg.Runtime.LibraryPath); err != nil {
		return err
	}
	defer func() {
		if err := inference.ShutdownRuntime(); err != nil {
			logger.Warn("onnxruntime shutdown", zap.Error(err))
		}
	}()
	return fn()
}
