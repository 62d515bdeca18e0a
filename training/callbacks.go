package training

import (
	"go.uber.org/zap"

	"github.com/nvr-ai/go-firewatch/inference"
	"github.com/nvr-ai/go-firewatch/models"
)

// EpochMetrics are the results of one epoch.
type EpochMetrics struct {
	Epoch       int     `yaml:"epoch"`
	Loss        float32 `yaml:"loss"`
	Accuracy    float32 `yaml:"accuracy"`
	ValLoss     float32 `yaml:"val_loss"`
	ValAccuracy float32 `yaml:"val_accuracy"`
}

// Callback is notified after every epoch with the metrics and the current weights.
type Callback interface {
	// OnEpochEnd returns true to stop training.
	OnEpochEnd(m EpochMetrics, head *models.Head) (bool, error)
}

// EarlyStopping stops training once the validation loss has not improved for Patience epochs.
type EarlyStopping struct {
	Patience int
	// MinDelta is the smallest decrease that counts as an improvement.
	MinDelta float32

	best      float32
	bestEpoch int
	wait      int
	seen      bool
}

// OnEpochEnd implements Callback.
func (e *EarlyStopping) OnEpochEnd(m EpochMetrics, _ *models.Head) (bool, error) {
	if !e.seen || m.ValLoss < e.best-e.MinDelta {
		e.seen = true
		e.best = m.ValLoss
		e.bestEpoch = m.Epoch
		e.wait = 0
		return false, nil
	}

	e.wait++
	return e.wait >= e.Patience, nil
}

// BestEpoch is the epoch with the lowest validation loss seen so far.
func (e *EarlyStopping) BestEpoch() int {
	return e.bestEpoch
}

// Checkpoint overwrites an artifact with the current weights whenever the
// validation loss improves.
type Checkpoint struct {
	Path     string
	Backbone inference.BackboneConfig
	RunID    string
	Logger   *zap.Logger

	best  float32
	seen  bool
	saved int
}

// OnEpochEnd implements Callback.
func (c *Checkpoint) OnEpochEnd(m EpochMetrics, head *models.Head) (bool, error) {
	if c.seen && m.ValLoss >= c.best {
		return false, nil
	}

	if err := models.Save(c.Path, models.NewArtifact(c.Backbone, head, c.RunID)); err != nil {
		return false, err
	}
	if c.Logger != nil {
		c.Logger.Info("checkpoint saved",
			zap.Int("epoch", m.Epoch),
			zap.Float32("val_loss", m.ValLoss),
			zap.Float32("previous_best", c.best),
			zap.String("path", c.Path))
	}

	c.seen = true
	c.best = m.ValLoss
	c.saved++
	return false, nil
}

// Saved is the number of times the checkpoint was written.
func (c *Checkpoint) Saved() int {
	return c.saved
}
