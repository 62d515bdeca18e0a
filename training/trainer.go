// Package training - Transfer learning of the classifier head on a frozen backbone.
package training

import (
	"context"
	"time"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-firewatch/common"
	"github.com/nvr-ai/go-firewatch/dataset"
	"github.com/nvr-ai/go-firewatch/images"
	"github.com/nvr-ai/go-firewatch/inference"
	"github.com/nvr-ai/go-firewatch/models"
)

// Config drives one training run.
type Config struct {
	Epochs          int
	BatchSize       int
	LearningRate    float64
	ValidationSplit float64
	// Seed drives the split, shuffling, augmentation and dropout masks.
	Seed int64
	// Patience is the number of epochs without validation improvement before stopping.
	Patience     int
	Augmentation images.Augmentation
	// ArtifactPath receives the best weights at the end of the run.
	ArtifactPath string
	// CheckpointPath, when set, receives the weights every time validation loss improves.
	CheckpointPath string
	// HistoryPath, when set, receives the per-epoch metrics as YAML.
	HistoryPath string
}

// Result describes a finished run.
type Result struct {
	RunID        string
	Head         *models.Head
	History      *History
	ArtifactPath string
}

// Trainer fits a head on top of a frozen feature extractor.
type Trainer struct {
	cfg       Config
	extractor inference.FeatureExtractor
	backbone  inference.BackboneConfig
	head      *models.Head
	logger    *zap.Logger
	runID     string

	// Callbacks run after every epoch, after the built-in early stopping and checkpoint.
	Callbacks []Callback
}

// New creates a trainer.
//
// Arguments:
//   - cfg: The run configuration.
//   - extractor: The frozen backbone.
//   - backbone: The backbone description embedded in the artifacts.
//   - head: The initial head weights; they are not modified.
//   - logger: The logger.
//
// Returns:
//   - *Trainer: The trainer.
func New(cfg Config, extractor inference.FeatureExtractor, backbone inference.BackboneConfig,
	head *models.Head, logger *zap.Logger,
) *Trainer {
	runID := uuid.NewString()
	return &Trainer{
		cfg:       cfg,
		extractor: extractor,
		backbone:  backbone,
		head:      head,
		logger:    logger.With(zap.String("run_id", runID)),
		runID:     runID,
	}
}

// RunID identifies this run in logs and artifacts.
func (t *Trainer) RunID() string {
	return t.runID
}

// Run trains the head and exports the best weights.
//
// Arguments:
//   - ctx: Cancels the run between batches.
//   - ds: The loaded dataset.
//
// Returns:
//   - *Result: The exported head and the run history.
//   - error: DatasetEmpty for unusable datasets, or any extraction, optimisation or I/O error.
func (t *Trainer) Run(ctx context.Context, ds *dataset.Dataset) (*Result, error) {
	const op = "training.Run"
	started := time.Now()

	fire, noFire := ds.Count(dataset.Fire), ds.Count(dataset.NoFire)
	t.logger.Info("class balance", zap.Int("fire", fire), zap.Int("no_fire", noFire))
	if fire == 0 || noFire == 0 {
		return nil, common.Ef(common.KindDatasetEmpty, op,
			"only one class present (fire=%d, no_fire=%d)", fire, noFire)
	}

	trainIdx, valIdx, err := Split(ds.Len(), t.cfg.ValidationSplit, t.cfg.Seed)
	if err != nil {
		return nil, err
	}

	valFeatures := make([][]float32, len(valIdx))
	valLabels := make([]dataset.Label, len(valIdx))
	for i, idx := range valIdx {
		if valFeatures[i], err = t.extractor.Extract(ds.Images[idx]); err != nil {
			return nil, errors.Wrapf(err, "extracting features of %s", ds.Paths[idx])
		}
		valLabels[i] = ds.Labels[idx]
	}

	spatial, _ := t.extractor.FeatureShape()
	batch := t.cfg.BatchSize
	if batch > len(trainIdx) {
		batch = len(trainIdx)
	}
	graph, err := models.NewHeadGraph(t.head, batch, spatial, t.cfg.LearningRate, t.cfg.Seed+2)
	if err != nil {
		return nil, err
	}
	defer graph.Close()

	callbacks := []Callback{&EarlyStopping{Patience: t.cfg.Patience}}
	if t.cfg.CheckpointPath != "" {
		callbacks = append(callbacks, &Checkpoint{
			Path:     t.cfg.CheckpointPath,
			Backbone: t.backbone,
			RunID:    t.runID,
			Logger:   t.logger,
		})
	}
	callbacks = append(callbacks, t.Callbacks...)

	history := &History{
		RunID:      t.runID,
		StartedAt:  started.UTC(),
		Dataset:    ds.Stats,
		Train:      len(trainIdx),
		Validation: len(valIdx),
	}
	t.logger.Info("training started",
		zap.Int("train", len(trainIdx)),
		zap.Int("validation", len(valIdx)),
		zap.Int("epochs", t.cfg.Epochs),
		zap.Int("batch", batch))

	aug := images.NewAugmenter(t.cfg.Augmentation, ds.Size, t.cfg.Seed)
	order := rng.NewUniformGenerator(t.cfg.Seed + 1)

	best := t.head.Clone()
	bestLoss := math32.Inf(1)

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		loss, acc, err := t.epoch(ctx, graph, ds, trainIdx, aug, order)
		if err != nil {
			return nil, err
		}

		weights, err := graph.Weights()
		if err != nil {
			return nil, err
		}
		valLoss, valAcc, err := evaluate(weights, valFeatures, valLabels)
		if err != nil {
			return nil, err
		}

		m := EpochMetrics{Epoch: epoch, Loss: loss, Accuracy: acc, ValLoss: valLoss, ValAccuracy: valAcc}
		history.Epochs = append(history.Epochs, m)
		t.logger.Info("epoch finished",
			zap.Int("epoch", epoch),
			zap.Float32("loss", loss),
			zap.Float32("accuracy", acc),
			zap.Float32("val_loss", valLoss),
			zap.Float32("val_accuracy", valAcc))

		if valLoss < bestLoss {
			bestLoss = valLoss
			best = weights
			history.BestEpoch = epoch
		}

		stop := false
		for _, cb := range callbacks {
			s, err := cb.OnEpochEnd(m, weights)
			if err != nil {
				return nil, err
			}
			stop = stop || s
		}
		if stop && epoch < t.cfg.Epochs {
			history.StoppedEarly = true
			t.logger.Info("early stopping", zap.Int("epoch", epoch), zap.Int("best_epoch", history.BestEpoch))
			break
		}
	}

	if err := models.Save(t.cfg.ArtifactPath, models.NewArtifact(t.backbone, best, t.runID)); err != nil {
		return nil, err
	}
	history.Duration = time.Since(started)
	t.logger.Info("model exported",
		zap.String("path", t.cfg.ArtifactPath),
		zap.Int("best_epoch", history.BestEpoch),
		zap.Duration("took", history.Duration))

	if t.cfg.HistoryPath != "" {
		if err := WriteHistory(t.cfg.HistoryPath, history); err != nil {
			return nil, err
		}
	}

	return &Result{RunID: t.runID, Head: best, History: history, ArtifactPath: t.cfg.ArtifactPath}, nil
}

// epoch runs one pass over the training split with fresh augmentation.
//
// The last batch is topped up from the start of the shuffled order so every
// step sees a full batch.
func (t *Trainer) epoch(ctx context.Context, graph *models.HeadGraph, ds *dataset.Dataset,
	trainIdx []int, aug *images.Augmenter, order *rng.UniformGenerator,
) (float32, float32, error) {
	idx := append([]int(nil), trainIdx...)
	shuffle(order, idx)

	batch := graph.Batch()
	steps := (len(idx) + batch - 1) / batch

	var lossSum float32
	correct := 0
	features := make([][]float32, batch)
	labels := make([]float32, batch)

	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		for k := 0; k < batch; k++ {
			i := idx[(step*batch+k)%len(idx)]
			sample, err := aug.Augment(ds.Images[i])
			if err != nil {
				return 0, 0, errors.Wrapf(err, "augmenting %s", ds.Paths[i])
			}
			if features[k], err = t.extractor.Extract(sample); err != nil {
				return 0, 0, errors.Wrapf(err, "extracting features of %s", ds.Paths[i])
			}
			labels[k] = float32(ds.Labels[i])
		}

		loss, ok, err := graph.Step(features, labels)
		if err != nil {
			return 0, 0, err
		}
		lossSum += loss
		correct += ok
	}

	return lossSum / float32(steps), float32(correct) / float32(steps*batch), nil
}

// evaluate computes the mean binary cross-entropy and the accuracy of a head.
func evaluate(head *models.Head, features [][]float32, labels []dataset.Label) (float32, float32, error) {
	const eps = 1e-7

	var loss float32
	correct := 0
	for i, f := range features {
		p, err := head.Forward(f)
		if err != nil {
			return 0, 0, err
		}
		if labels[i] == dataset.Fire {
			loss -= math32.Log(p + eps)
		} else {
			loss -= math32.Log(1 - p + eps)
		}
		if (p > 0.5) == (labels[i] == dataset.Fire) {
			correct++
		}
	}

	n := float32(len(features))
	return loss / n, float32(correct) / n, nil
}
