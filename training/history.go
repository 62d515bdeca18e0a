package training

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-firewatch/dataset"
)

// History records a training run.
type History struct {
	RunID        string         `yaml:"run_id"`
	StartedAt    time.Time      `yaml:"started_at"`
	Duration     time.Duration  `yaml:"duration"`
	Dataset      dataset.Stats  `yaml:"dataset"`
	Train        int            `yaml:"train_samples"`
	Validation   int            `yaml:"validation_samples"`
	BestEpoch    int            `yaml:"best_epoch"`
	StoppedEarly bool           `yaml:"stopped_early"`
	Epochs       []EpochMetrics `yaml:"epochs"`
}

// Best returns the metrics of the best epoch.
func (h *History) Best() (EpochMetrics, bool) {
	for _, m := range h.Epochs {
		if m.Epoch == h.BestEpoch {
			return m, true
		}
	}
	return EpochMetrics{}, false
}

// WriteHistory writes a history as YAML.
func WriteHistory(path string, h *History) error {
	out, err := yaml.Marshal(h)
	if err != nil {
		return errors.Wrap(err, "encoding history")
	}
	return errors.Wrapf(os.WriteFile(path, out, 0o644), "writing %s", path)
}

// ReadHistory reads a history written by WriteHistory.
func ReadHistory(path string) (*History, error) {
	in, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	var h History
	if err := yaml.Unmarshal(in, &h); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return &h, nil
}
