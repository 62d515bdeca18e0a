// Package dataset - Loading of the labelled fire / no-fire image directories.
package dataset

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nvr-ai/go-firewatch/common"
	"github.com/nvr-ai/go-firewatch/images"
	"github.com/nvr-ai/go-firewatch/util"
)

// Label is the binary class of a sample.
type Label int

const (
	// NoFire is the negative class.
	NoFire Label = 0
	// Fire is the positive class.
	Fire Label = 1
)

func (l Label) String() string {
	if l == Fire {
		return "fire"
	}
	return "no_fire"
}

// Config locates the class directories and the target resolution.
type Config struct {
	Root        string
	PositiveDir string
	NegativeDir string
	Size        images.Size
}

// ClassStats counts the outcome of loading one class directory.
type ClassStats struct {
	Loaded  int `yaml:"loaded"`
	Skipped int `yaml:"skipped"`
}

// Stats counts the outcome of a load, per class.
type Stats struct {
	Fire   ClassStats `yaml:"fire"`
	NoFire ClassStats `yaml:"no_fire"`
}

// Loaded is the total number of samples returned.
func (s Stats) Loaded() int {
	return s.Fire.Loaded + s.NoFire.Loaded
}

// Skipped is the total number of files that could not be decoded.
func (s Stats) Skipped() int {
	return s.Fire.Skipped + s.NoFire.Skipped
}

func (s *Stats) class(label Label) *ClassStats {
	if label == Fire {
		return &s.Fire
	}
	return &s.NoFire
}

// Dataset holds parallel samples, labels and source paths.
type Dataset struct {
	Images [][]float32
	Labels []Label
	Paths  []string
	Stats  Stats
	Size   images.Size
}

// Len is the number of samples.
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Count returns how many samples carry the given label.
func (d *Dataset) Count(label Label) int {
	n := 0
	for _, l := range d.Labels {
		if l == label {
			n++
		}
	}
	return n
}

// Decoder turns an image file into a normalised tensor.
type Decoder interface {
	Decode(path string, size images.Size) ([]float32, error)
}

// Load decodes every file of both class directories.
//
// Files that cannot be decoded are skipped and counted. Both directories are
// checked before anything is decoded.
//
// Arguments:
//   - ctx: Cancels the load between files.
//   - cfg: The directories and resolution.
//   - dec: The decoder applied to each file.
//   - logger: Receives skip and summary lines.
//
// Returns:
//   - *Dataset: The loaded samples, never empty.
//   - error: DatasetDirectoryMissing, DatasetEmpty, or the context error.
func Load(ctx context.Context, cfg Config, dec Decoder, logger *zap.Logger) (*Dataset, error) {
	const op = "dataset.Load"

	classes := []struct {
		label Label
		dir   string
	}{
		{Fire, filepath.Join(cfg.Root, cfg.PositiveDir)},
		{NoFire, filepath.Join(cfg.Root, cfg.NegativeDir)},
	}

	for _, c := range classes {
		if !util.IsDir(c.dir) {
			return nil, common.Ef(common.KindDatasetDirectoryMissing, op, "%s", c.dir)
		}
	}

	ds := &Dataset{Size: cfg.Size}

	for _, c := range classes {
		files, err := util.ListFiles(c.dir)
		if err != nil {
			return nil, common.E(common.KindDatasetDirectoryMissing, op, err)
		}

		stats := ds.Stats.class(c.label)
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			sample, err := dec.Decode(path, cfg.Size)
			if err != nil {
				stats.Skipped++
				logger.Debug("skipping undecodable file", zap.String("path", path), zap.Error(err))
				continue
			}

			ds.Images = append(ds.Images, sample)
			ds.Labels = append(ds.Labels, c.label)
			ds.Paths = append(ds.Paths, path)
			stats.Loaded++
		}

		if stats.Skipped > 0 {
			logger.Warn("skipped undecodable files",
				zap.Stringer("class", c.label),
				zap.String("dir", c.dir),
				zap.Int("skipped", stats.Skipped))
		}
	}

	if ds.Len() == 0 {
		return nil, common.Ef(common.KindDatasetEmpty, op, "no valid images under %s", cfg.Root)
	}

	logger.Info("dataset loaded",
		zap.Int("loaded", ds.Stats.Loaded()),
		zap.Int("fire", ds.Stats.Fire.Loaded),
		zap.Int("no_fire", ds.Stats.NoFire.Loaded),
		zap.Int("skipped", ds.Stats.Skipped()))

	return ds, nil
}
