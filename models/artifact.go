package models

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-firewatch/common"
	"github.com/nvr-ai/go-firewatch/images"
	"github.com/nvr-ai/go-firewatch/inference"
)

// ArtifactVersion is bumped whenever the artifact layout changes.
const ArtifactVersion = 1

// Artifact is a self-contained trained model: the backbone graph and the head weights.
type Artifact struct {
	Version   int
	Width     int
	Height    int
	Channels  int
	Backbone  []byte
	InputName string
	// OutputName is the backbone feature map node.
	OutputName string
	Layout     inference.Layout
	Head       Head
	RunID      string
	CreatedAt  time.Time
}

// NewArtifact captures a backbone description and trained head weights.
func NewArtifact(backbone inference.BackboneConfig, head *Head, runID string) *Artifact {
	return &Artifact{
		Version:    ArtifactVersion,
		Width:      backbone.Size.Width,
		Height:     backbone.Size.Height,
		Channels:   images.Channels,
		Backbone:   backbone.ONNX,
		InputName:  backbone.InputName,
		OutputName: backbone.OutputName,
		Layout:     backbone.Layout,
		Head:       *head.Clone(),
		RunID:      runID,
		CreatedAt:  time.Now().UTC(),
	}
}

// Size is the input resolution the model was trained with.
func (a *Artifact) Size() images.Size {
	return images.Size{Width: a.Width, Height: a.Height}
}

// BackboneConfig rebuilds the backbone description.
func (a *Artifact) BackboneConfig(session inference.SessionOptions) inference.BackboneConfig {
	return inference.BackboneConfig{
		ONNX:       a.Backbone,
		InputName:  a.InputName,
		OutputName: a.OutputName,
		Layout:     a.Layout,
		Size:       a.Size(),
		Session:    session,
	}
}

// Save writes an artifact, replacing any existing file only once the new one is complete.
//
// Arguments:
//   - path: The destination file.
//   - a: The artifact.
//
// Returns:
//   - error: An error if the file cannot be written.
func Save(path string, a *Artifact) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temporary artifact")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := gob.NewEncoder(tmp).Encode(a); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "encoding artifact")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "syncing artifact")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing artifact")
	}

	return errors.Wrapf(os.Rename(tmp.Name(), path), "replacing %s", path)
}

// Load reads an artifact written by Save.
//
// Arguments:
//   - path: The artifact file.
//
// Returns:
//   - *Artifact: The artifact.
//   - error: ArtifactNotFound if the file does not exist, or a decode error.
func Load(path string) (*Artifact, error) {
	const op = "models.Load"

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.Ef(common.KindArtifactNotFound, op, "no such file %s", path)
		}
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var a Artifact
	if err := gob.NewDecoder(f).Decode(&a); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	if a.Version != ArtifactVersion {
		return nil, errors.Errorf("%s has artifact version %d, expected %d", path, a.Version, ArtifactVersion)
	}
	if err := a.Head.Validate(); err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}

	return &a, nil
}

// FromArtifact opens the artifact backbone and attaches its head.
//
// Arguments:
//   - a: The artifact.
//   - session: Threads and execution provider of the backbone session.
//
// Returns:
//   - *Model: The model, to be closed by the caller.
//   - error: An error if the backbone cannot be opened or does not fit the head.
func FromArtifact(a *Artifact, session inference.SessionOptions) (*Model, error) {
	backbone, err := inference.NewBackbone(a.BackboneConfig(session))
	if err != nil {
		return nil, errors.Wrap(err, "opening backbone")
	}

	m, err := New(backbone, a.Head.Clone(), a.Size())
	if err != nil {
		backbone.Close()
		return nil, err
	}
	m.RunID = a.RunID
	return m, nil
}
