package live

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-firewatch/common"
	"github.com/nvr-ai/go-firewatch/images"
)

var modelSize = images.Size{Width: 128, Height: 128}

// fakeCamera yields black frames and fails on read failAt (1-based, 0 never fails).
type fakeCamera struct {
	failAt int
	reads  int
	closed int
	empty  bool
}

func (c *fakeCamera) Read(frame *gocv.Mat) bool {
	c.reads++
	if c.failAt > 0 && c.reads >= c.failAt {
		return false
	}
	if c.empty {
		empty := gocv.NewMat()
		defer empty.Close()
		empty.CopyTo(frame)
		return true
	}
	black := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer black.Close()
	black.CopyTo(frame)
	return true
}

func (c *fakeCamera) Close() error {
	c.closed++
	return nil
}

// fakeDisplay presses keys from a script, one per WaitKey call, and fails
// the Show calls listed in failShow (1-based).
type fakeDisplay struct {
	keys     []int
	failShow map[int]bool
	calls    int
	shown    int
	waits    int
	closed   int
}

func (d *fakeDisplay) Show(gocv.Mat) error {
	d.calls++
	if d.failShow[d.calls] {
		return errors.New("window gone")
	}
	d.shown++
	return nil
}

func (d *fakeDisplay) WaitKey(int) int {
	d.waits++
	if len(d.keys) == 0 {
		return -1
	}
	k := d.keys[0]
	d.keys = d.keys[1:]
	return k
}

func (d *fakeDisplay) Close() error {
	d.closed++
	return nil
}

// fakeClassifier returns fixed probabilities in turn and records the last sample.
type fakeClassifier struct {
	probs  []float32
	errs   []error
	calls  int
	last   []float32
	closed int
}

func (m *fakeClassifier) Predict(sample []float32) (float32, error) {
	i := m.calls
	m.calls++
	m.last = sample
	if i < len(m.errs) && m.errs[i] != nil {
		return 0, m.errs[i]
	}
	return m.probs[i%len(m.probs)], nil
}

func (m *fakeClassifier) Close() error {
	m.closed++
	return nil
}

type fixture struct {
	cfg     Config
	camera  *fakeCamera
	display *fakeDisplay
	model   *fakeClassifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	artifact := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(artifact, []byte("model"), 0o644))

	return &fixture{
		cfg: Config{
			ArtifactPath: artifact,
			Threshold:    0.7,
			WindowTitle:  "Fire Detection",
			ShowWindow:   true,
			QuitKey:      'q',
		},
		camera:  &fakeCamera{},
		display: &fakeDisplay{},
		model:   &fakeClassifier{probs: []float32{0.1}},
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		LoadModel:   func(string) (Classifier, images.Size, error) { return f.model, modelSize, nil },
		OpenCamera:  func(Config) (Camera, error) { return f.camera, nil },
		OpenDisplay: func(string) (Display, error) { return f.display, nil },
	}
}

func (f *fixture) open(t *testing.T) *Session {
	t.Helper()
	s, err := Open(f.cfg, f.deps(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestCameraFailureStopsLoopAndCleansUpOnce(t *testing.T) {
	f := newFixture(t)
	f.camera.failAt = 5
	s := f.open(t)

	stats, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrFrameAcquisitionFailed))

	assert.Equal(t, Stopped, s.State())
	assert.Equal(t, 5, f.camera.reads, "no read after the failing one")
	assert.Equal(t, 4, stats.Frames)
	assert.Equal(t, 4, f.display.shown)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, f.camera.closed)
	assert.Equal(t, 1, f.display.closed)
	assert.Equal(t, 1, f.model.closed)
}

func TestQuitKeyStopsLoop(t *testing.T) {
	f := newFixture(t)
	f.display.keys = []int{-1, 'x', 'q' | 0x100000}
	s := f.open(t)

	stats, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "quit key", stats.Reason)
	assert.Equal(t, 3, f.camera.reads)
	assert.Equal(t, 3, stats.Frames)
	assert.Equal(t, 1, f.camera.closed)
}

func TestCancelledContextStopsLoop(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", stats.Reason)
	assert.Zero(t, f.camera.reads)
	assert.Equal(t, 1, f.model.closed)
}

func TestInferenceFailuresAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.camera.failAt = 4
	f.model.errs = []error{nil, errors.New("session hiccup"), nil}
	s := f.open(t)

	stats, err := s.Run(context.Background())
	assert.Equal(t, common.KindFrameAcquisitionFailed, common.KindOf(err))

	assert.Equal(t, 2, stats.Frames)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 2, f.display.shown)
	assert.Equal(t, 3, f.display.waits, "the quit key is polled after failed frames too")
}

func TestDisplayFailuresAreCounted(t *testing.T) {
	f := newFixture(t)
	f.camera.failAt = 4
	f.display.failShow = map[int]bool{2: true}
	s := f.open(t)

	stats, err := s.Run(context.Background())
	assert.Equal(t, common.KindFrameAcquisitionFailed, common.KindOf(err))

	assert.Equal(t, 2, stats.Frames)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 3, f.model.calls)
	assert.Equal(t, 2, f.display.shown)
}

func TestStepReportsDisplayFailure(t *testing.T) {
	f := newFixture(t)
	f.display.failShow = map[int]bool{1: true}
	s := f.open(t)
	defer s.Close()

	frame := gocv.NewMatWithSize(128, 128, gocv.MatTypeCV8UC3)
	defer frame.Close()

	_, err := s.Step(&frame)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInferenceFailed))
	assert.True(t, common.KindOf(err).Recoverable())
}

func TestOpenCreatesSnapshotDirectory(t *testing.T) {
	f := newFixture(t)
	f.cfg.SnapshotDir = filepath.Join(t.TempDir(), "snapshots", "fire")
	s := f.open(t)
	defer s.Close()

	info, err := os.Stat(f.cfg.SnapshotDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenRejectsUnusableSnapshotDirectory(t *testing.T) {
	f := newFixture(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	f.cfg.SnapshotDir = filepath.Join(blocker, "snapshots")
	loads := 0
	deps := f.deps()
	deps.LoadModel = func(string) (Classifier, images.Size, error) {
		loads++
		return f.model, modelSize, nil
	}

	_, err := Open(f.cfg, deps, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot directory")
	assert.Zero(t, loads)
}

func TestEmptyFramesAreRecoverable(t *testing.T) {
	f := newFixture(t)
	f.camera.failAt = 3
	f.camera.empty = true
	s := f.open(t)

	stats, _ := s.Run(context.Background())
	assert.Equal(t, 2, stats.Failures)
	assert.Zero(t, f.model.calls)
}

func TestStepRendersVerdicts(t *testing.T) {
	tests := []struct {
		name  string
		color gocv.Scalar
		prob  float32
		want  string
		fire  bool
	}{
		{"black frame", gocv.NewScalar(0, 0, 0, 0), 0.1, "No Fire (0.10)", false},
		{"red frame", gocv.NewScalar(0, 0, 255, 0), 0.95, "Fire Detected (0.95)", true},
		{"at threshold", gocv.NewScalar(0, 0, 255, 0), 0.70, "No Fire (0.70)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.model.probs = []float32{tt.prob}
			s := f.open(t)
			defer s.Close()

			frame := gocv.NewMatWithSizeFromScalar(tt.color, 128, 128, gocv.MatTypeCV8UC3)
			defer frame.Close()

			v, err := s.Step(&frame)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Text())
			assert.Equal(t, tt.fire, v.Fire)
			assert.Equal(t, 1, f.display.shown)

			require.Len(t, f.model.last, modelSize.Len())
			if tt.fire {
				// Red lands in the last BGR channel.
				assert.InDelta(t, 1.0, f.model.last[2], 1e-5)
				assert.InDelta(t, 0.0, f.model.last[0], 1e-5)
			}
		})
	}
}

func TestOpenMissingArtifact(t *testing.T) {
	f := newFixture(t)
	f.cfg.ArtifactPath = filepath.Join(t.TempDir(), "missing.bin")
	loads := 0
	deps := f.deps()
	deps.LoadModel = func(string) (Classifier, images.Size, error) {
		loads++
		return f.model, modelSize, nil
	}

	_, err := Open(f.cfg, deps, zap.NewNop())
	assert.True(t, errors.Is(err, common.ErrArtifactNotFound))
	assert.Zero(t, loads)
}

func TestOpenCameraFailureReleasesModel(t *testing.T) {
	f := newFixture(t)
	deps := f.deps()
	deps.OpenCamera = func(Config) (Camera, error) { return nil, errors.New("no such device") }

	_, err := Open(f.cfg, deps, zap.NewNop())
	assert.True(t, errors.Is(err, common.ErrDeviceUnavailable))
	assert.Equal(t, 1, f.model.closed)
}

func TestHeadlessSessionNeverWaitsForKeys(t *testing.T) {
	f := newFixture(t)
	f.cfg.ShowWindow = false
	f.camera.failAt = 3
	s := f.open(t)

	_, _ = s.Run(context.Background())
	assert.Zero(t, f.display.waits)
	assert.Zero(t, f.display.closed)
}

func TestSnapshotsRespectCooldown(t *testing.T) {
	f := newFixture(t)
	f.cfg.SnapshotDir = t.TempDir()
	f.cfg.SnapshotCooldown = time.Hour
	f.camera.failAt = 4
	f.model.probs = []float32{0.9}
	s := f.open(t)

	var written []string
	s.writeImage = func(name string, _ gocv.Mat) bool {
		written = append(written, name)
		return true
	}

	stats, _ := s.Run(context.Background())
	assert.Equal(t, 3, stats.Fire)
	assert.Equal(t, 1, stats.Snapshots)
	require.Len(t, written, 1)
	assert.Equal(t, f.cfg.SnapshotDir, filepath.Dir(written[0]))
}
