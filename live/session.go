package live

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-firewatch/common"
	"github.com/nvr-ai/go-firewatch/images"
	"github.com/nvr-ai/go-firewatch/profiler"
	"github.com/nvr-ai/go-firewatch/util"
)

// State is the loop state.
type State int

const (
	// Running means frames are being processed.
	Running State = iota
	// Stopped means the loop has ended and resources are released or about to be.
	Stopped
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Config drives a session.
type Config struct {
	ArtifactPath string
	DeviceID     int
	VideoPath    string
	Threshold    float64
	WindowTitle  string
	ShowWindow   bool
	// QuitKey stops the loop when pressed in the window.
	QuitKey byte
	// SnapshotDir receives annotated fire frames when set.
	SnapshotDir      string
	SnapshotCooldown time.Duration
}

// Stats summarises a run.
type Stats struct {
	Frames    int
	Fire      int
	Failures  int
	Snapshots int
	FPS       float64
	// Reason is why the loop stopped.
	Reason string
}

// Session owns the camera, the window and the model for one run of the loop.
type Session struct {
	cfg     Config
	camera  Camera
	display Display
	model   Classifier
	size    images.Size
	logger  *zap.Logger
	tracker *profiler.Tracker

	state        State
	closed       bool
	lastSnapshot time.Time
	writeImage   func(name string, img gocv.Mat) bool
}

// Open acquires the model, the camera and, if enabled, the window.
//
// Whatever was acquired before a failure is released before returning.
//
// Arguments:
//   - cfg: The session configuration.
//   - deps: Opens the resources.
//   - logger: The logger.
//
// Returns:
//   - *Session: The session, to be closed by the caller.
//   - error: ArtifactNotFound, DeviceUnavailable, a model loading error or an
//     unusable snapshot directory.
func Open(cfg Config, deps Deps, logger *zap.Logger) (*Session, error) {
	const op = "live.Open"

	if !util.FileExists(cfg.ArtifactPath) {
		return nil, common.Ef(common.KindArtifactNotFound, op, "no model at %s", cfg.ArtifactPath)
	}
	if cfg.SnapshotDir != "" {
		if err := os.MkdirAll(cfg.SnapshotDir, 0o755); err != nil {
			return nil, errors.Wrap(err, "creating snapshot directory")
		}
	}

	model, size, err := deps.LoadModel(cfg.ArtifactPath)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", cfg.ArtifactPath)
	}
	logger.Info("model loaded", zap.String("path", cfg.ArtifactPath),
		zap.Int("width", size.Width), zap.Int("height", size.Height))

	camera, err := deps.OpenCamera(cfg)
	if err != nil {
		model.Close()
		return nil, common.E(common.KindDeviceUnavailable, op, err)
	}

	s := &Session{
		cfg:        cfg,
		camera:     camera,
		model:      model,
		size:       size,
		logger:     logger,
		tracker:    profiler.NewTracker(0),
		writeImage: gocv.IMWrite,
	}

	if cfg.ShowWindow {
		if s.display, err = deps.OpenDisplay(cfg.WindowTitle); err != nil {
			s.Close()
			return nil, errors.Wrap(err, "opening window")
		}
	}

	return s, nil
}

// State returns the loop state.
func (s *Session) State() State {
	return s.state
}

// Run processes frames until the quit key, context cancellation, camera failure
// or an unrecoverable error. The session is closed when Run returns.
//
// Arguments:
//   - ctx: Stops the loop before the next frame.
//
// Returns:
//   - Stats: What the loop processed.
//   - error: FrameAcquisitionFailed when the camera stops producing frames, or an
//     unrecoverable step error. Quitting and cancellation return nil.
func (s *Session) Run(ctx context.Context) (Stats, error) {
	const op = "live.Run"

	var stats Stats
	defer s.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	fps := profiler.NewFPS(time.Now())
	s.state = Running
	s.logger.Info("detection started", zap.String("source", s.source()))

	stop := func(reason string) {
		s.state = Stopped
		stats.Reason = reason
		stats.FPS = fps.Value()
		s.logger.Info("detection stopped",
			zap.String("reason", reason),
			zap.Int("frames", stats.Frames),
			zap.Int("fire", stats.Fire),
			zap.Int("failures", stats.Failures))
		s.tracker.Log(s.logger)
	}

	for {
		if err := ctx.Err(); err != nil {
			stop("cancelled")
			return stats, nil
		}

		done := s.tracker.StartOperation("capture")
		ok := s.camera.Read(&frame)
		done()
		if !ok {
			stop(common.KindFrameAcquisitionFailed.String())
			return stats, common.Ef(common.KindFrameAcquisitionFailed, op, "cannot read %s", s.source())
		}

		verdict, err := s.Step(&frame)
		switch {
		case err == nil:
			stats.Frames++
			fps.Tick(time.Now())
			if verdict.Fire {
				stats.Fire++
				if s.snapshot(frame, verdict) {
					stats.Snapshots++
				}
			}
		case common.KindOf(err).Recoverable():
			stats.Failures++
			s.logger.Warn("frame skipped", zap.Error(err))
		default:
			stop(err.Error())
			return stats, err
		}

		if s.display != nil && s.quitPressed() {
			stop("quit key")
			return stats, nil
		}
	}
}

// Step preprocesses, classifies, annotates and displays one frame.
//
// Arguments:
//   - frame: The captured frame; the overlay is drawn on it.
//
// Returns:
//   - Verdict: The decision.
//   - error: InferenceFailed if the frame cannot be preprocessed, classified,
//     annotated or displayed.
func (s *Session) Step(frame *gocv.Mat) (Verdict, error) {
	const op = "live.Step"

	if frame.Empty() {
		return Verdict{}, common.Ef(common.KindInferenceFailed, op, "empty frame")
	}

	done := s.tracker.StartOperation("preprocess")
	sample, err := images.MatToTensor(*frame, s.size)
	done()
	if err != nil {
		return Verdict{}, common.E(common.KindInferenceFailed, op, err)
	}

	done = s.tracker.StartOperation("predict")
	p, err := s.model.Predict(sample)
	done()
	if err != nil {
		return Verdict{}, common.E(common.KindInferenceFailed, op, err)
	}

	v := Classify(p, s.cfg.Threshold)
	err = gocv.PutText(frame, v.Text(), image.Pt(10, 30), gocv.FontHersheySimplex, 1, v.Color, 2)
	if err != nil {
		return v, common.E(common.KindInferenceFailed, op, errors.Wrap(err, "drawing overlay"))
	}

	if s.display != nil {
		if err := s.display.Show(*frame); err != nil {
			return v, common.E(common.KindInferenceFailed, op, errors.Wrap(err, "showing frame"))
		}
	}
	return v, nil
}

func (s *Session) quitPressed() bool {
	key := s.display.WaitKey(1)
	return key >= 0 && key&0xFF == int(s.cfg.QuitKey)
}

// snapshot writes an annotated fire frame, at most once per cooldown.
func (s *Session) snapshot(frame gocv.Mat, v Verdict) bool {
	if s.cfg.SnapshotDir == "" {
		return false
	}
	now := time.Now()
	if !s.lastSnapshot.IsZero() && now.Sub(s.lastSnapshot) < s.cfg.SnapshotCooldown {
		return false
	}

	name := filepath.Join(s.cfg.SnapshotDir,
		fmt.Sprintf("fire_%s_%03.0f.jpg", now.UTC().Format("20060102T150405.000"), v.Probability*100))
	if !s.writeImage(name, frame) {
		s.logger.Warn("snapshot not written", zap.String("path", name))
		return false
	}

	s.lastSnapshot = now
	s.logger.Info("snapshot written", zap.String("path", name), zap.Float32("probability", v.Probability))
	return true
}

func (s *Session) source() string {
	if s.cfg.VideoPath != "" {
		return s.cfg.VideoPath
	}
	return fmt.Sprintf("device %d", s.cfg.DeviceID)
}

// Close releases the camera, the window and the model. Only the first call has an effect.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.state = Stopped

	var errs []error
	if err := s.camera.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "closing camera"))
	}
	if s.display != nil {
		if err := s.display.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "closing window"))
		}
	}
	if err := s.model.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "closing model"))
	}

	if len(errs) > 0 {
		for _, err := range errs[1:] {
			s.logger.Warn("cleanup error", zap.Error(err))
		}
		return errs[0]
	}
	return nil
}
