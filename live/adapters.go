package live

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-firewatch/images"
	"github.com/nvr-ai/go-firewatch/inference"
	"github.com/nvr-ai/go-firewatch/models"
)

// Camera is a source of frames.
type Camera interface {
	// Read fills frame and reports whether a frame was acquired.
	Read(frame *gocv.Mat) bool
	Close() error
}

// Display shows annotated frames and reports key presses.
type Display interface {
	Show(frame gocv.Mat) error
	// WaitKey waits up to delay milliseconds and returns the pressed key, or -1.
	WaitKey(delay int) int
	Close() error
}

// Classifier returns the fire probability of a normalised sample.
type Classifier interface {
	Predict(sample []float32) (float32, error)
	Close() error
}

// Deps opens the resources of a session.
type Deps struct {
	// LoadModel loads the artifact and returns the classifier with its input size.
	LoadModel   func(path string) (Classifier, images.Size, error)
	OpenCamera  func(cfg Config) (Camera, error)
	OpenDisplay func(title string) (Display, error)
}

// DefaultDeps opens real models, capture devices and windows.
func DefaultDeps(session inference.SessionOptions) Deps {
	return Deps{
		LoadModel: func(path string) (Classifier, images.Size, error) {
			a, err := models.Load(path)
			if err != nil {
				return nil, images.Size{}, err
			}
			m, err := models.FromArtifact(a, session)
			if err != nil {
				return nil, images.Size{}, err
			}
			return m, m.Size, nil
		},
		OpenCamera:  OpenCamera,
		OpenDisplay: OpenDisplay,
	}
}

type videoCapture struct {
	cap *gocv.VideoCapture
}

func (c *videoCapture) Read(frame *gocv.Mat) bool {
	return c.cap.Read(frame)
}

func (c *videoCapture) Close() error {
	return c.cap.Close()
}

// OpenCamera opens the video file when one is configured, the capture device otherwise.
func OpenCamera(cfg Config) (Camera, error) {
	var source interface{} = cfg.DeviceID
	if cfg.VideoPath != "" {
		source = cfg.VideoPath
	}

	vc, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, errors.Wrapf(err, "opening capture %v", source)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Errorf("capture %v is not open", source)
	}
	return &videoCapture{cap: vc}, nil
}

type window struct {
	win *gocv.Window
}

func (w *window) Show(frame gocv.Mat) error {
	return w.win.IMShow(frame)
}

func (w *window) WaitKey(delay int) int {
	return w.win.WaitKey(delay)
}

func (w *window) Close() error {
	return w.win.Close()
}

// OpenDisplay opens a window.
func OpenDisplay(title string) (Display, error) {
	return &window{win: gocv.NewWindow(title)}, nil
}
