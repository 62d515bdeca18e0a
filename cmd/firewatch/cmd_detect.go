package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-firewatch/common"
	"github.com/nvr-ai/go-firewatch/images"
	"github.com/nvr-ai/go-firewatch/inference"
	"github.com/nvr-ai/go-firewatch/live"
)

func newDetectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run live fire detection on a camera or video file",
		Long: `Opens the exported model and the capture device, and overlays the verdict on
every frame until the quit key is pressed or the stream ends.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if path, _ := flags.GetString("model"); path != "" {
				a.cfg.Model.ArtifactPath = path
			}
			if flags.Changed("device") {
				a.cfg.Live.DeviceID, _ = flags.GetInt("device")
			}
			if path, _ := flags.GetString("video"); path != "" {
				a.cfg.Live.VideoPath = path
			}
			if headless, _ := flags.GetBool("headless"); headless {
				a.cfg.Live.ShowWindow = false
			}
			return a.detect(cmd)
		},
	}
	cmd.Flags().String("model", "", "Exported model path")
	cmd.Flags().Int("device", 0, "Capture device index")
	cmd.Flags().String("video", "", "Video file to read instead of a device")
	cmd.Flags().Bool("headless", false, "Do not open a window")
	return cmd
}

func (a *app) detect(cmd *cobra.Command) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	runtimeReady := false
	defer func() {
		if runtimeReady {
			if err := inference.ShutdownRuntime(); err != nil {
				a.logger.Warn("onnxruntime shutdown", zap.Error(err))
			}
		}
	}()

	opts, err := sessionOptions(cfg)
	if err != nil {
		return err
	}

	deps := live.DefaultDeps(opts)
	loadModel := deps.LoadModel
	deps.LoadModel = func(path string) (live.Classifier, images.Size, error) {
		if err := inference.InitRuntime(cfg.Runtime.LibraryPath); err != nil {
			return nil, images.Size{}, err
		}
		runtimeReady = true
		return loadModel(path)
	}

	session, err := live.Open(liveConfig(cfg), deps, a.logger)
	if err != nil {
		return err
	}

	stats, err := session.Run(cmd.Context())
	if common.KindOf(err) == common.KindFrameAcquisitionFailed {
		a.logger.Warn("stream ended", zap.Error(err))
		err = nil
	}
	if err != nil {
		return err
	}

	writeDetectionSummary(a.stdout, stats)
	return nil
}
