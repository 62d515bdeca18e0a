package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-firewatch/common"
	"github.com/nvr-ai/go-firewatch/dataset"
	"github.com/nvr-ai/go-firewatch/live"
	"github.com/nvr-ai/go-firewatch/models"
	"github.com/nvr-ai/go-firewatch/util"
)

func newPredictCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict <image>...",
		Short: "Classify still images with the exported model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path, _ := cmd.Flags().GetString("model"); path != "" {
				a.cfg.Model.ArtifactPath = path
			}
			return a.predict(args)
		},
	}
	cmd.Flags().String("model", "", "Exported model path")
	return cmd
}

func (a *app) predict(paths []string) error {
	const op = "predict"
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !util.FileExists(cfg.Model.ArtifactPath) {
		return common.Ef(common.KindArtifactNotFound, op, "no model at %s", cfg.Model.ArtifactPath)
	}

	session, err := sessionOptions(cfg)
	if err != nil {
		return err
	}
	artifact, err := models.Load(cfg.Model.ArtifactPath)
	if err != nil {
		return err
	}

	return withRuntime(cfg, a.logger, func() error {
		model, err := models.FromArtifact(artifact, session)
		if err != nil {
			return err
		}
		defer model.Close()

		failed := 0
		for _, path := range paths {
			sample, err := dataset.ImageDecoder{}.Decode(path, model.Size)
			if err != nil {
				failed++
				a.logger.Warn("cannot decode image", zap.String("path", path), zap.Error(err))
				continue
			}
			p, err := model.Predict(sample)
			if err != nil {
				return errors.Wrapf(err, "predicting %s", path)
			}
			fmt.Fprintln(a.stdout, renderVerdict(path, live.Classify(p, cfg.Live.Threshold)))
		}

		if failed > 0 {
			return errors.Errorf("%d of %d images could not be decoded", failed, len(paths))
		}
		return nil
	})
}
