package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-firewatch/dataset"
	"github.com/nvr-ai/go-firewatch/inference"
	"github.com/nvr-ai/go-firewatch/models"
	"github.com/nvr-ai/go-firewatch/training"
)

func newTrainCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the classifier head on a labelled dataset",
		Long: `Loads the fire and no-fire class directories, trains the classifier head on
top of the frozen backbone and exports the best weights.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if root, _ := cmd.Flags().GetString("dataset"); root != "" {
				a.cfg.Dataset.Root = root
			}
			if path, _ := cmd.Flags().GetString("model"); path != "" {
				a.cfg.Model.ArtifactPath = path
			}
			return a.train(cmd)
		},
	}
	cmd.Flags().String("dataset", "", "Dataset root containing the class directories")
	cmd.Flags().String("model", "", "Exported model path")
	return cmd
}

func (a *app) train(cmd *cobra.Command) error {
	cfg := a.cfg
	if err := cfg.ValidateTraining(); err != nil {
		return err
	}

	ds, err := dataset.Load(cmd.Context(), datasetConfig(cfg), dataset.GocvDecoder{}, a.logger)
	if err != nil {
		return err
	}

	backbone, err := backboneConfig(cfg)
	if err != nil {
		return err
	}

	return withRuntime(cfg, a.logger, func() error {
		model, err := models.Build(models.BuildConfig{
			Backbone:    backbone,
			HiddenUnits: cfg.Model.HiddenUnits,
			Dropout:     cfg.Model.Dropout,
			Seed:        cfg.Training.Seed,
		})
		if err != nil {
			return err
		}
		defer model.Close()

		if b, ok := model.Extractor.(*inference.Backbone); ok {
			// Pin the resolved nodes so the artifact reopens the same graph outputs.
			backbone.InputName, backbone.OutputName = b.Names()
			a.logger.Info("backbone opened",
				zap.String("input", backbone.InputName),
				zap.String("output", backbone.OutputName))
		}

		trainer := training.New(trainingConfig(cfg), model.Extractor, backbone, model.Head, a.logger)
		a.logger.Info("model built",
			zap.Int("trainable_params", model.TrainableParams()),
			zap.String("run_id", trainer.RunID()))

		res, err := trainer.Run(cmd.Context(), ds)
		if err != nil {
			return err
		}

		writeTrainingSummary(a.stdout, model.Summary(), res)
		return nil
	})
}
