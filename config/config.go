// Package config - Configuration for the training and live detection pipelines.
//
// Every tunable that used to be a source-level constant (paths, image size,
// threshold, epoch count, ...) lives here with a documented default. Values are
// read from an optional YAML file, then overridden by FIREWATCH_* environment
// variables (a .env file in the working directory is honoured).
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. FIREWATCH_LIVE_THRESHOLD.
const EnvPrefix = "FIREWATCH"

// Default values.
const (
	DefaultPositiveDir    = "Fire images"
	DefaultNegativeDir    = "Normal Images"
	DefaultImageSize      = 128
	DefaultBackbonePath   = "mobilenet_v2_128_notop.onnx"
	DefaultArtifactPath   = "fire_detection_model_mobilenet.bin"
	DefaultCheckpointPath = "best_fire_model.bin"
	DefaultHiddenUnits    = 128
	DefaultDropout        = 0.5
	DefaultEpochs         = 15
	DefaultBatchSize      = 32
	DefaultLearningRate   = 0.001
	DefaultValidation     = 0.2
	DefaultSeed           = 42
	DefaultPatience       = 5
	DefaultThreshold      = 0.7
	DefaultWindowTitle    = "Fire Detection"
	DefaultQuitKey        = "q"
)

// Config is the root configuration.
type Config struct {
	Dataset  DatasetConfig  `mapstructure:"dataset" yaml:"dataset"`
	Image    ImageConfig    `mapstructure:"image" yaml:"image"`
	Model    ModelConfig    `mapstructure:"model" yaml:"model"`
	Training TrainingConfig `mapstructure:"training" yaml:"training"`
	Live     LiveConfig     `mapstructure:"live" yaml:"live"`
	Runtime  RuntimeConfig  `mapstructure:"runtime" yaml:"runtime"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Sentry   SentryConfig   `mapstructure:"sentry" yaml:"sentry"`
}

// DatasetConfig locates the labelled training images.
type DatasetConfig struct {
	// Root contains the positive and negative class directories. Required for training.
	Root string `mapstructure:"root" yaml:"root"`
	// PositiveDir is the fire class directory, relative to Root.
	PositiveDir string `mapstructure:"positive_dir" yaml:"positive_dir"`
	// NegativeDir is the no-fire class directory, relative to Root.
	NegativeDir string `mapstructure:"negative_dir" yaml:"negative_dir"`
}

// ImageConfig is the input geometry every sample and frame is resized to.
// Tensors always carry three BGR channels.
type ImageConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// ModelConfig describes the backbone, the head and where artifacts are written.
type ModelConfig struct {
	// BackbonePath is the pretrained feature extractor (ONNX, no classification top).
	BackbonePath string `mapstructure:"backbone_path" yaml:"backbone_path"`
	// BackboneLayout is the backbone input layout, "nhwc" or "nchw".
	BackboneLayout string `mapstructure:"backbone_layout" yaml:"backbone_layout"`
	// ArtifactPath is the exported model read by the live loop.
	ArtifactPath string `mapstructure:"artifact_path" yaml:"artifact_path"`
	// CheckpointPath receives the best weights seen during training.
	CheckpointPath string `mapstructure:"checkpoint_path" yaml:"checkpoint_path"`
	// HiddenUnits is the width of the dense bottleneck.
	HiddenUnits int `mapstructure:"hidden_units" yaml:"hidden_units"`
	// Dropout is the drop probability applied during training only.
	Dropout float64 `mapstructure:"dropout" yaml:"dropout"`
}

// AugmentationConfig bounds the random training-time transformations.
type AugmentationConfig struct {
	// RotationDegrees is the maximum absolute rotation.
	RotationDegrees float64 `mapstructure:"rotation_degrees" yaml:"rotation_degrees"`
	// WidthShift is the maximum horizontal shift as a fraction of the width.
	WidthShift float64 `mapstructure:"width_shift" yaml:"width_shift"`
	// HeightShift is the maximum vertical shift as a fraction of the height.
	HeightShift float64 `mapstructure:"height_shift" yaml:"height_shift"`
	// Zoom is the maximum zoom deviation, scale is drawn from [1-Zoom, 1+Zoom].
	Zoom float64 `mapstructure:"zoom" yaml:"zoom"`
	// HorizontalFlip enables random mirroring.
	HorizontalFlip bool `mapstructure:"horizontal_flip" yaml:"horizontal_flip"`
}

// TrainingConfig drives the optimisation loop.
type TrainingConfig struct {
	Epochs          int                `mapstructure:"epochs" yaml:"epochs"`
	BatchSize       int                `mapstructure:"batch_size" yaml:"batch_size"`
	LearningRate    float64            `mapstructure:"learning_rate" yaml:"learning_rate"`
	ValidationSplit float64            `mapstructure:"validation_split" yaml:"validation_split"`
	// Seed drives the split, head initialisation, augmentation and dropout masks.
	Seed            int64              `mapstructure:"seed" yaml:"seed"`
	Patience        int                `mapstructure:"patience" yaml:"patience"`
	HistoryPath     string             `mapstructure:"history_path" yaml:"history_path"`
	Augmentation    AugmentationConfig `mapstructure:"augmentation" yaml:"augmentation"`
}

// LiveConfig drives the camera inference loop.
type LiveConfig struct {
	// DeviceID is the capture device index, used when VideoPath is empty.
	DeviceID int `mapstructure:"device_id" yaml:"device_id"`
	// VideoPath replays a video file instead of opening a camera.
	VideoPath string `mapstructure:"video_path" yaml:"video_path"`
	// Threshold is the fire probability above which a frame is flagged.
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
	// WindowTitle is the display window name.
	WindowTitle string `mapstructure:"window_title" yaml:"window_title"`
	// ShowWindow disables the display (and the quit key) when false.
	ShowWindow bool `mapstructure:"show_window" yaml:"show_window"`
	// QuitKey is the single key that stops the loop.
	QuitKey string `mapstructure:"quit_key" yaml:"quit_key"`
	// SnapshotDir receives annotated fire frames when set.
	SnapshotDir string `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`
	// SnapshotCooldown is the minimum time between two snapshots.
	SnapshotCooldown time.Duration `mapstructure:"snapshot_cooldown" yaml:"snapshot_cooldown"`
}

// RuntimeConfig configures the onnxruntime environment.
type RuntimeConfig struct {
	// LibraryPath overrides the platform default onnxruntime shared library.
	LibraryPath string `mapstructure:"library_path" yaml:"library_path"`
	// IntraOpThreads bounds per-operator parallelism, 0 lets the runtime decide.
	IntraOpThreads int `mapstructure:"intra_op_threads" yaml:"intra_op_threads"`
	// Provider is the execution provider: cpu, cuda, tensorrt, coreml or openvino.
	Provider string `mapstructure:"provider" yaml:"provider"`
	// ProviderDevice selects the accelerator for cuda, tensorrt and openvino.
	ProviderDevice int `mapstructure:"provider_device" yaml:"provider_device"`
	// ProviderOptions are passed verbatim to the execution provider.
	ProviderOptions map[string]string `mapstructure:"provider_options" yaml:"provider_options"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "console" or "json".
	Format string `mapstructure:"format" yaml:"format"`
}

// SentryConfig enables crash reporting when DSN is set.
type SentryConfig struct {
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			PositiveDir: DefaultPositiveDir,
			NegativeDir: DefaultNegativeDir,
		},
		Image: ImageConfig{
			Width:  DefaultImageSize,
			Height: DefaultImageSize,
		},
		Model: ModelConfig{
			BackbonePath:   DefaultBackbonePath,
			BackboneLayout: "nhwc",
			ArtifactPath:   DefaultArtifactPath,
			CheckpointPath: DefaultCheckpointPath,
			HiddenUnits:    DefaultHiddenUnits,
			Dropout:        DefaultDropout,
		},
		Training: TrainingConfig{
			Epochs:          DefaultEpochs,
			BatchSize:       DefaultBatchSize,
			LearningRate:    DefaultLearningRate,
			ValidationSplit: DefaultValidation,
			Seed:            DefaultSeed,
			Patience:        DefaultPatience,
			Augmentation: AugmentationConfig{
				RotationDegrees: 15,
				WidthShift:      0.1,
				HeightShift:     0.1,
				Zoom:            0.1,
				HorizontalFlip:  true,
			},
		},
		Live: LiveConfig{
			DeviceID:         0,
			Threshold:        DefaultThreshold,
			WindowTitle:      DefaultWindowTitle,
			ShowWindow:       true,
			QuitKey:          DefaultQuitKey,
			SnapshotCooldown: 5 * time.Second,
		},
		Runtime: RuntimeConfig{
			Provider: "cpu",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the configuration.
//
// Arguments:
//   - path: Optional YAML file; an empty path uses defaults and the environment only.
//
// Returns:
//   - *Config: The merged configuration (not yet validated).
//   - error: An error if the file cannot be read or decoded.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "loading .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides are seen by Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("dataset.root", d.Dataset.Root)
	v.SetDefault("dataset.positive_dir", d.Dataset.PositiveDir)
	v.SetDefault("dataset.negative_dir", d.Dataset.NegativeDir)

	v.SetDefault("image.width", d.Image.Width)
	v.SetDefault("image.height", d.Image.Height)

	v.SetDefault("model.backbone_path", d.Model.BackbonePath)
	v.SetDefault("model.backbone_layout", d.Model.BackboneLayout)
	v.SetDefault("model.artifact_path", d.Model.ArtifactPath)
	v.SetDefault("model.checkpoint_path", d.Model.CheckpointPath)
	v.SetDefault("model.hidden_units", d.Model.HiddenUnits)
	v.SetDefault("model.dropout", d.Model.Dropout)

	v.SetDefault("training.epochs", d.Training.Epochs)
	v.SetDefault("training.batch_size", d.Training.BatchSize)
	v.SetDefault("training.learning_rate", d.Training.LearningRate)
	v.SetDefault("training.validation_split", d.Training.ValidationSplit)
	v.SetDefault("training.seed", d.Training.Seed)
	v.SetDefault("training.patience", d.Training.Patience)
	v.SetDefault("training.history_path", d.Training.HistoryPath)
	v.SetDefault("training.augmentation.rotation_degrees", d.Training.Augmentation.RotationDegrees)
	v.SetDefault("training.augmentation.width_shift", d.Training.Augmentation.WidthShift)
	v.SetDefault("training.augmentation.height_shift", d.Training.Augmentation.HeightShift)
	v.SetDefault("training.augmentation.zoom", d.Training.Augmentation.Zoom)
	v.SetDefault("training.augmentation.horizontal_flip", d.Training.Augmentation.HorizontalFlip)

	v.SetDefault("live.device_id", d.Live.DeviceID)
	v.SetDefault("live.video_path", d.Live.VideoPath)
	v.SetDefault("live.threshold", d.Live.Threshold)
	v.SetDefault("live.window_title", d.Live.WindowTitle)
	v.SetDefault("live.show_window", d.Live.ShowWindow)
	v.SetDefault("live.quit_key", d.Live.QuitKey)
	v.SetDefault("live.snapshot_dir", d.Live.SnapshotDir)
	v.SetDefault("live.snapshot_cooldown", d.Live.SnapshotCooldown)

	v.SetDefault("runtime.library_path", d.Runtime.LibraryPath)
	v.SetDefault("runtime.intra_op_threads", d.Runtime.IntraOpThreads)
	v.SetDefault("runtime.provider", d.Runtime.Provider)
	v.SetDefault("runtime.provider_device", d.Runtime.ProviderDevice)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("sentry.dsn", d.Sentry.DSN)
	v.SetDefault("sentry.environment", d.Sentry.Environment)
}

// Validate checks the fields shared by every pipeline.
//
// Returns:
//   - error: The first invalid field, if any.
func (c *Config) Validate() error {
	if c.Image.Width <= 0 || c.Image.Height <= 0 {
		return errors.Errorf("image size must be positive, got %dx%d", c.Image.Width, c.Image.Height)
	}
	switch c.Model.BackboneLayout {
	case "nhwc", "nchw":
	default:
		return errors.Errorf("model.backbone_layout must be nhwc or nchw, got %q", c.Model.BackboneLayout)
	}
	if c.Model.ArtifactPath == "" {
		return errors.New("model.artifact_path is required")
	}
	if c.Live.Threshold < 0 || c.Live.Threshold > 1 {
		return errors.Errorf("live.threshold must be within [0, 1], got %v", c.Live.Threshold)
	}
	if len(c.Live.QuitKey) != 1 {
		return errors.Errorf("live.quit_key must be a single character, got %q", c.Live.QuitKey)
	}
	if c.Live.SnapshotCooldown < 0 {
		return errors.Errorf("live.snapshot_cooldown must not be negative, got %v", c.Live.SnapshotCooldown)
	}
	switch strings.ToLower(c.Runtime.Provider) {
	case "", "cpu", "cuda", "tensorrt", "coreml", "openvino":
	default:
		return errors.Errorf("runtime.provider must be one of cpu, cuda, tensorrt, coreml, openvino, got %q", c.Runtime.Provider)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// ValidateTraining checks the fields the training pipeline needs on top of Validate.
//
// Returns:
//   - error: The first invalid field, if any.
func (c *Config) ValidateTraining() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Dataset.Root == "" {
		return errors.New("dataset.root is required for training (set it in the config file, FIREWATCH_DATASET_ROOT or --dataset)")
	}
	if c.Dataset.PositiveDir == "" || c.Dataset.NegativeDir == "" {
		return errors.New("dataset.positive_dir and dataset.negative_dir are required")
	}
	if c.Model.BackbonePath == "" {
		return errors.New("model.backbone_path is required for training")
	}
	if c.Model.HiddenUnits <= 0 {
		return errors.Errorf("model.hidden_units must be positive, got %d", c.Model.HiddenUnits)
	}
	if c.Model.Dropout < 0 || c.Model.Dropout >= 1 {
		return errors.Errorf("model.dropout must be within [0, 1), got %v", c.Model.Dropout)
	}
	t := c.Training
	if t.Epochs <= 0 {
		return errors.Errorf("training.epochs must be positive, got %d", t.Epochs)
	}
	if t.BatchSize <= 0 {
		return errors.Errorf("training.batch_size must be positive, got %d", t.BatchSize)
	}
	if t.LearningRate <= 0 {
		return errors.Errorf("training.learning_rate must be positive, got %v", t.LearningRate)
	}
	if t.ValidationSplit <= 0 || t.ValidationSplit >= 1 {
		return errors.Errorf("training.validation_split must be within (0, 1), got %v", t.ValidationSplit)
	}
	if t.Patience <= 0 {
		return errors.Errorf("training.patience must be positive, got %d", t.Patience)
	}
	a := t.Augmentation
	if a.RotationDegrees < 0 || a.WidthShift < 0 || a.HeightShift < 0 || a.Zoom < 0 || a.Zoom >= 1 {
		return errors.Errorf("training.augmentation ranges must be non-negative (zoom < 1), got %+v", a)
	}
	return nil
}
