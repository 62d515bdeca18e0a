// Package logging - zap logger construction.
package logging

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nvr-ai/go-firewatch/config"
)

// New builds a logger from the log configuration.
//
// The console format colours levels only when stderr is a terminal; the json
// format uses zap's production encoder.
//
// Arguments:
//   - cfg: The log configuration.
//
// Returns:
//   - *zap.Logger: The logger.
//   - error: An error if the level is unknown or the logger cannot be built.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}

	var zc zap.Config
	switch cfg.Format {
	case "json":
		zc = zap.NewProductionConfig()
	default:
		zc = zap.NewDevelopmentConfig()
		zc.DisableStacktrace = true
		zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return logger, nil
}
