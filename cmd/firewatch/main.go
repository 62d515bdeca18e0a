// firewatch trains the fire classifier and runs it on a live camera feed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-firewatch/config"
	"github.com/nvr-ai/go-firewatch/logging"
)

// Version metadata injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// errExit signals a non-zero exit after the command has reported its own error.
var errExit = errors.New("exit")

// app carries what every subcommand needs once the root flags are parsed.
type app struct {
	stdout, stderr io.Writer
	cfg            *config.Config
	logger         *zap.Logger
	sentry         bool
}

// run executes the firewatch CLI with the given args.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, logger: zap.NewNop()}
	root := newRootCmd(a)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	defer a.flush()
	if err != nil {
		if !errors.Is(err, errExit) {
			a.report(err)
			fmt.Fprintf(stderr, "firewatch: %v\n", err) //nolint:errcheck // best-effort stderr
		}
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "firewatch",
		Short:         "Fire / no-fire image classifier with live camera detection",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().String("config", "", "YAML configuration file")
	root.PersistentFlags().String("log-level", "", "Override log.level (debug, info, warn, error)")
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return a.setup(cmd)
	}

	root.AddCommand(
		newTrainCmd(a),
		newDetectCmd(a),
		newPredictCmd(a),
		newVersionCmd(a.stdout),
	)
	return root
}

// setup loads the configuration and builds the logger and crash reporter.
func (a *app) setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger

	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     "firewatch@" + version,
		})
		if err != nil {
			logger.Warn("sentry disabled", zap.Error(err))
		} else {
			a.sentry = true
		}
	}
	return nil
}

func (a *app) report(err error) {
	if a.sentry {
		sentry.CaptureException(err)
	}
}

func (a *app) flush() {
	if a.sentry {
		sentry.Flush(2 * time.Second)
	}
	_ = a.logger.Sync()
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Fprintf(stdout, "firewatch %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}
