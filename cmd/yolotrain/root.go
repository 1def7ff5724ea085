package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sensorable/cocoyolo/internal/logging"
	"github.com/sensorable/cocoyolo/train"
)

// app is the state shared by the subcommands.
type app struct {
	v      *viper.Viper
	runner train.Runner // Nil selects the process runner.
	logger *logrus.Logger
}

// newRootCommand creates the yolotrain command tree. A nil runner runs the framework as a child
// process.
func newRootCommand(runner train.Runner) *cobra.Command {
	a := &app{v: viper.New(), runner: runner}

	cmd := &cobra.Command{
		Use:   "yolotrain",
		Short: "Train YOLOv8 for rail safety detection",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Options{
				Level:  a.v.GetString("log-level"),
				File:   a.v.GetString("log-file"),
				Output: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.String("log-level", "info", "Log level {debug, info, warn, error}")
	pf.String("log-file", "", "Also write logs to this `file`, rotated by size")
	pf.String("binary", train.DefaultBinary, "The Ultralytics YOLO executable")
	for _, name := range []string{"log-level", "log-file", "binary"} {
		_ = a.v.BindPFlag(name, pf.Lookup(name))
	}

	cmd.AddCommand(
		a.datasetCommand(),
		a.trainCommand(),
		a.validateCommand(),
	)
	return cmd
}

// ultralytics returns the framework driver, writing the framework output to the command output.
func (a *app) ultralytics(cmd *cobra.Command) *train.Ultralytics {
	return &train.Ultralytics{
		Binary: a.v.GetString("binary"),
		Runner: a.runner,
		Output: cmd.OutOrStdout(),
		Logger: a.logger,
	}
}

// execute runs the command tree with args and returns the process exit code.
func execute(ctx context.Context, args []string, runner train.Runner) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(runner)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
