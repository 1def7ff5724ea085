package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sensorable/cocoyolo"
	"github.com/sensorable/cocoyolo/internal/logging"
)

// newRootCommand creates the converter command. It takes the COCO dataset root and the output
// root as positional arguments.
func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "cocoyolo <coco_dir> <output_dir>",
		Short: "Convert a COCO dataset to the rail safety YOLO dataset",
		Long: "Filters a COCO detection dataset to the person and vehicle categories, remaps them to\n" +
			"the rail safety class table and writes YOLO labels and image copies per subset:\n\n" +
			"  <output_dir>/images/<subset>/<file_name>\n" +
			"  <output_dir>/labels/<subset>/<stem>.txt",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("%w: expected <coco_dir> and <output_dir>, got %d argument(s)",
					cocoyolo.ErrUsage, len(args))
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Argument errors print the usage; everything after this point does not.
			cmd.SilenceUsage = true
			return run(cmd, v, args[0], args[1])
		},
	}

	setupFlags(cmd)
	return cmd
}

func setupFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("config", "", "Optional config `file` (yaml, toml or json) with flag values")
	f.StringSlice("subsets", cocoyolo.DefaultSubsets, "Subsets to convert")
	f.Int("workers", 0, "Concurrent image copy workers (0 selects 2x the number of CPUs)")
	f.Bool("parallel", false, "Convert the subsets concurrently")
	f.Int("resize-longer", 0, "Resize copied images to this `length` of the longer side")
	f.Int("resize-shorter", 0, "Resize copied images to this `length` of the shorter side")
	f.String("downsample-filter", "box",
		"The filter to use when downsampling {nearest, box, linear, gaussian, lanczos}")
	f.String("upsample-filter", "linear",
		"The filter to use when upsampling {nearest, box, linear, gaussian, lanczos}")
	f.Int("jpeg-quality", 90, "The quality to use when re-encoding JPEGs [1, 100]")
	f.Bool("verify-images", false, "Warn when an image's real size differs from the annotation file")
	f.Bool("tfrecord", false, "Also export every subset as a TFRecord file")
	f.Bool("dataset-yaml", false, "Write the dataset.yaml descriptor into the output directory")
	f.String("metrics-file", "",
		"Write Prometheus metrics to this `file` when done; failing to write it fails the run")
	f.String("log-level", "info", "Log level {debug, info, warn, error}")
	f.String("log-file", "", "Also write logs to this `file`, rotated by size")
}

// initConfig layers the optional config file and COCOYOLO_* environment variables under the
// command line flags.
func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	v.SetEnvPrefix("COCOYOLO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %q: %w", path, err)
		}
	}
	return nil
}

func run(cmd *cobra.Command, v *viper.Viper, sourceDir, destDir string) error {
	logger, err := logging.New(logging.Options{
		Level: v.GetString("log-level"),
		File:  v.GetString("log-file"),
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics, err := cocoyolo.NewMetrics(registry)
	if err != nil {
		return err
	}

	converter := &cocoyolo.Converter{
		SourceDir: sourceDir,
		DestDir:   destDir,
		Options: cocoyolo.Options{
			Subsets: v.GetStringSlice("subsets"),
			Images: cocoyolo.ImageOptions{
				Workers:            v.GetInt("workers"),
				ResizeLonger:       v.GetInt("resize-longer"),
				ResizeShorter:      v.GetInt("resize-shorter"),
				DownsamplingFilter: v.GetString("downsample-filter"),
				UpsamplingFilter:   v.GetString("upsample-filter"),
				JPEGQuality:        v.GetInt("jpeg-quality"),
				Verify:             v.GetBool("verify-images"),
			},
			Parallel:    v.GetBool("parallel"),
			TFRecord:    v.GetBool("tfrecord"),
			DatasetYAML: v.GetBool("dataset-yaml"),
		},
		Logger:  logger,
		Metrics: metrics,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reports, runErr := converter.Run(ctx)

	out := cmd.OutOrStdout()
	for _, r := range reports {
		switch {
		case r.Skipped:
			fmt.Fprintf(out, "Skipping %s - annotation file not found\n", r.Subset)
		case r.Failed:
			fmt.Fprintf(cmd.ErrOrStderr(), "Failed to convert %s\n", r.Subset)
		default:
			fmt.Fprintf(out, "Converted %s: %d images with relevant annotations\n", r.Subset,
				r.ImagesCopied)
		}
	}

	// The metrics are written for failed runs too, but a missing metrics file fails the run.
	if path := v.GetString("metrics-file"); path != "" {
		if err := cocoyolo.WriteMetricsFile(path, registry); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("failed to write metrics: %w", err))
		}
	}

	if runErr != nil {
		return runErr
	}
	fmt.Fprintln(out, "COCO to YOLO conversion complete!")
	return nil
}

// execute runs the command with args and returns the process exit code.
func execute(ctx context.Context, args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
