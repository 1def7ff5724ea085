package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sensorable/cocoyolo"
	"github.com/sensorable/cocoyolo/train"
)

// writeDatasetConfig writes the descriptor of the converted dataset at dataDir into dataDir.
func (a *app) writeDatasetConfig(dataDir string) (string, error) {
	path := filepath.Join(dataDir, cocoyolo.DatasetFileName)
	if err := cocoyolo.WriteDatasetConfig(path, cocoyolo.NewDatasetConfig(dataDir)); err != nil {
		return "", err
	}
	a.logger.WithField("path", path).Info("Dataset config created")
	return path, nil
}

func (a *app) datasetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dataset <data_dir>",
		Short: "Write the dataset.yaml descriptor for a converted dataset",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: expected <data_dir>", cocoyolo.ErrUsage)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.writeDatasetConfig(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dataset config created: %s\n", path)
			return nil
		},
	}
}

func (a *app) trainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model with the rail safety profile",
		Long: "Trains a YOLOv8 model. The profile is resolved from the defaults, the --profile file,\n" +
			train.EnvPrefix + "_* environment variables and the flags, in increasing priority.\n" +
			"With --data-dir the dataset descriptor is created in that directory first.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			profile, _ := f.GetString("profile")
			hp, err := train.LoadProfile(a.v, profile)
			if err != nil {
				return err
			}
			if noExport, _ := f.GetBool("no-export"); noExport {
				hp.ExportFormat = ""
			}

			data, _ := f.GetString("data")
			if dataDir, _ := f.GetString("data-dir"); dataDir != "" {
				if data, err = a.writeDatasetConfig(dataDir); err != nil {
					return err
				}
			}

			res, err := a.ultralytics(cmd).Train(cmd.Context(), data, hp)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "\nTraining completed!")
			fmt.Fprintf(out, "Run: %s\n", res.RunID)
			fmt.Fprintf(out, "Results saved to: %s\n", res.SaveDir)
			fmt.Fprintf(out, "Best mAP50: %.4f\n", res.Metrics.MAP50)
			fmt.Fprintf(out, "Best mAP50-95: %.4f\n", res.Metrics.MAP50_95)
			if res.Exported != "" {
				fmt.Fprintf(out, "Model exported to: %s\n", res.Exported)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("data", cocoyolo.DatasetFileName, "Dataset config `file`")
	f.String("data-dir", "", "Dataset `directory`; creates the dataset config in it")
	f.String("profile", "", "Hyperparameter profile `file` (yaml, toml or json)")
	f.Bool("no-export", false, "Skip the model export after training")
	f.String("model", "n", "Model size {n, s, m, l, x}")
	f.Int("epochs", 100, "Number of training epochs")
	f.Int("batch", 16, "Batch size, -1 for automatic")
	f.Int("imgsz", 640, "Training image size")
	f.String("name", "", "Run name")
	f.String("project", "", "Project directory holding the runs")
	f.String("device", "", "Training device, e.g. 0, 0,1 or cpu")

	// Only flags set on the command line override the profile.
	for _, name := range []string{"model", "epochs", "batch", "imgsz", "name", "project", "device"} {
		_ = a.v.BindPFlag(name, f.Lookup(name))
	}
	return cmd
}

func (a *app) validateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <weights.pt>",
		Short: "Evaluate a trained model on the validation subset",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: expected <weights.pt>", cocoyolo.ErrUsage)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, _ := cmd.Flags().GetString("data")
			m, err := a.ultralytics(cmd).Validate(cmd.Context(), args[0], data)
			if err != nil {
				return err
			}
			printMetrics(cmd.OutOrStdout(), m)
			return nil
		},
	}
	cmd.Flags().String("data", cocoyolo.DatasetFileName, "Dataset config `file`")
	return cmd
}

func printMetrics(w io.Writer, m train.Metrics) {
	fmt.Fprintln(w, "\nValidation Results:")
	fmt.Fprintf(w, "   mAP50: %.4f\n", m.MAP50)
	fmt.Fprintf(w, "   mAP50-95: %.4f\n", m.MAP50_95)
	fmt.Fprintf(w, "   Precision: %.4f\n", m.Precision)
	fmt.Fprintf(w, "   Recall: %.4f\n", m.Recall)
}
