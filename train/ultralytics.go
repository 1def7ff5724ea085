package train

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultBinary is the command line entry point of the Ultralytics framework.
const DefaultBinary = "yolo"

// SummaryFileName is written into the run directory after training.
const SummaryFileName = "summary.yaml"

// Result describes a finished training run.
type Result struct {
	RunID    string    `yaml:"run_id"`
	Started  time.Time `yaml:"started"`
	Duration string    `yaml:"duration"`
	SaveDir  string    `yaml:"save_dir"`
	Weights  string    `yaml:"weights"`
	Exported string    `yaml:"exported,omitempty"`
	Metrics  Metrics   `yaml:"metrics"`

	HyperParameters HyperParameters `yaml:"hyperparameters"`
}

// Ultralytics trains, validates and exports models with the Ultralytics YOLO command line.
type Ultralytics struct {
	Binary string             // Framework executable; empty selects DefaultBinary.
	Runner Runner             // Nil selects ExecRunner{}.
	Output io.Writer          // Framework console output; nil selects os.Stdout.
	Logger logrus.FieldLogger // Nil selects the standard logger.
}

func (u *Ultralytics) binary() string {
	if u.Binary != "" {
		return u.Binary
	}
	return DefaultBinary
}

func (u *Ultralytics) runner() Runner {
	if u.Runner != nil {
		return u.Runner
	}
	return ExecRunner{}
}

func (u *Ultralytics) output() io.Writer {
	if u.Output != nil {
		return u.Output
	}
	return os.Stdout
}

func (u *Ultralytics) logger() logrus.FieldLogger {
	if u.Logger != nil {
		return u.Logger
	}
	return logrus.StandardLogger()
}

// Train trains a model on the dataset described by dataPath and returns the best epoch's metrics.
// If hp.ExportFormat is set, the best checkpoint is exported afterwards. A summary of the run is
// written to the run directory.
func (u *Ultralytics) Train(ctx context.Context, dataPath string, hp HyperParameters) (
	*Result, error) {

	if err := hp.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:           ulid.Make().String(),
		Started:         time.Now(),
		SaveDir:         filepath.Join(hp.Project, hp.Name),
		HyperParameters: hp,
	}
	res.Weights = filepath.Join(res.SaveDir, "weights", "best.pt")
	logger := u.logger().WithFields(logrus.Fields{"run_id": res.RunID, "model": hp.ModelFile()})

	logger.WithFields(logrus.Fields{
		"data":   dataPath,
		"epochs": hp.Epochs,
		"batch":  hp.Batch,
		"imgsz":  hp.ImgSize,
	}).Info("Starting training")

	if err := u.runner().Run(ctx, u.binary(), hp.TrainArgs(dataPath), u.output()); err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}
	res.Duration = time.Since(res.Started).Round(time.Second).String()

	metrics, err := ReadResultsCSV(filepath.Join(res.SaveDir, "results.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to read the training results: %w", err)
	}
	res.Metrics = metrics
	logger.WithFields(logrus.Fields{
		"save_dir":   res.SaveDir,
		"map50":      metrics.MAP50,
		"map50_95":   metrics.MAP50_95,
		"best_epoch": metrics.Epoch,
	}).Info("Training completed")

	if hp.ExportFormat != "" {
		exported, err := u.Export(ctx, res.Weights, hp.ExportFormat, hp.ImgSize)
		if err != nil {
			return nil, err
		}
		res.Exported = exported
	}

	summaryPath := filepath.Join(res.SaveDir, SummaryFileName)
	if err := WriteSummary(summaryPath, res); err != nil {
		return nil, err
	}

	return res, nil
}

// Export converts the checkpoint at weights to format and returns the path of the exported model.
func (u *Ultralytics) Export(ctx context.Context, weights, format string, imgSize int) (
	string, error) {

	args := []string{
		"export",
		kv("model", weights),
		kv("format", format),
		kv("imgsz", imgSize),
		kv("simplify", true),
	}
	if err := u.runner().Run(ctx, u.binary(), args, u.output()); err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	exported := strings.TrimSuffix(weights, filepath.Ext(weights)) + "." + format
	u.logger().WithField("path", exported).Info("Model exported")
	return exported, nil
}

// Validate evaluates the checkpoint at weights on the validation subset of the dataset described
// by dataPath.
func (u *Ultralytics) Validate(ctx context.Context, weights, dataPath string) (Metrics, error) {
	args := []string{"detect", "val", kv("model", weights), kv("data", dataPath)}

	var buf bytes.Buffer
	out := io.MultiWriter(u.output(), &buf)
	if err := u.runner().Run(ctx, u.binary(), args, out); err != nil {
		return Metrics{}, fmt.Errorf("validation failed: %w", err)
	}

	m, err := parseValidationOutput(&buf)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to read the validation results: %w", err)
	}
	return m, nil
}

// WriteSummary writes res as YAML to path.
func WriteSummary(path string, res *Result) error {
	enc, err := yaml.Marshal(res)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", path, err)
	}
	return nil
}
