package cocoyolo

// Conversion of a COCO dataset tree into a YOLO dataset tree.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultSubsets are the subsets converted when none are configured.
var DefaultSubsets = []string{"train", "val"}

// Options configures a Converter.
type Options struct {
	Subsets     []string     // Subsets to convert; empty selects DefaultSubsets.
	Images      ImageOptions // How images are transferred.
	Parallel    bool         // Convert subsets concurrently.
	TFRecord    bool         // Also export every converted subset as TFRecord.
	DatasetYAML bool         // Write dataset.yaml into the destination root.
}

// SubsetReport summarises the conversion of one subset.
type SubsetReport struct {
	Subset         string
	Skipped        bool   // No annotation file was found.
	Failed         bool   // The conversion returned an error.
	AnnotationFile string // The annotation file that was read.
	RemapStats
	LabelFiles     int // Label files written, i.e. images with at least one retained annotation.
	ImagesCopied   int
	MissingImages  int
	SizeMismatches int
}

// Converter converts the subsets of a COCO dataset at SourceDir into a YOLO dataset at DestDir.
//
// Source layout: <SourceDir>/annotations/instances_<subset>.json and <SourceDir>/<subset>/<image>.
// Output layout: <DestDir>/images/<subset>/<image> and <DestDir>/labels/<subset>/<stem>.txt.
type Converter struct {
	SourceDir string
	DestDir   string
	Options   Options
	Logger    logrus.FieldLogger
	Metrics   *Metrics // Optional.
}

// NewConverter returns a Converter with the standard logger and no metrics.
func NewConverter(sourceDir, destDir string, opts Options) *Converter {
	return &Converter{
		SourceDir: sourceDir,
		DestDir:   destDir,
		Options:   opts,
		Logger:    logrus.StandardLogger(),
	}
}

func (c *Converter) subsets() []string {
	if len(c.Options.Subsets) > 0 {
		return c.Options.Subsets
	}
	return DefaultSubsets
}

// Run converts all subsets. A subset without an annotation file is skipped. A subset that fails
// does not stop the others; the returned error joins all subset failures.
//
// The reports are returned in subset order.
func (c *Converter) Run(ctx context.Context) ([]SubsetReport, error) {
	subsets := c.subsets()
	reports := make([]SubsetReport, len(subsets))
	errs := make([]error, len(subsets))

	if c.Options.Parallel {
		var g errgroup.Group
		for i, subset := range subsets {
			i, subset := i, subset
			g.Go(func() error {
				reports[i], errs[i] = c.ConvertSubset(ctx, subset)
				reports[i].Failed = errs[i] != nil
				return errs[i]
			})
		}
		// All subset errors are collected in errs.
		_ = g.Wait()
	} else {
		for i, subset := range subsets {
			reports[i], errs[i] = c.ConvertSubset(ctx, subset)
			reports[i].Failed = errs[i] != nil
		}
	}

	if err := errors.Join(errs...); err != nil {
		return reports, err
	}

	if c.Options.DatasetYAML {
		path := filepath.Join(c.DestDir, DatasetFileName)
		if err := WriteDatasetConfig(path, NewDatasetConfig(c.DestDir)); err != nil {
			return reports, err
		}
		c.Logger.WithField("path", path).Info("Wrote dataset descriptor")
	}

	return reports, nil
}

// AnnotationPath returns the path of the annotation file for subset. Both the short name
// instances_<subset>.json and the COCO 2017 release name instances_<subset>2017.json are
// accepted, in that order.
func (c *Converter) AnnotationPath(subset string) (string, error) {
	dir := filepath.Join(c.SourceDir, "annotations")
	candidates := []string{
		filepath.Join(dir, fmt.Sprintf("instances_%s.json", subset)),
		filepath.Join(dir, fmt.Sprintf("instances_%s2017.json", subset)),
	}
	for _, path := range candidates {
		if fileExists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrAnnotationsNotFound, candidates[0])
}

// ConvertSubset converts a single subset.
//
// A missing annotation file is not an error: the returned report is marked as skipped. A
// malformed annotation file returns ErrMalformedAnnotations before any output is written.
func (c *Converter) ConvertSubset(ctx context.Context, subset string) (SubsetReport, error) {
	report := SubsetReport{Subset: subset}
	logger := c.Logger.WithField("subset", subset)

	labelPath, err := c.AnnotationPath(subset)
	if err != nil {
		logger.WithError(err).Warn("Skipping subset, annotation file not found")
		report.Skipped = true
		c.Metrics.observe(report, statusSkipped)
		return report, nil
	}
	report.AnnotationFile = labelPath

	// Parse and remap everything before touching the destination.
	data, stats, err := FromCOCO(labelPath, filepath.Join(c.SourceDir, subset))
	if err != nil {
		c.Metrics.observe(report, statusFailed)
		return report, fmt.Errorf("subset %s: %w", subset, err)
	}
	report.RemapStats = stats
	if !stats.IDsContiguous {
		logger.Warn("Image ids are not a dense 1-based sequence, boxes are normalized by image id")
	}
	logger.WithFields(logrus.Fields{
		"annotations":      stats.Annotations,
		"kept":             stats.Kept,
		"dropped_category": stats.DroppedCategory,
		"dropped_image":    stats.DroppedImage,
		"dropped_outside":    stats.DroppedOutside,
	}).Debug("Remapped annotations")

	if err := ctx.Err(); err != nil {
		return report, err
	}

	imageDir := filepath.Join(c.DestDir, "images", subset)
	labelDir := filepath.Join(c.DestDir, "labels", subset)
	for _, dir := range []string{imageDir, labelDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			c.Metrics.observe(report, statusFailed)
			return report, fmt.Errorf("subset %s: %w", subset, err)
		}
	}

	yoloData := ToYOLO(data)
	if err := WriteYOLO(labelDir, yoloData); err != nil {
		c.Metrics.observe(report, statusFailed)
		return report, fmt.Errorf("subset %s: failed to write labels: %w", subset, err)
	}
	report.LabelFiles = len(yoloData)

	imgStats, err := data.ProcessImages(ctx, imageDir, c.Options.Images, logger)
	report.ImagesCopied = imgStats.Copied
	report.MissingImages = imgStats.Missing
	report.SizeMismatches = imgStats.Mismatched
	if err != nil {
		c.Metrics.observe(report, statusFailed)
		return report, fmt.Errorf("subset %s: %w", subset, err)
	}

	if c.Options.TFRecord {
		if err := c.writeTFRecord(subset, data); err != nil {
			c.Metrics.observe(report, statusFailed)
			return report, fmt.Errorf("subset %s: %w", subset, err)
		}
	}

	c.Metrics.observe(report, statusConverted)
	logger.WithFields(logrus.Fields{
		"labels":  report.LabelFiles,
		"copied":  report.ImagesCopied,
		"missing": report.MissingImages,
	}).Info("Converted subset")

	return report, nil
}

// writeTFRecord exports the subset to <DestDir>/tfrecords/<subset>.record, using the copied
// images, together with the label map of the target class table.
func (c *Converter) writeTFRecord(subset string, data AnnotatedFiles) error {
	dir := filepath.Join(c.DestDir, "tfrecords")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Export the written copies, which may have been resized.
	imageDir := filepath.Join(c.DestDir, "images", subset)
	copies := make(AnnotatedFiles, 0, len(data))
	for _, f := range data {
		f.FilePath = filepath.Join(imageDir, filepath.Base(f.FilePath))
		if !fileExists(f.FilePath) {
			continue
		}
		copies = append(copies, f)
	}

	recordPath := filepath.Join(dir, subset+".record")
	n, err := WriteTFRecord(recordPath, copies, c.Logger)
	if err != nil {
		return err
	}
	if err := WriteTFRecordLabelMap(filepath.Join(dir, TFRecordLabelMapFileName)); err != nil {
		return err
	}
	c.Logger.WithFields(logrus.Fields{"subset": subset, "path": recordPath, "examples": n}).
		Info("Wrote TFRecord")
	return nil
}
