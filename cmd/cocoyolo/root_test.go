package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorable/cocoyolo"
)

const trainAnnotations = `{
  "images": [{"id": 1, "file_name": "a.jpg", "width": 800, "height": 600}],
  "annotations": [
    {"id": 1, "image_id": 1, "category_id": 2, "bbox": [100, 150, 200, 120]},
    {"id": 2, "image_id": 1, "category_id": 16, "bbox": [0, 0, 10, 10]}
  ],
  "categories": []
}`

// writeSource creates a COCO tree with a train subset of one image.
func writeSource(t *testing.T, annotations string) string {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "annotations"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "train"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "annotations", "instances_train.json"),
		[]byte(annotations), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "train", "a.jpg"), []byte("jpeg"), 0644))
	return src
}

func runCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestUsage(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out")

	assert.Equal(t, 1, execute(context.Background(), []string{dest}))
	assert.Equal(t, 1, execute(context.Background(), nil))
	assert.NoDirExists(t, dest)

	stdout, stderr, err := runCommand(t, dest)
	require.ErrorIs(t, err, cocoyolo.ErrUsage)
	assert.Contains(t, stdout+stderr, "Usage:")
}

func TestConvert(t *testing.T) {
	src := writeSource(t, trainAnnotations)
	dest := t.TempDir()
	metricsPath := filepath.Join(t.TempDir(), "cocoyolo.prom")

	stdout, _, err := runCommand(t, src, dest, "--subsets", "train,val",
		"--metrics-file", metricsPath, "--dataset-yaml")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Converted train: 1 images with relevant annotations\n")
	assert.Contains(t, stdout, "Skipping val - annotation file not found\n")
	assert.Contains(t, stdout, "COCO to YOLO conversion complete!\n")

	label, err := os.ReadFile(filepath.Join(dest, "labels", "train", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1 0.250000 0.350000 0.250000 0.200000\n", string(label))
	assert.FileExists(t, filepath.Join(dest, "images", "train", "a.jpg"))
	assert.FileExists(t, filepath.Join(dest, "dataset.yaml"))

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `cocoyolo_subsets_total{status="converted"} 1`)
	assert.Contains(t, string(metrics), `cocoyolo_subsets_total{status="skipped"} 1`)
}

func TestConvertMetricsFileError(t *testing.T) {
	src := writeSource(t, trainAnnotations)
	dest := t.TempDir()
	metricsPath := filepath.Join(t.TempDir(), "missing", "cocoyolo.prom")

	stdout, _, err := runCommand(t, src, dest, "--subsets", "train", "--metrics-file", metricsPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write metrics")

	// The conversion itself completed.
	assert.Contains(t, stdout, "Converted train: 1 images with relevant annotations\n")
	assert.NotContains(t, stdout, "conversion complete")
	assert.FileExists(t, filepath.Join(dest, "labels", "train", "a.txt"))
	assert.NoFileExists(t, metricsPath)

	assert.Equal(t, 1, execute(context.Background(), []string{src, dest, "--subsets", "train",
		"--metrics-file", metricsPath, "--log-level", "error"}))
}

func TestConvertMalformed(t *testing.T) {
	src := writeSource(t, `{"images": [`)
	dest := t.TempDir()

	stdout, stderr, err := runCommand(t, src, dest)
	require.Error(t, err)

	assert.Contains(t, stderr, "Failed to convert train")
	assert.NotContains(t, stdout, "conversion complete")
	assert.NoDirExists(t, filepath.Join(dest, "labels", "train"))
	assert.NoDirExists(t, filepath.Join(dest, "images", "train"))

	assert.Equal(t, 1, execute(context.Background(), []string{src, dest, "--log-level", "error"}))
}

func TestConfigFile(t *testing.T) {
	src := writeSource(t, trainAnnotations)
	dest := t.TempDir()
	config := filepath.Join(t.TempDir(), "cocoyolo.yaml")
	require.NoError(t, os.WriteFile(config, []byte("subsets: [train]\ndataset-yaml: true\n"), 0644))

	stdout, _, err := runCommand(t, src, dest, "--config", config)
	require.NoError(t, err)

	assert.NotContains(t, stdout, "Skipping val")
	assert.FileExists(t, filepath.Join(dest, "dataset.yaml"))
}

func TestConfigEnvironment(t *testing.T) {
	src := writeSource(t, trainAnnotations)
	dest := t.TempDir()
	t.Setenv("COCOYOLO_DATASET_YAML", "true")

	_, _, err := runCommand(t, src, dest)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "dataset.yaml"))
}
