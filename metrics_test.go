package cocoyolo

import (
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	return testutil.ToFloat64(vec.WithLabelValues(labels...))
}

func TestMetricsObserve(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.observe(SubsetReport{
		Subset:         "train",
		RemapStats:     RemapStats{Kept: 5, DroppedCategory: 2, DroppedImage: 1, DroppedOutside: 3},
		LabelFiles:     4,
		ImagesCopied:   3,
		MissingImages:  1,
		SizeMismatches: 2,
	}, statusConverted)
	m.observe(SubsetReport{Subset: "val", Skipped: true}, statusSkipped)

	assert.Equal(t, 5.0, counterValue(t, m.annotations, "train", outcomeKept))
	assert.Equal(t, 2.0, counterValue(t, m.annotations, "train", outcomeDroppedCategory))
	assert.Equal(t, 1.0, counterValue(t, m.annotations, "train", outcomeDroppedImage))
	assert.Equal(t, 3.0, counterValue(t, m.annotations, "train", outcomeDroppedOutside))
	assert.Equal(t, 4.0, counterValue(t, m.images, "train", outcomeLabeled))
	assert.Equal(t, 3.0, counterValue(t, m.images, "train", outcomeCopied))
	assert.Equal(t, 1.0, counterValue(t, m.images, "train", outcomeMissing))
	assert.Equal(t, 2.0, counterValue(t, m.images, "train", outcomeMismatched))
	assert.Equal(t, 1.0, counterValue(t, m.subsets, statusConverted))
	assert.Equal(t, 1.0, counterValue(t, m.subsets, statusSkipped))

	// Skipped subsets only count the status.
	assert.Equal(t, 2, testutil.CollectAndCount(m.subsets))
	assert.Equal(t, 4, testutil.CollectAndCount(m.annotations))
	assert.Equal(t, 4, testutil.CollectAndCount(m.images))
}

func TestMetricsNil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.observe(SubsetReport{Subset: "train"}, statusConverted) })
}

func TestNewMetricsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewMetrics(registry)
	require.NoError(t, err)
	_, err = NewMetrics(registry)
	assert.Error(t, err)
}

func TestWriteMetricsFile(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewMetrics(registry)
	require.NoError(t, err)
	m.observe(SubsetReport{Subset: "train", RemapStats: RemapStats{Kept: 7}}, statusConverted)

	path := filepath.Join(t.TempDir(), "cocoyolo.prom")
	require.NoError(t, WriteMetricsFile(path, registry))

	content := readFileString(t, path)
	assert.Contains(t, content, "# TYPE cocoyolo_annotations_total counter")
	assert.Contains(t, content, `cocoyolo_annotations_total{outcome="kept",subset="train"} 7`)
	assert.Contains(t, content, `cocoyolo_subsets_total{status="converted"} 1`)
}
