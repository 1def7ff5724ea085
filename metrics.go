package cocoyolo

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the conversion counters.
type Metrics struct {
	annotations *prometheus.CounterVec
	images      *prometheus.CounterVec
	subsets     *prometheus.CounterVec
}

// Outcome label values.
const (
	outcomeKept            = "kept"
	outcomeDroppedCategory = "dropped_category"
	outcomeDroppedImage    = "dropped_image"
	outcomeDroppedOutside  = "dropped_outside"
	outcomeLabeled         = "labeled"
	outcomeCopied          = "copied"
	outcomeMissing         = "missing"
	outcomeMismatched      = "size_mismatch"
)

// Subset status label values.
const (
	statusConverted = "converted"
	statusSkipped   = "skipped"
	statusFailed    = "failed"
)

// NewMetrics creates the conversion counters and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		annotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cocoyolo",
			Name:      "annotations_total",
			Help:      "Source annotations processed, by subset and outcome.",
		}, []string{"subset", "outcome"}),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cocoyolo",
			Name:      "images_total",
			Help:      "Images with retained annotations, by subset and outcome.",
		}, []string{"subset", "outcome"}),
		subsets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cocoyolo",
			Name:      "subsets_total",
			Help:      "Subsets processed, by status.",
		}, []string{"status"}),
	}

	for _, c := range []prometheus.Collector{m.annotations, m.images, m.subsets} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// observe records the report of a finished subset. A nil receiver is a no-op.
func (m *Metrics) observe(r SubsetReport, status string) {
	if m == nil {
		return
	}
	m.subsets.WithLabelValues(status).Inc()
	if status == statusSkipped {
		return
	}

	a := m.annotations
	a.WithLabelValues(r.Subset, outcomeKept).Add(float64(r.Kept))
	a.WithLabelValues(r.Subset, outcomeDroppedCategory).Add(float64(r.DroppedCategory))
	a.WithLabelValues(r.Subset, outcomeDroppedImage).Add(float64(r.DroppedImage))
	a.WithLabelValues(r.Subset, outcomeDroppedOutside).Add(float64(r.DroppedOutside))

	i := m.images
	i.WithLabelValues(r.Subset, outcomeLabeled).Add(float64(r.LabelFiles))
	i.WithLabelValues(r.Subset, outcomeCopied).Add(float64(r.ImagesCopied))
	i.WithLabelValues(r.Subset, outcomeMissing).Add(float64(r.MissingImages))
	i.WithLabelValues(r.Subset, outcomeMismatched).Add(float64(r.SizeMismatches))
}

// WriteMetricsFile writes all metrics gathered by g to path in the Prometheus text format, for the
// node_exporter textfile collector.
func WriteMetricsFile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
