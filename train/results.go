package train

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrNoMetrics is returned when the framework output contains no metrics.
var ErrNoMetrics = errors.New("no metrics found")

// Metrics is the metrics summary of a trained or validated model.
type Metrics struct {
	Epoch     int     `yaml:"epoch,omitempty"` // The epoch the metrics belong to; 0 for validation.
	Precision float64 `yaml:"precision"`
	Recall    float64 `yaml:"recall"`
	MAP50     float64 `yaml:"map50"`
	MAP50_95  float64 `yaml:"map50_95"`
}

// Fitness is the framework's model selection score, 0.1*mAP50 + 0.9*mAP50-95.
func (m Metrics) Fitness() float64 {
	return 0.1*m.MAP50 + 0.9*m.MAP50_95
}

// Columns of the per-epoch results.csv written by the framework.
const (
	colEpoch     = "epoch"
	colPrecision = "metrics/precision(B)"
	colRecall    = "metrics/recall(B)"
	colMAP50     = "metrics/mAP50(B)"
	colMAP50_95  = "metrics/mAP50-95(B)"
)

// ReadResultsCSV reads the per-epoch results at path and returns the metrics of the epoch with the
// best fitness, which is the epoch the framework saved as best.pt.
func ReadResultsCSV(path string) (Metrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metrics{}, err
	}
	defer f.Close()

	return parseResultsCSV(f)
}

func parseResultsCSV(r io.Reader) (Metrics, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return Metrics{}, ErrNoMetrics
	} else if err != nil {
		return Metrics{}, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, c := range []string{colEpoch, colPrecision, colRecall, colMAP50, colMAP50_95} {
		if _, ok := cols[c]; !ok {
			return Metrics{}, fmt.Errorf("results column %q missing", c)
		}
	}

	var best Metrics
	found := false
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return Metrics{}, err
		}

		var m Metrics
		var values [5]float64
		for i, c := range []string{colEpoch, colPrecision, colRecall, colMAP50, colMAP50_95} {
			values[i], err = strconv.ParseFloat(strings.TrimSpace(record[cols[c]]), 64)
			if err != nil {
				return Metrics{}, fmt.Errorf("line %d: column %q: %v", line, c, err)
			}
		}
		m.Epoch = int(values[0])
		m.Precision, m.Recall, m.MAP50, m.MAP50_95 = values[1], values[2], values[3], values[4]

		if !found || m.Fitness() > best.Fitness() {
			best = m
			found = true
		}
	}
	if !found {
		return Metrics{}, ErrNoMetrics
	}
	return best, nil
}

// parseValidationOutput extracts the metrics from the summary row of the framework's validation
// table:
//
//	Class     Images  Instances      Box(P          R      mAP50  mAP50-95)
//	  all        500       1200      0.712      0.634      0.681      0.452
//
// The last such row wins.
func parseValidationOutput(r io.Reader) (Metrics, error) {
	var m Metrics
	found := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 7 || fields[0] != "all" {
			continue
		}
		var values [4]float64
		var err error
		for i := range values {
			if values[i], err = strconv.ParseFloat(fields[i+3], 64); err != nil {
				break
			}
		}
		if err != nil {
			continue
		}
		m = Metrics{Precision: values[0], Recall: values[1], MAP50: values[2], MAP50_95: values[3]}
		found = true
	}
	if err := scanner.Err(); err != nil {
		return Metrics{}, err
	}
	if !found {
		return Metrics{}, ErrNoMetrics
	}
	return m, nil
}
