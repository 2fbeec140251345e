// Package metrics collects per-run counters for the example generator and
// exports them in the Prometheus text format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Label values for the bucket dimension.
const (
	BucketTrain = "train"
	BucketDev   = "dev"
	BucketTest  = "test"
)

// Label values for the line result dimension.
const (
	LineProcessed = "processed"
	LineSkipped   = "skipped"
	LineBlank     = "blank"
)

// Recorder owns a private registry so runs never share state. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry  *prometheus.Registry
	examples  *prometheus.CounterVec
	lines     *prometheus.CounterVec
	vocabSize *prometheus.GaugeVec
}

// New returns a Recorder with all collectors registered. runID is attached
// as a constant label.
func New(runID string) *Recorder {
	constLabels := prometheus.Labels{}
	if runID != "" {
		constLabels["run_id"] = runID
	}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		examples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "fnbtagger_examples_total",
				Help:        "Number of examples written, by output bucket",
				ConstLabels: constLabels,
			},
			[]string{"bucket"},
		),
		lines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "fnbtagger_lines_total",
				Help:        "Number of input lines read, by result",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
		vocabSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "fnbtagger_vocab_size",
				Help:        "Number of entries in each vocabulary, including the unknown entry",
				ConstLabels: constLabels,
			},
			[]string{"vocab"},
		),
	}

	r.registry.MustRegister(r.examples, r.lines, r.vocabSize)

	return r
}

// Example counts one example written to bucket.
func (r *Recorder) Example(bucket string) {
	if r == nil {
		return
	}
	r.examples.WithLabelValues(bucket).Inc()
}

// Line counts one input line with the given result.
func (r *Recorder) Line(result string) {
	if r == nil {
		return
	}
	r.lines.WithLabelValues(result).Inc()
}

// VocabSize records the current size of a vocabulary.
func (r *Recorder) VocabSize(vocab string, size int) {
	if r == nil {
		return
	}
	r.vocabSize.WithLabelValues(vocab).Set(float64(size))
}

// Gatherer exposes the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.registry }

// WriteFile writes all metrics to path in the text exposition format.
func (r *Recorder) WriteFile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}

	return nil
}
