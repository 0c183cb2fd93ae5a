package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rewired-gh/contactfit/internal/models"
)

// Metrics holds the Prometheus counters for analysis runs
type Metrics struct {
	Subjects       prometheus.Counter
	Classified     *prometheus.CounterVec
	Skipped        *prometheus.CounterVec
	InvalidRecords prometheus.Counter
}

// New creates the counters and registers them with reg. It panics if any name is
// already registered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Subjects: factory.NewCounter(prometheus.CounterOpts{
			Name: "contactfit_subjects_total",
			Help: "Number of subjects analyzed",
		}),
		Classified: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contactfit_subjects_classified_total",
				Help: "Number of subjects that reached classification, by outcome",
			},
			[]string{"outcome"},
		),
		Skipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contactfit_subjects_skipped_total",
				Help: "Number of subjects skipped before classification, by reason",
			},
			[]string{"reason"},
		),
		InvalidRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "contactfit_records_invalid_total",
			Help: "Number of contact records rejected at ingestion",
		}),
	}
}

// ObserveResult counts one subject under its outcome or skip reason.
func (m *Metrics) ObserveResult(result models.FitResult) {
	m.Subjects.Inc()
	if result.Outcome.Classified() {
		m.Classified.WithLabelValues(string(result.Outcome)).Inc()
		return
	}
	reason := result.SkipReason
	if reason == "" {
		reason = "unknown"
	}
	m.Skipped.WithLabelValues(reason).Inc()
}

// ObserveInvalidRecords adds n rejected records.
func (m *Metrics) ObserveInvalidRecords(n int) {
	if n > 0 {
		m.InvalidRecords.Add(float64(n))
	}
}

// WriteTextfile dumps everything gathered by g to path in the text exposition format,
// for pickup by the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
