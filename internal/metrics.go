package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry metrics
var (
	metricFilesAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocleanup_files_added_total",
			Help: "Total number of unique media files registered, by category",
		},
		[]string{"category"},
	)

	metricCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photocleanup_collisions_total",
			Help: "Total number of added paths whose content was already registered",
		},
	)

	metricRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photocleanup_rejected_total",
			Help: "Total number of paths rejected by the classifier",
		},
	)

	metricHashDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photocleanup_hash_duration_seconds",
			Help:    "Time spent fingerprinting a single file",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

// Analysis metrics
var (
	metricDatesResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocleanup_dates_resolved_total",
			Help: "Entries whose resolved date came from each source",
		},
		[]string{"source"},
	)

	metricDatesUnresolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photocleanup_dates_unresolved_total",
			Help: "Entries for which no date source succeeded",
		},
	)

	metricEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photocleanup_registry_entries",
			Help: "Unique media files currently held by the last updated registry",
		},
	)
)

// WriteMetricsFile dumps every registered metric in the node_exporter textfile format.
func WriteMetricsFile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
