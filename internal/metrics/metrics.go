// Package metrics collects batch counters in a private Prometheus registry
// and writes them in the node-exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dcat"

// Metrics holds the collectors of one process. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	VideosProcessed  *prometheus.CounterVec
	VideosClassified *prometheus.CounterVec
	SourceFailures   *prometheus.CounterVec
	OutputsWritten   *prometheus.CounterVec
	ExportSkipped    prometheus.Counter
	PlacementBytes   prometheus.Counter
	Retries          prometheus.Counter
	StageDuration    *prometheus.HistogramVec
	ActiveWorkers    prometheus.Gauge
	LastSuccess      prometheus.Gauge
}

// New creates collectors registered on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		VideosProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "videos_processed_total",
			Help:      "Videos processed, by status (done, failed, resumed)",
		}, []string{"status"}),

		VideosClassified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "videos_classified_total",
			Help:      "Videos classified, by mission and rule",
		}, []string{"mission", "method"}),

		SourceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_source_failures_total",
			Help:      "Metadata sources that failed for a video, by source",
		}, []string{"source"}),

		OutputsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outputs_written_total",
			Help:      "Files written, by formatter",
		}, []string{"formatter"}),

		ExportSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semantic_export_skipped_total",
			Help:      "Videos left out of the semantic model",
		}),

		PlacementBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placement_bytes_total",
			Help:      "Bytes copied while placing source videos",
		}),

		Retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_retries_total",
			Help:      "Extra processing attempts after a failed one",
		}),

		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of batch stages",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		}, []string{"stage"}),

		ActiveWorkers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Videos currently being extracted",
		}),

		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_last_success_timestamp_seconds",
			Help:      "Unix time the last batch completed",
		}),
	}
}

// Registry exposes the gatherer, e.g. for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStage records how long a stage took
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// VideoDone counts a processed video by status
func (m *Metrics) VideoDone(status string) {
	if m == nil {
		return
	}
	m.VideosProcessed.WithLabelValues(status).Inc()
}

// Classified counts an assignment
func (m *Metrics) Classified(mission, method string) {
	if m == nil {
		return
	}
	m.VideosClassified.WithLabelValues(mission, method).Inc()
}

// SourceFailed counts a failed metadata source
func (m *Metrics) SourceFailed(source string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(source).Inc()
}

// Outputs adds n written files for a formatter
func (m *Metrics) Outputs(formatter string, n int) {
	if m == nil {
		return
	}
	m.OutputsWritten.WithLabelValues(formatter).Add(float64(n))
}

// Skipped adds n videos left out of the semantic export
func (m *Metrics) Skipped(n int) {
	if m == nil {
		return
	}
	m.ExportSkipped.Add(float64(n))
}

// PlacedBytes adds bytes written by placement
func (m *Metrics) PlacedBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.PlacementBytes.Add(float64(n))
}

// Retried counts one retry
func (m *Metrics) Retried() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

// WorkerStarted and WorkerFinished track the active worker gauge
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.ActiveWorkers.Inc()
}

func (m *Metrics) WorkerFinished() {
	if m == nil {
		return
	}
	m.ActiveWorkers.Dec()
}

// BatchSucceeded stamps the last-success gauge
func (m *Metrics) BatchSucceeded(t time.Time) {
	if m == nil {
		return
	}
	m.LastSuccess.Set(float64(t.Unix()))
}

// WriteTextfile writes every metric to path atomically, for the
// node-exporter textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
