package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments exported for the crawler.
type Metrics struct {
	ScansTotal       *prometheus.CounterVec
	SubmitTotal      *prometheus.CounterVec
	EntriesChecked   prometheus.Counter
	EntriesReclaimed prometheus.Counter
	EntriesUnfetched prometheus.Counter
	ScanDuration     prometheus.Histogram
	ClientBufBytes   prometheus.Gauge // registered, but never set by the scheduler or client; stays 0
	Running          prometheus.Gauge
}

// NewMetrics creates and registers the crawler's Prometheus instruments.
func NewMetrics() *Metrics {
	return &Metrics{
		ScansTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachecrawler_scans_total",
				Help: "Total number of scans completed, by scan type",
			},
			[]string{"type"},
		),
		SubmitTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachecrawler_submit_total",
				Help: "Total submission attempts, by result code",
			},
			[]string{"result"},
		),
		EntriesChecked: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cachecrawler_entries_checked_total",
				Help: "Total entries visited across all classes",
			},
		),
		EntriesReclaimed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cachecrawler_entries_reclaimed_total",
				Help: "Total entries reclaimed by the expire/autoexpire module",
			},
		),
		EntriesUnfetched: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cachecrawler_entries_unfetched_total",
				Help: "Total reclaimed entries that were never fetched",
			},
		),
		ScanDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cachecrawler_scan_duration_seconds",
				Help:    "Wall-clock duration of a scan from submit to finalize",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		ClientBufBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cachecrawler_client_buffer_bytes",
				Help: "Size of the active Output Client buffer",
			},
		),
		Running: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cachecrawler_running",
				Help: "Whether a scan is currently active (1) or not (0)",
			},
		),
	}
}

// RecordSubmit tallies a submission result.
func (m *Metrics) RecordSubmit(r SubmitResult) {
	m.SubmitTotal.WithLabelValues(r.String()).Inc()
}

// RecordScanComplete tallies a finished scan and its duration.
func (m *Metrics) RecordScanComplete(t ScanType, seconds float64) {
	m.ScansTotal.WithLabelValues(t.String()).Inc()
	m.ScanDuration.Observe(seconds)
}

// RecordPump tallies one evaluated entry's outcome.
func (m *Metrics) RecordPump(reclaimed, unfetched bool) {
	m.EntriesChecked.Inc()
	if reclaimed {
		m.EntriesReclaimed.Inc()
	}
	if unfetched {
		m.EntriesUnfetched.Inc()
	}
}

// SetRunning mirrors the scheduler's running state onto the gauge. It
// satisfies the RunningFlag collaborator interface so a Scheduler can be
// wired directly to a Metrics instance.
func (m *Metrics) SetRunning(running bool) {
	if running {
		m.Running.Set(1)
	} else {
		m.Running.Set(0)
	}
}
