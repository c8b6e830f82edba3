// Package metrics provides Prometheus metrics for tdt scan runs.
//
// A CLI run is too short-lived to be scraped, so metrics are kept in a
// private registry and written out in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "tdt"
)

// ScanMetrics holds the metrics of a single scan run. A nil *ScanMetrics is
// valid and records nothing.
type ScanMetrics struct {
	registry *prometheus.Registry

	// FilesScanned counts blamed files.
	FilesScanned prometheus.Counter

	// LinesScanned counts blamed lines, including skipped ones.
	LinesScanned prometheus.Counter

	// LinesSkipped counts lines that were not valid text.
	LinesSkipped prometheus.Counter

	// MatchesTotal counts lines that matched the pattern.
	MatchesTotal prometheus.Counter

	// BlameDuration tracks per-file blame latency.
	BlameDuration prometheus.Histogram

	// RunDuration is the wall time of the last run.
	RunDuration prometheus.Gauge

	// LastRunTimestamp is the unix time the last run finished.
	LastRunTimestamp prometheus.Gauge

	// BuildInfo exposes the tdt build as labels.
	BuildInfo *prometheus.GaugeVec
}

// NewScanMetrics creates metrics registered on a fresh registry.
func NewScanMetrics() *ScanMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &ScanMetrics{
		registry: reg,
		FilesScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "files_total",
			Help:      "Total number of files blamed",
		}),
		LinesScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "lines_total",
			Help:      "Total number of blamed lines",
		}),
		LinesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "lines_skipped_total",
			Help:      "Total number of lines skipped because they were not valid text",
		}),
		MatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "matches_total",
			Help:      "Total number of lines matching the scan pattern",
		}),
		BlameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "blame_duration_seconds",
			Help:      "Per-file git blame latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last scan run in seconds",
		}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last scan run finished",
		}),
		BuildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build information",
			},
			[]string{"version", "commit", "build_time"},
		),
	}
}

// ObserveFile records the result of blaming one file.
func (m *ScanMetrics) ObserveFile(lines, skipped, matches int, blame time.Duration) {
	if m == nil {
		return
	}
	m.FilesScanned.Inc()
	m.LinesScanned.Add(float64(lines))
	m.LinesSkipped.Add(float64(skipped))
	m.MatchesTotal.Add(float64(matches))
	m.BlameDuration.Observe(blame.Seconds())
}

// ObserveRun records the end of a run.
func (m *ScanMetrics) ObserveRun(duration time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.RunDuration.Set(duration.Seconds())
	m.LastRunTimestamp.Set(float64(finished.Unix()))
}

// SetBuildInfo sets the build info metric.
func (m *ScanMetrics) SetBuildInfo(version, commit, buildTime string) {
	if m == nil {
		return
	}
	m.BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// WriteTextfile writes all metrics to path in the Prometheus text format.
// The file is replaced atomically.
func (m *ScanMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
