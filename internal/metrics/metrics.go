// Package metrics exposes Prometheus collectors for repository loads.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pkgrepo"

// Load outcomes recorded by LoadOutcome.
const (
	OutcomeCached    = "cached"
	OutcomeStarted   = "started"
	OutcomeJoined    = "joined"
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
)

type Collector struct {
	loads          *prometheus.CounterVec
	sourceErrors   *prometheus.CounterVec
	legacySources  prometheus.Counter
	localPackages  prometheus.Gauge
	remotePackages prometheus.Gauge
	loadDuration   prometheus.Histogram
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Repository load requests by outcome.",
		}, []string{"outcome"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_errors_total",
			Help:      "Remote sources that could not be fetched or parsed.",
		}, []string{"source"}),
		legacySources: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "legacy_sources_total",
			Help:      "Remote sources parsed by the legacy fallback.",
		}),
		localPackages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "local_packages",
			Help:      "Installed packages in the published snapshot.",
		}),
		remotePackages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_packages",
			Help:      "Remote packages in the published snapshot.",
		}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Wall time of completed load tasks.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(c.loads, c.sourceErrors, c.legacySources, c.localPackages, c.remotePackages, c.loadDuration)
	}
	return c
}

func (c *Collector) LoadOutcome(outcome string) {
	if c == nil {
		return
	}
	c.loads.WithLabelValues(outcome).Inc()
}

func (c *Collector) SourceError(source string) {
	if c == nil {
		return
	}
	c.sourceErrors.WithLabelValues(source).Inc()
}

func (c *Collector) LegacySource() {
	if c == nil {
		return
	}
	c.legacySources.Inc()
}

func (c *Collector) Published(local int, remote int, seconds float64) {
	if c == nil {
		return
	}
	c.localPackages.Set(float64(local))
	c.remotePackages.Set(float64(remote))
	c.loadDuration.Observe(seconds)
}
