// Package metrics holds the prometheus collectors shared by the CLI and the
// HTTP service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mmstats"

var (
	registry *prometheus.Registry
	once     sync.Once
)

var (
	EstimatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "estimates_total",
		Help:      "Estimates computed, by mode and outcome",
	}, []string{"mode", "outcome"})

	TrialsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "simulation_trials_total",
		Help:      "Resampling trials completed",
	})

	EstimateDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "estimate_duration_seconds",
		Help:      "Wall time of a single estimate",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"mode"})

	FeedRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_requests_total",
		Help:      "Requests sent to the results feed, by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	SnapshotLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_lookups_total",
		Help:      "Snapshot lookups, by layer that answered (memory, disk, miss)",
	}, []string{"layer"})
)

// Registry returns the process registry with every collector registered.
func Registry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			EstimatesTotal,
			TrialsTotal,
			EstimateDuration,
			FeedRequestsTotal,
			SnapshotLookupsTotal,
		)
	})
	return registry
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}
