// Package metrics exposes the prometheus collectors for protocol events,
// snapshot transfers and the in-process caches.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AuthFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jgit_auth_failed_total",
			Help: "Total number of rejected authentication attempts",
		},
		[]string{"op"},
	)

	MasterKeyUsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jgit_master_key_auth_total",
			Help: "Total number of requests authenticated with the operator master key",
		},
	)

	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jgit_git_requests_total",
			Help: "Total number of git protocol requests by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	Pushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jgit_push_total",
			Help: "Total number of completed pushes by persistence result",
		},
		[]string{"result"},
	)

	Materializations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jgit_materialize_total",
			Help: "Total number of working copy materializations by result",
		},
		[]string{"result"},
	)

	MaterializeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jgit_materialize_duration_seconds",
			Help:    "Time spent downloading and unpacking a snapshot",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	PersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jgit_persist_duration_seconds",
			Help:    "Time spent packing and uploading a snapshot after a push",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	SnapshotBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jgit_snapshot_bytes",
			Help:    "Size of uploaded snapshot archives",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	RegistryAdapters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jgit_registry_adapters",
			Help: "Number of per-address adapters currently cached",
		},
	)

	LocalCopies = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jgit_local_working_copies",
			Help: "Number of tracked local working copies",
		},
	)

	Evictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jgit_local_evictions_total",
			Help: "Total number of local working copies removed by the janitor",
		},
	)
)
