package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsScanned counts rows fetched and decoded across every partition.
	RowsScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scanbench_rows_scanned_total",
			Help: "Total number of rows fetched by partition scans",
		},
	)
	// DecodeFailures counts cells that failed to materialize, by column.
	DecodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanbench_decode_failures_total",
			Help: "Total number of cells that failed to decode",
		},
		[]string{"column"},
	)
	// UnhandledCells counts cells skipped because their type has no decoder.
	UnhandledCells = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanbench_unhandled_cells_total",
			Help: "Total number of cells skipped for lack of a decode strategy",
		},
		[]string{"column"},
	)
	PartitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanbench_partitions_total",
			Help: "Total number of partition scans by outcome",
		},
		[]string{"status"},
	)
	PartitionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scanbench_partition_duration_seconds",
			Help:    "Wall time of a single partition scan",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
	)
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scanbench_fetch_duration_seconds",
			Help:    "Latency of one FETCH round trip",
			Buckets: prometheus.DefBuckets,
		},
	)
	PoolAcquired = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scanbench_pool_acquired_connections",
			Help: "Connections currently leased from the scan pool",
		},
	)
)

const (
	StatusOK    = "ok"
	StatusFatal = "fatal"
)
