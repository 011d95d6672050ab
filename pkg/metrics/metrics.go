// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentMutationsTotal tracks document mutations by type
	DocumentMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "documents",
			Name:      "mutations_total",
			Help:      "Total number of document mutations by type",
		},
		[]string{"project_id", "mutation"},
	)

	// OperationsAppended tracks operation log appends by log
	OperationsAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "oplog",
			Name:      "operations_appended_total",
			Help:      "Total number of operations appended to document logs",
		},
		[]string{"project_id", "log"},
	)

	// MaterializeDuration tracks how long document folds take
	MaterializeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "documents",
			Name:      "materialize_duration_seconds",
			Help:      "Duration of document materialization folds in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	// MaterializedLogSize tracks the log length of materialized documents
	MaterializedLogSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "documents",
			Name:      "materialized_log_size",
			Help:      "Number of operations folded per materialization",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// SchemaMutationsTotal tracks schema mutations by type
	SchemaMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "schema",
			Name:      "mutations_total",
			Help:      "Total number of schema mutations by type",
		},
		[]string{"project_id", "mutation"},
	)

	// SchemaCacheHits tracks schema cache lookups by outcome
	SchemaCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "schema",
			Name:      "cache_lookups_total",
			Help:      "Total number of schema cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)
