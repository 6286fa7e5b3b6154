// Package metrics provides Prometheus metrics for the Laurel service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal tracks duplicate scans by outcome
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laurel",
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of duplicate scans by outcome",
		},
		[]string{"tenant_id", "status"},
	)

	// ScanDuration tracks duplicate scan duration in seconds
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "laurel",
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Duration of duplicate scans in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"tenant_id"},
	)

	// CandidatesFound tracks candidate pairs found per scan
	CandidatesFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laurel",
			Subsystem: "scan",
			Name:      "candidates_total",
			Help:      "Total number of candidate pairs found by scans",
		},
		[]string{"tenant_id"},
	)

	// MergesTotal tracks person merges by outcome
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laurel",
			Subsystem: "merge",
			Name:      "merges_total",
			Help:      "Total number of person merges by outcome",
		},
		[]string{"tenant_id", "status"},
	)

	// UndosTotal tracks merge undos by outcome
	UndosTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laurel",
			Subsystem: "merge",
			Name:      "undos_total",
			Help:      "Total number of merge undos by outcome",
		},
		[]string{"tenant_id", "status"},
	)
)
