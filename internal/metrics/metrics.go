// Package metrics holds the Prometheus collectors of the generator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "por_runs_total",
		Help: "Total proof-of-reserve runs by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "por_stage_duration_seconds",
		Help:    "Duration of each pipeline stage in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "por_verifications_total",
		Help: "Contract verification outcomes by status",
	}, []string{"status"})

	ReserveRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "por_reserve_ratio",
		Help: "Reserve ratio of the last successful run",
	})

	RiskScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "por_risk_score",
		Help: "Composite risk score of the last successful run",
	})

	LastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "por_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run",
	})
)
