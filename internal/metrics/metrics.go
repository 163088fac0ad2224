package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fill metrics
	FillJobs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feemanager_fill_jobs_total",
		Help: "Total number of fee jobs processed by the fill engine",
	})

	PositionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feemanager_positions_opened_total",
		Help: "Total number of hub positions opened",
	})

	PositionsIncreased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feemanager_positions_increased_total",
		Help: "Total number of hub position increases",
	})

	FillDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feemanager_fill_duration_seconds",
		Help:    "Duration of fill invocations in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// Settlement metrics
	PositionsTerminated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feemanager_positions_terminated_total",
		Help: "Total number of hub positions terminated",
	})

	Withdrawals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feemanager_withdrawals_total",
			Help: "Total number of withdrawal operations by kind",
		},
		[]string{"kind"},
	)

	AllowancesRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feemanager_allowances_revoked_total",
		Help: "Total number of token allowances reset to zero",
	})

	// Collaborator health
	HubCallFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feemanager_hub_call_failures_total",
		Help: "Total number of failed external hub calls",
	})
)
