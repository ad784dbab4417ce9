package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundgate_batches_total",
		Help: "The total number of ledger batches processed",
	}, []string{"status"})

	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundgate_operations_total",
		Help: "Committed ledger operations by kind",
	}, []string{"op"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fundgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	LedgerRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundgate_ledger_rejects_total",
		Help: "Total ledger rejections",
	}, []string{"reason"})

	OracleUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundgate_oracle_updates_total",
		Help: "Oracle price updates applied to the ledger",
	}, []string{"source"})

	FundNav = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fundgate_fund_nav_base_units",
		Help: "Last computed NAV per fund in base-currency units",
	}, []string{"fund"})
)
