package calculator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calculator_executions_total",
		Help: "The total number of calculator executions by outcome",
	}, []string{"status"})
	itemErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calculator_item_errors_total",
		Help: "The total number of field or formula evaluations that failed",
	}, []string{"kind"})
	executionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "calculator_execution_duration_seconds",
		Help:    "Duration of one calculator execution",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
	batchRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calculator_batch_rows_total",
		Help: "The total number of batch input rows processed by outcome",
	}, []string{"status"})
)
