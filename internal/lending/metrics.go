// internal/lending/metrics.go
package lending

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ledger.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	TxConflicts       *prometheus.CounterVec
	FeesPaid          prometheus.Counter
	FeesAccrued       prometheus.Counter
}

// NewMetrics registers the ledger metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onlinelibrary_ledger_operations_total",
			Help: "Ledger operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onlinelibrary_ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		TxConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onlinelibrary_ledger_tx_conflicts_total",
			Help: "Store transactions that lost a race and were retried or abandoned",
		}, []string{"operation"}),
		FeesPaid: factory.NewCounter(prometheus.CounterOpts{
			Name: "onlinelibrary_fees_paid_total",
			Help: "Fees flipped to paid",
		}),
		FeesAccrued: factory.NewCounter(prometheus.CounterOpts{
			Name: "onlinelibrary_fees_accrued_total",
			Help: "Fee amounts changed by the accrual rule",
		}),
	}
}

// observe records one finished operation. Call with time.Now() at the start
// of the operation.
func (m *Metrics) observe(op string, start time.Time, err error) {
	m.Operations.WithLabelValues(op, outcome(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
