package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Purchase outcomes used as the "outcome" label of PurchasesTotal.
const (
	OutcomeCommitted      = "committed"
	OutcomeTransferFailed = "transfer_failed"
	OutcomeInconsistent   = "inconsistent"
	OutcomeRefunded       = "refunded"
)

// Prometheus metrics for capsules, purchases and the HTTP API
var (
	CapsulesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heritage_capsules_created_total",
			Help: "Total number of capsules created, by kind (free or paid)",
		},
		[]string{"kind"},
	)

	PurchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heritage_purchases_total",
			Help: "Total number of purchase attempts that reached the ledger, by outcome",
		},
		[]string{"outcome"},
	)

	LedgerTransferDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "heritage_ledger_transfer_duration_seconds",
			Help:    "Duration of ledger transfer calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	TokenTransfersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "heritage_token_transfers_total",
			Help: "Total number of heritage tokens that changed owner",
		},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heritage_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "code"},
	)
)

var registerOnce sync.Once

// Register registers all Heritage metrics with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(CapsulesCreatedTotal)
		prometheus.MustRegister(PurchasesTotal)
		prometheus.MustRegister(LedgerTransferDuration)
		prometheus.MustRegister(TokenTransfersTotal)
		prometheus.MustRegister(HTTPRequestDuration)
	})
}
