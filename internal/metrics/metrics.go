package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PayoutTransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settle_payout_transfers_total",
			Help: "Total number of payout rail transfer attempts by outcome",
		},
		[]string{"rail", "outcome"},
	)

	PayoutTransferSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settle_payout_transfer_seconds",
			Help:    "Latency of payout rail transfer calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"rail"},
	)

	BatchesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settle_batches_processed_total",
			Help: "Total number of processed payment batches by final status",
		},
		[]string{"status"},
	)

	PaymentRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settle_payment_retries_total",
			Help: "Total number of payment retry attempts by outcome",
		},
		[]string{"outcome"},
	)

	ReferralPayoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "settle_referral_payouts_total",
			Help: "Total number of monthly referral payouts created",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settle_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPResponseSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settle_http_response_seconds",
			Help:    "Histogram of HTTP response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// ObserveTransfer 记录一次通道转账
func ObserveTransfer(rail, outcome string, elapsed time.Duration) {
	PayoutTransfersTotal.WithLabelValues(rail, outcome).Inc()
	PayoutTransferSeconds.WithLabelValues(rail).Observe(elapsed.Seconds())
}
