package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for store attempts.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomeNotFound  = "not_found"
	OutcomeFatal     = "fatal"
)

var (
	// Store call metrics
	storeAttemptsTotal *prometheus.CounterVec
	retriesTotal       *prometheus.CounterVec

	// Transfer metrics
	transfersTotal   *prometheus.CounterVec
	transferDuration prometheus.Histogram

	metricsOnce sync.Once
)

// Recorder records store and transfer metrics. A nil Recorder records nothing.
type Recorder struct{}

// NewRecorder registers the metrics on first use and returns a Recorder.
func NewRecorder() *Recorder {
	Init()
	return &Recorder{}
}

// Init registers all Prometheus metrics with the default registry.
// It is safe to call more than once.
func Init() {
	metricsOnce.Do(func() {
		storeAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretxfer_store_attempts_total",
				Help: "Total number of secret store calls by outcome",
			},
			[]string{"store", "op", "outcome"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretxfer_retries_total",
				Help: "Total number of retries scheduled after a transient failure",
			},
			[]string{"store", "op"},
		)

		transfersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretxfer_transfers_total",
				Help: "Total number of transfers by result",
			},
			[]string{"result"},
		)

		transferDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "secretxfer_transfer_duration_seconds",
				Help:    "Duration of transfers in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60},
			},
		)
	})
}

// RecordAttempt records the outcome of one store call.
func (r *Recorder) RecordAttempt(store, op, outcome string) {
	if r == nil || storeAttemptsTotal == nil {
		return
	}
	storeAttemptsTotal.WithLabelValues(store, op, outcome).Inc()
}

// RecordRetry records a scheduled retry.
func (r *Recorder) RecordRetry(store, op string) {
	if r == nil || retriesTotal == nil {
		return
	}
	retriesTotal.WithLabelValues(store, op).Inc()
}

// RecordTransfer records a finished transfer.
func (r *Recorder) RecordTransfer(result string, durationSeconds float64) {
	if r == nil {
		return
	}

	if transfersTotal != nil {
		transfersTotal.WithLabelValues(result).Inc()
	}

	if transferDuration != nil {
		transferDuration.Observe(durationSeconds)
	}
}

// StoreAttemptsTotal returns the store attempt counter for testing.
func StoreAttemptsTotal() *prometheus.CounterVec {
	return storeAttemptsTotal
}

// RetriesTotal returns the retry counter for testing.
func RetriesTotal() *prometheus.CounterVec {
	return retriesTotal
}

// TransfersTotal returns the transfer counter for testing.
func TransfersTotal() *prometheus.CounterVec {
	return transfersTotal
}
