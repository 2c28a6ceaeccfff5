package server

import (
	"time"

	"zeth/zeth-prover/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProofRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeth_prover_proof_requests_total",
			Help: "Total number of proof generation requests by circuit shape",
		},
		[]string{"shape"},
	)

	ProofGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zeth_prover_proof_generation_duration_seconds",
			Help:    "Duration of proof generation in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"shape"},
	)

	ProofGenerationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeth_prover_proof_generation_errors_total",
			Help: "Total number of proof generation errors by circuit shape",
		},
		[]string{"shape", "error_type"},
	)

	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeth_prover_verifications_total",
			Help: "Total number of proof verifications by outcome",
		},
		[]string{"result"},
	)

	QueueWaitTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zeth_prover_queue_wait_time_seconds",
			Help:    "Time spent waiting in queue before processing",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeth_prover_jobs_processed_total",
			Help: "Total number of queued jobs processed",
		},
		[]string{"status"},
	)

	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zeth_prover_active_jobs",
			Help: "Number of currently active proof generation jobs",
		},
	)

	CircuitInputSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zeth_prover_circuit_input_size_bytes",
			Help:    "Size of prove request bodies in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 2, 12),
		},
	)
)

type MetricTimer struct {
	start time.Time
	shape string
}

func StartProofTimer(shape string) *MetricTimer {
	ProofRequestsTotal.WithLabelValues(shape).Inc()
	ActiveJobs.Inc()
	return &MetricTimer{start: time.Now(), shape: shape}
}

func (t *MetricTimer) ObserveDuration() time.Duration {
	elapsed := time.Since(t.start)
	ProofGenerationDuration.WithLabelValues(t.shape).Observe(elapsed.Seconds())
	ActiveJobs.Dec()
	logging.Logger().Info().
		Str("shape", t.shape).
		Dur("duration", elapsed).
		Msg("Proof generation completed")
	return elapsed
}

func (t *MetricTimer) ObserveError(errorType string) {
	ProofGenerationErrors.WithLabelValues(t.shape, errorType).Inc()
	ActiveJobs.Dec()
}

func RecordJobComplete(success bool) {
	if success {
		JobsProcessed.WithLabelValues("completed").Inc()
	} else {
		JobsProcessed.WithLabelValues("failed").Inc()
	}
}

func RecordVerification(ok bool) {
	if ok {
		VerificationsTotal.WithLabelValues("valid").Inc()
	} else {
		VerificationsTotal.WithLabelValues("invalid").Inc()
	}
}
