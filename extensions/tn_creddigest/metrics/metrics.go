// Package metrics provides observability for the credential digest registry.
// It uses a plugin pattern to ensure zero overhead when OpenTelemetry is not available.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Outcome labels of an accepted submission.
const (
	OutcomeVerified = "verified"
	OutcomeRejected = "rejected"
)

// MetricsRecorder defines the interface for recording registry metrics.
// This allows for pluggable implementations - either real OTEL metrics or no-op.
type MetricsRecorder interface {
	// RecordSubmission counts a submission that reached a terminal state.
	RecordSubmission(ctx context.Context, outcome string, useEIP191 bool)
	// RecordFatal counts a submission aborted without state change.
	RecordFatal(ctx context.Context, reason string)
	// RecordVerifyDuration observes the end-to-end latency of VerifyVC.
	RecordVerifyDuration(ctx context.Context, duration time.Duration, outcome string)
}

// NewMetricsRecorder creates a metrics recorder instance.
// It returns a real OTEL implementation when the global meter provider accepts
// instruments, and a no-op implementation otherwise.
func NewMetricsRecorder(logger *zap.Logger) MetricsRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}

	meter := otel.GetMeterProvider().Meter("github.com/trufnetwork/creddigest/extensions/tn_creddigest")

	otelMetrics, err := NewOTELMetrics(meter, logger)
	if err != nil {
		logger.Warn("failed to initialize OTEL metrics, falling back to no-op", zap.Error(err))
		return NewNoOpMetrics()
	}

	logger.Debug("OpenTelemetry metrics initialized")
	return otelMetrics
}
