package metrics

import (
	"context"
	"time"
)

// NoOpMetrics is a no-op implementation of MetricsRecorder.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new no-op metrics recorder
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (n *NoOpMetrics) RecordSubmission(ctx context.Context, outcome string, useEIP191 bool) {}

func (n *NoOpMetrics) RecordFatal(ctx context.Context, reason string) {}

func (n *NoOpMetrics) RecordVerifyDuration(ctx context.Context, duration time.Duration, outcome string) {
}
