package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// OTELMetrics implements MetricsRecorder using OpenTelemetry
type OTELMetrics struct {
	submissions    metric.Int64Counter
	fatals         metric.Int64Counter
	verifyDuration metric.Float64Histogram

	logger *zap.Logger
}

// NewOTELMetrics creates a new OpenTelemetry metrics recorder
func NewOTELMetrics(meter metric.Meter, logger *zap.Logger) (*OTELMetrics, error) {
	m := &OTELMetrics{logger: logger}

	var err error

	m.submissions, err = meter.Int64Counter("tn_creddigest.submissions",
		metric.WithDescription("Submissions that reached a terminal state"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	m.fatals, err = meter.Int64Counter("tn_creddigest.fatal_rejections",
		metric.WithDescription("Submissions aborted without a state change"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	m.verifyDuration, err = meter.Float64Histogram("tn_creddigest.verify.duration",
		metric.WithDescription("Time taken to process a submission"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *OTELMetrics) RecordSubmission(ctx context.Context, outcome string, useEIP191 bool) {
	m.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("eip191", useEIP191),
	))
}

func (m *OTELMetrics) RecordFatal(ctx context.Context, reason string) {
	m.fatals.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

func (m *OTELMetrics) RecordVerifyDuration(ctx context.Context, duration time.Duration, outcome string) {
	m.verifyDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
