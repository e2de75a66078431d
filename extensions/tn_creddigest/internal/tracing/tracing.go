package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/trufnetwork/creddigest/extensions/tn_creddigest")

// Operation names used for spans.
const (
	OpVerifyVC   = "tn_creddigest.verify_vc"
	OpAttesterOf = "tn_creddigest.attester_of"
	OpHolderOf   = "tn_creddigest.holder_of"
)

// TraceOp wraps any operation with a span
func TraceOp(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
