package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("flowline")

// SpanManager manages the trace span lifecycle for a session. Use
// NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	StartSessionSpan(ctx context.Context, workflowName, sessionID string) (context.Context, trace.Span)
	StartEventSpan(ctx context.Context, eventName string) (context.Context, trace.Span)
	StartAgentSpan(ctx context.Context, agentName string) (context.Context, trace.Span)
	EndSpanWithError(span trace.Span, err error)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager using the global OTel tracer
// provider. Configure the provider before calling this function.
func NewSpanManager() SpanManager { return otelSpanManager{} }

func (otelSpanManager) StartSessionSpan(ctx context.Context, workflowName, sessionID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flowline.session",
		trace.WithAttributes(
			attribute.String("workflow.name", workflowName),
			attribute.String("session.id", sessionID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (otelSpanManager) StartEventSpan(ctx context.Context, eventName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flowline.event."+eventName,
		trace.WithAttributes(attribute.String("event.name", eventName)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (otelSpanManager) StartAgentSpan(ctx context.Context, agentName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flowline.agent."+agentName,
		trace.WithAttributes(attribute.String("agent.name", agentName)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
