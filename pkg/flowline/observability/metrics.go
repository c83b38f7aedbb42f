package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records runtime-level metrics. Use NewMetricsRecorder()
// for OTel-backed metrics or NoopMetrics{} when observability is disabled.
type MetricsRecorder interface {
	RecordEventDispatch(ctx context.Context, sessionID, eventName string, duration time.Duration)
	RecordAgentInvocation(ctx context.Context, agentName string, duration time.Duration, err error)
	RecordStoreAppend(ctx context.Context, sessionID string, duration time.Duration)
}

type otelMetrics struct {
	eventDispatches metric.Int64Counter
	eventLatency    metric.Float64Histogram
	agentInvokes    metric.Int64Counter
	agentErrors     metric.Int64Counter
	agentLatency    metric.Float64Histogram
	storeLatency    metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
)

func getDefaultMetrics() *otelMetrics {
	defaultMetricsOnce.Do(func() {
		meter := otel.Meter("flowline")

		eventDispatches, err1 := meter.Int64Counter("flowline.event.dispatches",
			metric.WithDescription("number of events dispatched"))
		eventLatency, err2 := meter.Float64Histogram("flowline.event.latency_ms",
			metric.WithDescription("event dispatch latency in milliseconds"))
		agentInvokes, err3 := meter.Int64Counter("flowline.agent.invocations",
			metric.WithDescription("number of agent invocations"))
		agentErrors, err4 := meter.Int64Counter("flowline.agent.errors",
			metric.WithDescription("number of failed agent invocations"))
		agentLatency, err5 := meter.Float64Histogram("flowline.agent.latency_ms",
			metric.WithDescription("agent invocation latency in milliseconds"))
		storeLatency, err6 := meter.Float64Histogram("flowline.store.append_latency_ms",
			metric.WithDescription("store append latency in milliseconds"))

		for _, err := range []error{err1, err2, err3, err4, err5, err6} {
			if err != nil {
				slog.Warn("flowline: failed to initialize otel instruments", "error", err)
				defaultMetrics = nil
				return
			}
		}

		defaultMetrics = &otelMetrics{
			eventDispatches: eventDispatches,
			eventLatency:    eventLatency,
			agentInvokes:    agentInvokes,
			agentErrors:     agentErrors,
			agentLatency:    agentLatency,
			storeLatency:    storeLatency,
		}
	})
	return defaultMetrics
}

// NewMetricsRecorder returns an OTel-backed MetricsRecorder, falling back
// to NoopMetrics on instrument initialization failure.
func NewMetricsRecorder() MetricsRecorder {
	m := getDefaultMetrics()
	if m == nil {
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordEventDispatch(ctx context.Context, sessionID, eventName string, duration time.Duration) {
	m.eventDispatches.Add(ctx, 1)
	m.eventLatency.Record(ctx, float64(duration.Milliseconds()))
}

func (m *otelMetrics) RecordAgentInvocation(ctx context.Context, agentName string, duration time.Duration, err error) {
	m.agentInvokes.Add(ctx, 1)
	m.agentLatency.Record(ctx, float64(duration.Milliseconds()))
	if err != nil {
		m.agentErrors.Add(ctx, 1)
	}
}

func (m *otelMetrics) RecordStoreAppend(ctx context.Context, sessionID string, duration time.Duration) {
	m.storeLatency.Record(ctx, float64(duration.Milliseconds()))
}
