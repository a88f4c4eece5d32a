package events

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type dispatcherMetrics struct {
	eventsDispatched  metric.Int64Counter
	eventsFailed      metric.Int64Counter
	eventsStateFailed metric.Int64Counter
	dispatchLatency   metric.Float64Histogram
	queueDepth        metric.Int64Gauge
}

func newDispatcherMetrics(provider metric.MeterProvider) (dispatcherMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("redemption.events.dispatcher")

	var (
		metrics dispatcherMetrics
		err     error
	)

	metrics.eventsDispatched, err = meter.Int64Counter(
		"events.dispatched",
		metric.WithDescription("Number of operation events successfully published"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create events.dispatched counter: %w", err)
	}

	metrics.eventsFailed, err = meter.Int64Counter(
		"events.failed",
		metric.WithDescription("Number of operation events that failed to publish"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create events.failed counter: %w", err)
	}

	metrics.eventsStateFailed, err = meter.Int64Counter(
		"events.state_update_failed",
		metric.WithDescription("Number of operation events published but not persisted as published"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create events.state_update_failed counter: %w", err)
	}

	metrics.dispatchLatency, err = meter.Float64Histogram(
		"events.dispatch.latency",
		metric.WithDescription("Time taken per dispatch cycle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create events.dispatch.latency histogram: %w", err)
	}

	metrics.queueDepth, err = meter.Int64Gauge(
		"events.queue.depth",
		metric.WithDescription("Number of operation events selected in a dispatch cycle (pending and reclaimed)"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create events.queue.depth gauge: %w", err)
	}

	return metrics, nil
}

func (m dispatcherMetrics) recordQueueDepth(ctx context.Context, depth int64) {
	if m.queueDepth == nil {
		return
	}

	m.queueDepth.Record(ctx, depth)
}

func (m dispatcherMetrics) addDispatched(ctx context.Context, count int64) {
	if m.eventsDispatched == nil || count <= 0 {
		return
	}

	m.eventsDispatched.Add(ctx, count)
}

func (m dispatcherMetrics) addFailed(ctx context.Context, count int64) {
	if m.eventsFailed == nil || count <= 0 {
		return
	}

	m.eventsFailed.Add(ctx, count)
}

func (m dispatcherMetrics) addStateUpdateFailed(ctx context.Context, count int64) {
	if m.eventsStateFailed == nil || count <= 0 {
		return
	}

	m.eventsStateFailed.Add(ctx, count)
}

func (m dispatcherMetrics) recordLatency(ctx context.Context, latencySeconds float64) {
	if m.dispatchLatency == nil {
		return
	}

	m.dispatchLatency.Record(ctx, latencySeconds)
}
