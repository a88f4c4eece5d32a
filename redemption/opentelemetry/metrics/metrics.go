package metrics

import (
	"errors"
	"sync"

	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MetricsFactory creates and caches OpenTelemetry instruments with lazy
// initialization. Safe for concurrent use.
type MetricsFactory struct {
	meter      metric.Meter
	counters   sync.Map // string -> metric.Int64Counter
	gauges     sync.Map // string -> metric.Int64Gauge
	histograms sync.Map // string -> metric.Int64Histogram
	logger     log.Logger
}

// ErrNilMeter indicates that a nil OTEL meter was provided.
var ErrNilMeter = errors.New("metric meter cannot be nil")

// Metric describes an instrument the factory can create.
type Metric struct {
	Name        string
	Description string
	Unit        string
	// For histograms: bucket boundaries
	Buckets []float64
}

// Pre-configured metrics recorded by the operation layer and event pipeline.
var (
	// MetricOperationsApplied counts committed ledger operations by type.
	MetricOperationsApplied = Metric{
		Name:        "redemption_operations_applied",
		Unit:        "1",
		Description: "Number of ledger operations applied, labeled by operation.",
	}

	// MetricOperationFailures counts rejected operations by type and error code.
	MetricOperationFailures = Metric{
		Name:        "redemption_operation_failures",
		Unit:        "1",
		Description: "Number of ledger operations rejected, labeled by operation and code.",
	}

	// MetricEventsPublished counts outbox events successfully published.
	MetricEventsPublished = Metric{
		Name:        "redemption_events_published",
		Unit:        "1",
		Description: "Number of operation events delivered to the broker.",
	}

	// MetricSystemPaused tracks the pause flag as a 0/1 gauge.
	MetricSystemPaused = Metric{
		Name:        "redemption_system_paused",
		Unit:        "1",
		Description: "Whether mutating operations are currently halted.",
	}

	// MetricOperationDuration measures end-to-end operation latency.
	MetricOperationDuration = Metric{
		Name:        "redemption_operation_duration_ms",
		Unit:        "ms",
		Description: "End-to-end duration of ledger operations in milliseconds.",
		Buckets:     []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}
)

// NewMetricsFactory creates a new MetricsFactory instance.
func NewMetricsFactory(meter metric.Meter, logger log.Logger) (*MetricsFactory, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}

	return &MetricsFactory{
		meter:  meter,
		logger: logger,
	}, nil
}

// NewNopFactory returns a MetricsFactory backed by OpenTelemetry's no-op
// meter. Safe as a fallback when a real meter is unavailable.
func NewNopFactory() *MetricsFactory {
	return &MetricsFactory{
		meter:  noop.NewMeterProvider().Meter("nop"),
		logger: log.NewNop(),
	}
}

// Counter creates or retrieves a counter and returns its builder.
func (f *MetricsFactory) Counter(m Metric) (*CounterBuilder, error) {
	counter, err := f.getOrCreateCounter(m)
	if err != nil {
		return nil, err
	}

	return &CounterBuilder{counter: counter, name: m.Name}, nil
}

// Gauge creates or retrieves a gauge and returns its builder.
func (f *MetricsFactory) Gauge(m Metric) (*GaugeBuilder, error) {
	gauge, err := f.getOrCreateGauge(m)
	if err != nil {
		return nil, err
	}

	return &GaugeBuilder{gauge: gauge, name: m.Name}, nil
}

// Histogram creates or retrieves a histogram and returns its builder.
func (f *MetricsFactory) Histogram(m Metric) (*HistogramBuilder, error) {
	histogram, err := f.getOrCreateHistogram(m)
	if err != nil {
		return nil, err
	}

	return &HistogramBuilder{histogram: histogram, name: m.Name}, nil
}

func (f *MetricsFactory) getOrCreateCounter(m Metric) (metric.Int64Counter, error) {
	if cached, ok := f.counters.Load(m.Name); ok {
		return cached.(metric.Int64Counter), nil
	}

	counter, err := f.meter.Int64Counter(
		m.Name,
		metric.WithDescription(m.Description),
		metric.WithUnit(m.Unit),
	)
	if err != nil {
		return nil, err
	}

	actual, _ := f.counters.LoadOrStore(m.Name, counter)

	return actual.(metric.Int64Counter), nil
}

func (f *MetricsFactory) getOrCreateGauge(m Metric) (metric.Int64Gauge, error) {
	if cached, ok := f.gauges.Load(m.Name); ok {
		return cached.(metric.Int64Gauge), nil
	}

	gauge, err := f.meter.Int64Gauge(
		m.Name,
		metric.WithDescription(m.Description),
		metric.WithUnit(m.Unit),
	)
	if err != nil {
		return nil, err
	}

	actual, _ := f.gauges.LoadOrStore(m.Name, gauge)

	return actual.(metric.Int64Gauge), nil
}

func (f *MetricsFactory) getOrCreateHistogram(m Metric) (metric.Int64Histogram, error) {
	if cached, ok := f.histograms.Load(m.Name); ok {
		return cached.(metric.Int64Histogram), nil
	}

	opts := []metric.Int64HistogramOption{
		metric.WithDescription(m.Description),
		metric.WithUnit(m.Unit),
	}

	if len(m.Buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(m.Buckets...))
	}

	histogram, err := f.meter.Int64Histogram(m.Name, opts...)
	if err != nil {
		return nil, err
	}

	actual, _ := f.histograms.LoadOrStore(m.Name, histogram)

	return actual.(metric.Int64Histogram), nil
}
