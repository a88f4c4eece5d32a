package redemption

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrNilParentContext indicates that a nil parent context was provided.
var ErrNilParentContext = errors.New("cannot create context from nil parent")

// ---- Context container ----

type customContextKey string

// CustomContextKey is the context key used to store CustomContextKeyValue.
var CustomContextKey = customContextKey("custom_context")

// CustomContextKeyValue holds all request-scoped facilities we attach to context.
type CustomContextKeyValue struct {
	HeaderID      string
	HolderID      string
	Tracer        trace.Tracer
	Logger        log.Logger
	MetricFactory *metrics.MetricsFactory

	// AttrBag holds request-wide attributes to be applied to every span.
	// Keep low/medium cardinality attributes here (holder.id, route, request_id).
	AttrBag []attribute.KeyValue
}

// cloneContextValues returns an independent copy of the context container so
// derived contexts never mutate state shared with the parent. Always returns
// a non-nil struct.
func cloneContextValues(ctx context.Context) *CustomContextKeyValue {
	clone := &CustomContextKeyValue{}

	existing, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if !ok || existing == nil {
		return clone
	}

	*clone = *existing

	if len(existing.AttrBag) > 0 {
		clone.AttrBag = make([]attribute.KeyValue, len(existing.AttrBag))
		copy(clone.AttrBag, existing.AttrBag)
	}

	return clone
}

// ---- Logger helpers ----

// NewLoggerFromContext extracts the Logger attached to the context.
// Returns a NopLogger when none is present.
//
//nolint:ireturn
func NewLoggerFromContext(ctx context.Context) log.Logger {
	if customContext, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok &&
		customContext != nil && customContext.Logger != nil {
		return customContext.Logger
	}

	return &log.NopLogger{}
}

// ContextWithLogger returns a derived context carrying the given Logger.
func ContextWithLogger(ctx context.Context, logger log.Logger) context.Context {
	values := cloneContextValues(ctx)
	values.Logger = logger

	return context.WithValue(ctx, CustomContextKey, values)
}

// ---- Tracer helpers ----

// ContextWithTracer returns a derived context carrying the given trace.Tracer.
func ContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	values := cloneContextValues(ctx)
	values.Tracer = tracer

	return context.WithValue(ctx, CustomContextKey, values)
}

// ---- Metrics helpers ----

// ContextWithMetricFactory returns a derived context carrying the given MetricsFactory.
func ContextWithMetricFactory(ctx context.Context, metricFactory *metrics.MetricsFactory) context.Context {
	values := cloneContextValues(ctx)
	values.MetricFactory = metricFactory

	return context.WithValue(ctx, CustomContextKey, values)
}

// ---- Correlation / HeaderID helpers ----

// ContextWithHeaderID returns a derived context carrying the request correlation ID.
func ContextWithHeaderID(ctx context.Context, headerID string) context.Context {
	values := cloneContextValues(ctx)
	values.HeaderID = headerID

	return context.WithValue(ctx, CustomContextKey, values)
}

// ---- Holder identity helpers ----

// ContextWithHolderID returns a derived context carrying the authenticated
// holder identity. Role checks and account operations read it back with
// HolderIDFromContext.
func ContextWithHolderID(ctx context.Context, holderID string) context.Context {
	values := cloneContextValues(ctx)
	values.HolderID = strings.TrimSpace(holderID)

	return context.WithValue(ctx, CustomContextKey, values)
}

// HolderIDFromContext returns the authenticated holder identity attached to
// the context, or the empty string when none is present.
func HolderIDFromContext(ctx context.Context) string {
	if values, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok && values != nil {
		return values.HolderID
	}

	return ""
}

// ---- Tracking bundle (convenience) ----

// TrackingComponents represents the complete set of tracking components
// extracted from context.
type TrackingComponents struct {
	Logger        log.Logger
	Tracer        trace.Tracer
	HeaderID      string
	MetricFactory *metrics.MetricsFactory
}

// NewTrackingFromContext extracts tracking components from context, providing
// functional defaults for anything missing so callers never need nil checks.
//
//nolint:ireturn
func NewTrackingFromContext(ctx context.Context) (log.Logger, trace.Tracer, string, *metrics.MetricsFactory) {
	components := extractTrackingComponents(ctx)
	return components.Logger, components.Tracer, components.HeaderID, components.MetricFactory
}

func extractTrackingComponents(ctx context.Context) TrackingComponents {
	customContext, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if !ok || customContext == nil {
		return TrackingComponents{
			Logger:        &log.NopLogger{},
			Tracer:        otel.Tracer("redemption.default"),
			HeaderID:      uuid.New().String(),
			MetricFactory: resolveMetricFactory(nil),
		}
	}

	return TrackingComponents{
		Logger:        resolveLogger(customContext.Logger),
		Tracer:        resolveTracer(customContext.Tracer),
		HeaderID:      resolveHeaderID(customContext.HeaderID),
		MetricFactory: resolveMetricFactory(customContext.MetricFactory),
	}
}

//nolint:ireturn
func resolveLogger(logger log.Logger) log.Logger {
	if logger != nil {
		return logger
	}

	return &log.NopLogger{}
}

//nolint:ireturn
func resolveTracer(tracer trace.Tracer) trace.Tracer {
	if tracer != nil {
		return tracer
	}

	return otel.Tracer("redemption.default")
}

func resolveHeaderID(headerID string) string {
	if trimmed := strings.TrimSpace(headerID); trimmed != "" {
		return trimmed
	}

	return uuid.New().String()
}

// resolveMetricFactory never returns nil: when no factory is attached it
// builds one from the global meter provider, falling back to a no-op factory.
func resolveMetricFactory(factory *metrics.MetricsFactory) *metrics.MetricsFactory {
	if factory != nil {
		return factory
	}

	meter := otel.GetMeterProvider().Meter("redemption.default")

	defaultFactory, err := metrics.NewMetricsFactory(meter, &log.NopLogger{})
	if err != nil {
		return metrics.NewNopFactory()
	}

	return defaultFactory
}

// ---- Attribute Bag (request-wide span attributes) ----

// ContextWithSpanAttributes appends one or more attributes to the request's
// AttrBag. Call this once at the ingress middleware and avoid per-layer
// duplication. Example keys: holder.id, request.route, operation.
func ContextWithSpanAttributes(ctx context.Context, kv ...attribute.KeyValue) context.Context {
	if len(kv) == 0 {
		return ctx
	}

	values := cloneContextValues(ctx)
	values.AttrBag = append(values.AttrBag, kv...)

	return context.WithValue(ctx, CustomContextKey, values)
}

// AttributesFromContext returns a shallow copy of the AttrBag slice, safe to
// reuse by span processors.
func AttributesFromContext(ctx context.Context) []attribute.KeyValue {
	if values, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok && values != nil && len(values.AttrBag) > 0 {
		out := make([]attribute.KeyValue, len(values.AttrBag))
		copy(out, values.AttrBag)

		return out
	}

	return nil
}

// ReplaceAttributes resets the current AttrBag with a new set.
func ReplaceAttributes(ctx context.Context, kv ...attribute.KeyValue) context.Context {
	values := cloneContextValues(ctx)
	values.AttrBag = append(values.AttrBag[:0:0], kv...)

	return context.WithValue(ctx, CustomContextKey, values)
}

// ---- Deadline Management ----

// WithTimeoutSafe creates a context with the specified timeout, but respects
// any existing shorter deadline in the parent context. Returns an error if
// parent is nil.
func WithTimeoutSafe(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if parent == nil {
		return nil, nil, ErrNilParentContext
	}

	if deadline, ok := parent.Deadline(); ok {
		if time.Until(deadline) < timeout {
			ctx, cancel := context.WithCancel(parent)
			return ctx, cancel, nil
		}
	}

	ctx, cancel := context.WithTimeout(parent, timeout)

	return ctx, cancel, nil
}
