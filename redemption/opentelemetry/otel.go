package opentelemetry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/LerianStudio/redemption-gateway/redemption"
	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry/metrics"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"
)

var (
	// ErrNilTelemetryLogger indicates that config.Logger is nil.
	ErrNilTelemetryLogger = errors.New("telemetry config logger cannot be nil")
	// ErrEmptyEndpoint indicates that telemetry is enabled without a collector endpoint.
	ErrEmptyEndpoint = errors.New("collector exporter endpoint cannot be empty when telemetry is enabled")
	// ErrNilTelemetry is returned by methods called on a nil *Telemetry.
	ErrNilTelemetry = errors.New("telemetry is nil")
	// ErrNilShutdown indicates the telemetry carries no shutdown functions.
	ErrNilShutdown = errors.New("telemetry shutdown functions are nil")
)

// TelemetryConfig carries the service identity and exporter endpoint used to
// bootstrap telemetry. Redactor and Propagator may be left nil; NewTelemetry
// fills in the defaults.
type TelemetryConfig struct {
	LibraryName               string
	ServiceName               string
	ServiceVersion            string
	DeploymentEnv             string
	CollectorExporterEndpoint string
	EnableTelemetry           bool
	Logger                    log.Logger
	Redactor                  *Redactor
	Propagator                propagation.TextMapPropagator
}

// Telemetry bundles the configured providers and the metrics factory built
// on top of them.
type Telemetry struct {
	TelemetryConfig
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	MetricsFactory *metrics.MetricsFactory
	shutdown       func()
	shutdownCtx    func(context.Context) error
}

// newResource creates a resource with only our custom attributes to avoid
// schema URL conflicts.
func (tl *TelemetryConfig) newResource() *sdkresource.Resource {
	return sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(tl.ServiceName),
		semconv.ServiceVersion(tl.ServiceVersion),
		semconv.DeploymentEnvironmentName(tl.DeploymentEnv),
		semconv.TelemetrySDKName(constant.TelemetrySDKName),
		semconv.TelemetrySDKLanguageGo,
	)
}

func (tl *TelemetryConfig) newLoggerExporter(ctx context.Context) (*otlploggrpc.Exporter, error) {
	return otlploggrpc.New(ctx, otlploggrpc.WithEndpoint(tl.CollectorExporterEndpoint), otlploggrpc.WithInsecure())
}

func (tl *TelemetryConfig) newMetricExporter(ctx context.Context) (*otlpmetricgrpc.Exporter, error) {
	return otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(tl.CollectorExporterEndpoint), otlpmetricgrpc.WithInsecure())
}

func (tl *TelemetryConfig) newTracerExporter(ctx context.Context) (*otlptrace.Exporter, error) {
	return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(tl.CollectorExporterEndpoint), otlptracegrpc.WithInsecure())
}

func (tl *TelemetryConfig) newLoggerProvider(rsc *sdkresource.Resource, exp *otlploggrpc.Exporter) *sdklog.LoggerProvider {
	bp := sdklog.NewBatchProcessor(exp)

	return sdklog.NewLoggerProvider(sdklog.WithResource(rsc), sdklog.WithProcessor(bp))
}

func (tl *TelemetryConfig) newMeterProvider(res *sdkresource.Resource, exp *otlpmetricgrpc.Exporter) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
	)
}

func (tl *TelemetryConfig) newTracerProvider(rsc *sdkresource.Resource, exp *otlptrace.Exporter) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(rsc),
		sdktrace.WithSpanProcessor(RedactingAttrBagSpanProcessor{Redactor: tl.Redactor}),
	)
}

// NewTelemetry builds the tracer, meter, and logger providers plus the
// metrics factory. When telemetry is disabled the providers are inert no-ops
// so callers never need nil checks. Globals are not touched; call
// ApplyGlobals for that.
func NewTelemetry(cfg TelemetryConfig) (*Telemetry, error) {
	if cfg.Logger == nil {
		return nil, ErrNilTelemetryLogger
	}

	if cfg.Redactor == nil {
		cfg.Redactor = NewDefaultRedactor()
	}

	if cfg.Propagator == nil {
		cfg.Propagator = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	}

	ctx := context.Background()
	l := cfg.Logger

	if !cfg.EnableTelemetry {
		l.Log(ctx, log.LevelWarn, "telemetry turned off")

		mp := sdkmetric.NewMeterProvider()
		tp := sdktrace.NewTracerProvider()
		lp := sdklog.NewLoggerProvider()

		metricsFactory, err := metrics.NewMetricsFactory(mp.Meter(cfg.LibraryName), l)
		if err != nil {
			return nil, fmt.Errorf("can't initialize metrics factory: %w", err)
		}

		shutdown, shutdownCtx := buildShutdownHandlers(l)

		return &Telemetry{
			TelemetryConfig: cfg,
			TracerProvider:  tp,
			MeterProvider:   mp,
			LoggerProvider:  lp,
			MetricsFactory:  metricsFactory,
			shutdown:        shutdown,
			shutdownCtx:     shutdownCtx,
		}, nil
	}

	if strings.TrimSpace(cfg.CollectorExporterEndpoint) == "" {
		return nil, ErrEmptyEndpoint
	}

	l.Log(ctx, log.LevelInfo, "initializing telemetry")

	r := cfg.newResource()

	tExp, err := cfg.newTracerExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't initialize tracer exporter: %w", err)
	}

	mExp, err := cfg.newMetricExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't initialize metric exporter: %w", err)
	}

	lExp, err := cfg.newLoggerExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't initialize logger exporter: %w", err)
	}

	mp := cfg.newMeterProvider(r, mExp)

	metricsFactory, err := metrics.NewMetricsFactory(mp.Meter(cfg.LibraryName), l)
	if err != nil {
		return nil, fmt.Errorf("can't initialize metrics factory: %w", err)
	}

	tp := cfg.newTracerProvider(r, tExp)
	lp := cfg.newLoggerProvider(r, lExp)

	shutdown, shutdownCtx := buildShutdownHandlers(l, mp, tp, lp, tExp, mExp, lExp)

	l.Log(ctx, log.LevelInfo, "telemetry initialized")

	return &Telemetry{
		TelemetryConfig: cfg,
		TracerProvider:  tp,
		MeterProvider:   mp,
		LoggerProvider:  lp,
		MetricsFactory:  metricsFactory,
		shutdown:        shutdown,
		shutdownCtx:     shutdownCtx,
	}, nil
}

// shutdownable is satisfied by providers and exporters alike.
type shutdownable interface {
	Shutdown(context.Context) error
}

func isNilShutdownable(s shutdownable) bool {
	if s == nil {
		return true
	}

	v := reflect.ValueOf(s)

	return v.Kind() == reflect.Pointer && v.IsNil()
}

// buildShutdownHandlers returns the fire-and-forget and context-bound
// shutdown closures for the given components. Components shut down in order,
// so providers must precede their exporters to flush pending data.
func buildShutdownHandlers(l log.Logger, components ...shutdownable) (func(), func(context.Context) error) {
	shutdownCtx := func(ctx context.Context) error {
		var errs []error

		for _, c := range components {
			if isNilShutdownable(c) {
				continue
			}

			if err := c.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}

		return errors.Join(errs...)
	}

	shutdown := func() {
		if err := shutdownCtx(context.Background()); err != nil {
			l.Log(context.Background(), log.LevelError, "telemetry shutdown failed", log.Err(err))
		}
	}

	return shutdown, shutdownCtx
}

// ApplyGlobals installs the telemetry providers as OTEL globals and
// configures trace context propagation. Call once after NewTelemetry.
func (tl *Telemetry) ApplyGlobals() {
	if tl == nil {
		return
	}

	otel.SetTracerProvider(tl.TracerProvider)
	otel.SetMeterProvider(tl.MeterProvider)
	global.SetLoggerProvider(tl.LoggerProvider)

	if tl.Propagator != nil {
		otel.SetTextMapPropagator(tl.Propagator)
	}
}

// Tracer returns a tracer from the telemetry's tracer provider.
func (tl *Telemetry) Tracer(name string) (trace.Tracer, error) {
	if tl == nil || tl.TracerProvider == nil {
		return nil, ErrNilTelemetry
	}

	return tl.TracerProvider.Tracer(name), nil
}

// Meter returns a meter from the telemetry's meter provider.
func (tl *Telemetry) Meter(name string) (metric.Meter, error) {
	if tl == nil || tl.MeterProvider == nil {
		return nil, ErrNilTelemetry
	}

	return tl.MeterProvider.Meter(name), nil
}

// ShutdownTelemetry flushes and shuts down the telemetry providers and
// exporters. Errors are logged, not returned; use
// ShutdownTelemetryWithContext to bound the shutdown and observe failures.
func (tl *Telemetry) ShutdownTelemetry() {
	if tl == nil || tl.shutdown == nil {
		return
	}

	tl.shutdown()
}

// ShutdownTelemetryWithContext shuts down providers and exporters honoring
// the context deadline.
func (tl *Telemetry) ShutdownTelemetryWithContext(ctx context.Context) error {
	if tl == nil {
		return ErrNilTelemetry
	}

	if tl.shutdownCtx != nil {
		return tl.shutdownCtx(ctx)
	}

	if tl.shutdown != nil {
		tl.shutdown()

		return nil
	}

	return ErrNilShutdown
}

// EndTracingSpans ends the span attached to the context, if any.
func (tl *Telemetry) EndTracingSpans(ctx context.Context) {
	trace.SpanFromContext(ctx).End()
}

// SetSpanAttributeForParam sets a span attribute for a Fiber request
// parameter with consistent naming. entityName identifies the id owner: the
// "account" entity name turns the ":holder_id" parameter into
// "app.request.account_holder_id".
func SetSpanAttributeForParam(c *fiber.Ctx, param, value, entityName string) {
	spanAttrKey := constant.AttrPrefixAppRequest + param

	if entityName != "" && param == "holder_id" {
		spanAttrKey = constant.AttrPrefixAppRequest + entityName + "_holder_id"
	}

	c.SetUserContext(redemption.ContextWithSpanAttributes(c.UserContext(), attribute.String(spanAttrKey, value)))
}

// HandleSpanBusinessErrorEvent adds a business error event to the span
// without marking the span as failed. Domain rejections are expected
// outcomes, not faults.
func HandleSpanBusinessErrorEvent(span trace.Span, eventName string, err error) {
	if span == nil || err == nil {
		return
	}

	span.AddEvent(eventName, trace.WithAttributes(attribute.String("error", err.Error())))
}

// HandleSpanEvent adds an event to the span.
func HandleSpanEvent(span trace.Span, eventName string, attributes ...attribute.KeyValue) {
	if span == nil {
		return
	}

	span.AddEvent(eventName, trace.WithAttributes(attributes...))
}

// HandleSpanError sets the status of the span to error and records the error.
func HandleSpanError(span trace.Span, message string, err error) {
	if span == nil || err == nil {
		return
	}

	span.SetStatus(codes.Error, message+": "+err.Error())
	span.RecordError(err)
}

// InjectHTTPContext writes trace propagation headers for outgoing client
// requests. http.Header satisfies the headers parameter directly.
func InjectHTTPContext(ctx context.Context, headers map[string][]string) {
	if headers == nil {
		return
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// ExtractHTTPContext extracts OpenTelemetry trace context from incoming HTTP
// headers and injects it into the context. It works with Fiber's HTTP context.
func ExtractHTTPContext(c *fiber.Ctx) context.Context {
	carrier := propagation.HeaderCarrier{}

	for key, value := range c.Request().Header.All() {
		carrier.Set(string(key), string(value))
	}

	return otel.GetTextMapPropagator().Extract(c.UserContext(), carrier)
}

// InjectGRPCContext injects OpenTelemetry trace context into gRPC metadata,
// normalizing W3C trace headers to the lowercase keys gRPC requires. A nil
// md starts a fresh metadata.MD.
func InjectGRPCContext(ctx context.Context, md metadata.MD) metadata.MD {
	if md == nil {
		md = metadata.New(nil)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(md))

	if vals, ok := md[constant.HeaderTraceparentPascal]; ok && len(vals) > 0 {
		md[constant.MetadataTraceparent] = vals
		delete(md, constant.HeaderTraceparentPascal)
	}

	if vals, ok := md[constant.HeaderTracestatePascal]; ok && len(vals) > 0 {
		md[constant.MetadataTracestate] = vals
		delete(md, constant.HeaderTracestatePascal)
	}

	return md
}

// ExtractGRPCContext extracts OpenTelemetry trace context from incoming gRPC
// metadata and injects it into the context. It handles case normalization
// for W3C trace headers.
func ExtractGRPCContext(ctx context.Context, md metadata.MD) context.Context {
	if md == nil {
		return ctx
	}

	mdCopy := md.Copy()

	if vals, ok := mdCopy[constant.MetadataTraceparent]; ok && len(vals) > 0 {
		mdCopy[constant.HeaderTraceparentPascal] = vals
		delete(mdCopy, constant.MetadataTraceparent)
	}

	if vals, ok := mdCopy[constant.MetadataTracestate]; ok && len(vals) > 0 {
		mdCopy[constant.HeaderTracestatePascal] = vals
		delete(mdCopy, constant.MetadataTracestate)
	}

	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(mdCopy))
}

// InjectQueueTraceContext injects OpenTelemetry trace context into message
// headers for distributed tracing across queue messages.
func InjectQueueTraceContext(ctx context.Context) map[string]string {
	carrier := propagation.HeaderCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make(map[string]string)

	for k, v := range carrier {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	return headers
}

// ExtractQueueTraceContext extracts OpenTelemetry trace context from message
// headers and returns a new context with the extracted trace information.
func ExtractQueueTraceContext(ctx context.Context, headers map[string]string) context.Context {
	if headers == nil {
		return ctx
	}

	carrier := propagation.HeaderCarrier{}
	for k, v := range headers {
		carrier.Set(k, v)
	}

	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// GetTraceIDFromContext extracts the trace ID from the current span context.
// Returns empty string if no active span or trace ID is found.
func GetTraceIDFromContext(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}

	spanContext := span.SpanContext()
	if !spanContext.IsValid() {
		return ""
	}

	return spanContext.TraceID().String()
}

// PrepareQueueHeaders merges base headers with W3C trace context headers,
// producing a map suitable for amqp.Table.
func PrepareQueueHeaders(ctx context.Context, baseHeaders map[string]any) map[string]any {
	headers := make(map[string]any)

	maps.Copy(headers, baseHeaders)

	for k, v := range InjectQueueTraceContext(ctx) {
		headers[k] = v
	}

	return headers
}

// ExtractTraceContextFromQueueHeaders extracts OpenTelemetry trace context
// from amqp.Table headers and returns a new context with the extracted trace
// information. Handles type conversion automatically.
func ExtractTraceContextFromQueueHeaders(baseCtx context.Context, amqpHeaders map[string]any) context.Context {
	if len(amqpHeaders) == 0 {
		return baseCtx
	}

	traceHeaders := make(map[string]string)

	for k, v := range amqpHeaders {
		if str, ok := v.(string); ok {
			traceHeaders[k] = str
		}
	}

	if len(traceHeaders) == 0 {
		return baseCtx
	}

	return ExtractQueueTraceContext(baseCtx, traceHeaders)
}

// sanitizeUTF8String replaces invalid UTF-8 sequences with the Unicode
// replacement character.
func sanitizeUTF8String(s string) string {
	if !utf8.ValidString(s) {
		return strings.ToValidUTF8(s, "�")
	}

	return s
}
