package http

import (
	"context"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/LerianStudio/redemption-gateway/redemption"
	cn "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
	"github.com/LerianStudio/redemption-gateway/redemption/security"
)

// DefaultMetricsCollectionInterval is the default interval for collecting system metrics.
// Can be overridden via the METRICS_COLLECTION_INTERVAL environment variable.
const DefaultMetricsCollectionInterval = 5 * time.Second

// TelemetryMiddleware wires request tracing and system metric collection
// into the HTTP and gRPC surfaces.
type TelemetryMiddleware struct {
	Telemetry *opentelemetry.Telemetry

	tracer trace.Tracer

	collectorMu       sync.Mutex
	collectorStarted  bool
	collectorShutdown chan struct{}
}

// NewTelemetryMiddleware creates a new instance of TelemetryMiddleware.
func NewTelemetryMiddleware(tl *opentelemetry.Telemetry) *TelemetryMiddleware {
	tm := &TelemetryMiddleware{Telemetry: tl}

	if tl != nil && tl.TracerProvider != nil {
		tm.tracer = tl.TracerProvider.Tracer(tl.LibraryName)
	}

	return tm
}

// WithTelemetry is a middleware that opens a server span per request and
// propagates tracer, metric factory, and request id through the context.
// Routes matching any of the excluded prefixes are passed through untouched.
func (tm *TelemetryMiddleware) WithTelemetry(excludedRoutes ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tm.tracer == nil || tm.isRouteExcluded(c, excludedRoutes) {
			return c.Next()
		}

		setRequestHeaderID(c)

		_, _, reqID, _ := redemption.NewTrackingFromContext(c.UserContext())

		c.SetUserContext(redemption.ContextWithSpanAttributes(c.UserContext(),
			attribute.String(cn.AttrPrefixAppRequest+"request_id", reqID),
		))

		routePathWithMethod := c.Method() + " " + redemption.ReplaceUUIDWithPlaceholder(c.Path())

		traceCtx := opentelemetry.ExtractHTTPContext(c)

		ctx, span := tm.tracer.Start(traceCtx, routePathWithMethod, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", c.Method()),
			attribute.String("http.url", sanitizeURL(c.OriginalURL())),
			attribute.String("http.route", c.Route().Path),
			attribute.String("http.scheme", c.Protocol()),
			attribute.String("http.host", c.Hostname()),
			attribute.String("http.user_agent", c.Get(cn.HeaderUserAgent)),
		)

		ctx = redemption.ContextWithTracer(ctx, tm.tracer)
		ctx = redemption.ContextWithMetricFactory(ctx, tm.Telemetry.MetricsFactory)

		c.SetUserContext(ctx)

		tm.ensureMetricsCollector()

		err := c.Next()

		span.SetAttributes(
			attribute.Int("http.status_code", c.Response().StatusCode()),
		)

		return err
	}
}

// WithTelemetryInterceptor is a gRPC unary interceptor that adds tracing to the context.
func (tm *TelemetryMiddleware) WithTelemetryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if tm.tracer == nil {
			return handler(ctx, req)
		}

		ctx = setGRPCRequestHeaderID(ctx)

		_, _, reqID, _ := redemption.NewTrackingFromContext(ctx)

		ctx = redemption.ContextWithSpanAttributes(ctx,
			attribute.String(cn.AttrPrefixAppRequest+"request_id", reqID),
			attribute.String("grpc.method", info.FullMethod),
		)

		ctx, span := tm.tracer.Start(ctx, info.FullMethod, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ctx = redemption.ContextWithTracer(ctx, tm.tracer)
		ctx = redemption.ContextWithMetricFactory(ctx, tm.Telemetry.MetricsFactory)

		tm.ensureMetricsCollector()

		resp, err := handler(ctx, req)

		span.SetAttributes(
			attribute.Int("grpc.status_code", int(status.Code(err))),
		)

		return resp, err
	}
}

// getMetricsCollectionInterval returns the metrics collection interval.
// Accepts Go duration format (e.g., "10s", "1m", "500ms") via the
// METRICS_COLLECTION_INTERVAL environment variable, falling back to
// DefaultMetricsCollectionInterval when unset or invalid.
func getMetricsCollectionInterval() time.Duration {
	if envInterval := os.Getenv("METRICS_COLLECTION_INTERVAL"); envInterval != "" {
		if parsed, err := time.ParseDuration(envInterval); err == nil && parsed > 0 {
			return parsed
		}
	}

	return DefaultMetricsCollectionInterval
}

// ensureMetricsCollector starts the background CPU and memory gauge loop on
// first use. The loop runs until StopMetricsCollector is called.
func (tm *TelemetryMiddleware) ensureMetricsCollector() {
	tm.collectorMu.Lock()
	defer tm.collectorMu.Unlock()

	if tm.collectorStarted || tm.Telemetry == nil || tm.Telemetry.MetricsFactory == nil {
		return
	}

	factory := tm.Telemetry.MetricsFactory
	shutdown := make(chan struct{})

	go func() {
		ticker := time.NewTicker(getMetricsCollectionInterval())
		defer ticker.Stop()

		redemption.GetCPUUsage(context.Background(), factory)
		redemption.GetMemUsage(context.Background(), factory)

		for {
			select {
			case <-shutdown:
				return
			case <-ticker.C:
				redemption.GetCPUUsage(context.Background(), factory)
				redemption.GetMemUsage(context.Background(), factory)
			}
		}
	}()

	tm.collectorShutdown = shutdown
	tm.collectorStarted = true
}

// StopMetricsCollector stops the background metrics collector goroutine.
// Call during application shutdown. A later request restarts the collector.
func (tm *TelemetryMiddleware) StopMetricsCollector() {
	tm.collectorMu.Lock()
	defer tm.collectorMu.Unlock()

	if tm.collectorStarted && tm.collectorShutdown != nil {
		close(tm.collectorShutdown)

		tm.collectorStarted = false
		tm.collectorShutdown = nil
	}
}

func (tm *TelemetryMiddleware) isRouteExcluded(c *fiber.Ctx, excludedRoutes []string) bool {
	for _, route := range excludedRoutes {
		if strings.HasPrefix(c.Path(), route) {
			return true
		}
	}

	return false
}

// sanitizeURL obfuscates sensitive query parameters before they reach
// telemetry attributes.
func sanitizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if parsed.RawQuery == "" {
		return rawURL
	}

	query := parsed.Query()
	modified := false

	for key := range query {
		if security.IsSensitiveField(key) {
			query.Set(key, cn.ObfuscatedValue)

			modified = true
		}
	}

	if !modified {
		return rawURL
	}

	parsed.RawQuery = query.Encode()

	return parsed.String()
}
