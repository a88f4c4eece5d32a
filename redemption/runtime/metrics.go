package runtime

import (
	"context"
	"sync"

	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry/metrics"
)

// PanicMetrics records recovered panics through the MetricsFactory.
type PanicMetrics struct {
	factory *metrics.MetricsFactory
	logger  Logger
}

// panicRecoveredMetric defines the metric for counting recovered panics.
var panicRecoveredMetric = metrics.Metric{
	Name:        constant.MetricPanicRecoveredTotal,
	Unit:        "1",
	Description: "Total number of recovered panics",
}

var (
	panicMetricsInstance *PanicMetrics
	panicMetricsMu       sync.RWMutex
)

// InitPanicMetrics initializes panic metrics with the provided MetricsFactory.
// The optional logger is used only for metric recording diagnostics. Call once
// during startup after telemetry is initialized; subsequent calls are no-ops.
func InitPanicMetrics(factory *metrics.MetricsFactory, logger ...Logger) {
	panicMetricsMu.Lock()
	defer panicMetricsMu.Unlock()

	if factory == nil {
		return
	}

	if panicMetricsInstance != nil {
		return
	}

	var l Logger
	if len(logger) > 0 {
		l = logger[0]
	}

	panicMetricsInstance = &PanicMetrics{
		factory: factory,
		logger:  l,
	}
}

// GetPanicMetrics returns the singleton PanicMetrics instance.
// Returns nil if InitPanicMetrics has not been called.
func GetPanicMetrics() *PanicMetrics {
	panicMetricsMu.RLock()
	defer panicMetricsMu.RUnlock()

	return panicMetricsInstance
}

// ResetPanicMetrics clears the panic metrics singleton for test isolation.
func ResetPanicMetrics() {
	panicMetricsMu.Lock()
	defer panicMetricsMu.Unlock()

	panicMetricsInstance = nil
}

// RecordPanicRecovered increments the panic_recovered_total counter.
// If metrics are not initialized, this is a no-op.
func (pm *PanicMetrics) RecordPanicRecovered(ctx context.Context, component, goroutineName string) {
	if pm == nil || pm.factory == nil {
		return
	}

	counter, err := pm.factory.Counter(panicRecoveredMetric)
	if err != nil {
		if pm.logger != nil {
			pm.logger.Log(ctx, log.LevelWarn, "failed to create panic metric counter", log.Err(err))
		}

		return
	}

	err = counter.
		WithLabels(map[string]string{
			"component":      constant.SanitizeMetricLabel(component),
			"goroutine_name": constant.SanitizeMetricLabel(goroutineName),
		}).
		AddOne(ctx)
	if err != nil {
		if pm.logger != nil {
			pm.logger.Log(ctx, log.LevelWarn, "failed to record panic metric", log.Err(err))
		}
	}
}

func recordPanicMetric(ctx context.Context, component, goroutineName string) {
	pm := GetPanicMetrics()
	if pm != nil {
		pm.RecordPanicRecovered(ctx, component, goroutineName)
	}
}
