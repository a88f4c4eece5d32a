package runtime

import (
	"context"
	"fmt"
	"sync"
)

// ErrorReporter is the hook for external error tracking services. The
// gateway calls it for every recovered panic; implementations must be safe
// for concurrent use and must not panic themselves.
type ErrorReporter interface {
	// CaptureException reports a recovered panic. The tags map carries
	// labels such as "component" and "goroutine_name".
	CaptureException(ctx context.Context, err error, tags map[string]string)
}

var (
	errorReporterInstance ErrorReporter
	errorReporterMu       sync.RWMutex
)

// SetErrorReporter configures the global error reporter for panic reporting.
// Pass nil to disable error reporting. Call once during startup.
func SetErrorReporter(reporter ErrorReporter) {
	errorReporterMu.Lock()
	defer errorReporterMu.Unlock()

	errorReporterInstance = reporter
}

// GetErrorReporter returns the currently configured error reporter.
// Returns nil if no reporter has been configured.
func GetErrorReporter() ErrorReporter {
	errorReporterMu.RLock()
	defer errorReporterMu.RUnlock()

	return errorReporterInstance
}

var (
	// productionMode controls whether stack traces and panic details are
	// redacted from error reports.
	productionMode   bool
	productionModeMu sync.RWMutex
)

const redactedPanicMsg = "panic recovered (details redacted)"

// SetProductionMode enables or disables production mode. In production mode
// stack traces and potentially sensitive panic details are redacted.
func SetProductionMode(enabled bool) {
	productionModeMu.Lock()
	defer productionModeMu.Unlock()

	productionMode = enabled
}

// IsProductionMode returns whether production mode is enabled.
func IsProductionMode() bool {
	productionModeMu.RLock()
	defer productionModeMu.RUnlock()

	return productionMode
}

// reportPanicToErrorService forwards a recovered panic to the configured
// reporter, if any. Stack traces are attached only outside production mode.
func reportPanicToErrorService(ctx context.Context, panicValue any, stack []byte, component, goroutineName string) {
	reporter := GetErrorReporter()
	if reporter == nil {
		return
	}

	isProduction := IsProductionMode()

	err := toPanicError(panicValue, isProduction)

	tags := map[string]string{
		"component":      component,
		"goroutine_name": goroutineName,
		"panic_type":     "recovered",
	}

	if len(stack) > 0 && !isProduction {
		stackStr := string(stack)

		const maxStackLen = 4096
		if len(stackStr) > maxStackLen {
			stackStr = stackStr[:maxStackLen] + "\n...[truncated]"
		}

		tags["stack_trace"] = stackStr
	}

	reporter.CaptureException(ctx, err, tags)
}

// panicError wraps a panic value as an error for reporting.
type panicError struct {
	message string
}

func (e *panicError) Error() string {
	return e.message
}

func toPanicError(panicValue any, isProduction bool) error {
	if isProduction {
		return &panicError{message: redactedPanicMsg}
	}

	if err, ok := panicValue.(error); ok {
		return err
	}

	if message, ok := panicValue.(string); ok {
		return &panicError{message: message}
	}

	return &panicError{message: "panic: " + fmt.Sprintf("%v", panicValue)}
}
