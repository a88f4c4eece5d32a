package events

import (
	"reflect"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
)

const (
	defaultDispatchInterval            = 2 * time.Second
	defaultBatchSize                   = 50
	defaultPublishMaxAttempts          = 3
	defaultPublishBackoff              = 200 * time.Millisecond
	defaultListPendingFailureThreshold = 3
	defaultRetryWindow                 = 5 * time.Minute
	defaultMaxDispatchAttempts         = 10
	defaultProcessingTimeout           = 10 * time.Minute
	defaultPriorityBudget              = 10
	defaultMaxFailedPerBatch           = 25
)

// DispatcherConfig controls dispatcher polling, retry, and metric behavior.
type DispatcherConfig struct {
	// DispatchInterval is the periodic interval between dispatch cycles.
	DispatchInterval time.Duration
	// BatchSize is the max number of events processed per cycle.
	BatchSize int
	// PublishMaxAttempts is the max publish attempts for one event.
	PublishMaxAttempts int
	// PublishBackoff is the base backoff between publish retries.
	PublishBackoff time.Duration
	// ListPendingFailureThreshold emits an error log once repeated list failures reach this count.
	ListPendingFailureThreshold int
	// RetryWindow is the minimum age for failed events to become retry-eligible.
	RetryWindow time.Duration
	// MaxDispatchAttempts is the max total dispatch attempts before invalidation.
	MaxDispatchAttempts int
	// ProcessingTimeout is the age threshold for reclaiming stuck processing events.
	ProcessingTimeout time.Duration
	// PriorityBudget limits how many events can be selected via priority lists per cycle.
	PriorityBudget int
	// MaxFailedPerBatch limits how many failed events are reclaimed in one cycle.
	MaxFailedPerBatch int
	// PriorityEventTypes defines ordered event types to pull first each cycle.
	PriorityEventTypes []string
	// MeterProvider overrides the default global meter provider when set.
	MeterProvider metric.MeterProvider
}

// DefaultDispatcherConfig returns the baseline dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		DispatchInterval:            defaultDispatchInterval,
		BatchSize:                   defaultBatchSize,
		PublishMaxAttempts:          defaultPublishMaxAttempts,
		PublishBackoff:              defaultPublishBackoff,
		ListPendingFailureThreshold: defaultListPendingFailureThreshold,
		RetryWindow:                 defaultRetryWindow,
		MaxDispatchAttempts:         defaultMaxDispatchAttempts,
		ProcessingTimeout:           defaultProcessingTimeout,
		PriorityBudget:              defaultPriorityBudget,
		MaxFailedPerBatch:           defaultMaxFailedPerBatch,
		PriorityEventTypes:          nil,
		MeterProvider:               nil,
	}
}

func (cfg *DispatcherConfig) normalize() {
	defaults := DefaultDispatcherConfig()

	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = defaults.DispatchInterval
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}

	if cfg.PublishMaxAttempts <= 0 {
		cfg.PublishMaxAttempts = defaults.PublishMaxAttempts
	}

	if cfg.PublishBackoff <= 0 {
		cfg.PublishBackoff = defaults.PublishBackoff
	}

	if cfg.ListPendingFailureThreshold <= 0 {
		cfg.ListPendingFailureThreshold = defaults.ListPendingFailureThreshold
	}

	if cfg.RetryWindow <= 0 {
		cfg.RetryWindow = defaults.RetryWindow
	}

	if cfg.MaxDispatchAttempts <= 0 {
		cfg.MaxDispatchAttempts = defaults.MaxDispatchAttempts
	}

	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = defaults.ProcessingTimeout
	}

	if cfg.PriorityBudget <= 0 {
		cfg.PriorityBudget = defaults.PriorityBudget
	}

	if cfg.MaxFailedPerBatch <= 0 {
		cfg.MaxFailedPerBatch = defaults.MaxFailedPerBatch
	}
}

// DispatcherOption mutates dispatcher configuration at construction.
type DispatcherOption func(*Dispatcher)

// WithBatchSize sets the maximum events processed in one dispatch cycle.
func WithBatchSize(size int) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if size > 0 {
			dispatcher.cfg.BatchSize = size
		}
	}
}

// WithDispatchInterval sets the dispatch polling interval.
func WithDispatchInterval(interval time.Duration) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if interval > 0 {
			dispatcher.cfg.DispatchInterval = interval
		}
	}
}

// WithPublishMaxAttempts sets max publish attempts per event.
func WithPublishMaxAttempts(maxAttempts int) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if maxAttempts > 0 {
			dispatcher.cfg.PublishMaxAttempts = maxAttempts
		}
	}
}

// WithPublishBackoff sets base backoff for publish retry attempts.
func WithPublishBackoff(base time.Duration) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if base > 0 {
			dispatcher.cfg.PublishBackoff = base
		}
	}
}

// WithRetryWindow sets failed-event cooldown before retry reclamation.
func WithRetryWindow(retryWindow time.Duration) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if retryWindow > 0 {
			dispatcher.cfg.RetryWindow = retryWindow
		}
	}
}

// WithMaxDispatchAttempts sets max dispatch attempts before invalidation.
func WithMaxDispatchAttempts(attempts int) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if attempts > 0 {
			dispatcher.cfg.MaxDispatchAttempts = attempts
		}
	}
}

// WithProcessingTimeout sets the timeout used to reclaim stuck processing events.
func WithProcessingTimeout(timeout time.Duration) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if timeout > 0 {
			dispatcher.cfg.ProcessingTimeout = timeout
		}
	}
}

// WithListPendingFailureThreshold sets the log threshold for repeated list failures.
func WithListPendingFailureThreshold(threshold int) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if threshold > 0 {
			dispatcher.cfg.ListPendingFailureThreshold = threshold
		}
	}
}

// WithPriorityBudget sets the per-cycle priority selection budget.
func WithPriorityBudget(budget int) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if budget > 0 {
			dispatcher.cfg.PriorityBudget = budget
		}
	}
}

// WithMaxFailedPerBatch sets max failed events reclaimed each cycle.
func WithMaxFailedPerBatch(maxFailed int) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if maxFailed > 0 {
			dispatcher.cfg.MaxFailedPerBatch = maxFailed
		}
	}
}

// WithPriorityEventTypes sets the ordered event types selected before generic pending events.
func WithPriorityEventTypes(eventTypes ...string) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		types := make([]string, 0, len(eventTypes))
		for _, eventType := range eventTypes {
			normalized := strings.TrimSpace(eventType)
			if normalized == "" {
				continue
			}

			types = append(types, normalized)
		}

		if len(types) == 0 {
			dispatcher.cfg.PriorityEventTypes = nil

			return
		}

		dispatcher.cfg.PriorityEventTypes = types
	}
}

// WithRetryClassifier sets the non-retryable error classifier.
func WithRetryClassifier(classifier RetryClassifier) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if isNilInterface(classifier) {
			dispatcher.retryClassifier = nil

			return
		}

		dispatcher.retryClassifier = classifier
	}
}

// WithMeterProvider injects a custom meter provider for dispatcher metrics.
// Passing nil keeps the default global OpenTelemetry meter provider.
func WithMeterProvider(provider metric.MeterProvider) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if isNilInterface(provider) {
			dispatcher.cfg.MeterProvider = nil

			return
		}

		dispatcher.cfg.MeterProvider = provider
	}
}

// isNilInterface reports whether v is nil or an interface wrapping a typed
// nil value.
func isNilInterface(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
