package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/LerianStudio/redemption-gateway/redemption"
	"github.com/LerianStudio/redemption-gateway/redemption/backoff"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
	"github.com/LerianStudio/redemption-gateway/redemption/runtime"
)

// Dispatcher polls the outbox and publishes operation events through
// registered handlers.
type Dispatcher struct {
	repo            EventRepository
	handlers        *HandlerRegistry
	retryClassifier RetryClassifier
	logger          log.Logger
	tracer          trace.Tracer
	cfg             DispatcherConfig

	listFailures   int
	listFailuresMu sync.Mutex

	stop       chan struct{}
	stopOnce   sync.Once
	runStateMu sync.Mutex
	running    bool
	cancelFunc context.CancelFunc
	dispatchWg sync.WaitGroup

	metrics dispatcherMetrics
}

var _ redemption.App = (*Dispatcher)(nil)

// DispatchResult captures one dispatch cycle outcome.
type DispatchResult struct {
	Processed         int
	Published         int
	Failed            int
	StateUpdateFailed int
}

// NewDispatcher creates an outbox dispatcher.
func NewDispatcher(
	repo EventRepository,
	handlers *HandlerRegistry,
	logger log.Logger,
	tracer trace.Tracer,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	if isNilInterface(repo) {
		return nil, ErrRepositoryRequired
	}

	if handlers == nil {
		return nil, ErrRegistryRequired
	}

	if isNilInterface(tracer) {
		tracer = noop.NewTracerProvider().Tracer("redemption.noop")
	}

	if isNilInterface(logger) {
		logger = log.NewNop()
	}

	dispatcher := &Dispatcher{
		repo:     repo,
		handlers: handlers,
		logger:   logger,
		tracer:   tracer,
		cfg:      DefaultDispatcherConfig(),
		stop:     make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(dispatcher)
		}
	}

	dispatcher.cfg.normalize()

	metrics, err := newDispatcherMetrics(dispatcher.cfg.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("init dispatcher metrics: %w", err)
	}

	dispatcher.metrics = metrics

	return dispatcher, nil
}

// Run starts the dispatcher loop until Stop is called.
func (dispatcher *Dispatcher) Run(launcher *redemption.Launcher) error {
	return dispatcher.RunContext(context.Background(), launcher)
}

// RunContext starts the dispatcher loop until Stop is called or ctx is cancelled.
func (dispatcher *Dispatcher) RunContext(parentCtx context.Context, launcher *redemption.Launcher) error {
	if dispatcher == nil {
		return ErrDispatcherRequired
	}

	if dispatcher.repo == nil || dispatcher.handlers == nil {
		return ErrDispatcherRequired
	}

	if parentCtx == nil {
		parentCtx = context.Background()
	}

	ctx, cancel := context.WithCancel(parentCtx)
	if !dispatcher.registerRun(cancel) {
		cancel()

		return ErrDispatcherRunning
	}

	defer dispatcher.clearRun()

	if launcher != nil && launcher.Logger != nil {
		launcher.Logger.Log(context.Background(), log.LevelInfo, "event dispatcher started")
		defer launcher.Logger.Log(context.Background(), log.LevelInfo, "event dispatcher stopped")
	}

	defer runtime.RecoverWithPolicyAndContext(
		ctx,
		dispatcher.logger,
		"events",
		"dispatcher_run",
		runtime.KeepRunning,
	)

	ticker := time.NewTicker(dispatcher.cfg.DispatchInterval)
	defer ticker.Stop()

	dispatcher.dispatchCycle(ctx, "events.dispatcher.initial_dispatch", "dispatcher_initial")

	for {
		select {
		case <-dispatcher.stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			select {
			case <-dispatcher.stop:
				return nil
			case <-ctx.Done():
				return nil
			default:
			}

			dispatcher.dispatchCycle(ctx, "events.dispatcher.dispatch_once", "dispatcher_tick")
		}
	}
}

func (dispatcher *Dispatcher) dispatchCycle(ctx context.Context, spanName, recoverName string) {
	dispatcher.dispatchWg.Add(1)
	defer dispatcher.dispatchWg.Done()

	cycleCtx, span := dispatcher.tracer.Start(ctx, spanName)
	defer span.End()
	defer runtime.RecoverWithPolicyAndContext(cycleCtx, dispatcher.logger, "events", recoverName, runtime.KeepRunning)

	result := dispatcher.DispatchOnceResult(cycleCtx)
	span.SetAttributes(
		attribute.Int("events.dispatch.processed", result.Processed),
		attribute.Int("events.dispatch.published", result.Published),
		attribute.Int("events.dispatch.failed", result.Failed),
		attribute.Int("events.dispatch.state_update_failed", result.StateUpdateFailed),
	)
}

// Stop signals the dispatcher loop to stop.
func (dispatcher *Dispatcher) Stop() {
	if dispatcher == nil {
		return
	}

	dispatcher.stopOnce.Do(func() {
		dispatcher.runStateMu.Lock()
		cancel := dispatcher.cancelFunc
		stop := dispatcher.stop
		if stop == nil {
			stop = make(chan struct{})
			dispatcher.stop = stop
		}
		dispatcher.runStateMu.Unlock()

		if cancel != nil {
			cancel()
		}

		close(stop)
	})
}

// Shutdown waits for in-flight dispatch cycle completion.
func (dispatcher *Dispatcher) Shutdown(ctx context.Context) error {
	if dispatcher == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	dispatcher.Stop()

	done := make(chan struct{})

	runtime.SafeGo(dispatcher.logger, "events.dispatcher_shutdown_wait", runtime.KeepRunning, func() {
		dispatcher.dispatchWg.Wait()
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

// DispatchOnce processes one dispatch cycle and returns the processed count.
func (dispatcher *Dispatcher) DispatchOnce(ctx context.Context) int {
	return dispatcher.DispatchOnceResult(ctx).Processed
}

// DispatchOnceResult processes one dispatch cycle and returns counters.
func (dispatcher *Dispatcher) DispatchOnceResult(ctx context.Context) DispatchResult {
	if dispatcher == nil {
		return DispatchResult{}
	}

	if dispatcher.repo == nil || dispatcher.handlers == nil {
		return DispatchResult{}
	}

	if ctx == nil {
		ctx = context.Background()
	}

	logger := dispatcher.logger
	if isNilInterface(logger) {
		logger = log.NewNop()
	}

	tracer := dispatcher.tracer
	if isNilInterface(tracer) {
		tracer = noop.NewTracerProvider().Tracer("redemption.noop")
	}

	start := time.Now().UTC()

	ctx, span := tracer.Start(ctx, "events.dispatch")
	defer span.End()

	selected := dispatcher.collectEvents(ctx, span)
	processed := 0
	published := 0
	failed := 0
	stateUpdateFailed := 0

	dispatcher.metrics.recordQueueDepth(ctx, int64(len(selected)))

	// Delivery semantics are at-least-once: publish happens before MarkPublished.
	// If state persistence fails after publish, consumers must remain idempotent.
	for _, event := range selected {
		if ctx.Err() != nil {
			break
		}

		if event == nil {
			continue
		}

		processed++

		if err := dispatcher.publishEventWithRetry(ctx, event); err != nil {
			dispatcher.handlePublishError(ctx, logger, event, err)

			failed++

			continue
		}

		published++

		if err := dispatcher.repo.MarkPublished(ctx, event.ID, time.Now().UTC()); err != nil {
			logger.Log(
				ctx,
				log.LevelError,
				"event published to broker but failed to persist PUBLISHED state; event may be retried",
				log.String("event_id", event.ID.String()),
				log.String("error", sanitizeErrorForStorage(err)),
			)

			dispatcher.metrics.addStateUpdateFailed(ctx, 1)

			stateUpdateFailed++

			continue
		}
	}

	dispatcher.metrics.addDispatched(ctx, int64(published))
	dispatcher.metrics.addFailed(ctx, int64(failed))
	dispatcher.metrics.recordLatency(ctx, time.Since(start).Seconds())

	return DispatchResult{
		Processed:         processed,
		Published:         published,
		Failed:            failed,
		StateUpdateFailed: stateUpdateFailed,
	}
}

// collectEvents gathers events for a single dispatch cycle using a
// priority-layered strategy:
//
//  1. Priority events: pending events matching PriorityEventTypes (up to PriorityBudget)
//  2. Stuck events: PROCESSING events older than ProcessingTimeout (reclaimed for retry)
//  3. Failed events: FAILED events older than RetryWindow with remaining attempts
//  4. Pending events: remaining PENDING events ordered by created_at ASC
//
// Within each layer, ordering follows the respective store query. The total
// batch is bounded by BatchSize; duplicates across layers are removed.
func (dispatcher *Dispatcher) collectEvents(ctx context.Context, span trace.Span) []*OperationEvent {
	logger := dispatcher.logger
	failedBefore := time.Now().UTC().Add(-dispatcher.cfg.RetryWindow)
	processingBefore := time.Now().UTC().Add(-dispatcher.cfg.ProcessingTimeout)

	priorityBudget := min(dispatcher.cfg.PriorityBudget, dispatcher.cfg.BatchSize)
	priorityEvents := dispatcher.collectPriorityEvents(ctx, span, priorityBudget)
	collected := len(priorityEvents)

	stuckLimit := dispatcher.cfg.BatchSize - collected
	if stuckLimit <= 0 {
		return deduplicateEvents(priorityEvents)
	}

	stuckEvents, err := dispatcher.repo.ResetStuckProcessing(
		ctx,
		stuckLimit,
		processingBefore,
		dispatcher.cfg.MaxDispatchAttempts,
	)
	if err != nil {
		opentelemetry.HandleSpanError(span, "failed to reset stuck events", err)
		logger.Log(ctx, log.LevelError, "failed to reset stuck events", log.Err(err))
	}

	collected += len(stuckEvents)

	failedLimit := min(dispatcher.cfg.BatchSize-collected, dispatcher.cfg.MaxFailedPerBatch)
	if failedLimit <= 0 {
		return deduplicateEvents(append(priorityEvents, stuckEvents...))
	}

	failedEvents, err := dispatcher.repo.ResetForRetry(
		ctx,
		failedLimit,
		failedBefore,
		dispatcher.cfg.MaxDispatchAttempts,
	)
	if err != nil {
		opentelemetry.HandleSpanError(span, "failed to reset failed events for retry", err)
		logger.Log(ctx, log.LevelError, "failed to reset failed events for retry", log.Err(err))
	}

	collected += len(failedEvents)

	remaining := dispatcher.cfg.BatchSize - collected
	if remaining <= 0 {
		return deduplicateEvents(append(append(priorityEvents, stuckEvents...), failedEvents...))
	}

	pendingEvents, err := dispatcher.repo.ListPending(ctx, remaining)
	if err != nil {
		dispatcher.handleListPendingError(ctx, span, err)

		return deduplicateEvents(append(append(priorityEvents, stuckEvents...), failedEvents...))
	}

	dispatcher.clearListPendingFailures()

	all := make([]*OperationEvent, 0, collected+len(pendingEvents))
	all = append(all, priorityEvents...)
	all = append(all, stuckEvents...)
	all = append(all, failedEvents...)
	all = append(all, pendingEvents...)

	return deduplicateEvents(all)
}

func (dispatcher *Dispatcher) collectPriorityEvents(
	ctx context.Context,
	span trace.Span,
	budget int,
) []*OperationEvent {
	if budget <= 0 || len(dispatcher.cfg.PriorityEventTypes) == 0 {
		return nil
	}

	var result []*OperationEvent

	for _, eventType := range dispatcher.cfg.PriorityEventTypes {
		remaining := budget - len(result)
		if remaining <= 0 {
			break
		}

		selected, err := dispatcher.repo.ListPendingByType(ctx, eventType, remaining)
		if err != nil {
			opentelemetry.HandleSpanError(span, "failed to list priority events", err)
			dispatcher.logger.Log(ctx, log.LevelError, "failed to list priority events", log.Err(err))

			continue
		}

		result = append(result, selected...)
	}

	return result
}

func deduplicateEvents(selected []*OperationEvent) []*OperationEvent {
	if len(selected) == 0 {
		return selected
	}

	seen := make(map[uuid.UUID]bool, len(selected))
	result := make([]*OperationEvent, 0, len(selected))

	for _, event := range selected {
		if event == nil {
			continue
		}

		if seen[event.ID] {
			continue
		}

		seen[event.ID] = true
		result = append(result, event)
	}

	return result
}

func (dispatcher *Dispatcher) handleListPendingError(ctx context.Context, span trace.Span, err error) {
	opentelemetry.HandleSpanError(span, "failed to list pending events", err)
	dispatcher.logger.Log(ctx, log.LevelError, "failed to list pending events", log.Err(err))

	dispatcher.listFailuresMu.Lock()
	dispatcher.listFailures++
	count := dispatcher.listFailures
	dispatcher.listFailuresMu.Unlock()

	if count >= dispatcher.cfg.ListPendingFailureThreshold {
		dispatcher.logger.Log(
			ctx,
			log.LevelError,
			"outbox list pending failures exceeded threshold",
			log.Int("count", count),
		)
	}
}

func (dispatcher *Dispatcher) clearListPendingFailures() {
	dispatcher.listFailuresMu.Lock()
	dispatcher.listFailures = 0
	dispatcher.listFailuresMu.Unlock()
}

func (dispatcher *Dispatcher) registerRun(cancel context.CancelFunc) bool {
	dispatcher.runStateMu.Lock()
	defer dispatcher.runStateMu.Unlock()

	if dispatcher.running {
		return false
	}

	if dispatcher.stop == nil || isClosedSignal(dispatcher.stop) {
		dispatcher.stop = make(chan struct{})
		dispatcher.stopOnce = sync.Once{}
	}

	dispatcher.running = true
	dispatcher.cancelFunc = cancel

	return true
}

func (dispatcher *Dispatcher) clearRun() {
	dispatcher.runStateMu.Lock()
	defer dispatcher.runStateMu.Unlock()

	dispatcher.running = false
	dispatcher.cancelFunc = nil
}

func isClosedSignal(signal <-chan struct{}) bool {
	if signal == nil {
		return false
	}

	select {
	case <-signal:
		return true
	default:
		return false
	}
}

func (dispatcher *Dispatcher) publishEventWithRetry(ctx context.Context, event *OperationEvent) error {
	maxAttempts := dispatcher.cfg.PublishMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultPublishMaxAttempts
	}

	publishBackoff := dispatcher.cfg.PublishBackoff
	if publishBackoff <= 0 {
		publishBackoff = defaultPublishBackoff
	}

	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := dispatcher.publishEvent(ctx, event)
		if err == nil {
			return nil
		}

		lastErr = fmt.Errorf("publish attempt %d/%d failed: %w", attempt+1, maxAttempts, err)
		if dispatcher.isNonRetryableError(err) || attempt == maxAttempts-1 {
			break
		}

		delay := backoff.ExponentialWithJitter(publishBackoff, attempt)
		if waitErr := backoff.SleepWithContext(ctx, delay); waitErr != nil {
			lastErr = fmt.Errorf("publish retry wait interrupted: %w", waitErr)
			break
		}
	}

	return lastErr
}

func (dispatcher *Dispatcher) publishEvent(ctx context.Context, event *OperationEvent) error {
	if event == nil {
		return ErrEventRequired
	}

	if len(event.Payload) == 0 {
		return ErrPayloadRequired
	}

	return dispatcher.handlers.Handle(ctx, event)
}

func (dispatcher *Dispatcher) handlePublishError(
	ctx context.Context,
	logger log.Logger,
	event *OperationEvent,
	err error,
) {
	if dispatcher.isNonRetryableError(err) {
		if markErr := dispatcher.repo.MarkInvalid(ctx, event.ID, sanitizeErrorForStorage(err)); markErr != nil {
			logger.Log(ctx, log.LevelError, "failed to mark event invalid", log.String("error", sanitizeErrorForStorage(markErr)))
		}

		return
	}

	if markErr := dispatcher.repo.MarkFailed(ctx, event.ID, sanitizeErrorForStorage(err), dispatcher.cfg.MaxDispatchAttempts); markErr != nil {
		logger.Log(ctx, log.LevelError, "failed to mark event failed", log.String("error", sanitizeErrorForStorage(markErr)))
	}
}

func (dispatcher *Dispatcher) isNonRetryableError(err error) bool {
	if err == nil || isNilInterface(dispatcher.retryClassifier) {
		return false
	}

	return dispatcher.retryClassifier.IsNonRetryable(err)
}
