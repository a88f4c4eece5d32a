package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
)

type fakeRepo struct {
	mu sync.Mutex

	pending        []*OperationEvent
	pendingByType  map[string][]*OperationEvent
	stuck          []*OperationEvent
	failedForRetry []*OperationEvent

	markedPublished []uuid.UUID
	markedFailed    []uuid.UUID
	markedInvalid   []uuid.UUID

	listPendingCalls int
	lastPendingLimit int
	lastStuckLimit   int
	lastFailedLimit  int

	listPendingErr   error
	listByTypeErr    error
	resetStuckErr    error
	resetRetryErr    error
	markPublishedErr error
	markFailedErr    error
	markInvalidErr   error
}

var _ EventRepository = (*fakeRepo)(nil)

func capEvents(events []*OperationEvent, limit int) []*OperationEvent {
	if limit < 0 || len(events) <= limit {
		return events
	}

	return events[:limit]
}

func (f *fakeRepo) Create(_ context.Context, event *OperationEvent) (*OperationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending = append(f.pending, event)

	return event, nil
}

func (f *fakeRepo) CreateWithTx(ctx context.Context, _ Tx, event *OperationEvent) (*OperationEvent, error) {
	return f.Create(ctx, event)
}

func (f *fakeRepo) ListPending(_ context.Context, limit int) ([]*OperationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listPendingCalls++
	f.lastPendingLimit = limit

	if f.listPendingErr != nil {
		return nil, f.listPendingErr
	}

	return capEvents(f.pending, limit), nil
}

func (f *fakeRepo) ListPendingByType(_ context.Context, eventType string, limit int) ([]*OperationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listByTypeErr != nil {
		return nil, f.listByTypeErr
	}

	return capEvents(f.pendingByType[eventType], limit), nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*OperationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, event := range f.pending {
		if event != nil && event.ID == id {
			return event, nil
		}
	}

	return nil, nil
}

func (f *fakeRepo) MarkPublished(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.markPublishedErr != nil {
		return f.markPublishedErr
	}

	f.markedPublished = append(f.markedPublished, id)

	return nil
}

func (f *fakeRepo) MarkFailed(_ context.Context, id uuid.UUID, _ string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.markFailedErr != nil {
		return f.markFailedErr
	}

	f.markedFailed = append(f.markedFailed, id)

	return nil
}

func (f *fakeRepo) ResetForRetry(_ context.Context, limit int, _ time.Time, _ int) ([]*OperationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastFailedLimit = limit

	if f.resetRetryErr != nil {
		return nil, f.resetRetryErr
	}

	return capEvents(f.failedForRetry, limit), nil
}

func (f *fakeRepo) ResetStuckProcessing(_ context.Context, limit int, _ time.Time, _ int) ([]*OperationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastStuckLimit = limit

	if f.resetStuckErr != nil {
		return nil, f.resetStuckErr
	}

	return capEvents(f.stuck, limit), nil
}

func (f *fakeRepo) MarkInvalid(_ context.Context, id uuid.UUID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.markInvalidErr != nil {
		return f.markInvalidErr
	}

	f.markedInvalid = append(f.markedInvalid, id)

	return nil
}

func (f *fakeRepo) listPendingCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.listPendingCalls
}

func (f *fakeRepo) publishedIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]uuid.UUID(nil), f.markedPublished...)
}

func (f *fakeRepo) failedIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]uuid.UUID(nil), f.markedFailed...)
}

func (f *fakeRepo) invalidIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]uuid.UUID(nil), f.markedInvalid...)
}

func newTestEvent(t *testing.T, eventType string) *OperationEvent {
	t.Helper()

	event, err := NewOperationEvent(context.Background(), eventType, "hld-1", []byte(`{"holderId":"hld-1"}`))
	require.NoError(t, err)

	return event
}

func recordingRegistry(t *testing.T, eventTypes ...string) (*HandlerRegistry, func() []uuid.UUID) {
	t.Helper()

	registry := NewHandlerRegistry()

	var mu sync.Mutex

	var handled []uuid.UUID

	for _, eventType := range eventTypes {
		require.NoError(t, registry.Register(eventType, func(_ context.Context, event *OperationEvent) error {
			mu.Lock()
			defer mu.Unlock()

			handled = append(handled, event.ID)

			return nil
		}))
	}

	snapshot := func() []uuid.UUID {
		mu.Lock()
		defer mu.Unlock()

		return append([]uuid.UUID(nil), handled...)
	}

	return registry, snapshot
}

func TestNewDispatcher_Validation(t *testing.T) {
	t.Parallel()

	registry := NewHandlerRegistry()

	_, err := NewDispatcher(nil, registry, nil, nil)
	require.ErrorIs(t, err, ErrRepositoryRequired)

	var nilRepo *fakeRepo

	_, err = NewDispatcher(nilRepo, registry, nil, nil)
	require.ErrorIs(t, err, ErrRepositoryRequired)

	_, err = NewDispatcher(&fakeRepo{}, nil, nil, nil)
	require.ErrorIs(t, err, ErrRegistryRequired)

	dispatcher, err := NewDispatcher(&fakeRepo{}, registry, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, dispatcher)
}

func TestDispatcher_DispatchOncePublishes(t *testing.T) {
	t.Parallel()

	event := newTestEvent(t, constant.EventTypeDeposit)
	repo := &fakeRepo{pending: []*OperationEvent{event}}
	registry, handled := recordingRegistry(t, constant.EventTypeDeposit)

	dispatcher, err := NewDispatcher(repo, registry, nil, nil, WithPublishMaxAttempts(1))
	require.NoError(t, err)

	result := dispatcher.DispatchOnceResult(context.Background())

	assert.Equal(t, DispatchResult{Processed: 1, Published: 1}, result)
	assert.Equal(t, []uuid.UUID{event.ID}, handled())
	assert.Equal(t, []uuid.UUID{event.ID}, repo.publishedIDs())
	assert.Empty(t, repo.failedIDs())
	assert.Empty(t, repo.invalidIDs())
}

func TestDispatcher_RetryableErrorMarksFailed(t *testing.T) {
	t.Parallel()

	event := newTestEvent(t, constant.EventTypeDeposit)
	repo := &fakeRepo{pending: []*OperationEvent{event}}

	registry := NewHandlerRegistry()
	require.NoError(t, registry.Register(constant.EventTypeDeposit, func(context.Context, *OperationEvent) error {
		return errors.New("broker unavailable")
	}))

	dispatcher, err := NewDispatcher(repo, registry, nil, nil, WithPublishMaxAttempts(1))
	require.NoError(t, err)

	result := dispatcher.DispatchOnceResult(context.Background())

	assert.Equal(t, DispatchResult{Processed: 1, Failed: 1}, result)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.failedIDs())
	assert.Empty(t, repo.invalidIDs())
	assert.Empty(t, repo.publishedIDs())
}

func TestDispatcher_MarksInvalidOnNonRetryable(t *testing.T) {
	t.Parallel()

	errPermanent := errors.New("payload rejected by schema")

	event := newTestEvent(t, constant.EventTypeDeposit)
	repo := &fakeRepo{pending: []*OperationEvent{event}}

	registry := NewHandlerRegistry()
	require.NoError(t, registry.Register(constant.EventTypeDeposit, func(context.Context, *OperationEvent) error {
		return errPermanent
	}))

	dispatcher, err := NewDispatcher(repo, registry, nil, nil,
		WithPublishMaxAttempts(3),
		WithPublishBackoff(time.Millisecond),
		WithRetryClassifier(RetryClassifierFunc(func(err error) bool {
			return errors.Is(err, errPermanent)
		})),
	)
	require.NoError(t, err)

	result := dispatcher.DispatchOnceResult(context.Background())

	assert.Equal(t, DispatchResult{Processed: 1, Failed: 1}, result)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.invalidIDs())
	assert.Empty(t, repo.failedIDs(), "non-retryable events must not re-enter the retry loop")
}

func TestDispatcher_MarkPublishedErrorDoesNotMarkFailedOrInvalid(t *testing.T) {
	t.Parallel()

	event := newTestEvent(t, constant.EventTypeDeposit)
	repo := &fakeRepo{
		pending:          []*OperationEvent{event},
		markPublishedErr: errors.New("db down"),
	}
	registry, handled := recordingRegistry(t, constant.EventTypeDeposit)

	dispatcher, err := NewDispatcher(repo, registry, nil, nil, WithPublishMaxAttempts(1))
	require.NoError(t, err)

	result := dispatcher.DispatchOnceResult(context.Background())

	assert.Equal(t, DispatchResult{Processed: 1, Published: 1, StateUpdateFailed: 1}, result)
	assert.Equal(t, []uuid.UUID{event.ID}, handled(), "event was delivered to the broker")
	assert.Empty(t, repo.publishedIDs())
	assert.Empty(t, repo.failedIDs())
	assert.Empty(t, repo.invalidIDs())
}

func TestDispatcher_EmptyPayloadMarksFailed(t *testing.T) {
	t.Parallel()

	event := &OperationEvent{ID: uuid.New(), EventType: constant.EventTypeDeposit, Status: EventStatusPending}
	repo := &fakeRepo{pending: []*OperationEvent{event}}
	registry, handled := recordingRegistry(t, constant.EventTypeDeposit)

	dispatcher, err := NewDispatcher(repo, registry, nil, nil, WithPublishMaxAttempts(1))
	require.NoError(t, err)

	result := dispatcher.DispatchOnceResult(context.Background())

	assert.Equal(t, DispatchResult{Processed: 1, Failed: 1}, result)
	assert.Empty(t, handled(), "events without payload never reach handlers")
	assert.Equal(t, []uuid.UUID{event.ID}, repo.failedIDs())
}

func TestDispatcher_PriorityEventsComeFirstAndDeduplicate(t *testing.T) {
	t.Parallel()

	claimEvent := newTestEvent(t, constant.EventTypeClaim)
	depositEvent := newTestEvent(t, constant.EventTypeDeposit)

	repo := &fakeRepo{
		pending: []*OperationEvent{depositEvent, claimEvent},
		pendingByType: map[string][]*OperationEvent{
			constant.EventTypeClaim: {claimEvent},
		},
	}
	registry, handled := recordingRegistry(t, constant.EventTypeClaim, constant.EventTypeDeposit)

	dispatcher, err := NewDispatcher(repo, registry, nil, nil,
		WithPublishMaxAttempts(1),
		WithPriorityEventTypes(constant.EventTypeClaim),
	)
	require.NoError(t, err)

	result := dispatcher.DispatchOnceResult(context.Background())

	assert.Equal(t, DispatchResult{Processed: 2, Published: 2}, result)
	assert.Equal(t, []uuid.UUID{claimEvent.ID, depositEvent.ID}, handled(),
		"priority events dispatch before generic pending events, without duplicates")
}

func TestDispatcher_LayersStuckAndFailedBeforePending(t *testing.T) {
	t.Parallel()

	stuckEvent := newTestEvent(t, constant.EventTypeDeposit)
	failedEvent := newTestEvent(t, constant.EventTypeDeposit)
	pendingEvent := newTestEvent(t, constant.EventTypeDeposit)

	repo := &fakeRepo{
		pending:        []*OperationEvent{pendingEvent},
		stuck:          []*OperationEvent{stuckEvent},
		failedForRetry: []*OperationEvent{failedEvent},
	}
	registry, handled := recordingRegistry(t, constant.EventTypeDeposit)

	dispatcher, err := NewDispatcher(repo, registry, nil, nil, WithPublishMaxAttempts(1))
	require.NoError(t, err)

	result := dispatcher.DispatchOnceResult(context.Background())

	assert.Equal(t, DispatchResult{Processed: 3, Published: 3}, result)
	assert.Equal(t, []uuid.UUID{stuckEvent.ID, failedEvent.ID, pendingEvent.ID}, handled())
}

func TestDispatcher_ListLimitsAccountForEarlierLayers(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{
		pendingByType: map[string][]*OperationEvent{
			constant.EventTypeClaim: {
				newTestEvent(t, constant.EventTypeClaim),
				newTestEvent(t, constant.EventTypeClaim),
			},
		},
		stuck:          []*OperationEvent{newTestEvent(t, constant.EventTypeDeposit)},
		failedForRetry: []*OperationEvent{newTestEvent(t, constant.EventTypeDeposit)},
	}
	registry, _ := recordingRegistry(t, constant.EventTypeClaim, constant.EventTypeDeposit)

	dispatcher, err := NewDispatcher(repo, registry, nil, nil,
		WithPublishMaxAttempts(1),
		WithBatchSize(10),
		WithPriorityEventTypes(constant.EventTypeClaim),
	)
	require.NoError(t, err)

	result := dispatcher.DispatchOnceResult(context.Background())

	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 8, repo.lastStuckLimit, "stuck limit is batch size minus priority picks")
	assert.Equal(t, 7, repo.lastFailedLimit, "failed limit subtracts priority and stuck picks")
	assert.Equal(t, 6, repo.lastPendingLimit, "pending limit subtracts every earlier layer")
}

func TestDispatcher_ListPendingErrorStillDeliversLayeredEvents(t *testing.T) {
	t.Parallel()

	stuckEvent := newTestEvent(t, constant.EventTypeDeposit)
	failedEvent := newTestEvent(t, constant.EventTypeDeposit)

	repo := &fakeRepo{
		stuck:          []*OperationEvent{stuckEvent},
		failedForRetry: []*OperationEvent{failedEvent},
		listPendingErr: errors.New("db down"),
	}
	registry, handled := recordingRegistry(t, constant.EventTypeDeposit)

	dispatcher, err := NewDispatcher(repo, registry, nil, nil, WithPublishMaxAttempts(1))
	require.NoError(t, err)

	result := dispatcher.DispatchOnceResult(context.Background())

	assert.Equal(t, DispatchResult{Processed: 2, Published: 2}, result)
	assert.Equal(t, []uuid.UUID{stuckEvent.ID, failedEvent.ID}, handled())
}

func TestDispatcher_StopsOnContextCancellation(t *testing.T) {
	t.Parallel()

	first := newTestEvent(t, constant.EventTypeDeposit)
	second := newTestEvent(t, constant.EventTypeDeposit)
	repo := &fakeRepo{pending: []*OperationEvent{first, second}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := NewHandlerRegistry()
	require.NoError(t, registry.Register(constant.EventTypeDeposit, func(context.Context, *OperationEvent) error {
		cancel()
		return nil
	}))

	dispatcher, err := NewDispatcher(repo, registry, nil, nil, WithPublishMaxAttempts(1))
	require.NoError(t, err)

	result := dispatcher.DispatchOnceResult(ctx)

	assert.Equal(t, 1, result.Processed, "cancellation stops the batch before the second event")
}

func TestDeduplicateEvents_FiltersNilAndDuplicates(t *testing.T) {
	t.Parallel()

	first := newTestEvent(t, constant.EventTypeDeposit)
	second := newTestEvent(t, constant.EventTypeClaim)

	deduped := deduplicateEvents([]*OperationEvent{first, nil, second, first, nil, second})

	require.Len(t, deduped, 2)
	assert.Equal(t, first.ID, deduped[0].ID)
	assert.Equal(t, second.ID, deduped[1].ID)

	assert.Empty(t, deduplicateEvents(nil))
}

func TestDispatcher_PublishEventWithRetry_SucceedsAfterTransientError(t *testing.T) {
	t.Parallel()

	attempts := 0

	registry := NewHandlerRegistry()
	require.NoError(t, registry.Register(constant.EventTypeDeposit, func(context.Context, *OperationEvent) error {
		attempts++
		if attempts == 1 {
			return errors.New("transient broker error")
		}

		return nil
	}))

	dispatcher, err := NewDispatcher(&fakeRepo{}, registry, nil, nil,
		WithPublishMaxAttempts(3),
		WithPublishBackoff(time.Millisecond),
	)
	require.NoError(t, err)

	event := newTestEvent(t, constant.EventTypeDeposit)

	require.NoError(t, dispatcher.publishEventWithRetry(context.Background(), event))
	assert.Equal(t, 2, attempts)
}

func TestDispatcher_PublishEventWithRetry_StopsOnNonRetryableError(t *testing.T) {
	t.Parallel()

	errPermanent := errors.New("payload rejected by schema")
	attempts := 0

	registry := NewHandlerRegistry()
	require.NoError(t, registry.Register(constant.EventTypeDeposit, func(context.Context, *OperationEvent) error {
		attempts++
		return errPermanent
	}))

	dispatcher, err := NewDispatcher(&fakeRepo{}, registry, nil, nil,
		WithPublishMaxAttempts(3),
		WithPublishBackoff(time.Millisecond),
		WithRetryClassifier(RetryClassifierFunc(func(err error) bool {
			return errors.Is(err, errPermanent)
		})),
	)
	require.NoError(t, err)

	event := newTestEvent(t, constant.EventTypeDeposit)

	retryErr := dispatcher.publishEventWithRetry(context.Background(), event)
	require.ErrorIs(t, retryErr, errPermanent)
	assert.Equal(t, 1, attempts, "non-retryable errors must not be retried")
}

func TestDispatcher_NilReceiverAndNilContext(t *testing.T) {
	t.Parallel()

	var dispatcher *Dispatcher

	assert.Equal(t, DispatchResult{}, dispatcher.DispatchOnceResult(context.Background()))
	assert.Zero(t, dispatcher.DispatchOnce(context.Background()))
	assert.NotPanics(t, func() { dispatcher.Stop() })
	require.NoError(t, dispatcher.Shutdown(context.Background()))
	require.ErrorIs(t, dispatcher.RunContext(context.Background(), nil), ErrDispatcherRequired)

	live, err := NewDispatcher(&fakeRepo{}, NewHandlerRegistry(), nil, nil)
	require.NoError(t, err)

	//nolint:staticcheck // nil context tolerance is part of the contract
	assert.Equal(t, DispatchResult{}, live.DispatchOnceResult(nil))
}

func TestDispatcher_RunContextLifecycle(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	registry, _ := recordingRegistry(t, constant.EventTypeDeposit)

	dispatcher, err := NewDispatcher(repo, registry, nil, nil,
		WithDispatchInterval(10*time.Millisecond),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)

	go func() { runErr <- dispatcher.RunContext(ctx, nil) }()

	require.Eventually(t, func() bool { return repo.listPendingCallCount() > 0 },
		2*time.Second, 5*time.Millisecond)

	require.ErrorIs(t, dispatcher.RunContext(ctx, nil), ErrDispatcherRunning)

	dispatcher.Stop()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	callsBeforeRestart := repo.listPendingCallCount()

	go func() { runErr <- dispatcher.RunContext(ctx, nil) }()

	require.Eventually(t, func() bool { return repo.listPendingCallCount() > callsBeforeRestart },
		2*time.Second, 5*time.Millisecond)

	dispatcher.Stop()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after restart")
	}
}

func TestDispatcher_Shutdown(t *testing.T) {
	t.Parallel()

	dispatcher, err := NewDispatcher(&fakeRepo{}, NewHandlerRegistry(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, dispatcher.Shutdown(context.Background()))
}
