package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LerianStudio/redemption-gateway/redemption"
	"github.com/LerianStudio/redemption-gateway/redemption/events"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
)

const (
	eventColumns = "id, event_type, holder_id, payload, status, attempts, published_at, last_error, created_at, updated_at"

	defaultTransactionTimeout = 30 * time.Second
)

// EventPostgresRepository persists operation events in the outbox table.
//
// Batch reads lock their rows with FOR UPDATE SKIP LOCKED and flip them to
// PROCESSING inside the same transaction, so concurrent dispatchers never
// hand out the same event twice.
type EventPostgresRepository struct {
	connection         *PostgresConnection
	transactionTimeout time.Duration
}

var _ events.EventRepository = (*EventPostgresRepository)(nil)

// NewEventPostgresRepository wires an event repository to the connection hub.
func NewEventPostgresRepository(connection *PostgresConnection) (*EventPostgresRepository, error) {
	if connection == nil {
		return nil, ErrConnectionRequired
	}

	return &EventPostgresRepository{
		connection:         connection,
		transactionTimeout: defaultTransactionTimeout,
	}, nil
}

// Create stores a new event using its own transaction.
func (r *EventPostgresRepository) Create(ctx context.Context, event *events.OperationEvent) (*events.OperationEvent, error) {
	return r.create(ctx, nil, event)
}

// CreateWithTx stores a new event inside an existing transaction, letting an
// operation write and its event record commit atomically.
func (r *EventPostgresRepository) CreateWithTx(
	ctx context.Context,
	tx events.Tx,
	event *events.OperationEvent,
) (*events.OperationEvent, error) {
	return r.create(ctx, tx, event)
}

func (r *EventPostgresRepository) create(
	ctx context.Context,
	tx *sql.Tx,
	event *events.OperationEvent,
) (*events.OperationEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := validateCreateEvent(event); err != nil {
		return nil, err
	}

	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.create_operation_event")
	defer span.End()

	result, err := withTxOrExisting(r, ctx, tx, func(execTx *sql.Tx) (*events.OperationEvent, error) {
		values := normalizedCreateValues(event, time.Now().UTC())

		row := execTx.QueryRowContext(ctx,
			`INSERT INTO operation_events (`+eventColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING `+eventColumns,
			values.id, values.eventType, values.holderID, values.payload, values.status,
			values.attempts, values.publishedAt, values.lastError, values.createdAt, values.updatedAt)

		return scanEvent(row)
	})
	if err != nil {
		opentelemetry.HandleSpanError(span, "failed to create operation event", err)
		logSanitizedError(logger, ctx, "failed to create operation event", err)

		return nil, fmt.Errorf("creating operation event: %w", err)
	}

	return result, nil
}

// GetByID retrieves one event by id.
func (r *EventPostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*events.OperationEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if id == uuid.Nil {
		return nil, ErrIDRequired
	}

	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.get_operation_event")
	defer span.End()

	result, err := withTxOrExisting(r, ctx, nil, func(tx *sql.Tx) (*events.OperationEvent, error) {
		row := tx.QueryRowContext(ctx,
			"SELECT "+eventColumns+" FROM operation_events WHERE id = $1", id)

		return scanEvent(row)
	})
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			opentelemetry.HandleSpanError(span, "failed to get operation event", err)
			logSanitizedError(logger, ctx, "failed to get operation event", err)
		}

		return nil, fmt.Errorf("getting operation event: %w", err)
	}

	return result, nil
}

// ListPending claims up to limit pending events, oldest first. Claimed rows
// are flipped to PROCESSING before they are returned.
func (r *EventPostgresRepository) ListPending(ctx context.Context, limit int) ([]*events.OperationEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if limit <= 0 {
		return nil, ErrLimitMustBePositive
	}

	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.list_pending_events")
	defer span.End()

	result, err := withTxOrExisting(r, ctx, nil, func(tx *sql.Tx) ([]*events.OperationEvent, error) {
		query := "SELECT " + eventColumns + " FROM operation_events WHERE status = $1 " +
			"ORDER BY created_at ASC LIMIT $2 FOR UPDATE SKIP LOCKED"

		claimed, err := queryEvents(ctx, tx, query, []any{events.EventStatusPending, limit}, limit, "querying pending events")
		if err != nil {
			return nil, err
		}

		return r.claimForProcessing(ctx, tx, claimed, events.EventStatusPending)
	})
	if err != nil {
		opentelemetry.HandleSpanError(span, "failed to list pending events", err)
		logSanitizedError(logger, ctx, "failed to list pending events", err)

		return nil, fmt.Errorf("listing pending events: %w", err)
	}

	return result, nil
}

// ListPendingByType claims pending events of one type, oldest first.
func (r *EventPostgresRepository) ListPendingByType(
	ctx context.Context,
	eventType string,
	limit int,
) ([]*events.OperationEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if limit <= 0 {
		return nil, ErrLimitMustBePositive
	}

	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, events.ErrEventTypeRequired
	}

	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.list_pending_events_by_type")
	defer span.End()

	result, err := withTxOrExisting(r, ctx, nil, func(tx *sql.Tx) ([]*events.OperationEvent, error) {
		query := "SELECT " + eventColumns + " FROM operation_events WHERE status = $1 AND event_type = $2 " +
			"ORDER BY created_at ASC LIMIT $3 FOR UPDATE SKIP LOCKED"

		claimed, err := queryEvents(ctx, tx, query,
			[]any{events.EventStatusPending, eventType, limit}, limit, "querying pending events by type")
		if err != nil {
			return nil, err
		}

		return r.claimForProcessing(ctx, tx, claimed, events.EventStatusPending)
	})
	if err != nil {
		opentelemetry.HandleSpanError(span, "failed to list pending events by type", err)
		logSanitizedError(logger, ctx, "failed to list pending events by type", err)

		return nil, fmt.Errorf("listing pending events by type: %w", err)
	}

	return result, nil
}

// MarkPublished finalizes a processed event.
func (r *EventPostgresRepository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := events.ValidateTransition(events.EventStatusProcessing, events.EventStatusPublished); err != nil {
		return fmt.Errorf("mark published transition: %w", err)
	}

	if id == uuid.Nil {
		return ErrIDRequired
	}

	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.mark_event_published")
	defer span.End()

	_, err := withTxOrExisting(r, ctx, nil, func(tx *sql.Tx) (struct{}, error) {
		result, execErr := tx.ExecContext(ctx,
			`UPDATE operation_events
			 SET status = $1::operation_event_status, published_at = $2, updated_at = $3
			 WHERE id = $4 AND status = $5::operation_event_status`,
			events.EventStatusPublished, publishedAt, time.Now().UTC(), id, events.EventStatusProcessing)
		if execErr != nil {
			return struct{}{}, fmt.Errorf("executing update: %w", execErr)
		}

		return struct{}{}, ensureRowsAffected(result)
	})
	if err != nil {
		opentelemetry.HandleSpanError(span, "failed to mark event published", err)
		logSanitizedError(logger, ctx, "failed to mark event published", err)

		return fmt.Errorf("marking published: %w", err)
	}

	return nil
}

// MarkFailed records a failed publish attempt. Once the attempt budget is
// exhausted the event escalates to INVALID in the same statement.
func (r *EventPostgresRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := events.ValidateTransition(events.EventStatusProcessing, events.EventStatusFailed); err != nil {
		return fmt.Errorf("mark failed transition: %w", err)
	}

	if id == uuid.Nil {
		return ErrIDRequired
	}

	if maxAttempts <= 0 {
		return ErrMaxAttemptsMustBePositive
	}

	errMsg = events.SanitizeErrorMessageForStorage(errMsg)

	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.mark_event_failed")
	defer span.End()

	_, err := withTxOrExisting(r, ctx, nil, func(tx *sql.Tx) (struct{}, error) {
		result, execErr := tx.ExecContext(ctx,
			`UPDATE operation_events
			 SET status = CASE WHEN attempts + 1 >= $1 THEN $2 ELSE $3 END::operation_event_status,
			     attempts = attempts + 1,
			     last_error = CASE WHEN attempts + 1 >= $1 THEN $4 ELSE $5 END,
			     updated_at = $6
			 WHERE id = $7 AND status = $8::operation_event_status`,
			maxAttempts, events.EventStatusInvalid, events.EventStatusFailed,
			"max dispatch attempts exceeded", errMsg, time.Now().UTC(), id, events.EventStatusProcessing)
		if execErr != nil {
			return struct{}{}, fmt.Errorf("executing update: %w", execErr)
		}

		return struct{}{}, ensureRowsAffected(result)
	})
	if err != nil {
		opentelemetry.HandleSpanError(span, "failed to mark event failed", err)
		logSanitizedError(logger, ctx, "failed to mark event failed", err)

		return fmt.Errorf("marking failed: %w", err)
	}

	return nil
}

// MarkInvalid parks an event that can never publish successfully.
func (r *EventPostgresRepository) MarkInvalid(ctx context.Context, id uuid.UUID, errMsg string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := events.ValidateTransition(events.EventStatusProcessing, events.EventStatusInvalid); err != nil {
		return fmt.Errorf("mark invalid transition: %w", err)
	}

	if id == uuid.Nil {
		return ErrIDRequired
	}

	errMsg = events.SanitizeErrorMessageForStorage(errMsg)

	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.mark_event_invalid")
	defer span.End()

	_, err := withTxOrExisting(r, ctx, nil, func(tx *sql.Tx) (struct{}, error) {
		result, execErr := tx.ExecContext(ctx,
			`UPDATE operation_events
			 SET status = $1::operation_event_status, last_error = $2, updated_at = $3
			 WHERE id = $4 AND status = $5::operation_event_status`,
			events.EventStatusInvalid, errMsg, time.Now().UTC(), id, events.EventStatusProcessing)
		if execErr != nil {
			return struct{}{}, fmt.Errorf("executing update: %w", execErr)
		}

		return struct{}{}, ensureRowsAffected(result)
	})
	if err != nil {
		opentelemetry.HandleSpanError(span, "failed to mark event invalid", err)
		logSanitizedError(logger, ctx, "failed to mark event invalid", err)

		return fmt.Errorf("marking invalid: %w", err)
	}

	return nil
}

// ResetForRetry atomically claims failed events whose backoff window has
// passed and flips them back to PROCESSING.
func (r *EventPostgresRepository) ResetForRetry(
	ctx context.Context,
	limit int,
	failedBefore time.Time,
	maxAttempts int,
) ([]*events.OperationEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if limit <= 0 {
		return nil, ErrLimitMustBePositive
	}

	if maxAttempts <= 0 {
		return nil, ErrMaxAttemptsMustBePositive
	}

	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.reset_events_for_retry")
	defer span.End()

	result, err := withTxOrExisting(r, ctx, nil, func(tx *sql.Tx) ([]*events.OperationEvent, error) {
		query := "SELECT " + eventColumns + " FROM operation_events " +
			"WHERE status = $1 AND attempts < $2 AND updated_at <= $3 " +
			"ORDER BY updated_at ASC LIMIT $4 FOR UPDATE SKIP LOCKED"

		claimed, err := queryEvents(ctx, tx, query,
			[]any{events.EventStatusFailed, maxAttempts, failedBefore, limit}, limit, "querying failed events for retry")
		if err != nil {
			return nil, err
		}

		return r.claimForProcessing(ctx, tx, claimed, events.EventStatusFailed)
	})
	if err != nil {
		opentelemetry.HandleSpanError(span, "failed to reset events for retry", err)
		logSanitizedError(logger, ctx, "failed to reset events for retry", err)

		return nil, fmt.Errorf("resetting events for retry: %w", err)
	}

	return result, nil
}

// ResetStuckProcessing reclaims events stuck in PROCESSING past the cutoff,
// typically left behind by a dispatcher that died mid-publish. Events with
// attempts left are handed back for publishing; exhausted ones go INVALID.
func (r *EventPostgresRepository) ResetStuckProcessing(
	ctx context.Context,
	limit int,
	processingBefore time.Time,
	maxAttempts int,
) ([]*events.OperationEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if limit <= 0 {
		return nil, ErrLimitMustBePositive
	}

	if maxAttempts <= 0 {
		return nil, ErrMaxAttemptsMustBePositive
	}

	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.reset_stuck_events")
	defer span.End()

	result, err := withTxOrExisting(r, ctx, nil, func(tx *sql.Tx) ([]*events.OperationEvent, error) {
		query := "SELECT " + eventColumns + " FROM operation_events " +
			"WHERE status = $1 AND updated_at <= $2 " +
			"ORDER BY updated_at ASC LIMIT $3 FOR UPDATE SKIP LOCKED"

		stuck, err := queryEvents(ctx, tx, query,
			[]any{events.EventStatusProcessing, processingBefore, limit}, limit, "querying stuck events")
		if err != nil {
			return nil, err
		}

		if len(stuck) == 0 {
			return stuck, nil
		}

		retryEvents, exhaustedIDs := splitStuckEvents(stuck, maxAttempts)
		now := time.Now().UTC()

		if ids := collectEventIDs(retryEvents); len(ids) > 0 {
			if err := r.markStuckEventsReprocessing(ctx, tx, now, ids); err != nil {
				return nil, err
			}

			applyStuckReprocessingState(retryEvents, now)
		}

		if len(exhaustedIDs) > 0 {
			if err := r.markStuckEventsInvalid(ctx, tx, now, exhaustedIDs); err != nil {
				return nil, err
			}
		}

		return retryEvents, nil
	})
	if err != nil {
		opentelemetry.HandleSpanError(span, "failed to reset stuck events", err)
		logSanitizedError(logger, ctx, "failed to reset stuck events", err)

		return nil, fmt.Errorf("reset stuck events: %w", err)
	}

	return result, nil
}

// claimForProcessing flips freshly selected events to PROCESSING and mirrors
// the new state on the returned values.
func (r *EventPostgresRepository) claimForProcessing(
	ctx context.Context,
	tx *sql.Tx,
	claimed []*events.OperationEvent,
	fromStatus string,
) ([]*events.OperationEvent, error) {
	if len(claimed) == 0 {
		return claimed, nil
	}

	ids := collectEventIDs(claimed)
	if len(ids) == 0 {
		return claimed, nil
	}

	if err := events.ValidateTransition(fromStatus, events.EventStatusProcessing); err != nil {
		return nil, fmt.Errorf("status transition: %w", err)
	}

	now := time.Now().UTC()

	result, err := tx.ExecContext(ctx,
		`UPDATE operation_events
		 SET status = $1::operation_event_status, updated_at = $2
		 WHERE id = ANY($3::uuid[]) AND status = $4::operation_event_status`,
		events.EventStatusProcessing, now, ids, fromStatus)
	if err != nil {
		return nil, fmt.Errorf("updating status to %s: %w", events.EventStatusProcessing, err)
	}

	if err := ensureRowsAffectedExact(result, int64(len(ids))); err != nil {
		return nil, fmt.Errorf("updating status to %s: %w", events.EventStatusProcessing, err)
	}

	applyProcessingState(claimed, now)

	return claimed, nil
}

// markStuckEventsReprocessing keeps PROCESSING -> PROCESSING while counting
// the attempt. Flipping to PENDING before returning rows would let another
// dispatcher publish the same event right after this transaction commits.
func (r *EventPostgresRepository) markStuckEventsReprocessing(
	ctx context.Context,
	tx *sql.Tx,
	now time.Time,
	ids []uuid.UUID,
) error {
	if err := events.ValidateTransition(events.EventStatusProcessing, events.EventStatusProcessing); err != nil {
		return fmt.Errorf("stuck reprocessing transition: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE operation_events
		 SET status = $1::operation_event_status, attempts = attempts + 1, updated_at = $2
		 WHERE id = ANY($3::uuid[]) AND status = $4::operation_event_status`,
		events.EventStatusProcessing, now, ids, events.EventStatusProcessing)
	if err != nil {
		return fmt.Errorf("updating stuck events to processing: %w", err)
	}

	if err := ensureRowsAffectedExact(result, int64(len(ids))); err != nil {
		return fmt.Errorf("updating stuck events to processing: %w", err)
	}

	return nil
}

func (r *EventPostgresRepository) markStuckEventsInvalid(
	ctx context.Context,
	tx *sql.Tx,
	now time.Time,
	ids []uuid.UUID,
) error {
	if err := events.ValidateTransition(events.EventStatusProcessing, events.EventStatusInvalid); err != nil {
		return fmt.Errorf("stuck invalid transition: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE operation_events
		 SET status = $1::operation_event_status, attempts = attempts + 1, last_error = $2, updated_at = $3
		 WHERE id = ANY($4::uuid[]) AND status = $5::operation_event_status`,
		events.EventStatusInvalid, "max dispatch attempts exceeded", now, ids, events.EventStatusProcessing)
	if err != nil {
		return fmt.Errorf("updating stuck events to invalid: %w", err)
	}

	if err := ensureRowsAffectedExact(result, int64(len(ids))); err != nil {
		return fmt.Errorf("updating stuck events to invalid: %w", err)
	}

	return nil
}

func withTxOrExisting[T any](
	r *EventPostgresRepository,
	ctx context.Context,
	tx *sql.Tx,
	fn func(*sql.Tx) (T, error),
) (T, error) {
	var zero T

	if tx != nil {
		return fn(tx)
	}

	primaryDB, err := r.connection.Primary(ctx)
	if err != nil {
		return zero, fmt.Errorf("get primary database: %w", err)
	}

	txCtx := ctx

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc

		txCtx, cancel = context.WithTimeout(ctx, r.transactionTimeout)
		defer cancel()
	}

	newTx, err := primaryDB.BeginTx(txCtx, nil)
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = newTx.Rollback()
	}()

	result, err := fn(newTx)
	if err != nil {
		return zero, err
	}

	if err := newTx.Commit(); err != nil {
		return zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

func queryEvents(
	ctx context.Context,
	tx *sql.Tx,
	query string,
	args []any,
	capacity int,
	action string,
) ([]*events.OperationEvent, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}

	defer rows.Close()

	results := make([]*events.OperationEvent, 0, capacity)

	for rows.Next() {
		event, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("%s: %w", action, scanErr)
		}

		results = append(results, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}

	return results, nil
}

func scanEvent(scanner interface{ Scan(dest ...any) error }) (*events.OperationEvent, error) {
	var event events.OperationEvent

	var lastError sql.NullString

	if err := scanner.Scan(
		&event.ID,
		&event.EventType,
		&event.HolderID,
		&event.Payload,
		&event.Status,
		&event.Attempts,
		&event.PublishedAt,
		&lastError,
		&event.CreatedAt,
		&event.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if lastError.Valid {
		event.LastError = lastError.String
	}

	return &event, nil
}

func collectEventIDs(list []*events.OperationEvent) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(list))

	for _, event := range list {
		if event == nil || event.ID == uuid.Nil {
			continue
		}

		ids = append(ids, event.ID)
	}

	return ids
}

func applyProcessingState(list []*events.OperationEvent, now time.Time) {
	for _, event := range list {
		if event == nil {
			continue
		}

		event.Status = events.EventStatusProcessing
		event.UpdatedAt = now
	}
}

func applyStuckReprocessingState(list []*events.OperationEvent, now time.Time) {
	for _, event := range list {
		if event == nil {
			continue
		}

		event.Attempts++
		event.Status = events.EventStatusProcessing
		event.UpdatedAt = now
	}
}

// splitStuckEvents partitions reclaimed events into those with publish
// attempts left and those whose budget the reclaim itself exhausts.
func splitStuckEvents(list []*events.OperationEvent, maxAttempts int) ([]*events.OperationEvent, []uuid.UUID) {
	retryEvents := make([]*events.OperationEvent, 0, len(list))
	exhaustedIDs := make([]uuid.UUID, 0)

	for _, event := range list {
		if event == nil || event.ID == uuid.Nil {
			continue
		}

		if event.Attempts+1 >= maxAttempts {
			exhaustedIDs = append(exhaustedIDs, event.ID)

			continue
		}

		retryEvents = append(retryEvents, event)
	}

	return retryEvents, exhaustedIDs
}

func validateCreateEvent(event *events.OperationEvent) error {
	if event == nil {
		return events.ErrEventRequired
	}

	if event.ID == uuid.Nil {
		return ErrIDRequired
	}

	if strings.TrimSpace(event.EventType) == "" {
		return events.ErrEventTypeRequired
	}

	if strings.TrimSpace(event.HolderID) == "" {
		return ErrHolderIDRequired
	}

	if len(event.Payload) == 0 {
		return events.ErrPayloadRequired
	}

	if len(event.Payload) > events.MaxPayloadBytes {
		return events.ErrPayloadTooLarge
	}

	if !json.Valid(event.Payload) {
		return events.ErrPayloadNotJSON
	}

	return nil
}

type createValues struct {
	id          uuid.UUID
	eventType   string
	holderID    string
	payload     []byte
	status      string
	attempts    int
	publishedAt *time.Time
	lastError   string
	createdAt   time.Time
	updatedAt   time.Time
}

// normalizedCreateValues forces a fresh lifecycle on insert regardless of
// what the caller set on the struct.
func normalizedCreateValues(event *events.OperationEvent, now time.Time) createValues {
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	updatedAt := event.UpdatedAt
	if updatedAt.IsZero() || updatedAt.Before(createdAt) {
		updatedAt = createdAt
	}

	return createValues{
		id:          event.ID,
		eventType:   strings.TrimSpace(event.EventType),
		holderID:    strings.TrimSpace(event.HolderID),
		payload:     event.Payload,
		status:      events.EventStatusPending,
		attempts:    0,
		publishedAt: nil,
		lastError:   "",
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

func logSanitizedError(logger log.Logger, ctx context.Context, message string, err error) {
	if logger == nil || err == nil {
		return
	}

	logger.Log(ctx, log.LevelError, message, log.String("error", events.SanitizeErrorMessageForStorage(err.Error())))
}

func ensureRowsAffected(result sql.Result) error {
	rows, err := rowsAffected(result)
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrStateTransitionConflict
	}

	return nil
}

func ensureRowsAffectedExact(result sql.Result, expected int64) error {
	rows, err := rowsAffected(result)
	if err != nil {
		return err
	}

	if rows != expected {
		return ErrStateTransitionConflict
	}

	return nil
}

func rowsAffected(result sql.Result) (int64, error) {
	if result == nil {
		return 0, ErrStateTransitionConflict
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return rows, nil
}
