package events

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Tx is the transactional handle used by CreateWithTx.
//
// It intentionally aliases *sql.Tx so operation writes and their event
// records can share one database transaction without an adapter layer.
type Tx = *sql.Tx

// EventRepository defines persistence operations for outbox events.
type EventRepository interface {
	Create(ctx context.Context, event *OperationEvent) (*OperationEvent, error)
	CreateWithTx(ctx context.Context, tx Tx, event *OperationEvent) (*OperationEvent, error)
	ListPending(ctx context.Context, limit int) ([]*OperationEvent, error)
	ListPendingByType(ctx context.Context, eventType string, limit int) ([]*OperationEvent, error)
	GetByID(ctx context.Context, id uuid.UUID) (*OperationEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int) error
	ResetForRetry(ctx context.Context, limit int, failedBefore time.Time, maxAttempts int) ([]*OperationEvent, error)
	ResetStuckProcessing(ctx context.Context, limit int, processingBefore time.Time, maxAttempts int) ([]*OperationEvent, error)
	MarkInvalid(ctx context.Context, id uuid.UUID, errMsg string) error
}
