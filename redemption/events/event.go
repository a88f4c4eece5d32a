package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LerianStudio/redemption-gateway/redemption/assert"
	"github.com/google/uuid"
)

const (
	EventStatusPending    = "PENDING"
	EventStatusProcessing = "PROCESSING"
	EventStatusPublished  = "PUBLISHED"
	EventStatusFailed     = "FAILED"
	EventStatusInvalid    = "INVALID"
	MaxPayloadBytes       = 1 << 20
)

// OperationEvent is a notification recorded in the outbox for reliable
// delivery. HolderID is the aggregate the event belongs to; for system-level
// events it is the caller that triggered the change.
type OperationEvent struct {
	ID          uuid.UUID
	EventType   string
	HolderID    string
	Payload     []byte
	Status      string
	Attempts    int
	PublishedAt *time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOperationEvent creates a valid event initialized as pending. IDs are
// UUIDv7 so ID order stays aligned with creation order in outbox scans.
func NewOperationEvent(
	ctx context.Context,
	eventType string,
	holderID string,
	payload []byte,
) (*OperationEvent, error) {
	eventID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}

	return NewOperationEventWithID(ctx, eventID, eventType, holderID, payload)
}

// NewOperationEventWithID creates a valid event initialized as pending using
// a caller-provided ID.
func NewOperationEventWithID(
	ctx context.Context,
	eventID uuid.UUID,
	eventType string,
	holderID string,
	payload []byte,
) (*OperationEvent, error) {
	asserter := assert.New(ctx, nil, "events", "events.new_event")

	if err := asserter.That(ctx, eventID != uuid.Nil, "event id is required"); err != nil {
		return nil, fmt.Errorf("event id: %w", err)
	}

	eventType = strings.TrimSpace(eventType)

	if err := asserter.NotEmpty(ctx, eventType, "event type is required"); err != nil {
		return nil, fmt.Errorf("event type: %w", err)
	}

	holderID = strings.TrimSpace(holderID)

	if err := asserter.NotEmpty(ctx, holderID, "holder id is required"); err != nil {
		return nil, fmt.Errorf("event holder id: %w", err)
	}

	if err := asserter.That(ctx, len(payload) > 0, "payload is required"); err != nil {
		return nil, fmt.Errorf("event payload: %w", err)
	}

	if err := asserter.That(ctx, len(payload) <= MaxPayloadBytes, "payload exceeds max size"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPayloadTooLarge, err)
	}

	if err := asserter.That(ctx, json.Valid(payload), "payload must be valid JSON"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPayloadNotJSON, err)
	}

	now := time.Now().UTC()

	return &OperationEvent{
		ID:        eventID,
		EventType: eventType,
		HolderID:  holderID,
		Payload:   payload,
		Status:    EventStatusPending,
		Attempts:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
