package rabbitmq

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/events"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
)

// DefaultEventAppID stamps published messages with the producing application.
const DefaultEventAppID = "redemption-gateway"

// MessagePublisher is the broker surface the event publisher needs.
// Satisfied by *ConfirmablePublisher.
type MessagePublisher interface {
	Publish(
		ctx context.Context,
		exchange, routingKey string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
}

// EventPublisher turns outbox operation events into persistent AMQP messages
// on the event exchange. The event type doubles as the routing key, so topic
// bindings can select deposit, withdrawal, claim, or system events without
// inspecting payloads. The caller's trace context rides in the message
// headers.
type EventPublisher struct {
	publisher MessagePublisher
	exchange  string
	appID     string
	logger    log.Logger
}

// EventPublisherOption configures an EventPublisher.
type EventPublisherOption func(*EventPublisher)

// WithPublishExchange overrides the exchange events are published to.
func WithPublishExchange(name string) EventPublisherOption {
	return func(ep *EventPublisher) {
		if name != "" {
			ep.exchange = name
		}
	}
}

// WithAppID overrides the AMQP app-id property stamped on messages.
func WithAppID(appID string) EventPublisherOption {
	return func(ep *EventPublisher) {
		if appID != "" {
			ep.appID = appID
		}
	}
}

// WithEventLogger sets a structured logger for the event publisher.
func WithEventLogger(logger log.Logger) EventPublisherOption {
	return func(ep *EventPublisher) {
		if isNilInterface(logger) {
			return
		}

		ep.logger = logger
	}
}

// NewEventPublisher creates an event publisher over the given broker
// publisher, defaulting to the standard event exchange.
func NewEventPublisher(publisher MessagePublisher, opts ...EventPublisherOption) (*EventPublisher, error) {
	if isNilInterface(publisher) {
		return nil, ErrPublisherRequired
	}

	ep := &EventPublisher{
		publisher: publisher,
		exchange:  DefaultEventExchange,
		appID:     DefaultEventAppID,
		logger:    log.NewNop(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ep)
		}
	}

	return ep, nil
}

// PublishEvent publishes one operation event and waits for broker
// confirmation. It satisfies events.EventHandler, so the outbox dispatcher
// drives it directly; returned errors keep their broker error chain for
// retry classification.
func (ep *EventPublisher) PublishEvent(ctx context.Context, event *events.OperationEvent) error {
	if ep == nil || isNilInterface(ep.publisher) {
		return ErrPublisherRequired
	}

	if event == nil {
		return events.ErrEventRequired
	}

	routingKey := strings.TrimSpace(event.EventType)
	if routingKey == "" {
		return events.ErrEventTypeRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	base := map[string]any{
		"event_type": event.EventType,
	}
	if event.HolderID != "" {
		base["holder_id"] = event.HolderID
	}

	headers := opentelemetry.PrepareQueueHeaders(ctx, base)

	timestamp := event.CreatedAt
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Type:         event.EventType,
		Timestamp:    timestamp,
		AppId:        ep.appID,
		Headers:      amqp.Table(headers),
		Body:         event.Payload,
	}

	if err := ep.publisher.Publish(ctx, ep.exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish operation event: %w", err)
	}

	ep.loggerOrNop().Log(ctx, log.LevelDebug, "operation event published",
		log.String("event_id", event.ID.String()),
		log.String("event_type", event.EventType),
	)

	return nil
}

// Handler returns the publish function as an events.EventHandler.
func (ep *EventPublisher) Handler() events.EventHandler {
	return ep.PublishEvent
}

// RegisterEventTypes registers the publisher for the given event types.
func (ep *EventPublisher) RegisterEventTypes(registry *events.HandlerRegistry, eventTypes ...string) error {
	if ep == nil {
		return ErrPublisherRequired
	}

	if registry == nil {
		return events.ErrRegistryRequired
	}

	for _, eventType := range eventTypes {
		if err := registry.Register(eventType, ep.PublishEvent); err != nil {
			return fmt.Errorf("register handler for %s: %w", eventType, err)
		}
	}

	return nil
}

// RegisterAllEventTypes registers the publisher for every operation event
// type the gateway emits.
func (ep *EventPublisher) RegisterAllEventTypes(registry *events.HandlerRegistry) error {
	return ep.RegisterEventTypes(registry,
		constant.EventTypeDeposit,
		constant.EventTypeWithdrawal,
		constant.EventTypeClaim,
		constant.EventTypePauseChanged,
		constant.EventTypeInitialized,
		constant.EventTypeRoleGranted,
		constant.EventTypeRoleRevoked,
	)
}

func (ep *EventPublisher) loggerOrNop() log.Logger {
	if ep == nil || isNilInterface(ep.logger) {
		return log.NewNop()
	}

	return ep.logger
}
