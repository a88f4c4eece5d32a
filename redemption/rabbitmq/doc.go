// Package rabbitmq provides the broker layer for operation events: a managed
// AMQP connection with management-API health checks and rate-limited
// reconnects, a publisher with confirms and automatic channel recovery,
// topology declaration for the event exchange and its dead-letter pair, and
// the bridge that turns outbox events into persistent messages.
//
// Publishing is confirm-based end to end. The outbox dispatcher hands each
// event to EventPublisher, which blocks until the broker acknowledges the
// message; only then does the dispatcher mark the event published. Combined
// with the outbox scan this yields at-least-once delivery.
package rabbitmq
