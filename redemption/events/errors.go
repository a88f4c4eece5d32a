package events

import "errors"

var (
	ErrEventRequired            = errors.New("operation event is required")
	ErrRepositoryRequired       = errors.New("event repository is required")
	ErrDispatcherRequired       = errors.New("event dispatcher is required")
	ErrDispatcherRunning        = errors.New("event dispatcher is already running")
	ErrPayloadRequired          = errors.New("event payload is required")
	ErrPayloadTooLarge          = errors.New("event payload exceeds maximum allowed size")
	ErrPayloadNotJSON           = errors.New("event payload must be valid JSON (stored as JSONB)")
	ErrRegistryRequired         = errors.New("handler registry is required")
	ErrEventTypeRequired        = errors.New("event type is required")
	ErrHandlerRequired          = errors.New("event handler is required")
	ErrHandlerAlreadyRegistered = errors.New("event handler already registered")
	ErrHandlerNotRegistered     = errors.New("event handler is not registered")
	ErrStatusInvalid            = errors.New("invalid event status")
	ErrTransitionInvalid        = errors.New("invalid event status transition")
)
