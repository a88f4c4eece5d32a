package events

import "fmt"

// EventStatus represents a valid event lifecycle state.
type EventStatus string

const (
	StatusPending    EventStatus = EventStatusPending
	StatusProcessing EventStatus = EventStatusProcessing
	StatusPublished  EventStatus = EventStatusPublished
	StatusFailed     EventStatus = EventStatusFailed
	StatusInvalid    EventStatus = EventStatusInvalid
)

// ParseEventStatus validates and converts a raw string status.
func ParseEventStatus(raw string) (EventStatus, error) {
	status := EventStatus(raw)

	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrStatusInvalid, raw)
	}

	return status, nil
}

// IsValid reports whether the status is part of the event lifecycle.
func (status EventStatus) IsValid() bool {
	switch status {
	case StatusPending, StatusProcessing, StatusPublished, StatusFailed, StatusInvalid:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a transition from status to next is allowed.
func (status EventStatus) CanTransitionTo(next EventStatus) bool {
	switch status {
	case StatusPending:
		return next == StatusProcessing
	case StatusFailed:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessing || next == StatusPublished || next == StatusFailed || next == StatusInvalid
	case StatusPublished, StatusInvalid:
		return false
	default:
		return false
	}
}

// ValidateTransition validates a status transition using typed lifecycle rules.
func ValidateTransition(fromRaw, toRaw string) error {
	from, err := ParseEventStatus(fromRaw)
	if err != nil {
		return fmt.Errorf("from status: %w", err)
	}

	to, err := ParseEventStatus(toRaw)
	if err != nil {
		return fmt.Errorf("to status: %w", err)
	}

	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionInvalid, from, to)
	}

	return nil
}

func (status EventStatus) String() string {
	return string(status)
}
