package postgres

import "errors"

var (
	// ErrConnectionRequired reports a repository built without a connection hub.
	ErrConnectionRequired = errors.New("postgres connection is required")
	// ErrStateTransitionConflict reports an event status update that matched no
	// row, meaning another dispatcher moved the event first.
	ErrStateTransitionConflict = errors.New("operation event state transition conflict")
	// ErrLimitMustBePositive rejects non-positive batch limits.
	ErrLimitMustBePositive = errors.New("limit must be greater than zero")
	// ErrIDRequired rejects the nil UUID.
	ErrIDRequired = errors.New("id is required")
	// ErrHolderIDRequired rejects events without an aggregate holder.
	ErrHolderIDRequired = errors.New("event holder id is required")
	// ErrMaxAttemptsMustBePositive rejects non-positive attempt budgets.
	ErrMaxAttemptsMustBePositive = errors.New("maxAttempts must be greater than zero")
)
