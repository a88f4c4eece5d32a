package constant

import "errors"

var (
	// ErrUnauthorized maps to business error code 0001.
	ErrUnauthorized = errors.New("0001")
	// ErrSystemPaused maps to business error code 0002.
	ErrSystemPaused = errors.New("0002")
	// ErrInsufficientBalance maps to business error code 0003.
	ErrInsufficientBalance = errors.New("0003")
	// ErrReentrantCall maps to business error code 0004.
	ErrReentrantCall = errors.New("0004")
	// ErrAlreadyInitialized maps to business error code 0005.
	ErrAlreadyInitialized = errors.New("0005")
	// ErrNotInitialized maps to business error code 0006.
	ErrNotInitialized = errors.New("0006")
	// ErrAmountOverflow maps to business error code 0007.
	ErrAmountOverflow = errors.New("0007")
	// ErrTransferFailure maps to business error code 0008.
	ErrTransferFailure = errors.New("0008")
	// ErrAccountNotFound maps to business error code 0009.
	ErrAccountNotFound = errors.New("0009")
	// ErrOperationInFlight maps to business error code 0010.
	ErrOperationInFlight = errors.New("0010")
	// ErrMetadataInvalid maps to business error code 0011.
	ErrMetadataInvalid = errors.New("0011")
	// ErrInvalidInput maps to business error code 0012.
	ErrInvalidInput = errors.New("0012")
	// ErrMetadataKeyLengthExceeded maps to business error code 0013.
	ErrMetadataKeyLengthExceeded = errors.New("0013")
	// ErrMetadataValueLengthExceeded maps to business error code 0014.
	ErrMetadataValueLengthExceeded = errors.New("0014")
)
