package redemption

import (
	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
)

// Response represents a business error with code, title, and message.
type Response struct {
	EntityType string `json:"entityType,omitempty"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
	Err        error  `json:"err,omitempty"`
}

func (e Response) Error() string {
	return e.Message
}

// Unwrap exposes the wrapped cause so errors.Is matches the coded sentinel
// behind the envelope.
func (e Response) Unwrap() error {
	return e.Err
}

// ValidateBusinessError maps a coded sentinel error onto the business error
// response presented to API clients. Unknown errors pass through unchanged.
//
// Parameters:
//   - err: The error to be validated.
//   - entityType: The type of the entity related to the error.
//   - args: Additional arguments for formatting error messages.
//
// Returns:
//   - error: The appropriate business error with code, title, and message.
func ValidateBusinessError(err error, entityType string, args ...any) error {
	errorMap := map[error]error{
		constant.ErrUnauthorized: Response{
			EntityType: entityType,
			Code:       constant.ErrUnauthorized.Error(),
			Title:      "Unauthorized Operation",
			Message:    "The caller does not hold the role required for this operation. Please verify the identity and granted roles and try again.",
		},
		constant.ErrSystemPaused: Response{
			EntityType: entityType,
			Code:       constant.ErrSystemPaused.Error(),
			Title:      "System Paused",
			Message:    "The gateway is paused and is not accepting balance operations. Please try again once operations resume.",
		},
		constant.ErrInsufficientBalance: Response{
			EntityType: entityType,
			Code:       constant.ErrInsufficientBalance.Error(),
			Title:      "Insufficient Balance",
			Message:    "The operation could not be completed because it would drive a balance below zero. Please review the account balances and try again.",
		},
		constant.ErrReentrantCall: Response{
			EntityType: entityType,
			Code:       constant.ErrReentrantCall.Error(),
			Title:      "Reentrant Call Rejected",
			Message:    "A balance operation was already in progress when this call arrived. Nested operations are not permitted.",
		},
		constant.ErrAlreadyInitialized: Response{
			EntityType: entityType,
			Code:       constant.ErrAlreadyInitialized.Error(),
			Title:      "Already Initialized",
			Message:    "The gateway has already been initialized. Initialization can only be performed once.",
		},
		constant.ErrNotInitialized: Response{
			EntityType: entityType,
			Code:       constant.ErrNotInitialized.Error(),
			Title:      "Not Initialized",
			Message:    "The gateway has not been initialized yet. Please initialize it before performing operations.",
		},
		constant.ErrAmountOverflow: Response{
			EntityType: entityType,
			Code:       constant.ErrAmountOverflow.Error(),
			Title:      "Amount Overflow",
			Message:    "The request could not be completed because the amount is outside the representable range. Please check the values and try again.",
		},
		constant.ErrTransferFailure: Response{
			EntityType: entityType,
			Code:       constant.ErrTransferFailure.Error(),
			Title:      "Transfer Failure",
			Message:    "The asset transfer could not be completed and the operation was rolled back. No balances were changed. Please try again.",
		},
		constant.ErrAccountNotFound: Response{
			EntityType: entityType,
			Code:       constant.ErrAccountNotFound.Error(),
			Title:      "Account Not Found",
			Message:    "No account exists for the provided holder. Please verify the holder identifier and try again.",
		},
		constant.ErrOperationInFlight: Response{
			EntityType: entityType,
			Code:       constant.ErrOperationInFlight.Error(),
			Title:      "Operation In Flight",
			Message:    "Another operation for this holder is still in progress. Please retry once it completes.",
		},
		constant.ErrMetadataInvalid: Response{
			EntityType: entityType,
			Code:       constant.ErrMetadataInvalid.Error(),
			Title:      "Invalid Metadata",
			Message:    "The provided metadata could not be accepted. Please review the keys and values and try again.",
		},
		constant.ErrInvalidInput: Response{
			EntityType: entityType,
			Code:       constant.ErrInvalidInput.Error(),
			Title:      "Invalid Input",
			Message:    "One or more request fields are missing or malformed. Please correct the request and try again.",
		},
		constant.ErrMetadataKeyLengthExceeded: Response{
			EntityType: entityType,
			Code:       constant.ErrMetadataKeyLengthExceeded.Error(),
			Title:      "Metadata Key Too Long",
			Message:    "One of the metadata keys exceeds the maximum accepted length. Please shorten the key and try again.",
		},
		constant.ErrMetadataValueLengthExceeded: Response{
			EntityType: entityType,
			Code:       constant.ErrMetadataValueLengthExceeded.Error(),
			Title:      "Metadata Value Too Long",
			Message:    "One of the metadata values exceeds the maximum accepted length. Please shorten the value and try again.",
		},
	}

	if mappedError, found := errorMap[err]; found {
		return mappedError
	}

	return err
}
