package service

import "errors"

var (
	// ErrAccountRepositoryRequired indicates New was called without an account repository.
	ErrAccountRepositoryRequired = errors.New("account repository is required")
	// ErrSystemRepositoryRequired indicates New was called without a system repository.
	ErrSystemRepositoryRequired = errors.New("system repository is required")
	// ErrGatewayRequired indicates New was called without a token gateway.
	ErrGatewayRequired = errors.New("token gateway is required")
	// ErrRoleDirectoryRequired indicates New was called without a role directory.
	ErrRoleDirectoryRequired = errors.New("role directory is required")

	// ErrMetadataUnavailable indicates a metadata operation was invoked on a
	// service built without a metadata repository.
	ErrMetadataUnavailable = errors.New("metadata repository is not configured")

	// ErrVersionConflict is returned by repository implementations when a
	// write carries a version that does not directly follow the stored one.
	// The service surfaces it as an in-flight-operation conflict.
	ErrVersionConflict = errors.New("stored record version does not match")
)
