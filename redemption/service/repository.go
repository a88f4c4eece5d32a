package service

import (
	"context"

	"github.com/LerianStudio/redemption-gateway/redemption/ledger"
)

// AccountRepository persists per-holder balance records.
//
// Save is an upsert: a record whose holder has never been stored is inserted
// as-is; an existing record is replaced only when the incoming Version is
// exactly one greater than the stored Version, otherwise the write fails
// with an error wrapping ErrVersionConflict. Implementations refresh
// UpdatedAt on every successful save.
type AccountRepository interface {
	Find(ctx context.Context, holderID string) (ledger.Account, bool, error)
	Save(ctx context.Context, account ledger.Account) (ledger.Account, error)
}

// SystemRepository persists the singleton system state under the same
// versioning contract as AccountRepository.
type SystemRepository interface {
	Load(ctx context.Context) (SystemState, bool, error)
	Save(ctx context.Context, state SystemState) (SystemState, error)
}

// MetadataRepository stores free-form per-holder metadata documents.
// Metadata is informational only and never participates in balance
// accounting.
type MetadataRepository interface {
	// Upsert replaces the holder's metadata document.
	Upsert(ctx context.Context, holderID string, metadata map[string]any) error
	// Find returns the holder's metadata, or nil when none was ever stored.
	Find(ctx context.Context, holderID string) (map[string]any, error)
}

// OperationLocker serializes balance operations per holder across service
// instances. Acquire blocks briefly and fails when the lock is held
// elsewhere; the returned release function must be called exactly once.
//
// Single-instance deployments run without a locker; the service's own mutex
// already serializes local operations.
type OperationLocker interface {
	Acquire(ctx context.Context, holderID string) (release func(ctx context.Context) error, err error)
}
