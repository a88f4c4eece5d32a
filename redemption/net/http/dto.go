package http

import (
	"time"

	"github.com/LerianStudio/redemption-gateway/redemption/ledger"
	"github.com/LerianStudio/redemption-gateway/redemption/safe"
)

// InitializeRequest bootstraps the gateway with its two asset identifiers.
type InitializeRequest struct {
	SyntheticAssetID  string `json:"syntheticAssetId"  validate:"required,max=256"`
	UnderlyingAssetID string `json:"underlyingAssetId" validate:"required,max=256"`
}

// PauseRequest sets the pause flag. The pointer distinguishes an explicit
// false from a missing field.
type PauseRequest struct {
	Paused *bool `json:"paused" validate:"required"`
}

// OperationRequest carries the amount for deposit, withdrawal, and claim
// requests. The pointer makes the field mandatory while still accepting an
// explicit zero, which the operation layer allows through.
type OperationRequest struct {
	Amount *uint64 `json:"amount" validate:"required"`
}

// RoleRequest grants or revokes a role membership.
type RoleRequest struct {
	Role     string `json:"role"     validate:"required,oneof=ADMIN SENTINEL"`
	HolderID string `json:"holderId" validate:"required,max=256"`
}

// AccountResponse is the balance snapshot returned by the account read and
// by every balance operation. Amounts are reported as integer base units
// and as decimal strings rendered at the configured asset scale.
type AccountResponse struct {
	HolderID          string    `json:"holderId"`
	Unexchanged       int64     `json:"unexchanged"`
	Exchanged         int64     `json:"exchanged"`
	UnexchangedAmount string    `json:"unexchangedAmount"`
	ExchangedAmount   string    `json:"exchangedAmount"`
	Version           int64     `json:"version"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// NewAccountResponse renders an account at the given decimal scale.
func NewAccountResponse(account ledger.Account, scale int32) AccountResponse {
	return AccountResponse{
		HolderID:          account.HolderID,
		Unexchanged:       account.Unexchanged,
		Exchanged:         account.Exchanged,
		UnexchangedAmount: safe.UnitsToDecimal(account.Unexchanged, scale).String(),
		ExchangedAmount:   safe.UnitsToDecimal(account.Exchanged, scale).String(),
		Version:           account.Version,
		CreatedAt:         account.CreatedAt,
		UpdatedAt:         account.UpdatedAt,
	}
}

// MetadataResponse wraps a holder's metadata document. Metadata is null for
// holders that never stored one and an object otherwise, so clients can
// tell the two apart.
type MetadataResponse struct {
	HolderID string         `json:"holderId"`
	Metadata map[string]any `json:"metadata"`
}
