package events

import (
	"context"
	"encoding/json"
	"fmt"

	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/token"
)

// Payload shapes are part of the published contract and are deliberately
// asymmetric: a deposit reports the raw requested amount, while withdrawals
// and claims report the post-update balances instead. Consumers that need
// the moved amount for those two derive it from consecutive balance
// snapshots.

// DepositPayload is the body of a redemption.deposit event.
type DepositPayload struct {
	HolderID string `json:"holderId"`
	Amount   uint64 `json:"amount"`
}

// WithdrawalPayload is the body of a redemption.withdrawal event. Balances
// are the values after the withdrawal was applied.
type WithdrawalPayload struct {
	HolderID    string `json:"holderId"`
	Unexchanged int64  `json:"unexchanged"`
	Exchanged   int64  `json:"exchanged"`
}

// ClaimPayload is the body of a redemption.claim event. Balances are the
// values after the claim was applied.
type ClaimPayload struct {
	HolderID    string `json:"holderId"`
	Unexchanged int64  `json:"unexchanged"`
	Exchanged   int64  `json:"exchanged"`
}

// PauseChangedPayload is the body of a system.pause_changed event.
type PauseChangedPayload struct {
	ChangedBy string `json:"changedBy"`
	Paused    bool   `json:"paused"`
}

// InitializedPayload is the body of a system.initialized event.
type InitializedPayload struct {
	InitializedBy     string `json:"initializedBy"`
	SyntheticAssetID  string `json:"syntheticAssetId"`
	UnderlyingAssetID string `json:"underlyingAssetId"`
}

// RoleGrantedPayload is the body of a system.role_granted event.
type RoleGrantedPayload struct {
	GrantedBy string `json:"grantedBy"`
	Role      string `json:"role"`
	HolderID  string `json:"holderId"`
}

// RoleRevokedPayload is the body of a system.role_revoked event.
type RoleRevokedPayload struct {
	RevokedBy string `json:"revokedBy"`
	Role      string `json:"role"`
	HolderID  string `json:"holderId"`
}

// NewDepositEvent records a completed deposit carrying the raw requested
// amount.
func NewDepositEvent(ctx context.Context, holderID string, amount uint64) (*OperationEvent, error) {
	return marshalEvent(ctx, constant.EventTypeDeposit, holderID, DepositPayload{
		HolderID: holderID,
		Amount:   amount,
	})
}

// NewWithdrawalEvent records a completed withdrawal carrying the post-update
// balances.
func NewWithdrawalEvent(ctx context.Context, holderID string, unexchanged, exchanged int64) (*OperationEvent, error) {
	return marshalEvent(ctx, constant.EventTypeWithdrawal, holderID, WithdrawalPayload{
		HolderID:    holderID,
		Unexchanged: unexchanged,
		Exchanged:   exchanged,
	})
}

// NewClaimEvent records a completed claim carrying the post-update balances.
func NewClaimEvent(ctx context.Context, holderID string, unexchanged, exchanged int64) (*OperationEvent, error) {
	return marshalEvent(ctx, constant.EventTypeClaim, holderID, ClaimPayload{
		HolderID:    holderID,
		Unexchanged: unexchanged,
		Exchanged:   exchanged,
	})
}

// NewPauseChangedEvent records a pause toggle by changedBy.
func NewPauseChangedEvent(ctx context.Context, changedBy string, paused bool) (*OperationEvent, error) {
	return marshalEvent(ctx, constant.EventTypePauseChanged, changedBy, PauseChangedPayload{
		ChangedBy: changedBy,
		Paused:    paused,
	})
}

// NewInitializedEvent records the one-time system initialization.
func NewInitializedEvent(ctx context.Context, initializedBy, syntheticAssetID, underlyingAssetID string) (*OperationEvent, error) {
	return marshalEvent(ctx, constant.EventTypeInitialized, initializedBy, InitializedPayload{
		InitializedBy:     initializedBy,
		SyntheticAssetID:  syntheticAssetID,
		UnderlyingAssetID: underlyingAssetID,
	})
}

// NewRoleGrantedEvent records a role grant performed by grantedBy.
func NewRoleGrantedEvent(ctx context.Context, grantedBy string, role token.Role, holderID string) (*OperationEvent, error) {
	return marshalEvent(ctx, constant.EventTypeRoleGranted, holderID, RoleGrantedPayload{
		GrantedBy: grantedBy,
		Role:      role.String(),
		HolderID:  holderID,
	})
}

// NewRoleRevokedEvent records a role revocation performed by revokedBy.
func NewRoleRevokedEvent(ctx context.Context, revokedBy string, role token.Role, holderID string) (*OperationEvent, error) {
	return marshalEvent(ctx, constant.EventTypeRoleRevoked, holderID, RoleRevokedPayload{
		RevokedBy: revokedBy,
		Role:      role.String(),
		HolderID:  holderID,
	})
}

func marshalEvent(ctx context.Context, eventType, holderID string, payload any) (*OperationEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return NewOperationEvent(ctx, eventType, holderID, body)
}
