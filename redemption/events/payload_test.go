package events

import (
	"context"
	"encoding/json"
	"testing"

	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, event *OperationEvent) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &body))

	return body
}

func TestNewDepositEvent_CarriesRawAmountOnly(t *testing.T) {
	t.Parallel()

	event, err := NewDepositEvent(context.Background(), "hld-1", 100)
	require.NoError(t, err)

	assert.Equal(t, constant.EventTypeDeposit, event.EventType)
	assert.Equal(t, "hld-1", event.HolderID)

	body := decodePayload(t, event)
	assert.Equal(t, "hld-1", body["holderId"])
	assert.Equal(t, float64(100), body["amount"])
	assert.NotContains(t, body, "unexchanged")
	assert.NotContains(t, body, "exchanged")
}

func TestNewWithdrawalEvent_CarriesPostUpdateBalances(t *testing.T) {
	t.Parallel()

	event, err := NewWithdrawalEvent(context.Background(), "hld-1", 40, 60)
	require.NoError(t, err)

	assert.Equal(t, constant.EventTypeWithdrawal, event.EventType)
	assert.Equal(t, "hld-1", event.HolderID)

	body := decodePayload(t, event)
	assert.Equal(t, "hld-1", body["holderId"])
	assert.Equal(t, float64(40), body["unexchanged"])
	assert.Equal(t, float64(60), body["exchanged"])
	assert.NotContains(t, body, "amount", "withdrawals report balances, not the moved amount")
}

func TestNewClaimEvent_CarriesPostUpdateBalances(t *testing.T) {
	t.Parallel()

	event, err := NewClaimEvent(context.Background(), "hld-1", 60, 40)
	require.NoError(t, err)

	assert.Equal(t, constant.EventTypeClaim, event.EventType)

	body := decodePayload(t, event)
	assert.Equal(t, "hld-1", body["holderId"])
	assert.Equal(t, float64(60), body["unexchanged"])
	assert.Equal(t, float64(40), body["exchanged"])
	assert.NotContains(t, body, "amount", "claims report balances, not the moved amount")
}

func TestNewPauseChangedEvent(t *testing.T) {
	t.Parallel()

	event, err := NewPauseChangedEvent(context.Background(), "hld-admin", true)
	require.NoError(t, err)

	assert.Equal(t, constant.EventTypePauseChanged, event.EventType)
	assert.Equal(t, "hld-admin", event.HolderID)

	body := decodePayload(t, event)
	assert.Equal(t, "hld-admin", body["changedBy"])
	assert.Equal(t, true, body["paused"])
}

func TestNewInitializedEvent(t *testing.T) {
	t.Parallel()

	event, err := NewInitializedEvent(context.Background(), "hld-admin", "asset-syn", "asset-und")
	require.NoError(t, err)

	assert.Equal(t, constant.EventTypeInitialized, event.EventType)

	body := decodePayload(t, event)
	assert.Equal(t, "hld-admin", body["initializedBy"])
	assert.Equal(t, "asset-syn", body["syntheticAssetId"])
	assert.Equal(t, "asset-und", body["underlyingAssetId"])
}

func TestNewRoleEvents(t *testing.T) {
	t.Parallel()

	granted, err := NewRoleGrantedEvent(context.Background(), "hld-admin", token.RoleSentinel, "hld-guard")
	require.NoError(t, err)

	assert.Equal(t, constant.EventTypeRoleGranted, granted.EventType)
	assert.Equal(t, "hld-guard", granted.HolderID, "the affected holder is the aggregate, not the granter")

	grantedBody := decodePayload(t, granted)
	assert.Equal(t, "hld-admin", grantedBody["grantedBy"])
	assert.Equal(t, "SENTINEL", grantedBody["role"])
	assert.Equal(t, "hld-guard", grantedBody["holderId"])

	revoked, err := NewRoleRevokedEvent(context.Background(), "hld-admin", token.RoleSentinel, "hld-guard")
	require.NoError(t, err)

	assert.Equal(t, constant.EventTypeRoleRevoked, revoked.EventType)

	revokedBody := decodePayload(t, revoked)
	assert.Equal(t, "hld-admin", revokedBody["revokedBy"])
	assert.Equal(t, "SENTINEL", revokedBody["role"])
}

func TestPayloadConstructors_ProduceValidPendingEvents(t *testing.T) {
	t.Parallel()

	constructors := map[string]func() (*OperationEvent, error){
		"deposit": func() (*OperationEvent, error) {
			return NewDepositEvent(context.Background(), "hld-1", 1)
		},
		"withdrawal": func() (*OperationEvent, error) {
			return NewWithdrawalEvent(context.Background(), "hld-1", 0, 0)
		},
		"claim": func() (*OperationEvent, error) {
			return NewClaimEvent(context.Background(), "hld-1", 0, 1)
		},
		"pause": func() (*OperationEvent, error) {
			return NewPauseChangedEvent(context.Background(), "hld-1", false)
		},
		"initialized": func() (*OperationEvent, error) {
			return NewInitializedEvent(context.Background(), "hld-1", "a", "b")
		},
	}

	for name, build := range constructors {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			event, err := build()
			require.NoError(t, err)
			assert.Equal(t, EventStatusPending, event.Status)
			assert.True(t, json.Valid(event.Payload))
		})
	}
}
