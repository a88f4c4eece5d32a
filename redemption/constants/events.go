package constant

// Operation event types recorded in the outbox and published to the broker.
const (
	EventTypeDeposit      = "redemption.deposit"
	EventTypeWithdrawal   = "redemption.withdrawal"
	EventTypeClaim        = "redemption.claim"
	EventTypePauseChanged = "system.pause_changed"
	EventTypeInitialized  = "system.initialized"
	EventTypeRoleGranted  = "system.role_granted"
	EventTypeRoleRevoked  = "system.role_revoked"
)
