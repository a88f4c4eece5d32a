package service

import "time"

// SystemState is the singleton control record for the gateway.
//
// Initialized flips exactly once; both asset identifiers are set at that
// moment and are immutable afterwards. Paused gates the three balance
// operations only: reads, the pause toggle itself, and role management stay
// available while paused. Version supports optimistic writes in persistent
// stores, mirroring ledger.Account.
type SystemState struct {
	Initialized       bool      `json:"initialized"`
	Paused            bool      `json:"paused"`
	SyntheticAssetID  string    `json:"syntheticAssetId"`
	UnderlyingAssetID string    `json:"underlyingAssetId"`
	Version           int64     `json:"version"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
