package token

import "context"

// Role identifies a privileged capability in the role directory.
type Role string

const (
	// RoleAdmin is self-administering: it controls membership of both
	// RoleAdmin and RoleSentinel.
	RoleAdmin Role = "ADMIN"
	// RoleSentinel grants pause control and nothing else.
	RoleSentinel Role = "SENTINEL"
)

// IsValid reports whether the role is one the directory manages.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleSentinel
}

// String returns the role name.
func (r Role) String() string {
	return string(r)
}

// Gateway moves and destroys fungible tokens on behalf of the ledger.
//
// Implementations wrap whatever settlement rail custody runs on. Every call
// is atomic: it fully succeeds or returns an error, and the ledger treats a
// reported success as final.
type Gateway interface {
	// TransferIn pulls amount of the asset from the holder into custody.
	TransferIn(ctx context.Context, assetID, from, to string, amount uint64) error
	// TransferOut releases amount of the asset from custody to the holder.
	TransferOut(ctx context.Context, assetID, to string, amount uint64) error
	// Burn permanently removes amount of the asset from existence.
	Burn(ctx context.Context, assetID string, amount uint64) error
}

// RoleDirectory is the external capability store consulted by the access
// gate. Membership transitions are owned by the directory; the service only
// gates who may request them.
type RoleDirectory interface {
	HasRole(ctx context.Context, role Role, holderID string) (bool, error)
	Grant(ctx context.Context, role Role, holderID string) error
	Revoke(ctx context.Context, role Role, holderID string) error
}
