// Package service implements the operation layer of the redemption gateway.
//
// A Service composes the access gate (pause flag, role membership, reentrancy
// guard), the pure ledger engine, and the external token collaborators into
// the balance operations (Deposit, Withdraw, Claim) and the privileged system
// operations (Initialize, SetPause, GrantRole, RevokeRole). Every operation
// either fully commits or leaves no state change behind; external transfer
// failures trigger compensating deltas.
package service
