// Package ledger implements the dual-balance accounting core.
//
// An Account tracks two non-negative balances for one holder: the unexchanged
// portion of a deposit (synthetic claims still held in the system) and the
// exchanged portion (claims already converted into the underlying asset).
// Every mutation is expressed as a signed BalanceDelta and funnels through
// ApplyDelta, the single check-then-apply point that enforces both
// non-negativity invariants atomically: either both fields advance together
// or neither does.
package ledger
