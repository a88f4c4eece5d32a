package ledger

// BalanceDelta describes one atomic mutation request against a holder's
// account: a signed change to each of the two balance fields. Deltas are
// ephemeral and never persisted.
type BalanceDelta struct {
	HolderID    string `json:"holderId"`
	Unexchanged int64  `json:"unexchanged"`
	Exchanged   int64  `json:"exchanged"`
}

// DepositDelta credits the unexchanged balance by amount.
func DepositDelta(holderID string, amount int64) BalanceDelta {
	return BalanceDelta{HolderID: holderID, Unexchanged: amount}
}

// WithdrawDelta debits the unexchanged balance by amount.
func WithdrawDelta(holderID string, amount int64) BalanceDelta {
	return BalanceDelta{HolderID: holderID, Unexchanged: -amount}
}

// ClaimDelta moves amount from the unexchanged balance to the exchanged
// balance in a single atomic step. This is the only delta shape that can
// increase Exchanged, which makes the 1:1 exchange property structural.
func ClaimDelta(holderID string, amount int64) BalanceDelta {
	return BalanceDelta{HolderID: holderID, Unexchanged: -amount, Exchanged: amount}
}

// Inverse returns the compensating delta that undoes this one.
// Deltas built by the constructors hold fields in [-MaxInt64, MaxInt64],
// so the negation cannot wrap.
func (d BalanceDelta) Inverse() BalanceDelta {
	return BalanceDelta{
		HolderID:    d.HolderID,
		Unexchanged: -d.Unexchanged,
		Exchanged:   -d.Exchanged,
	}
}

// IsZero reports whether the delta changes nothing.
func (d BalanceDelta) IsZero() bool {
	return d.Unexchanged == 0 && d.Exchanged == 0
}
