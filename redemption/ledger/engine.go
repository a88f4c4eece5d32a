package ledger

import (
	"strings"

	"github.com/LerianStudio/redemption-gateway/redemption/safe"
)

// ApplyDelta validates a signed delta against an account and returns the new
// account state. The input account is never mutated; on any failure the zero
// Account is returned and the caller keeps the original.
//
// This is the sole invariant-enforcement point in the service: every balance
// mutation, regardless of which operation initiated it, funnels through this
// single check-and-apply step. Partial application is forbidden: when only
// one of the two fields would go negative, neither is changed.
func ApplyDelta(account Account, delta BalanceDelta) (Account, error) {
	if strings.TrimSpace(delta.HolderID) == "" {
		return Account{}, NewDomainError(ErrorInvalidInput, "delta.holderId", "holderId is required")
	}

	if account.HolderID != delta.HolderID {
		return Account{}, NewDomainError(ErrorInvalidInput, "delta.holderId", "delta does not belong to the provided account")
	}

	newUnexchanged, err := safe.AddInt64(account.Unexchanged, delta.Unexchanged)
	if err != nil {
		return Account{}, NewDomainError(ErrorAmountOverflow, "delta.unexchanged", "delta overflows the unexchanged balance width")
	}

	newExchanged, err := safe.AddInt64(account.Exchanged, delta.Exchanged)
	if err != nil {
		return Account{}, NewDomainError(ErrorAmountOverflow, "delta.exchanged", "delta overflows the exchanged balance width")
	}

	if newUnexchanged < 0 {
		return Account{}, NewDomainError(ErrorInsufficientBalance, "delta.unexchanged", "delta would result in negative unexchanged balance")
	}

	if newExchanged < 0 {
		return Account{}, NewDomainError(ErrorInsufficientBalance, "delta.exchanged", "delta would result in negative exchanged balance")
	}

	result := account
	result.Unexchanged = newUnexchanged
	result.Exchanged = newExchanged
	result.Version++

	return result, nil
}
