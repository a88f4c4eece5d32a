// Package custody implements the settlement gateway over the custody
// provider's HTTP API. Transfers and burns are posted as single atomic
// calls; the provider either fully applies the movement or rejects it,
// and the ledger treats a reported success as final.
package custody
