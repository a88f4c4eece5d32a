// Package token declares the external collaborator contracts the service
// consumes: the asset-transfer gateway that moves and burns fungible tokens,
// and the role directory that answers membership questions.
//
// Both collaborators are assumed atomic per call: a transfer either fully
// succeeds or reports an error, and success is idempotent from the ledger's
// point of view. The service never retries them internally.
package token
