// Package events provides transactional outbox primitives for operation
// notifications.
//
// It includes the operation event model with its typed payloads, repository
// contracts, a handler registry, and a polling dispatcher with retry
// controls. PostgreSQL persistence lives in the postgres package.
package events
