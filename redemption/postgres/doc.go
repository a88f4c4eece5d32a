// Package postgres provides the PostgreSQL persistence layer: a managed
// primary/replica connection hub with embedded schema migrations, and the
// repositories backing accounts, system state, and the operation event
// outbox.
//
// Writes go to the primary and reads are load-balanced across replicas via
// dbresolver. Every repository enforces the optimistic version contract: a
// record is only replaced when the incoming version is exactly one above the
// stored one, so concurrent writers surface as version conflicts instead of
// lost updates.
package postgres
