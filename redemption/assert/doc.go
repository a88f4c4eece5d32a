// Package assert evaluates runtime invariants and emits telemetry when one
// fails. Assertions return errors instead of panicking, so callers decide
// whether a broken invariant aborts the request or just gets reported.
package assert
