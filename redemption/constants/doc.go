// Package constant provides shared constant values used across the service.
//
// Keep this package free of runtime behavior.
// It is used by the operation layer, transport, and logging helpers to avoid
// duplicated literals.
package constant
