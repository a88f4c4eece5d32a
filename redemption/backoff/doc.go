// Package backoff provides exponential backoff utilities with jitter support
// for retry loops such as event dispatch polling and publisher recovery.
package backoff
