// Package log defines the structured logging interface and typed logging fields.
//
// Adapters (such as the zap package) implement Logger so the service keeps
// logging calls consistent across backends, including the no-op logger used
// in tests.
package log
