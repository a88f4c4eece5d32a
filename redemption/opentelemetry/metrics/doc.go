// Package metrics provides a thread-safe OpenTelemetry metrics factory with
// pre-configured instruments for the exchange ledger: operation counters,
// failure counters, event delivery counters, the pause-state gauge, and
// operation duration histograms.
package metrics
