// Package runtime provides panic-safe goroutine helpers.
//
// Background goroutines started through SafeGo recover panics, log them with
// a stack trace, and either keep the process running or re-panic depending on
// the restart policy. Long-lived loops (event dispatch, connection monitors,
// server listeners) all start through these helpers.
package runtime
