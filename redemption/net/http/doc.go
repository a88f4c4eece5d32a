// Package http is the HTTP surface of the redemption gateway: fiber
// handlers for the balance operations and system administration, the
// business-error to status-code mapping, and the request middleware chain
// (correlation IDs, access logging with sensitive-field obfuscation, span
// creation, holder identity extraction).
//
// Handlers stay thin: they parse and validate the request, resolve the
// caller identity from the request context, call the operation layer, and
// render the result. Every business failure leaves through RenderError so
// clients always see the same envelope.
package http
