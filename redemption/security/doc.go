// Package security centralizes detection of sensitive field names so HTTP
// request logging, span attributes, and error reports all redact the same
// things.
package security
