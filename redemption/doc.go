// Package redemption provides shared infrastructure helpers used across the
// redemption gateway.
//
// The package includes context helpers, validation utilities, error adapters,
// and cross-cutting primitives used by higher-level subpackages.
//
// Typical usage at request ingress:
//
//	ctx = redemption.ContextWithLogger(ctx, logger)
//	ctx = redemption.ContextWithTracer(ctx, tracer)
//	ctx = redemption.ContextWithHeaderID(ctx, requestID)
//	ctx = redemption.ContextWithHolderID(ctx, holderID)
//
// This package is intentionally dependency-light; specialized integrations live
// in subpackages such as opentelemetry, mongo, redis, rabbitmq, and server.
package redemption
