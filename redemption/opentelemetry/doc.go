// Package opentelemetry bootstraps tracing, metrics, and log export over
// OTLP/gRPC and provides span helpers shared by the HTTP, queue, and gRPC
// surfaces of the gateway.
package opentelemetry
