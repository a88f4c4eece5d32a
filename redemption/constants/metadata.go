package constant

// Metadata keys for trace propagation in gRPC and queue messages. gRPC
// metadata keys are lowercase; the OTEL propagator writes the Pascal forms,
// so both spellings are normalized at the boundary.
const (
	// MetadataID is the metadata key that carries the request context identifier.
	MetadataID = "metadata_id"
	// MetadataTraceparent is the metadata key for W3C traceparent.
	MetadataTraceparent = "traceparent"
	// MetadataTracestate is the metadata key for W3C tracestate.
	MetadataTracestate = "tracestate"
	// HeaderTraceparentPascal is the Pascal-case form emitted by the HTTP propagator.
	HeaderTraceparentPascal = "Traceparent"
	// HeaderTracestatePascal is the Pascal-case form emitted by the HTTP propagator.
	HeaderTracestatePascal = "Tracestate"
)

// ObfuscatedValue replaces sensitive field values in logs and spans.
const ObfuscatedValue = "*****"

// LoggerDefaultSeparator joins the request identifier prefix to log messages.
const LoggerDefaultSeparator = " | "
