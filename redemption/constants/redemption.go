package constant

const (
	// MetadataMaxKeyLength is the maximum length accepted for an account metadata key.
	MetadataMaxKeyLength = 100
	// MetadataMaxValueLength is the maximum length accepted for a stringified metadata value.
	MetadataMaxValueLength = 2000

	// DefaultCustodyAccountID identifies the internal custody account that holds
	// deposited synthetic assets until they are withdrawn or claimed.
	DefaultCustodyAccountID = "@custody"
)

// TelemetrySDKName identifies this service in OTEL telemetry resource attributes.
const TelemetrySDKName = "redemption-gateway/opentelemetry"

// MaxMetricLabelLength is the maximum length for metric labels to prevent cardinality explosion.
const MaxMetricLabelLength = 64
