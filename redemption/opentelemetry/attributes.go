package opentelemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Limits for attributes produced from arbitrary payloads. Request bodies are
// caller-controlled, so both depth and count are bounded before anything is
// attached to a span.
const (
	maxSpanAttributeStringLength = 2048
	maxAttributeDepth            = 8
	maxAttributeCount            = 128
)

// BuildAttributesFromValue converts an arbitrary value into flattened span
// attributes with dotted keys under the given prefix. The value is
// round-tripped through JSON first, then redacted, then flattened, so struct
// tags decide key names and sensitive fields never reach the span. A nil
// redactor skips redaction.
func BuildAttributesFromValue(prefix string, value any, r *Redactor) ([]attribute.KeyValue, error) {
	if value == nil {
		return nil, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}

	if r != nil {
		data = obfuscateStructFields(data, "", r)
	}

	var attrs []attribute.KeyValue

	flattenAttributes(&attrs, prefix, data, 0)

	return attrs, nil
}

// SetSpanAttributesFromValue flattens a value and attaches the resulting
// attributes to the span. A nil span is a no-op.
func SetSpanAttributesFromValue(span trace.Span, prefix string, value any, r *Redactor) error {
	if span == nil {
		return nil
	}

	attrs, err := BuildAttributesFromValue(prefix, value, r)
	if err != nil {
		return err
	}

	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}

	return nil
}

// flattenAttributes walks decoded JSON data depth-first, appending one
// attribute per leaf. Maps extend the key with ".field", arrays with the
// element index. Values past the depth or count limits are dropped.
func flattenAttributes(attrs *[]attribute.KeyValue, key string, value any, depth int) {
	if depth > maxAttributeDepth || len(*attrs) >= maxAttributeCount {
		return
	}

	switch v := value.(type) {
	case nil:

	case map[string]any:
		for field, item := range v {
			flattenAttributes(attrs, key+"."+field, item, depth+1)
		}

	case []any:
		for i, item := range v {
			flattenAttributes(attrs, key+"."+strconv.Itoa(i), item, depth+1)
		}

	case string:
		*attrs = append(*attrs, attribute.String(key, truncateAttributeString(sanitizeUTF8String(v))))

	case bool:
		*attrs = append(*attrs, attribute.Bool(key, v))

	case float64:
		*attrs = append(*attrs, attribute.Float64(key, v))

	case json.Number:
		*attrs = append(*attrs, attribute.String(key, v.String()))

	default:
		*attrs = append(*attrs, attribute.String(key, truncateAttributeString(fmt.Sprintf("%v", v))))
	}
}

func truncateAttributeString(s string) string {
	if len(s) > maxSpanAttributeStringLength {
		return s[:maxSpanAttributeStringLength]
	}

	return s
}
