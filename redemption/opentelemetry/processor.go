package opentelemetry

import (
	"context"
	"strings"

	"github.com/LerianStudio/redemption-gateway/redemption"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// AttrBagSpanProcessor copies request-scoped attributes from context into
// every span at start.
type AttrBagSpanProcessor struct{}

func (AttrBagSpanProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if kv := redemption.AttributesFromContext(ctx); len(kv) > 0 {
		s.SetAttributes(kv...)
	}
}

func (AttrBagSpanProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

func (AttrBagSpanProcessor) Shutdown(context.Context) error { return nil }

func (AttrBagSpanProcessor) ForceFlush(context.Context) error { return nil }

// RedactingAttrBagSpanProcessor applies the context attribute bag to new
// spans with redaction rules applied, so request-scoped attributes never
// leak sensitive values into exported spans. A nil Redactor passes
// attributes through unchanged.
type RedactingAttrBagSpanProcessor struct {
	Redactor *Redactor
}

func (p RedactingAttrBagSpanProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	kv := redemption.AttributesFromContext(ctx)
	if len(kv) == 0 {
		return
	}

	s.SetAttributes(redactAttributesByKey(kv, p.Redactor)...)
}

func (p RedactingAttrBagSpanProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

func (p RedactingAttrBagSpanProcessor) Shutdown(context.Context) error { return nil }

func (p RedactingAttrBagSpanProcessor) ForceFlush(context.Context) error { return nil }

// redactAttributesByKey applies the redactor to a flat attribute list. The
// field name is the last dot-separated segment of the key; the full key acts
// as the path for path-scoped rules.
func redactAttributesByKey(attrs []attribute.KeyValue, r *Redactor) []attribute.KeyValue {
	if r == nil || len(attrs) == 0 {
		return attrs
	}

	out := make([]attribute.KeyValue, 0, len(attrs))

	for _, attr := range attrs {
		key := string(attr.Key)

		field := key
		if idx := strings.LastIndex(key, "."); idx >= 0 {
			field = key[idx+1:]
		}

		action, matched := r.actionFor(key, field)
		if !matched {
			out = append(out, attr)
			continue
		}

		switch action {
		case RedactionDrop:
		case RedactionHash:
			out = append(out, attribute.String(key, hashString(attr.Value.Emit())))
		default:
			out = append(out, attribute.String(key, r.maskValue))
		}
	}

	return out
}
