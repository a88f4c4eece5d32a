package opentelemetry

import (
	"context"
	"testing"

	"github.com/LerianStudio/redemption-gateway/redemption"
	cn "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRedactAttributesByKey(t *testing.T) {
	t.Parallel()

	t.Run("nil redactor returns input unchanged", func(t *testing.T) {
		t.Parallel()

		attrs := []attribute.KeyValue{attribute.String("app.request.password", "hunter2")}
		result := redactAttributesByKey(attrs, nil)
		assert.Equal(t, attrs, result)
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, redactAttributesByKey(nil, NewDefaultRedactor()))
	})

	t.Run("field is the segment after the last dot", func(t *testing.T) {
		t.Parallel()

		attrs := []attribute.KeyValue{
			attribute.String("app.request.payload.password", "hunter2"),
			attribute.String("app.request.payload.holder_id", "hld-1"),
		}

		result := redactAttributesByKey(attrs, NewDefaultRedactor())
		require.Len(t, result, 2)
		assert.Equal(t, cn.ObfuscatedValue, result[0].Value.AsString())
		assert.Equal(t, "hld-1", result[1].Value.AsString())
	})

	t.Run("key without dots is matched as a whole", func(t *testing.T) {
		t.Parallel()

		attrs := []attribute.KeyValue{attribute.String("token", "abc")}
		result := redactAttributesByKey(attrs, NewDefaultRedactor())
		require.Len(t, result, 1)
		assert.Equal(t, cn.ObfuscatedValue, result[0].Value.AsString())
	})

	t.Run("drop removes the attribute", func(t *testing.T) {
		t.Parallel()

		r, err := NewRedactor([]RedactionRule{
			{FieldPattern: "^session_blob$", Action: RedactionDrop},
		}, "")
		require.NoError(t, err)

		attrs := []attribute.KeyValue{
			attribute.String("app.request.session_blob", "opaque"),
			attribute.String("app.request.holder_id", "hld-1"),
		}

		result := redactAttributesByKey(attrs, r)
		require.Len(t, result, 1)
		assert.Equal(t, attribute.Key("app.request.holder_id"), result[0].Key)
	})

	t.Run("hash replaces the emitted value", func(t *testing.T) {
		t.Parallel()

		r, err := NewRedactor([]RedactionRule{
			{FieldPattern: "^account_document$", Action: RedactionHash},
		}, "")
		require.NoError(t, err)

		attrs := []attribute.KeyValue{
			attribute.String("app.request.account_document", "12345678900"),
		}

		result := redactAttributesByKey(attrs, r)
		require.Len(t, result, 1)
		assert.Equal(t, hashString("12345678900"), result[0].Value.AsString())
	})

	t.Run("unmatched attributes keep their type", func(t *testing.T) {
		t.Parallel()

		attrs := []attribute.KeyValue{attribute.Int64("app.request.amount", 100)}
		result := redactAttributesByKey(attrs, NewDefaultRedactor())
		require.Len(t, result, 1)
		assert.Equal(t, int64(100), result[0].Value.AsInt64())
	})
}

func TestAttrBagSpanProcessor(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(AttrBagSpanProcessor{}),
		sdktrace.WithSyncer(exporter),
	)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx := redemption.ContextWithSpanAttributes(context.Background(),
		attribute.String("app.request.holder_id", "hld-1"),
		attribute.Int64("app.request.amount", 100),
	)

	_, span := tp.Tracer("test").Start(ctx, "deposit")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes, attribute.String("app.request.holder_id", "hld-1"))
	assert.Contains(t, spans[0].Attributes, attribute.Int64("app.request.amount", 100))
}

func TestAttrBagSpanProcessorEmptyBag(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(AttrBagSpanProcessor{}),
		sdktrace.WithSyncer(exporter),
	)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "deposit")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Empty(t, spans[0].Attributes)
}

func TestAttrBagSpanProcessorLifecycleMethods(t *testing.T) {
	t.Parallel()

	p := AttrBagSpanProcessor{}
	assert.NotPanics(t, func() { p.OnEnd(nil) })
	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.ForceFlush(context.Background()))
}

func TestRedactingAttrBagSpanProcessor(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(RedactingAttrBagSpanProcessor{Redactor: NewDefaultRedactor()}),
		sdktrace.WithSyncer(exporter),
	)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx := redemption.ContextWithSpanAttributes(context.Background(),
		attribute.String("app.request.payload.password", "hunter2"),
		attribute.String("app.request.payload.holder_id", "hld-1"),
	)

	_, span := tp.Tracer("test").Start(ctx, "deposit")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes,
		attribute.String("app.request.payload.password", cn.ObfuscatedValue))
	assert.Contains(t, spans[0].Attributes,
		attribute.String("app.request.payload.holder_id", "hld-1"))
}

func TestRedactingAttrBagSpanProcessorNilRedactor(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(RedactingAttrBagSpanProcessor{}),
		sdktrace.WithSyncer(exporter),
	)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx := redemption.ContextWithSpanAttributes(context.Background(),
		attribute.String("app.request.payload.password", "hunter2"),
	)

	_, span := tp.Tracer("test").Start(ctx, "deposit")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes,
		attribute.String("app.request.payload.password", "hunter2"))
}

func TestRedactingAttrBagSpanProcessorLifecycleMethods(t *testing.T) {
	t.Parallel()

	p := RedactingAttrBagSpanProcessor{Redactor: NewDefaultRedactor()}
	assert.NotPanics(t, func() { p.OnEnd(nil) })
	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.ForceFlush(context.Background()))
}
