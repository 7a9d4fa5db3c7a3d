// Tests for stdouttrace decoding against real SDK exporter output
package ingest

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/andrewh/tracelens/pkg/tracemodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// exportSpans records a two-span trace through the SDK stdouttrace exporter.
func exportSpans(t *testing.T, opts ...stdouttrace.Option) []byte {
	t.Helper()

	var buf bytes.Buffer
	exporter, err := stdouttrace.New(append(opts, stdouttrace.WithWriter(&buf))...)
	require.NoError(t, err)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", "orders"))),
	)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	remote := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0xfe, 1},
		SpanID:  trace.SpanID{0xfe, 2},
	})

	tracer := tp.Tracer("orders-lib", trace.WithInstrumentationVersion("0.1.0"))
	ctx, parent := tracer.Start(context.Background(), "checkout",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.Int64("items", 3), attribute.StringSlice("labels", []string{"a", "b"})),
	)
	_, child := tracer.Start(ctx, "charge",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithLinks(trace.Link{SpanContext: remote}),
	)
	child.AddEvent("retry", trace.WithAttributes(attribute.Bool("final", true)))
	child.SetStatus(codes.Error, "declined")
	child.End()
	parent.End()

	return buf.Bytes()
}

func TestParseStdouttrace_SDKOutput(t *testing.T) {
	for name, opts := range map[string][]stdouttrace.Option{
		"compact": nil,
		"pretty":  {stdouttrace.WithPrettyPrint()},
	} {
		t.Run(name, func(t *testing.T) {
			data := exportSpans(t, opts...)
			traces, err := ParseTraces(bytes.NewReader(data), FormatAuto)
			require.NoError(t, err)
			require.Len(t, traces, 1)

			tr := traces[0]
			require.Len(t, tr.Spans, 2)
			child, parent := tr.Spans[0], tr.Spans[1]
			assert.Equal(t, "charge", child.OperationName)
			assert.Equal(t, "checkout", parent.OperationName)
			assert.Equal(t, "orders", tr.Processes[parent.ProcessID].ServiceName)
			assert.Empty(t, parent.References)

			require.Len(t, child.References, 2)
			assert.Equal(t, tracemodel.RawReference{RefType: tracemodel.RefChildOf, TraceID: tr.TraceID, SpanID: parent.SpanID}, child.References[0])
			assert.Equal(t, tracemodel.RefFollowsFrom, child.References[1].RefType)
			assert.Equal(t, "fe01"+strings.Repeat("0", 28), child.References[1].TraceID)
			assert.Equal(t, "fe02000000000000", child.References[1].SpanID)

			assert.Contains(t, parent.Tags, tracemodel.KeyValue{Key: "items", Type: "int64", Value: int64(3)})
			assert.Contains(t, parent.Tags, tracemodel.KeyValue{Key: "labels", Type: "string", Value: `["a","b"]`})
			assert.Contains(t, parent.Tags, tracemodel.KeyValue{Key: "span.kind", Type: "string", Value: "server"})
			assert.Contains(t, parent.Tags, tracemodel.KeyValue{Key: "otel.library.name", Type: "string", Value: "orders-lib"})
			assert.Contains(t, parent.Tags, tracemodel.KeyValue{Key: "otel.library.version", Type: "string", Value: "0.1.0"})

			assert.Contains(t, child.Tags, tracemodel.KeyValue{Key: "error", Type: "bool", Value: true})
			assert.Contains(t, child.Tags, tracemodel.KeyValue{Key: "otel.status_description", Type: "string", Value: "declined"})
			require.Len(t, child.Logs, 1)
			assert.Equal(t, []tracemodel.KeyValue{
				{Key: "event", Type: "string", Value: "retry"},
				{Key: "final", Type: "bool", Value: true},
			}, child.Logs[0].Fields)
			assert.GreaterOrEqual(t, child.StartTime, parent.StartTime)
		})
	}
}

func TestParseStdouttrace_BadID(t *testing.T) {
	input := `{"Name":"x","SpanContext":{"TraceID":"zz","SpanID":"0000000000000001"}}`
	_, err := ParseTraces(strings.NewReader(input), FormatStdouttrace)
	assert.ErrorContains(t, err, `span 1: invalid trace id "zz"`)
}

func TestIsZeroID(t *testing.T) {
	assert.True(t, isZeroID(""))
	assert.True(t, isZeroID("0000000000000000"))
	assert.False(t, isZeroID("0000000000000001"))
}
