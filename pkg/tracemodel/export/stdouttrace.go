// SDK stdouttrace export: facades become span stubs replayed through the stdouttrace exporter
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/andrewh/tracelens/pkg/tracemodel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// WriteStdouttrace writes every span in the line-delimited JSON form of the
// SDK stdouttrace exporter.
func WriteStdouttrace(w io.Writer, traces []*tracemodel.TraceFacade) error {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return fmt.Errorf("creating stdouttrace exporter: %w", err)
	}
	ctx := context.Background()
	for _, f := range traces {
		if err := exporter.ExportSpans(ctx, ToSpanStubs(f).Snapshots()); err != nil {
			return fmt.Errorf("exporting trace %s: %w", f.TraceID(), err)
		}
	}
	if err := exporter.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down stdouttrace exporter: %w", err)
	}
	return nil
}

// ToSpanStubs converts f into SDK span stubs in tree order.
func ToSpanStubs(f *tracemodel.TraceFacade) tracetest.SpanStubs {
	resources := make(map[string]*resource.Resource)
	stubs := make(tracetest.SpanStubs, 0, len(f.Spans()))
	for _, s := range f.Spans() {
		res := s.Resource()
		r, ok := resources[res.ServiceName]
		if !ok {
			attrs := []attribute.KeyValue{attribute.String("service.name", res.ServiceName)}
			for _, a := range res.Attributes {
				attrs = append(attrs, keyValue(a.Key, a.Value))
			}
			r = resource.NewSchemaless(attrs...)
			resources[res.ServiceName] = r
		}
		stubs = append(stubs, spanStub(s, r))
	}
	return stubs
}

func spanStub(s *tracemodel.SpanFacade, r *resource.Resource) tracetest.SpanStub {
	tid := trace.TraceID(traceID(s.TraceID()))
	stub := tracetest.SpanStub{
		Name: s.Name(),
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    tid,
			SpanID:     trace.SpanID(spanID(s.SpanID())),
			TraceFlags: trace.FlagsSampled,
		}),
		SpanKind:       s.Kind(),
		StartTime:      time.UnixMicro(s.StartTime()),
		EndTime:        time.UnixMicro(s.EndTime()),
		ChildSpanCount: len(s.ChildSpans()),
		Resource:       r,
		InstrumentationScope: instrumentation.Scope{
			Name:    s.InstrumentationScope().Name,
			Version: s.InstrumentationScope().Version,
		},
	}
	if parent, ok := s.ParentSpanID(); ok {
		stub.Parent = trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    tid,
			SpanID:     trace.SpanID(spanID(parent)),
			TraceFlags: trace.FlagsSampled,
		})
	}

	for _, a := range s.Attributes() {
		if derivedKeys[a.Key] {
			continue
		}
		stub.Attributes = append(stub.Attributes, keyValue(a.Key, a.Value))
	}
	switch s.Status().Code {
	case codes.Error:
		stub.Status = sdktrace.Status{Code: codes.Error, Description: statusMessage(s)}
	case codes.Ok:
		stub.Status = sdktrace.Status{Code: codes.Ok}
	}

	for _, e := range s.Events() {
		ev := sdktrace.Event{Name: e.Name, Time: time.UnixMicro(e.Timestamp)}
		for _, a := range e.Attributes {
			if a.Key == "event" {
				continue
			}
			ev.Attributes = append(ev.Attributes, keyValue(a.Key, a.Value))
		}
		stub.Events = append(stub.Events, ev)
	}
	for _, l := range s.Links() {
		stub.Links = append(stub.Links, sdktrace.Link{
			SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
				TraceID: trace.TraceID(traceID(l.TraceID)),
				SpanID:  trace.SpanID(spanID(l.SpanID)),
			}),
		})
	}
	return stub
}

func keyValue(key string, v any) attribute.KeyValue {
	switch x := scalar(v).(type) {
	case bool:
		return attribute.Bool(key, x)
	case int64:
		return attribute.Int64(key, x)
	case float64:
		return attribute.Float64(key, x)
	case string:
		return attribute.String(key, x)
	}
	return attribute.String(key, fmt.Sprint(v))
}
