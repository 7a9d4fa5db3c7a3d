// OTLP JSON export: builds pdata traces from facades and marshals them with ptrace
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/andrewh/tracelens/pkg/tracemodel"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.opentelemetry.io/otel/codes"
)

// derivedKeys are tags the facade already exposes as span fields. They are
// not repeated as attributes on the wire.
var derivedKeys = map[string]bool{
	"span.kind":               true,
	"otel.library.name":       true,
	"otel.library.version":    true,
	"error":                   true,
	"otel.status_description": true,
}

// WriteOTLP writes one ExportTraceServiceRequest JSON document per trace,
// one per line.
func WriteOTLP(w io.Writer, traces []*tracemodel.TraceFacade) error {
	var marshaler ptrace.JSONMarshaler
	for _, f := range traces {
		data, err := marshaler.MarshalTraces(ToPdata(f))
		if err != nil {
			return fmt.Errorf("marshalling OTLP trace %s: %w", f.TraceID(), err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("writing OTLP: %w", err)
		}
	}
	return nil
}

type scopeKey struct {
	service string
	name    string
	version string
}

// ToPdata converts f into pdata traces with one ResourceSpans per service
// and one ScopeSpans per instrumentation scope.
func ToPdata(f *tracemodel.TraceFacade) ptrace.Traces {
	td := ptrace.NewTraces()
	resources := make(map[string]ptrace.ResourceSpans)
	scopes := make(map[scopeKey]ptrace.SpanSlice)

	for _, s := range f.Spans() {
		res := s.Resource()
		rs, ok := resources[res.ServiceName]
		if !ok {
			rs = td.ResourceSpans().AppendEmpty()
			attrs := rs.Resource().Attributes()
			attrs.PutStr("service.name", res.ServiceName)
			for _, a := range res.Attributes {
				putValue(attrs, a.Key, a.Value)
			}
			resources[res.ServiceName] = rs
		}

		scope := s.InstrumentationScope()
		key := scopeKey{service: res.ServiceName, name: scope.Name, version: scope.Version}
		spans, ok := scopes[key]
		if !ok {
			ss := rs.ScopeSpans().AppendEmpty()
			ss.Scope().SetName(scope.Name)
			ss.Scope().SetVersion(scope.Version)
			spans = ss.Spans()
			scopes[key] = spans
		}
		fillSpan(spans.AppendEmpty(), s)
	}
	return td
}

func fillSpan(span ptrace.Span, s *tracemodel.SpanFacade) {
	span.SetTraceID(pcommon.TraceID(traceID(s.TraceID())))
	span.SetSpanID(pcommon.SpanID(spanID(s.SpanID())))
	if parent, ok := s.ParentSpanID(); ok {
		span.SetParentSpanID(pcommon.SpanID(spanID(parent)))
	}
	span.SetName(s.Name())
	span.SetKind(ptrace.SpanKind(s.Kind())) //nolint:gosec // span kinds are small non-negative values
	span.SetStartTimestamp(microsToTimestamp(s.StartTime()))
	span.SetEndTimestamp(microsToTimestamp(s.EndTime()))

	for _, a := range s.Attributes() {
		if derivedKeys[a.Key] {
			continue
		}
		putValue(span.Attributes(), a.Key, a.Value)
	}

	switch status := s.Status(); status.Code {
	case codes.Error:
		span.Status().SetCode(ptrace.StatusCodeError)
		span.Status().SetMessage(statusMessage(s))
	case codes.Ok:
		span.Status().SetCode(ptrace.StatusCodeOk)
	}

	for _, e := range s.Events() {
		ev := span.Events().AppendEmpty()
		ev.SetName(e.Name)
		ev.SetTimestamp(microsToTimestamp(e.Timestamp))
		for _, a := range e.Attributes {
			if a.Key == "event" {
				continue
			}
			putValue(ev.Attributes(), a.Key, a.Value)
		}
	}
	for _, l := range s.Links() {
		link := span.Links().AppendEmpty()
		link.SetTraceID(pcommon.TraceID(traceID(l.TraceID)))
		link.SetSpanID(pcommon.SpanID(spanID(l.SpanID)))
	}
}

// statusMessage prefers the recorded status description over the generic
// facade message.
func statusMessage(s *tracemodel.SpanFacade) string {
	for _, a := range s.Attributes() {
		if a.Key == "otel.status_description" {
			return fmt.Sprint(a.Value)
		}
	}
	return s.Status().Message
}

func microsToTimestamp(us int64) pcommon.Timestamp {
	return pcommon.Timestamp(us * 1000) //nolint:gosec // trace timestamps are positive
}

func putValue(m pcommon.Map, key string, v any) {
	switch x := scalar(v).(type) {
	case string:
		m.PutStr(key, x)
	case bool:
		m.PutBool(key, x)
	case int64:
		m.PutInt(key, x)
	case float64:
		m.PutDouble(key, x)
	}
}

// scalar narrows a tag value to string, bool, int64 or float64.
func scalar(v any) any {
	switch x := v.(type) {
	case string, bool, int64, float64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	}
	return fmt.Sprint(v)
}
