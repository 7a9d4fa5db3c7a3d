// OTLP JSON decoding via pdata, with a protojson fallback for base64-encoded ids
// Converts resource/scope/span hierarchies into Jaeger-shaped raw traces
package ingest

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/andrewh/tracelens/pkg/tracemodel"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

func parseOTLP(data []byte) ([]tracemodel.RawTrace, error) {
	docs, err := documents(data)
	if err != nil {
		return nil, err
	}

	set := newTraceSet()
	for i, doc := range docs {
		items := [][]byte{doc}
		if doc[0] == '[' {
			var raw []json.RawMessage
			if err := jsonAPI.Unmarshal(doc, &raw); err != nil {
				return nil, fmt.Errorf("parsing OTLP array: %w", err)
			}
			items = items[:0]
			for _, r := range raw {
				items = append(items, r)
			}
		}
		for _, item := range items {
			td, err := decodeOTLP(item)
			if err != nil {
				if len(docs) > 1 {
					return nil, fmt.Errorf("line %d: %w", i+1, err)
				}
				return nil, err
			}
			addPdataTraces(set, td)
		}
	}
	return set.traces, nil
}

// decodeOTLP decodes one ExportTraceServiceRequest document. Hex ids are the
// OTLP/JSON encoding; base64 ids, as written by protojson, are also accepted.
func decodeOTLP(doc []byte) (ptrace.Traces, error) {
	doc, err := clampDroppedCounts(doc)
	if err != nil {
		return ptrace.Traces{}, err
	}

	var jsonUnmarshaler ptrace.JSONUnmarshaler
	td, jsonErr := jsonUnmarshaler.UnmarshalTraces(doc)
	if jsonErr == nil {
		return td, nil
	}

	var req coltracepb.ExportTraceServiceRequest
	opts := protojson.UnmarshalOptions{DiscardUnknown: true}
	if err := opts.Unmarshal(doc, &req); err != nil {
		return ptrace.Traces{}, fmt.Errorf("parsing OTLP: %w", jsonErr)
	}
	wire, err := proto.Marshal(&req)
	if err != nil {
		return ptrace.Traces{}, fmt.Errorf("re-encoding OTLP: %w", err)
	}
	var protoUnmarshaler ptrace.ProtoUnmarshaler
	td, err = protoUnmarshaler.UnmarshalTraces(wire)
	if err != nil {
		return ptrace.Traces{}, fmt.Errorf("parsing OTLP: %w", err)
	}
	return td, nil
}

// clampDroppedCounts resets negative dropped*Count fields to zero. Some
// exporters write -1 for "unknown", which the unsigned OTLP fields reject.
func clampDroppedCounts(doc []byte) ([]byte, error) {
	if !bytes.Contains(doc, []byte("dropped")) {
		return doc, nil
	}

	dec := jsonAPI.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("parsing OTLP: %w", err)
	}
	if !clamp(tree) {
		return doc, nil
	}
	out, err := jsonAPI.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("re-encoding OTLP: %w", err)
	}
	return out, nil
}

func clamp(node any) bool {
	changed := false
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			if n, ok := child.(json.Number); ok && isDroppedCount(key) && strings.HasPrefix(string(n), "-") {
				v[key] = json.Number("0")
				changed = true
				continue
			}
			if clamp(child) {
				changed = true
			}
		}
	case []any:
		for _, child := range v {
			if clamp(child) {
				changed = true
			}
		}
	}
	return changed
}

func isDroppedCount(key string) bool {
	return strings.HasPrefix(key, "dropped") && strings.HasSuffix(key, "Count")
}

// addPdataTraces appends every span in td to the trace set.
func addPdataTraces(set *traceSet, td ptrace.Traces) {
	rss := td.ResourceSpans()
	for i := range rss.Len() {
		rs := rss.At(i)
		serviceName, resourceTags := resourceProcess(rs.Resource())

		sss := rs.ScopeSpans()
		for j := range sss.Len() {
			ss := sss.At(j)
			scope := ss.Scope()
			proc := tracemodel.RawProcess{ServiceName: serviceName, Tags: resourceTags}
			if proc.ServiceName == "" {
				proc.ServiceName = scope.Name()
			}

			spans := ss.Spans()
			for k := range spans.Len() {
				span := spans.At(k)
				traceID := traceIDString(span.TraceID())
				t := set.trace(traceID)
				raw := convertSpan(span, scope)
				raw.TraceID = traceID
				raw.ProcessID = processID(t, proc)
				t.Spans = append(t.Spans, raw)
			}
		}
	}
}

func resourceProcess(res pcommon.Resource) (string, []tracemodel.KeyValue) {
	serviceName := ""
	var tags []tracemodel.KeyValue
	res.Attributes().Range(func(k string, v pcommon.Value) bool {
		if k == "service.name" {
			serviceName = v.AsString()
			return true
		}
		tags = append(tags, keyValue(k, v))
		return true
	})
	return serviceName, tags
}

func convertSpan(span ptrace.Span, scope pcommon.InstrumentationScope) tracemodel.RawSpan {
	start := int64(span.StartTimestamp()) / 1000 //nolint:gosec // nanosecond timestamps fit in int64
	end := int64(span.EndTimestamp()) / 1000     //nolint:gosec // nanosecond timestamps fit in int64
	raw := tracemodel.RawSpan{
		SpanID:        spanIDString(span.SpanID()),
		OperationName: span.Name(),
		StartTime:     start,
		Duration:      max(end-start, 0),
	}

	traceID := traceIDString(span.TraceID())
	if parent := span.ParentSpanID(); !parent.IsEmpty() {
		raw.References = append(raw.References, tracemodel.RawReference{
			RefType: tracemodel.RefChildOf,
			TraceID: traceID,
			SpanID:  spanIDString(parent),
		})
	}
	links := span.Links()
	for i := range links.Len() {
		link := links.At(i)
		raw.References = append(raw.References, tracemodel.RawReference{
			RefType: tracemodel.RefFollowsFrom,
			TraceID: traceIDString(link.TraceID()),
			SpanID:  spanIDString(link.SpanID()),
		})
	}

	span.Attributes().Range(func(k string, v pcommon.Value) bool {
		raw.Tags = append(raw.Tags, keyValue(k, v))
		return true
	})
	if span.Kind() != ptrace.SpanKindUnspecified {
		raw.Tags = append(raw.Tags, tracemodel.KeyValue{Key: "span.kind", Type: "string", Value: strings.ToLower(span.Kind().String())})
	}
	if scope.Name() != "" {
		raw.Tags = append(raw.Tags, tracemodel.KeyValue{Key: "otel.library.name", Type: "string", Value: scope.Name()})
	}
	if scope.Version() != "" {
		raw.Tags = append(raw.Tags, tracemodel.KeyValue{Key: "otel.library.version", Type: "string", Value: scope.Version()})
	}
	if span.Status().Code() == ptrace.StatusCodeError {
		raw.Tags = append(raw.Tags, tracemodel.KeyValue{Key: "error", Type: "bool", Value: true})
		if msg := span.Status().Message(); msg != "" {
			raw.Tags = append(raw.Tags, tracemodel.KeyValue{Key: "otel.status_description", Type: "string", Value: msg})
		}
	}

	events := span.Events()
	for i := range events.Len() {
		ev := events.At(i)
		fields := []tracemodel.KeyValue{{Key: "event", Type: "string", Value: ev.Name()}}
		ev.Attributes().Range(func(k string, v pcommon.Value) bool {
			fields = append(fields, keyValue(k, v))
			return true
		})
		raw.Logs = append(raw.Logs, tracemodel.Log{
			Timestamp: int64(ev.Timestamp()) / 1000, //nolint:gosec // nanosecond timestamps fit in int64
			Fields:    fields,
		})
	}
	return raw
}

// keyValue converts an attribute into a Jaeger-typed tag. Maps and slices
// are flattened to their JSON string form.
func keyValue(key string, v pcommon.Value) tracemodel.KeyValue {
	switch v.Type() {
	case pcommon.ValueTypeBool:
		return tracemodel.KeyValue{Key: key, Type: "bool", Value: v.Bool()}
	case pcommon.ValueTypeInt:
		return tracemodel.KeyValue{Key: key, Type: "int64", Value: v.Int()}
	case pcommon.ValueTypeDouble:
		return tracemodel.KeyValue{Key: key, Type: "float64", Value: v.Double()}
	case pcommon.ValueTypeBytes:
		return tracemodel.KeyValue{Key: key, Type: "binary", Value: v.AsString()}
	default:
		return tracemodel.KeyValue{Key: key, Type: "string", Value: v.AsString()}
	}
}

func traceIDString(id pcommon.TraceID) string {
	return hex.EncodeToString(id[:])
}

func spanIDString(id pcommon.SpanID) string {
	return hex.EncodeToString(id[:])
}
