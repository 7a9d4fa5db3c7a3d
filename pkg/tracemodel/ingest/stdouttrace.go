// Decoding for the OpenTelemetry SDK stdouttrace exporter output
// Each span is rebuilt as pdata and shares the OTLP conversion path
package ingest

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/andrewh/tracelens/pkg/tracemodel"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
)

// stdouttraceEvent is the JSON shape emitted by the stdouttrace exporter.
type stdouttraceEvent struct {
	Name        string      `json:"Name"`
	SpanContext spanContext `json:"SpanContext"`
	Parent      spanContext `json:"Parent"`
	SpanKind    int         `json:"SpanKind"`
	StartTime   time.Time   `json:"StartTime"`
	EndTime     time.Time   `json:"EndTime"`
	Attributes  []sdkAttr   `json:"Attributes"`
	Events      []sdkEvent  `json:"Events"`
	Links       []sdkLink   `json:"Links"`
	Status      struct {
		Code        string `json:"Code"`
		Description string `json:"Description"`
	} `json:"Status"`
	Resource             []sdkAttr `json:"Resource"`
	InstrumentationScope struct {
		Name    string `json:"Name"`
		Version string `json:"Version"`
	} `json:"InstrumentationScope"`
}

type spanContext struct {
	TraceID string `json:"TraceID"`
	SpanID  string `json:"SpanID"`
}

type sdkAttr struct {
	Key   string `json:"Key"`
	Value struct {
		Type  string `json:"Type"`
		Value any    `json:"Value"`
	} `json:"Value"`
}

type sdkEvent struct {
	Name       string    `json:"Name"`
	Attributes []sdkAttr `json:"Attributes"`
	Time       time.Time `json:"Time"`
}

type sdkLink struct {
	SpanContext spanContext `json:"SpanContext"`
	Attributes  []sdkAttr   `json:"Attributes"`
}

// parseStdouttrace reads a stream of exporter objects. Compact (one per line)
// and pretty-printed output are both accepted.
func parseStdouttrace(data []byte) ([]tracemodel.RawTrace, error) {
	dec := jsonAPI.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	td := ptrace.NewTraces()
	for n := 1; ; n++ {
		var evt stdouttraceEvent
		if err := dec.Decode(&evt); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("span %d: %w", n, err)
		}
		if err := appendStdouttraceSpan(td, &evt); err != nil {
			return nil, fmt.Errorf("span %d: %w", n, err)
		}
	}

	set := newTraceSet()
	addPdataTraces(set, td)
	return set.traces, nil
}

func appendStdouttraceSpan(td ptrace.Traces, evt *stdouttraceEvent) error {
	rs := td.ResourceSpans().AppendEmpty()
	putAttrs(rs.Resource().Attributes(), evt.Resource)

	ss := rs.ScopeSpans().AppendEmpty()
	ss.Scope().SetName(evt.InstrumentationScope.Name)
	ss.Scope().SetVersion(evt.InstrumentationScope.Version)

	span := ss.Spans().AppendEmpty()
	traceID, err := parseTraceID(evt.SpanContext.TraceID)
	if err != nil {
		return err
	}
	spanID, err := parseSpanID(evt.SpanContext.SpanID)
	if err != nil {
		return err
	}
	span.SetTraceID(traceID)
	span.SetSpanID(spanID)
	if !isZeroID(evt.Parent.SpanID) {
		parentID, err := parseSpanID(evt.Parent.SpanID)
		if err != nil {
			return fmt.Errorf("parent: %w", err)
		}
		span.SetParentSpanID(parentID)
	}

	span.SetName(evt.Name)
	span.SetKind(ptrace.SpanKind(evt.SpanKind)) //nolint:gosec // SDK span kinds are small non-negative values
	span.SetStartTimestamp(pcommon.NewTimestampFromTime(evt.StartTime))
	span.SetEndTimestamp(pcommon.NewTimestampFromTime(evt.EndTime))
	putAttrs(span.Attributes(), evt.Attributes)

	switch evt.Status.Code {
	case "Error":
		span.Status().SetCode(ptrace.StatusCodeError)
		span.Status().SetMessage(evt.Status.Description)
	case "Ok":
		span.Status().SetCode(ptrace.StatusCodeOk)
	}

	for _, e := range evt.Events {
		ev := span.Events().AppendEmpty()
		ev.SetName(e.Name)
		ev.SetTimestamp(pcommon.NewTimestampFromTime(e.Time))
		putAttrs(ev.Attributes(), e.Attributes)
	}
	for _, l := range evt.Links {
		linkTrace, err := parseTraceID(l.SpanContext.TraceID)
		if err != nil {
			return fmt.Errorf("link: %w", err)
		}
		linkSpan, err := parseSpanID(l.SpanContext.SpanID)
		if err != nil {
			return fmt.Errorf("link: %w", err)
		}
		link := span.Links().AppendEmpty()
		link.SetTraceID(linkTrace)
		link.SetSpanID(linkSpan)
		putAttrs(link.Attributes(), l.Attributes)
	}
	return nil
}

func putAttrs(m pcommon.Map, attrs []sdkAttr) {
	for _, a := range attrs {
		v := a.Value.Value
		switch a.Value.Type {
		case "BOOL":
			b, _ := v.(bool)
			m.PutBool(a.Key, b)
		case "INT64":
			if n, ok := v.(json.Number); ok {
				i, _ := n.Int64()
				m.PutInt(a.Key, i)
			}
		case "FLOAT64":
			if n, ok := v.(json.Number); ok {
				f, _ := n.Float64()
				m.PutDouble(a.Key, f)
			}
		case "STRING":
			s, _ := v.(string)
			m.PutStr(a.Key, s)
		default:
			items, ok := v.([]any)
			if !ok {
				m.PutStr(a.Key, fmt.Sprint(v))
				continue
			}
			for i := range items {
				items[i] = plainNumber(items[i])
			}
			_ = m.PutEmptySlice(a.Key).FromRaw(items)
		}
	}
}

func plainNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, _ := n.Float64()
	return f
}

func parseTraceID(s string) (pcommon.TraceID, error) {
	var id pcommon.TraceID
	if err := decodeID(id[:], s); err != nil {
		return id, fmt.Errorf("invalid trace id %q: %w", s, err)
	}
	return id, nil
}

func parseSpanID(s string) (pcommon.SpanID, error) {
	var id pcommon.SpanID
	if err := decodeID(id[:], s); err != nil {
		return id, fmt.Errorf("invalid span id %q: %w", s, err)
	}
	return id, nil
}

func decodeID(dst []byte, s string) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("want %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}

// isZeroID returns true for empty or all-zero hex IDs.
func isZeroID(id string) bool {
	return strings.Trim(id, "0") == ""
}
