// OpenTelemetry-shaped read-only view of one canonical span
// Fields are derived once at construction; cross references are indices into the owning TraceFacade
package tracemodel

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute is an OpenTelemetry attribute derived from a tag or log field.
type Attribute struct {
	Key   string
	Value any
}

// Event is a span event derived from a log. Timestamp is in microseconds.
type Event struct {
	Timestamp  int64
	Name       string
	Attributes []Attribute
}

// Status is the span status derived from the error tag.
type Status struct {
	Code    codes.Code
	Message string
}

// Resource describes the process that emitted a span.
type Resource struct {
	ServiceName string
	Attributes  []Attribute
}

// Scope is the instrumentation library that produced a span.
type Scope struct {
	Name    string
	Version string
}

// Link points at another span. Span resolves it within the owning trace.
type Link struct {
	TraceID    string
	SpanID     string
	Attributes []Attribute

	owner  *TraceFacade
	target int
}

// Span returns the linked span facade, or nil when the target is not part of the trace.
func (l Link) Span() *SpanFacade {
	if l.owner == nil || l.target < 0 {
		return nil
	}
	return l.owner.spans[l.target]
}

var spanKinds = map[string]trace.SpanKind{
	"INTERNAL": trace.SpanKindInternal,
	"SERVER":   trace.SpanKindServer,
	"CLIENT":   trace.SpanKindClient,
	"PRODUCER": trace.SpanKindProducer,
	"CONSUMER": trace.SpanKindConsumer,
}

// SpanFacade is a read-only OpenTelemetry view of a canonical Span.
type SpanFacade struct {
	span  *Span
	owner *TraceFacade

	kind         trace.SpanKind
	parentSpanID string
	hasParent    bool
	attributes   []Attribute
	events       []Event
	links        []Link
	inboundLinks []Link
	status       Status
	resource     Resource
	scope        Scope

	// set by the owning TraceFacade once every facade exists
	parent   int
	children []int
}

func newSpanFacade(owner *TraceFacade, span *Span) *SpanFacade {
	f := &SpanFacade{
		span:   span,
		owner:  owner,
		kind:   trace.SpanKindInternal,
		parent: -1,
	}

	if v, ok := tagValue(span.Tags, "span.kind"); ok {
		if k, ok := spanKinds[strings.ToUpper(fmt.Sprint(v))]; ok {
			f.kind = k
		}
	}

	parentRef := -1
	for _, want := range []RefType{RefChildOf, RefFollowsFrom} {
		for i, ref := range span.References {
			if ref.RefType == want && ref.TraceID == span.TraceID {
				parentRef = i
				break
			}
		}
		if parentRef >= 0 {
			break
		}
	}
	if parentRef >= 0 {
		f.parentSpanID = span.References[parentRef].SpanID
		f.hasParent = true
	}

	f.attributes = toAttributes(span.Tags)

	f.events = make([]Event, len(span.Logs))
	for i, log := range span.Logs {
		name := "log"
		if v, ok := nonEmpty(log.Fields, "event"); ok {
			name = v
		}
		f.events[i] = Event{Timestamp: log.Timestamp, Name: name, Attributes: toAttributes(log.Fields)}
	}

	for i, ref := range span.References {
		if i == parentRef {
			continue
		}
		f.links = append(f.links, Link{TraceID: ref.TraceID, SpanID: ref.SpanID, owner: owner, target: -1})
	}
	for _, ref := range span.SubsidiarilyReferencedBy {
		f.inboundLinks = append(f.inboundLinks, Link{TraceID: ref.TraceID, SpanID: ref.SpanID, owner: owner, target: -1})
	}

	f.status = Status{Code: codes.Ok}
	if v, ok := tagValue(span.Tags, "error"); ok && truthy(v) {
		f.status = Status{Code: codes.Error, Message: "error"}
	}

	f.resource = Resource{ServiceName: UnknownService}
	if span.Process != nil {
		f.resource = Resource{ServiceName: span.Process.ServiceName, Attributes: toAttributes(span.Process.Tags)}
	}

	f.scope = Scope{Name: "unknown"}
	if v, ok := nonEmpty(span.Tags, "otel.library.name"); ok {
		f.scope.Name = v
	}
	if v, ok := nonEmpty(span.Tags, "otel.library.version"); ok {
		f.scope.Version = v
	}
	return f
}

func tagValue(kvs []KeyValue, key string) (any, bool) {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

func nonEmpty(kvs []KeyValue, key string) (string, bool) {
	v, ok := tagValue(kvs, key)
	if !ok || v == nil {
		return "", false
	}
	s := fmt.Sprint(v)
	return s, s != ""
}

func toAttributes(kvs []KeyValue) []Attribute {
	attrs := make([]Attribute, 0, len(kvs))
	for _, kv := range kvs {
		if kv.Value == nil {
			continue
		}
		attrs = append(attrs, Attribute{Key: kv.Key, Value: kv.Value})
	}
	return attrs
}

// truthy reports whether a tag value counts as set. Strings that parse as a
// boolean use that boolean, so "false" and "0" are not set, unlike a plain
// non-empty check; other non-empty strings are true.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		if b, err := strconv.ParseBool(x); err == nil {
			return b
		}
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0 && !math.IsNaN(float64(x))
	case int:
		return x != 0
	case int64:
		return x != 0
	case int32:
		return x != 0
	case uint64:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	}
	return true
}

// Span returns the canonical span behind the facade.
func (f *SpanFacade) Span() *Span { return f.span }

func (f *SpanFacade) TraceID() string { return f.span.TraceID }

func (f *SpanFacade) SpanID() string { return f.span.SpanID }

// ParentSpanID is the earliest same-trace CHILD_OF target, else the earliest
// same-trace FOLLOWS_FROM target. ok is false when neither exists.
func (f *SpanFacade) ParentSpanID() (id string, ok bool) {
	return f.parentSpanID, f.hasParent
}

func (f *SpanFacade) Name() string { return f.span.OperationName }

func (f *SpanFacade) Kind() trace.SpanKind { return f.kind }

// StartTime is in microseconds, as are EndTime, Duration and RelativeStartTime.
func (f *SpanFacade) StartTime() int64 { return f.span.StartTime }

func (f *SpanFacade) EndTime() int64 { return f.span.EndTime() }

func (f *SpanFacade) Duration() int64 { return f.span.Duration }

func (f *SpanFacade) RelativeStartTime() int64 { return f.span.RelativeStartTime }

func (f *SpanFacade) Depth() int { return f.span.Depth }

func (f *SpanFacade) Attributes() []Attribute { return f.attributes }

func (f *SpanFacade) Events() []Event { return f.events }

// Links are every reference except the one chosen as parent.
func (f *SpanFacade) Links() []Link { return f.links }

// InboundLinks come from spans whose non-primary references point here.
func (f *SpanFacade) InboundLinks() []Link { return f.inboundLinks }

func (f *SpanFacade) Status() Status { return f.status }

func (f *SpanFacade) Resource() Resource { return f.resource }

func (f *SpanFacade) InstrumentationScope() Scope { return f.scope }

func (f *SpanFacade) Warnings() []string { return f.span.Warnings }

// ParentSpan returns the facade of the resolved parent, or nil.
func (f *SpanFacade) ParentSpan() *SpanFacade {
	if f.parent < 0 {
		return nil
	}
	return f.owner.spans[f.parent]
}

// ChildSpans returns the facades whose resolved parent is f, in trace order.
func (f *SpanFacade) ChildSpans() []*SpanFacade {
	out := make([]*SpanFacade, len(f.children))
	for i, c := range f.children {
		out[i] = f.owner.spans[c]
	}
	return out
}

func (f *SpanFacade) HasChildren() bool { return len(f.children) > 0 }
