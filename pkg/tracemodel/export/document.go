// Summary document for a trace facade, encoded as JSON or YAML
package export

import (
	"fmt"
	"io"

	"github.com/andrewh/tracelens/pkg/tracemodel"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Document summarises one trace and lists its spans in tree order.
type Document struct {
	TraceID      string                           `json:"traceId" yaml:"traceId"`
	TraceName    string                           `json:"traceName" yaml:"traceName"`
	Summary      Summary                          `json:"summary" yaml:"summary"`
	Spans        []SpanDocument                   `json:"spans" yaml:"spans"`
	CriticalPath []tracemodel.CriticalPathSection `json:"criticalPath,omitempty" yaml:"criticalPath,omitempty"`
}

// Summary holds trace-level counts. Times are microseconds.
type Summary struct {
	SpanCount       int                         `json:"spanCount" yaml:"spanCount"`
	ServiceCount    int                         `json:"serviceCount" yaml:"serviceCount"`
	OrphanSpanCount int                         `json:"orphanSpanCount" yaml:"orphanSpanCount"`
	DurationMicros  int64                       `json:"durationMicros" yaml:"durationMicros"`
	StartTime       int64                       `json:"startTime" yaml:"startTime"`
	HasErrors       bool                        `json:"hasErrors" yaml:"hasErrors"`
	Services        []tracemodel.ServiceSummary `json:"services" yaml:"services"`
}

// SpanDocument is the exported form of one span.
type SpanDocument struct {
	SpanID            string           `json:"spanId" yaml:"spanId"`
	ParentSpanID      string           `json:"parentSpanId,omitempty" yaml:"parentSpanId,omitempty"`
	Name              string           `json:"name" yaml:"name"`
	Service           string           `json:"service" yaml:"service"`
	GroupKey          string           `json:"groupKey,omitempty" yaml:"groupKey,omitempty"`
	Kind              string           `json:"kind" yaml:"kind"`
	Status            string           `json:"status" yaml:"status"`
	StartTime         int64            `json:"startTime" yaml:"startTime"`
	RelativeStartTime int64            `json:"relativeStartTime" yaml:"relativeStartTime"`
	Duration          int64            `json:"duration" yaml:"duration"`
	Depth             int              `json:"depth" yaml:"depth"`
	Attributes        []AttributeEntry `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Events            []EventDocument  `json:"events,omitempty" yaml:"events,omitempty"`
	Links             []LinkDocument   `json:"links,omitempty" yaml:"links,omitempty"`
	Warnings          []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// AttributeEntry is a key/value pair in export order.
type AttributeEntry struct {
	Key   string `json:"key" yaml:"key"`
	Value any    `json:"value" yaml:"value"`
}

// EventDocument is an exported span event.
type EventDocument struct {
	Timestamp  int64            `json:"timestamp" yaml:"timestamp"`
	Name       string           `json:"name" yaml:"name"`
	Attributes []AttributeEntry `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// LinkDocument is an exported span link. Resolved reports whether the
// target span is part of the trace.
type LinkDocument struct {
	TraceID  string `json:"traceId" yaml:"traceId"`
	SpanID   string `json:"spanId" yaml:"spanId"`
	Resolved bool   `json:"resolved" yaml:"resolved"`
}

// NewDocument builds the summary document of f.
func NewDocument(f *tracemodel.TraceFacade, opts Options) Document {
	doc := Document{
		TraceID:   f.TraceID(),
		TraceName: f.TraceName(),
		Summary: Summary{
			SpanCount:       len(f.Spans()),
			ServiceCount:    len(f.Services()),
			OrphanSpanCount: f.Trace().OrphanSpanCount,
			DurationMicros:  f.Duration(),
			StartTime:       f.StartTime(),
			HasErrors:       f.HasErrors(),
			Services:        f.Services(),
		},
		Spans: make([]SpanDocument, 0, len(f.Spans())),
	}

	var groupKeys map[string]string
	if opts.GroupKeys != nil {
		groupKeys = opts.GroupKeys.Keys(f.Trace())
	}
	for _, s := range f.Spans() {
		doc.Spans = append(doc.Spans, spanDocument(s, groupKeys[s.SpanID()]))
	}
	if opts.CriticalPath != nil {
		doc.CriticalPath = opts.CriticalPath.CriticalPath(f)
	}
	return doc
}

func spanDocument(s *tracemodel.SpanFacade, groupKey string) SpanDocument {
	sd := SpanDocument{
		SpanID:            s.SpanID(),
		Name:              s.Name(),
		Service:           s.Resource().ServiceName,
		GroupKey:          groupKey,
		Kind:              s.Kind().String(),
		Status:            statusName(s.Status().Code),
		StartTime:         s.StartTime(),
		RelativeStartTime: s.RelativeStartTime(),
		Duration:          s.Duration(),
		Depth:             s.Depth(),
		Attributes:        entries(s.Attributes()),
		Warnings:          s.Warnings(),
	}
	if id, ok := s.ParentSpanID(); ok {
		sd.ParentSpanID = id
	}
	for _, e := range s.Events() {
		sd.Events = append(sd.Events, EventDocument{Timestamp: e.Timestamp, Name: e.Name, Attributes: entries(e.Attributes)})
	}
	for _, l := range s.Links() {
		sd.Links = append(sd.Links, LinkDocument{TraceID: l.TraceID, SpanID: l.SpanID, Resolved: l.Span() != nil})
	}
	return sd
}

func entries(attrs []tracemodel.Attribute) []AttributeEntry {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]AttributeEntry, len(attrs))
	for i, a := range attrs {
		out[i] = AttributeEntry{Key: a.Key, Value: a.Value}
	}
	return out
}

func statusName(c codes.Code) string {
	switch c {
	case codes.Error:
		return "error"
	case codes.Ok:
		return "ok"
	}
	return "unset"
}

// NewDocuments builds one document per trace.
func NewDocuments(traces []*tracemodel.TraceFacade, opts Options) []Document {
	docs := make([]Document, len(traces))
	for i, f := range traces {
		docs[i] = NewDocument(f, opts)
	}
	return docs
}

// WriteJSON writes the documents of traces as an indented JSON array.
func WriteJSON(w io.Writer, traces []*tracemodel.TraceFacade, opts Options) error {
	enc := jsonAPI.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewDocuments(traces, opts)); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// WriteYAML writes one YAML document per trace.
func WriteYAML(w io.Writer, traces []*tracemodel.TraceFacade, opts Options) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, doc := range NewDocuments(traces, opts) {
		if err := enc.Encode(&doc); err != nil {
			return fmt.Errorf("marshalling YAML: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing YAML encoder: %w", err)
	}
	return nil
}
