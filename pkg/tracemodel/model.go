// Raw and canonical trace data model
// Raw types mirror the Jaeger JSON wire shape; canonical types are built by the Transformer
package tracemodel

// RefType is the relationship a span reference expresses.
type RefType string

const (
	RefChildOf     RefType = "CHILD_OF"
	RefFollowsFrom RefType = "FOLLOWS_FROM"
)

// UnknownService names the service of a span whose process is missing.
const UnknownService = "unknown-service"

// KeyValue is a tag, process tag, or log field.
type KeyValue struct {
	Key   string `json:"key" yaml:"key"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
	Value any    `json:"value" yaml:"value"`
}

// Log is a timestamped list of fields attached to a span.
type Log struct {
	Timestamp int64      `json:"timestamp" yaml:"timestamp"`
	Fields    []KeyValue `json:"fields" yaml:"fields"`
}

// RawReference points from one span to another.
type RawReference struct {
	RefType RefType `json:"refType"`
	TraceID string  `json:"traceID"`
	SpanID  string  `json:"spanID"`
}

// RawProcess describes the emitting service of a group of spans.
type RawProcess struct {
	ServiceName string     `json:"serviceName"`
	Tags        []KeyValue `json:"tags"`
}

// RawSpan is a span as delivered by a trace backend. Times are microseconds.
type RawSpan struct {
	TraceID       string         `json:"traceID"`
	SpanID        string         `json:"spanID"`
	ProcessID     string         `json:"processID"`
	OperationName string         `json:"operationName"`
	StartTime     int64          `json:"startTime"`
	Duration      int64          `json:"duration"`
	Flags         int            `json:"flags,omitempty"`
	Tags          []KeyValue     `json:"tags"`
	Logs          []Log          `json:"logs"`
	References    []RawReference `json:"references"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// RawTrace is one trace as delivered by a trace backend.
type RawTrace struct {
	TraceID   string                `json:"traceID"`
	Processes map[string]RawProcess `json:"processes"`
	Spans     []RawSpan             `json:"spans"`
	Warnings  []string              `json:"warnings,omitempty"`
}

// Reference is a span reference resolved against the canonical trace.
// Span is nil when the target is not part of the trace.
type Reference struct {
	RefType RefType
	TraceID string
	SpanID  string
	Span    *Span
}

// Span is a canonical span. It is not modified after Transform returns.
type Span struct {
	TraceID       string
	SpanID        string
	ProcessID     string
	OperationName string
	StartTime     int64
	Duration      int64
	Flags         int

	// Process is nil when the trace has no process for ProcessID.
	Process    *RawProcess
	Tags       []KeyValue
	Logs       []Log
	References []Reference
	Warnings   []string

	RelativeStartTime int64
	Depth             int
	HasChildren       bool
	ChildSpans        []*Span

	// SubsidiarilyReferencedBy holds reverse links from spans whose
	// non-primary references point at this span.
	SubsidiarilyReferencedBy []Reference
}

// ServiceName returns the process service name or UnknownService.
func (s *Span) ServiceName() string {
	if s.Process == nil {
		return UnknownService
	}
	return s.Process.ServiceName
}

// EndTime is StartTime plus Duration.
func (s *Span) EndTime() int64 {
	return s.StartTime + s.Duration
}

// ParentSpanID returns the id targeted by the span's first CHILD_OF reference.
func (s *Span) ParentSpanID() (string, bool) {
	for _, ref := range s.References {
		if ref.RefType == RefChildOf {
			return ref.SpanID, true
		}
	}
	return "", false
}

// ServiceSummary counts the spans of one service.
type ServiceSummary struct {
	Name          string `json:"name" yaml:"name"`
	NumberOfSpans int    `json:"numberOfSpans" yaml:"numberOfSpans"`
}

// Trace is a canonical trace produced by Transform.
type Trace struct {
	TraceID   string
	Processes map[string]RawProcess
	Warnings  []string

	// Spans are in tree-walk order: parents before children, siblings by start time.
	Spans     []*Span
	SpanMap   map[string]*Span
	RootSpans []*Span
	Services  []ServiceSummary

	TraceName      string
	TracePageTitle string
	TraceEmoji     string

	StartTime int64
	EndTime   int64
	Duration  int64

	// OrphanSpanCount counts spans whose first reference targets a span
	// outside the trace, whatever the reference type.
	OrphanSpanCount int

	otel *TraceFacade
}

// OtelTrace returns the OpenTelemetry-shaped view of t, building it on first
// use. Later calls return the same instance until ResetOtelTrace is called.
// It is not safe for concurrent use.
func (t *Trace) OtelTrace() *TraceFacade {
	if t.otel == nil {
		t.otel = newTraceFacade(t)
	}
	return t.otel
}

// ResetOtelTrace discards the cached facade so the next OtelTrace call rebuilds it.
func (t *Trace) ResetOtelTrace() {
	t.otel = nil
}
