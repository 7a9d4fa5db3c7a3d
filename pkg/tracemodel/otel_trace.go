// OpenTelemetry-shaped read-only view of a canonical trace
// Built in two phases: one SpanFacade per span, then a single wiring pass over indices
package tracemodel

import (
	"go.opentelemetry.io/otel/codes"
)

// TraceFacade owns one SpanFacade per canonical span. Obtain it with Trace.OtelTrace.
type TraceFacade struct {
	trace *Trace

	spans           []*SpanFacade
	byID            map[string]int
	roots           []int
	orphanSpanCount int
}

func newTraceFacade(t *Trace) *TraceFacade {
	f := &TraceFacade{
		trace: t,
		spans: make([]*SpanFacade, len(t.Spans)),
		byID:  make(map[string]int, len(t.Spans)),
	}
	for i, s := range t.Spans {
		f.spans[i] = newSpanFacade(f, s)
		f.byID[s.SpanID] = i
	}

	for _, s := range t.RootSpans {
		if i, ok := f.byID[s.SpanID]; ok {
			f.roots = append(f.roots, i)
		}
	}

	for i, sf := range f.spans {
		if pid, ok := sf.ParentSpanID(); ok {
			p, found := f.byID[pid]
			if !found {
				f.orphanSpanCount++
			} else if p != i {
				sf.parent = p
				f.spans[p].children = append(f.spans[p].children, i)
			}
		}
		f.resolve(sf.links)
		f.resolve(sf.inboundLinks)
	}
	return f
}

func (f *TraceFacade) resolve(links []Link) {
	for i := range links {
		if t, ok := f.byID[links[i].SpanID]; ok {
			links[i].target = t
		}
	}
}

// Trace returns the canonical trace behind the facade.
func (f *TraceFacade) Trace() *Trace { return f.trace }

func (f *TraceFacade) TraceID() string { return f.trace.TraceID }

func (f *TraceFacade) TraceName() string { return f.trace.TraceName }

// StartTime is in microseconds, as are EndTime and Duration.
func (f *TraceFacade) StartTime() int64 { return f.trace.StartTime }

func (f *TraceFacade) EndTime() int64 { return f.trace.EndTime }

func (f *TraceFacade) Duration() int64 { return f.trace.Duration }

// Spans returns every span facade in canonical trace order.
func (f *TraceFacade) Spans() []*SpanFacade { return f.spans }

// Span looks a facade up by span id.
func (f *TraceFacade) Span(spanID string) (*SpanFacade, bool) {
	i, ok := f.byID[spanID]
	if !ok {
		return nil, false
	}
	return f.spans[i], true
}

// RootSpans returns the facades of the canonical trace's root spans.
func (f *TraceFacade) RootSpans() []*SpanFacade {
	out := make([]*SpanFacade, len(f.roots))
	for i, r := range f.roots {
		out[i] = f.spans[r]
	}
	return out
}

func (f *TraceFacade) Services() []ServiceSummary { return f.trace.Services }

// OrphanSpanCount counts span facades whose resolved parent id is not in the
// trace. It can differ from Trace.OrphanSpanCount, which only looks at the
// first reference of each span.
func (f *TraceFacade) OrphanSpanCount() int { return f.orphanSpanCount }

// HasErrors reports whether any span has an error status.
func (f *TraceFacade) HasErrors() bool {
	for _, s := range f.spans {
		if s.status.Code == codes.Error {
			return true
		}
	}
	return false
}
