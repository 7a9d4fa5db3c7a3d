// Trace transformer: raw backend trace to canonical, tree-ordered trace
// Pure function over its input; anomalies become span warnings, never errors
package tracemodel

import (
	"fmt"
	"log/slog"
	"maps"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/andrewh/tracelens/pkg/tree"
)

// Options configures a Transformer.
type Options struct {
	// TopTagPrefixes are tag key prefixes sorted ahead of all other tags.
	TopTagPrefixes []string
	// Logger receives duplicate span id reports (default slog.Default()).
	Logger *slog.Logger
}

// Transformer converts raw traces into canonical traces.
// It holds no per-trace state and may be shared between goroutines.
type Transformer struct {
	prefixes []string
	logger   *slog.Logger
}

// NewTransformer returns a Transformer using opts.
func NewTransformer(opts Options) *Transformer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{
		prefixes: slices.Clone(opts.TopTagPrefixes),
		logger:   logger,
	}
}

// Transform builds a canonical trace from raw with the given options.
func Transform(raw *RawTrace, opts Options) *Trace {
	return NewTransformer(opts).Transform(raw)
}

// TransformAll transforms independent traces, skipping the invalid ones.
func (t *Transformer) TransformAll(raws []RawTrace) []*Trace {
	traces := make([]*Trace, 0, len(raws))
	for i := range raws {
		tr := t.Transform(&raws[i])
		if tr == nil {
			t.logger.Warn("skipping trace without id", "index", i, "spans", len(raws[i].Spans))
			continue
		}
		traces = append(traces, tr)
	}
	return traces
}

// Transform builds the canonical form of raw. It returns nil when raw has no
// trace id. raw is not modified.
func (t *Transformer) Transform(raw *RawTrace) *Trace {
	if raw == nil || raw.TraceID == "" {
		return nil
	}
	traceID := strings.ToLower(raw.TraceID)

	spans := make([]RawSpan, 0, len(raw.Spans))
	for _, s := range raw.Spans {
		if s.StartTime == 0 {
			continue
		}
		spans = append(spans, s)
	}
	t.uniquifySpanIDs(traceID, spans)

	root, hierarchyWarnings := BuildHierarchy(spans)

	var start, end int64
	if len(spans) > 0 {
		start, end = math.MaxInt64, math.MinInt64
		for _, s := range spans {
			start = min(start, s.StartTime)
			end = max(end, s.StartTime+s.Duration)
		}
	}

	spanMap := make(map[string]*Span, len(spans))
	for i := range spans {
		spanMap[spans[i].SpanID] = t.newSpan(&spans[i], raw.Processes, hierarchyWarnings[spans[i].SpanID])
	}

	out := &Trace{
		TraceID:   traceID,
		Processes: maps.Clone(raw.Processes),
		Warnings:  slices.Clone(raw.Warnings),
		Spans:     make([]*Span, 0, len(spans)),
		SpanMap:   spanMap,
		StartTime: start,
		EndTime:   end,
		Duration:  end - start,
	}

	svcIndex := make(map[string]int)
	root.Walk(func(id string, node *tree.Node, depth int) bool {
		if depth == 0 {
			return true
		}
		span, ok := spanMap[id]
		if !ok {
			return true
		}
		span.RelativeStartTime = span.StartTime - start
		span.Depth = depth - 1
		span.HasChildren = len(node.Children) > 0
		for _, child := range node.Children {
			if c, ok := spanMap[child.Value]; ok {
				span.ChildSpans = append(span.ChildSpans, c)
			}
		}

		svc := span.ServiceName()
		if i, ok := svcIndex[svc]; ok {
			out.Services[i].NumberOfSpans++
		} else {
			svcIndex[svc] = len(out.Services)
			out.Services = append(out.Services, ServiceSummary{Name: svc, NumberOfSpans: 1})
		}

		for i := range span.References {
			ref := &span.References[i]
			target, ok := spanMap[ref.SpanID]
			if !ok {
				continue
			}
			ref.Span = target
			if i > 0 {
				target.SubsidiarilyReferencedBy = append(target.SubsidiarilyReferencedBy, Reference{
					RefType: ref.RefType,
					TraceID: ref.TraceID,
					SpanID:  span.SpanID,
					Span:    span,
				})
			}
		}

		out.Spans = append(out.Spans, span)
		return true
	})

	for _, child := range root.Children {
		if s, ok := spanMap[child.Value]; ok {
			out.RootSpans = append(out.RootSpans, s)
		}
	}

	for i := range spans {
		refs := spans[i].References
		if len(refs) == 0 {
			continue
		}
		if _, ok := spanMap[refs[0].SpanID]; !ok {
			out.OrphanSpanCount++
		}
	}

	out.TraceName = TraceName(out.Spans)
	out.TracePageTitle = TracePageTitle(out.Spans)
	if len(out.Spans) > 0 {
		out.TraceEmoji = TraceEmoji(out.TraceID)
	}
	return out
}

// uniquifySpanIDs renames repeated span ids in place to "<id>_<n>", where n
// counts earlier occurrences. spans must be a private copy.
func (t *Transformer) uniquifySpanIDs(traceID string, spans []RawSpan) {
	counts := make(map[string]int, len(spans))
	first := make(map[string]int, len(spans))
	for i := range spans {
		id := spans[i].SpanID
		if _, taken := first[id]; !taken {
			first[id] = i
			counts[id] = max(counts[id], 1)
			continue
		}

		n := max(counts[id], 1)
		renamed := fmt.Sprintf("%s_%d", id, n)
		for {
			if _, taken := first[renamed]; !taken {
				break
			}
			n++
			renamed = fmt.Sprintf("%s_%d", id, n)
		}
		counts[id] = n + 1

		original := spans[first[id]]
		t.logger.Warn("duplicate span id",
			"traceID", traceID,
			"spanID", id,
			"count", n+1,
			"renamed", renamed,
			"equal", reflect.DeepEqual(original, spans[i]),
		)
		spans[i].SpanID = renamed
		spans[i].Warnings = append(slices.Clip(spans[i].Warnings),
			fmt.Sprintf("duplicate span id %q, renamed to %q", id, renamed))
		first[renamed] = i
	}
}

func (t *Transformer) newSpan(raw *RawSpan, processes map[string]RawProcess, hierarchyWarnings []string) *Span {
	span := &Span{
		TraceID:       raw.TraceID,
		SpanID:        raw.SpanID,
		ProcessID:     raw.ProcessID,
		OperationName: raw.OperationName,
		StartTime:     raw.StartTime,
		Duration:      raw.Duration,
		Flags:         raw.Flags,
		Logs:          slices.Clone(raw.Logs),
		Warnings:      slices.Clone(raw.Warnings),
	}

	if p, ok := processes[raw.ProcessID]; ok {
		span.Process = &p
	} else {
		span.Warnings = append(span.Warnings, fmt.Sprintf("missing process %q", raw.ProcessID))
	}
	span.Warnings = append(span.Warnings, hierarchyWarnings...)

	tags, dupWarnings := DeduplicateTags(raw.Tags)
	span.Tags = OrderTags(tags, t.prefixes)
	span.Warnings = append(span.Warnings, dupWarnings...)

	if len(raw.References) > 0 {
		span.References = make([]Reference, len(raw.References))
		for i, r := range raw.References {
			span.References[i] = Reference{RefType: r.RefType, TraceID: r.TraceID, SpanID: r.SpanID}
		}
	}
	return span
}
