// Span group key derivation from process and span tags
// Keys are memoized per trace instance in a bounded LRU
package tracemodel

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PresetOtelEF4612D groups by the experimental OpenTelemetry service
// identity attributes as of semantic conventions commit ef4612d.
const PresetOtelEF4612D = "otel-ef4612d"

var groupKeyPresets = map[string][]string{
	PresetOtelEF4612D: {"serviceName", "service.namespace", "service.instance.id"},
}

// GroupKeyOptions selects the fields a group key is built from.
// A known Preset overrides Tags; empty Tags mean ["serviceName"].
type GroupKeyOptions struct {
	Preset    string
	Tags      []string
	CacheSize int
	Logger    *slog.Logger
}

// GroupKeyDeriver derives a group key for every span of a trace.
type GroupKeyDeriver struct {
	fields []string
	cache  *lru.Cache[*Trace, map[string]string]
}

// GroupSummary counts the spans sharing a group key.
type GroupSummary struct {
	Key           string `json:"key" yaml:"key"`
	NumberOfSpans int    `json:"numberOfSpans" yaml:"numberOfSpans"`
}

// NewGroupKeyDeriver returns a deriver remembering keys for the last
// opts.CacheSize traces.
func NewGroupKeyDeriver(opts GroupKeyOptions) (*GroupKeyDeriver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fields []string
	if opts.Preset != "" {
		if preset, ok := groupKeyPresets[opts.Preset]; ok {
			fields = preset
		} else {
			logger.Warn("unknown span group key preset, falling back to tags", "preset", opts.Preset)
		}
	}
	if len(fields) == 0 {
		fields = opts.Tags
	}
	if len(fields) == 0 {
		fields = []string{"serviceName"}
	}

	cache, err := lru.New[*Trace, map[string]string](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating group key cache: %w", err)
	}
	return &GroupKeyDeriver{fields: slices.Clone(fields), cache: cache}, nil
}

// Fields returns the field names keys are built from.
func (d *GroupKeyDeriver) Fields() []string { return slices.Clone(d.fields) }

// Key derives the group key of one span. Each field is looked up as the
// service name, then in process tags, then in span tags; missing fields are
// empty. Values are joined with ':'.
func (d *GroupKeyDeriver) Key(span *Span) string {
	parts := make([]string, len(d.fields))
	for i, field := range d.fields {
		parts[i] = groupField(span, field)
	}
	return strings.Join(parts, ":")
}

func groupField(span *Span, field string) string {
	if field == "serviceName" {
		return span.ServiceName()
	}
	if span.Process != nil {
		if v, ok := tagValue(span.Process.Tags, field); ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	if v, ok := tagValue(span.Tags, field); ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// Keys returns span id to group key for every span of t. The map is shared
// between callers and must not be modified.
func (d *GroupKeyDeriver) Keys(t *Trace) map[string]string {
	if keys, ok := d.cache.Get(t); ok {
		return keys
	}
	keys := make(map[string]string, len(t.Spans))
	for _, s := range t.Spans {
		keys[s.SpanID] = d.Key(s)
	}
	d.cache.Add(t, keys)
	return keys
}

// Groups counts spans per group key in order of first appearance in t.
func (d *GroupKeyDeriver) Groups(t *Trace) []GroupSummary {
	keys := d.Keys(t)
	var groups []GroupSummary
	index := make(map[string]int)
	for _, s := range t.Spans {
		k := keys[s.SpanID]
		if i, ok := index[k]; ok {
			groups[i].NumberOfSpans++
			continue
		}
		index[k] = len(groups)
		groups = append(groups, GroupSummary{Key: k, NumberOfSpans: 1})
	}
	return groups
}
