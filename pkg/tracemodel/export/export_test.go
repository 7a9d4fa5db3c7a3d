// Tests for summary and wire-format exports, including round trips through ingestion
package export

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/andrewh/tracelens/pkg/tracemodel"
	"github.com/andrewh/tracelens/pkg/tracemodel/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func quiet() tracemodel.Options {
	return tracemodel.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func kv(key string, value any) tracemodel.KeyValue {
	return tracemodel.KeyValue{Key: key, Value: value}
}

// sampleFacade is a three-span checkout trace with an error, an event, a
// link, and a duplicated span id.
func sampleFacade(t *testing.T) *tracemodel.TraceFacade {
	t.Helper()
	raw := &tracemodel.RawTrace{
		TraceID: "0af7651916cd43dd8448eb211c80319c",
		Processes: map[string]tracemodel.RawProcess{
			"p1": {ServiceName: "frontend", Tags: []tracemodel.KeyValue{kv("host.name", "web-1")}},
			"p2": {ServiceName: "payments"},
		},
		Spans: []tracemodel.RawSpan{
			{
				TraceID: "0af7651916cd43dd8448eb211c80319c", SpanID: "b7ad6b7169203331", ProcessID: "p1",
				OperationName: "GET /checkout", StartTime: 1_000_000, Duration: 500,
				Tags: []tracemodel.KeyValue{kv("span.kind", "server"), kv("http.method", "GET"), kv("otel.library.name", "net/http")},
			},
			{
				TraceID: "0af7651916cd43dd8448eb211c80319c", SpanID: "00f067aa0ba902b7", ProcessID: "p2",
				OperationName: "charge", StartTime: 1_000_100, Duration: 200,
				Tags: []tracemodel.KeyValue{kv("error", true), kv("otel.status_description", "card declined"), kv("attempt", int64(2))},
				Logs: []tracemodel.Log{{Timestamp: 1_000_150, Fields: []tracemodel.KeyValue{kv("event", "retry"), kv("backoff", 1.5)}}},
				References: []tracemodel.RawReference{
					{RefType: tracemodel.RefChildOf, TraceID: "0af7651916cd43dd8448eb211c80319c", SpanID: "b7ad6b7169203331"},
					{RefType: tracemodel.RefFollowsFrom, TraceID: "0af7651916cd43dd8448eb211c80319c", SpanID: "feedfacefeedface"},
				},
			},
			{
				TraceID: "0af7651916cd43dd8448eb211c80319c", SpanID: "00f067aa0ba902b7", ProcessID: "p2",
				OperationName: "charge", StartTime: 1_000_300, Duration: 100,
				References: []tracemodel.RawReference{
					{RefType: tracemodel.RefChildOf, TraceID: "0af7651916cd43dd8448eb211c80319c", SpanID: "b7ad6b7169203331"},
				},
			},
		},
	}
	tr := tracemodel.Transform(raw, quiet())
	require.NotNil(t, tr)
	return tr.OtelTrace()
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFormat("xml")
	assert.ErrorContains(t, err, `unknown export format "xml"`)

	assert.Error(t, Write(io.Discard, nil, Format("xml"), Options{}))
}

func TestNewDocument(t *testing.T) {
	f := sampleFacade(t)
	called := false
	cp := tracemodel.CriticalPathFunc(func(got *tracemodel.TraceFacade) []tracemodel.CriticalPathSection {
		called = true
		assert.Same(t, f, got)
		return []tracemodel.CriticalPathSection{{SpanID: "b7ad6b7169203331", SectionStart: 1_000_000, SectionEnd: 1_000_500}}
	})
	deriver, err := tracemodel.NewGroupKeyDeriver(tracemodel.GroupKeyOptions{CacheSize: 2, Logger: quiet().Logger})
	require.NoError(t, err)

	doc := NewDocument(f, Options{CriticalPath: cp, GroupKeys: deriver})
	assert.True(t, called)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", doc.TraceID)
	assert.Equal(t, "frontend: GET /checkout", doc.TraceName)
	assert.Equal(t, Summary{
		SpanCount:      3,
		ServiceCount:   2,
		DurationMicros: 500,
		StartTime:      1_000_000,
		HasErrors:      true,
		Services: []tracemodel.ServiceSummary{
			{Name: "frontend", NumberOfSpans: 1},
			{Name: "payments", NumberOfSpans: 2},
		},
	}, doc.Summary)
	require.Len(t, doc.CriticalPath, 1)

	require.Len(t, doc.Spans, 3)
	root, charge, renamed := doc.Spans[0], doc.Spans[1], doc.Spans[2]
	assert.Equal(t, "server", root.Kind)
	assert.Equal(t, "ok", root.Status)
	assert.Equal(t, "frontend", root.GroupKey)
	assert.Empty(t, root.ParentSpanID)

	assert.Equal(t, "b7ad6b7169203331", charge.ParentSpanID)
	assert.Equal(t, "error", charge.Status)
	assert.Equal(t, "internal", charge.Kind)
	assert.Equal(t, 1, charge.Depth)
	assert.Equal(t, int64(100), charge.RelativeStartTime)
	require.Len(t, charge.Events, 1)
	assert.Equal(t, "retry", charge.Events[0].Name)
	assert.Equal(t, []LinkDocument{{TraceID: "0af7651916cd43dd8448eb211c80319c", SpanID: "feedfacefeedface"}}, charge.Links)

	assert.Equal(t, "00f067aa0ba902b7_1", renamed.SpanID)
	assert.NotEmpty(t, renamed.Warnings)
}

func TestWriteJSONAndYAML(t *testing.T) {
	f := sampleFacade(t)

	var js bytes.Buffer
	require.NoError(t, Write(&js, []*tracemodel.TraceFacade{f, f}, FormatJSON, Options{}))
	var docs []Document
	require.NoError(t, jsonAPI.Unmarshal(js.Bytes(), &docs))
	require.Len(t, docs, 2)
	assert.Equal(t, 3, docs[0].Summary.SpanCount)
	assert.NotContains(t, js.String(), "criticalPath")

	var ys bytes.Buffer
	require.NoError(t, Write(&ys, []*tracemodel.TraceFacade{f}, FormatYAML, Options{}))
	var doc Document
	require.NoError(t, yaml.Unmarshal(ys.Bytes(), &doc))
	assert.Equal(t, "frontend: GET /checkout", doc.TraceName)
	assert.Len(t, doc.Spans, 3)
	assert.Contains(t, ys.String(), "spanCount: 3")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []*tracemodel.TraceFacade{sampleFacade(t)}, FormatCSV, Options{}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "spanid,traceid,operationname,servicename,starttime,duration,kind,status,tags,logs", strings.ToLower(lines[0]))
	assert.True(t, strings.HasPrefix(lines[1], "b7ad6b7169203331,0af7651916cd43dd8448eb211c80319c,GET /checkout,frontend,1000000,500,server,ok,"))
	assert.Contains(t, lines[1], "http.method=GET;")
	assert.True(t, strings.HasSuffix(lines[2], ",retry"))
}

func TestOTLPRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []*tracemodel.TraceFacade{sampleFacade(t)}, FormatOTLP, Options{}))

	traces, err := ingest.ParseTraces(&buf, ingest.FormatAuto)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	raw := traces[0]
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", raw.TraceID)
	require.Len(t, raw.Spans, 3)

	tr := tracemodel.Transform(&raw, quiet())
	require.NotNil(t, tr)
	assert.Equal(t, "frontend: GET /checkout", tr.TraceName)
	assert.Equal(t, int64(500), tr.Duration)
	assert.Len(t, tr.RootSpans, 1)
	assert.Equal(t, []tracemodel.ServiceSummary{
		{Name: "frontend", NumberOfSpans: 1},
		{Name: "payments", NumberOfSpans: 2},
	}, tr.Services)

	charge := tr.SpanMap["00f067aa0ba902b7"]
	require.NotNil(t, charge)
	assert.Contains(t, charge.Tags, tracemodel.KeyValue{Key: "otel.status_description", Type: "string", Value: "card declined"})
	assert.Contains(t, charge.Tags, tracemodel.KeyValue{Key: "attempt", Type: "int64", Value: int64(2)})
	assert.Empty(t, charge.Warnings)
	require.Len(t, charge.Logs, 1)
	assert.Equal(t, int64(1_000_150), charge.Logs[0].Timestamp)

	server := tr.SpanMap["b7ad6b7169203331"]
	require.NotNil(t, server)
	assert.Contains(t, server.Tags, tracemodel.KeyValue{Key: "span.kind", Type: "string", Value: "server"})
	assert.Equal(t, "web-1", server.Process.Tags[0].Value)
}

func TestStdouttraceRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []*tracemodel.TraceFacade{sampleFacade(t)}, FormatStdouttrace, Options{}))
	assert.Equal(t, 3, strings.Count(strings.TrimSpace(buf.String()), "\n")+1, "one line per span")

	traces, err := ingest.ParseTraces(&buf, ingest.FormatAuto)
	require.NoError(t, err)
	require.Len(t, traces, 1)

	tr := tracemodel.Transform(&traces[0], quiet())
	require.NotNil(t, tr)
	assert.Equal(t, "frontend: GET /checkout", tr.TraceName)
	assert.Equal(t, int64(1_000_000), tr.StartTime)
	assert.True(t, tr.OtelTrace().HasErrors())

	charge := tr.SpanMap["00f067aa0ba902b7"]
	require.NotNil(t, charge)
	assert.Contains(t, charge.Tags, tracemodel.KeyValue{Key: "otel.status_description", Type: "string", Value: "card declined"})
	require.Len(t, charge.Logs, 1)
	assert.Equal(t, []tracemodel.KeyValue{
		{Key: "event", Type: "string", Value: "retry"},
		{Key: "backoff", Type: "float64", Value: 1.5},
	}, charge.Logs[0].Fields)
}

func TestIDs(t *testing.T) {
	assert.Equal(t, [8]byte{0, 0, 0, 0, 0, 0, 0xab, 0xcd}, spanID("abcd"))
	assert.Equal(t, [8]byte{0, 0, 0, 0, 0, 0, 0, 0x0f}, spanID("f"))
	assert.Equal(t, spanID("abc_1"), spanID("abc_1"))
	assert.NotEqual(t, spanID("abc_1"), spanID("abc_2"))
	assert.NotEqual(t, spanID("0123456789abcdef0"), [8]byte{}, "too long for hex is hashed")

	tid := traceID("0af7651916cd43dd8448eb211c80319c")
	assert.Equal(t, byte(0x0a), tid[0])
	assert.Equal(t, byte(0x9c), tid[15])
	assert.NotEqual(t, [16]byte{}, traceID("not-hex"))
}
