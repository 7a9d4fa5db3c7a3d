// Trace ingestion boundary: decodes exported trace files into raw traces
// Handles Jaeger JSON, OTLP JSON, and SDK stdouttrace output with format auto-detection
package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/andrewh/tracelens/pkg/tracemodel"
	jsoniter "github.com/json-iterator/go"
)

// Format identifies the input trace format.
type Format string

const (
	FormatAuto        Format = "auto"
	FormatJaeger      Format = "jaeger"
	FormatOTLP        Format = "otlp"
	FormatStdouttrace Format = "stdouttrace"
)

// maxInputSize is the maximum input size to prevent OOM on large trace exports.
const maxInputSize = 256 * 1024 * 1024 // 256 MB

// ErrNoTraces is returned when the input decodes but holds no traces.
var ErrNoTraces = errors.New("no traces found in input")

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ParseTraces reads traces from r in the given format.
// FormatAuto inspects the first JSON document to determine the format.
func ParseTraces(r io.Reader, format Format) ([]tracemodel.RawTrace, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxInputSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(data) > maxInputSize {
		return nil, fmt.Errorf("input exceeds maximum size of %d MB", maxInputSize/(1024*1024))
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrNoTraces
	}

	if format == FormatAuto || format == "" {
		format, err = DetectFormat(data)
		if err != nil {
			return nil, err
		}
	}

	var traces []tracemodel.RawTrace
	switch format {
	case FormatJaeger:
		traces, err = parseJaeger(data)
	case FormatOTLP:
		traces, err = parseOTLP(data)
	case FormatStdouttrace:
		traces, err = parseStdouttrace(data)
	default:
		return nil, fmt.Errorf("unknown format %q, valid formats: auto, jaeger, otlp, stdouttrace", format)
	}
	if err != nil {
		return nil, err
	}
	if len(traces) == 0 {
		return nil, ErrNoTraces
	}
	return traces, nil
}

// DetectFormat examines the input to determine its format.
// It probes the first line (line-delimited input), then the whole document.
func DetectFormat(data []byte) (Format, error) {
	firstLine, _, hasMore := bytes.Cut(data, []byte{'\n'})
	if f, ok := probe(bytes.TrimSpace(firstLine)); ok {
		return f, nil
	}
	if hasMore {
		if f, ok := probe(data); ok {
			return f, nil
		}
	}
	return "", fmt.Errorf("cannot detect format: input has none of traceID/data (jaeger), resourceSpans (otlp) or SpanContext (stdouttrace)")
}

// probe classifies the first JSON value in doc by its top-level keys.
func probe(doc []byte) (Format, bool) {
	var first json.RawMessage
	if err := jsonAPI.NewDecoder(bytes.NewReader(doc)).Decode(&first); err != nil {
		return "", false
	}
	if len(first) > 0 && first[0] == '[' {
		var items []json.RawMessage
		if err := jsonAPI.Unmarshal(first, &items); err != nil || len(items) == 0 {
			return "", false
		}
		first = items[0]
	}

	var fields map[string]json.RawMessage
	if err := jsonAPI.Unmarshal(first, &fields); err != nil {
		return "", false
	}
	switch {
	case has(fields, "resourceSpans"):
		return FormatOTLP, true
	case has(fields, "SpanContext"):
		return FormatStdouttrace, true
	case has(fields, "traceID"), has(fields, "data"), has(fields, "spans"):
		return FormatJaeger, true
	}
	return "", false
}

func has(fields map[string]json.RawMessage, key string) bool {
	_, ok := fields[key]
	return ok
}

// documents splits input into JSON documents: the whole input when it is a
// single valid document, otherwise one document per non-empty line.
func documents(data []byte) ([][]byte, error) {
	if json.Valid(data) {
		return [][]byte{data}, nil
	}

	var docs [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), maxInputSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("line %d: invalid JSON", lineNum)
		}
		docs = append(docs, bytes.Clone(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return docs, nil
}

// traceSet collects spans into traces in order of first appearance.
type traceSet struct {
	traces []tracemodel.RawTrace
	index  map[string]int
}

func newTraceSet() *traceSet {
	return &traceSet{index: make(map[string]int)}
}

func (s *traceSet) trace(traceID string) *tracemodel.RawTrace {
	i, ok := s.index[traceID]
	if !ok {
		i = len(s.traces)
		s.index[traceID] = i
		s.traces = append(s.traces, tracemodel.RawTrace{
			TraceID:   traceID,
			Processes: make(map[string]tracemodel.RawProcess),
		})
	}
	return &s.traces[i]
}

// processID returns the id of proc within t, adding it under the next free
// "p<N>" id when an equal process is not registered yet.
func processID(t *tracemodel.RawTrace, proc tracemodel.RawProcess) string {
	for id, existing := range t.Processes {
		if sameProcess(existing, proc) {
			return id
		}
	}
	id := fmt.Sprintf("p%d", len(t.Processes)+1)
	t.Processes[id] = proc
	return id
}

func sameProcess(a, b tracemodel.RawProcess) bool {
	if a.ServiceName != b.ServiceName || len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i].Key != b.Tags[i].Key || fmt.Sprint(a.Tags[i].Value) != fmt.Sprint(b.Tags[i].Value) {
			return false
		}
	}
	return true
}
