// Jaeger JSON decoding: API envelopes, bare traces, trace arrays, and line-delimited traces
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/andrewh/tracelens/pkg/tracemodel"
)

// jaegerEnvelope is the response shape of the Jaeger query API.
type jaegerEnvelope struct {
	Data   []tracemodel.RawTrace `json:"data"`
	Errors []jaegerError         `json:"errors"`
}

type jaegerError struct {
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	TraceID string `json:"traceID"`
}

func parseJaeger(data []byte) ([]tracemodel.RawTrace, error) {
	docs, err := documents(data)
	if err != nil {
		return nil, err
	}

	var traces []tracemodel.RawTrace
	for i, doc := range docs {
		decoded, err := decodeJaegerDocument(doc)
		if err != nil {
			if len(docs) > 1 {
				return nil, fmt.Errorf("document %d: %w", i+1, err)
			}
			return nil, err
		}
		traces = append(traces, decoded...)
	}
	for i := range traces {
		normaliseJaegerTrace(&traces[i])
	}
	return traces, nil
}

func decodeJaegerDocument(doc []byte) ([]tracemodel.RawTrace, error) {
	if doc[0] == '[' {
		var traces []tracemodel.RawTrace
		if err := jsonAPI.Unmarshal(doc, &traces); err != nil {
			return nil, fmt.Errorf("parsing jaeger trace array: %w", err)
		}
		return traces, nil
	}

	var fields map[string]json.RawMessage
	if err := jsonAPI.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("parsing jaeger JSON: %w", err)
	}

	if has(fields, "data") {
		var env jaegerEnvelope
		if err := jsonAPI.Unmarshal(doc, &env); err != nil {
			return nil, fmt.Errorf("parsing jaeger envelope: %w", err)
		}
		if len(env.Data) == 0 && len(env.Errors) > 0 {
			msgs := make([]string, 0, len(env.Errors))
			for _, e := range env.Errors {
				msgs = append(msgs, fmt.Sprintf("%d %s", e.Code, e.Msg))
			}
			return nil, fmt.Errorf("jaeger query returned errors: %s", strings.Join(msgs, "; "))
		}
		return env.Data, nil
	}

	var t tracemodel.RawTrace
	if err := jsonAPI.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("parsing jaeger trace: %w", err)
	}
	return []tracemodel.RawTrace{t}, nil
}

// normaliseJaegerTrace fills in fields some exporters omit: a trace id taken
// from the first span and span trace ids inherited from the trace.
func normaliseJaegerTrace(t *tracemodel.RawTrace) {
	if t.TraceID == "" {
		for _, s := range t.Spans {
			if s.TraceID != "" {
				t.TraceID = s.TraceID
				break
			}
		}
	}
	for i := range t.Spans {
		if t.Spans[i].TraceID == "" {
			t.Spans[i].TraceID = t.TraceID
		}
	}
	if t.Processes == nil {
		t.Processes = map[string]tracemodel.RawProcess{}
	}
}
