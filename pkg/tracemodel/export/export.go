// Trace export: serialises trace facades as summaries or as OpenTelemetry wire formats
// Summary formats are JSON, YAML and CSV; wire formats are OTLP JSON and SDK stdouttrace JSON
package export

import (
	"fmt"
	"io"

	"github.com/andrewh/tracelens/pkg/tracemodel"
)

// Format identifies an export encoding.
type Format string

const (
	FormatJSON        Format = "json"
	FormatYAML        Format = "yaml"
	FormatCSV         Format = "csv"
	FormatOTLP        Format = "otlp"
	FormatStdouttrace Format = "stdouttrace"
)

// Formats lists every supported export format.
var Formats = []Format{FormatJSON, FormatYAML, FormatCSV, FormatOTLP, FormatStdouttrace}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q, valid formats: json, yaml, csv, otlp, stdouttrace", s)
}

// Options carries the optional collaborators of summary exports.
type Options struct {
	// CriticalPath fills Document.CriticalPath when set.
	CriticalPath tracemodel.CriticalPathComputer
	// GroupKeys fills SpanDocument.GroupKey when set.
	GroupKeys *tracemodel.GroupKeyDeriver
}

// Write encodes traces to w in the given format.
func Write(w io.Writer, traces []*tracemodel.TraceFacade, format Format, opts Options) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, traces, opts)
	case FormatYAML:
		return WriteYAML(w, traces, opts)
	case FormatCSV:
		return WriteCSV(w, traces)
	case FormatOTLP:
		return WriteOTLP(w, traces)
	case FormatStdouttrace:
		return WriteStdouttrace(w, traces)
	}
	_, err := ParseFormat(string(format))
	return err
}
