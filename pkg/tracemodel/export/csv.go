// CSV span listing rendered with go-pretty
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/andrewh/tracelens/pkg/tracemodel"
	"github.com/jedib0t/go-pretty/v6/table"
)

var csvHeader = table.Row{
	"spanID", "traceID", "operationName", "serviceName",
	"startTime", "duration", "kind", "status", "tags", "logs",
}

// WriteCSV writes one row per span of every trace, in tree order.
func WriteCSV(w io.Writer, traces []*tracemodel.TraceFacade) error {
	tw := table.NewWriter()
	tw.AppendHeader(csvHeader)
	for _, f := range traces {
		for _, s := range f.Spans() {
			tw.AppendRow(table.Row{
				s.SpanID(),
				s.TraceID(),
				s.Name(),
				s.Resource().ServiceName,
				s.StartTime(),
				s.Duration(),
				s.Kind().String(),
				statusName(s.Status().Code),
				joinTags(s.Attributes()),
				joinEvents(s.Events()),
			})
		}
	}
	if _, err := io.WriteString(w, tw.RenderCSV()+"\n"); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}
	return nil
}

func joinTags(attrs []tracemodel.Attribute) string {
	var b strings.Builder
	for _, a := range attrs {
		fmt.Fprintf(&b, "%s=%v;", a.Key, a.Value)
	}
	return b.String()
}

func joinEvents(events []tracemodel.Event) string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return strings.Join(names, ";")
}
