// Inspect and tree commands: per-trace summaries and indented span hierarchies
package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/andrewh/tracelens/pkg/tracemodel"
	"github.com/jedib0t/go-pretty/v6/table"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// traceSummary is one row of inspect output.
type traceSummary struct {
	TraceID           string                      `json:"traceId" yaml:"traceId"`
	Name              string                      `json:"name" yaml:"name"`
	Emoji             string                      `json:"emoji" yaml:"emoji"`
	Spans             int                         `json:"spans" yaml:"spans"`
	Services          []tracemodel.ServiceSummary `json:"services" yaml:"services"`
	Groups            []tracemodel.GroupSummary   `json:"groups" yaml:"groups"`
	DurationMicros    int64                       `json:"durationMicros" yaml:"durationMicros"`
	OrphanSpans       int                         `json:"orphanSpans" yaml:"orphanSpans"`
	ParentlessSpans   int                         `json:"parentlessSpans" yaml:"parentlessSpans"`
	HasErrors         bool                        `json:"hasErrors" yaml:"hasErrors"`
	SpansWithWarnings int                         `json:"spansWithWarnings" yaml:"spansWithWarnings"`
}

func inspectCmd(a *app) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Summarise the traces in a file",
		Long: "Reads traces (Jaeger, OTLP, or stdouttrace JSON) from a file or stdin and prints one\n" +
			"summary per trace: name, span and service counts, duration, orphans, errors and warnings.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "table" && output != "json" && output != "yaml" {
				return fmt.Errorf("unknown output %q, valid outputs: table, json, yaml", output)
			}
			traces, err := a.loadTraces(cmd, args, format)
			if err != nil {
				return err
			}
			deriver, err := a.groupKeys()
			if err != nil {
				return err
			}

			summaries := make([]traceSummary, len(traces))
			for i, tr := range traces {
				summaries[i] = summarise(tr, deriver)
			}
			return writeSummaries(cmd.OutOrStdout(), summaries, output)
		},
	}

	cmd.Flags().StringVar(&format, "format", "auto", inputFormatUsage)
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output: table, json, or yaml")

	return cmd
}

func summarise(tr *tracemodel.Trace, deriver *tracemodel.GroupKeyDeriver) traceSummary {
	facade := tr.OtelTrace()
	warned := 0
	for _, s := range tr.Spans {
		if len(s.Warnings) > 0 {
			warned++
		}
	}
	return traceSummary{
		TraceID:           tr.TraceID,
		Name:              tr.TraceName,
		Emoji:             tr.TraceEmoji,
		Spans:             len(tr.Spans),
		Services:          tr.Services,
		Groups:            deriver.Groups(tr),
		DurationMicros:    tr.Duration,
		OrphanSpans:       tr.OrphanSpanCount,
		ParentlessSpans:   facade.OrphanSpanCount(),
		HasErrors:         facade.HasErrors(),
		SpansWithWarnings: warned,
	}
}

func writeSummaries(w io.Writer, summaries []traceSummary, output string) error {
	switch output {
	case "json":
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(summaries); err != nil {
			return fmt.Errorf("marshalling YAML: %w", err)
		}
		return enc.Close()
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Trace", "Name", "Spans", "Services", "Duration", "Orphans", "Errors", "Warnings"})
	for _, s := range summaries {
		tw.AppendRow(table.Row{
			s.TraceID,
			strings.TrimSpace(s.Emoji + " " + s.Name),
			s.Spans,
			len(s.Services),
			micros(s.DurationMicros),
			s.OrphanSpans,
			s.HasErrors,
			s.SpansWithWarnings,
		})
	}
	tw.Render()
	return nil
}

func micros(us int64) string {
	return (time.Duration(us) * time.Microsecond).String()
}

func treeCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "tree [file]",
		Short: "Print the span hierarchy of each trace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			traces, err := a.loadTraces(cmd, args, format)
			if err != nil {
				return err
			}
			deriver, err := a.groupKeys()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, tr := range traces {
				if i > 0 {
					_, _ = fmt.Fprintln(out)
				}
				writeTree(out, tr, deriver)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "auto", inputFormatUsage)

	return cmd
}

func writeTree(w io.Writer, tr *tracemodel.Trace, deriver *tracemodel.GroupKeyDeriver) {
	title := tr.TraceName
	if title == "" {
		title = "(no root span)"
	}
	_, _ = fmt.Fprintf(w, "%s [%s] %d spans, %s\n", strings.TrimSpace(tr.TraceEmoji+" "+title), tr.TraceID, len(tr.Spans), micros(tr.Duration))

	keys := deriver.Keys(tr)
	for _, s := range tr.Spans {
		indent := strings.Repeat("  ", s.Depth+1)
		_, _ = fmt.Fprintf(w, "%s%s %s {%s} +%s %s\n", indent, s.SpanID, s.OperationName, keys[s.SpanID], micros(s.RelativeStartTime), micros(s.Duration))
		for _, warning := range s.Warnings {
			_, _ = fmt.Fprintf(w, "%s  ! %s\n", indent, warning)
		}
	}
}
