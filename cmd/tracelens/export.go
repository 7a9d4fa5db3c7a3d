// Export command: converts traces to summary documents or OpenTelemetry wire formats
package main

import (
	"github.com/andrewh/tracelens/pkg/tracemodel"
	"github.com/andrewh/tracelens/pkg/tracemodel/export"
	"github.com/spf13/cobra"
)

func exportCmd(a *app) *cobra.Command {
	var (
		format string
		to     string
	)

	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Convert traces to JSON, YAML, CSV, OTLP JSON, or stdouttrace JSON",
		Long: "Reads traces from a file or stdin and writes them in another format.\n\n" +
			"json and yaml write one summary document per trace, csv writes one row per span,\n" +
			"otlp writes one OTLP/JSON request per line, and stdouttrace writes SDK exporter output.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := export.ParseFormat(to)
			if err != nil {
				return err
			}
			traces, err := a.loadTraces(cmd, args, format)
			if err != nil {
				return err
			}
			deriver, err := a.groupKeys()
			if err != nil {
				return err
			}

			facades := make([]*tracemodel.TraceFacade, len(traces))
			for i, tr := range traces {
				facades[i] = tr.OtelTrace()
			}
			return export.Write(cmd.OutOrStdout(), facades, target, export.Options{GroupKeys: deriver})
		},
	}

	cmd.Flags().StringVar(&format, "format", "auto", inputFormatUsage)
	cmd.Flags().StringVar(&to, "to", "json", "output format: json, yaml, csv, otlp, or stdouttrace")

	return cmd
}
