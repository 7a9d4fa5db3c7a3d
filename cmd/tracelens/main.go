// Trace inspection CLI
// Reads Jaeger, OTLP, or stdouttrace JSON and reports canonical trace structure, anomalies, and exports
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/andrewh/tracelens/pkg/config"
	"github.com/andrewh/tracelens/pkg/tracemodel"
	"github.com/andrewh/tracelens/pkg/tracemodel/ingest"
	"github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const inputFormatUsage = "input format: auto, jaeger, otlp, or stdouttrace"

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds state shared by every subcommand once the root pre-run has
// loaded configuration.
type app struct {
	configPath    string
	logLevel      string
	logFormat     string
	pyroscopeAddr string

	cfg      *config.Config
	logger   *slog.Logger
	profiler *pyroscope.Profiler
}

func rootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "tracelens",
		Short:        "Inspect and convert distributed traces",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: tracelens.yaml in . or $HOME/.config/tracelens)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json (overrides config)")
	root.PersistentFlags().StringVar(&a.pyroscopeAddr, "pyroscope", "", "send continuous profiles to this Pyroscope server address")

	root.AddCommand(inspectCmd(a))
	root.AddCommand(treeCmd(a))
	root.AddCommand(exportCmd(a))
	root.AddCommand(sampleCmd())
	root.AddCommand(configCmd(a))
	root.AddCommand(versionCmd())

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = setupLogger(cfg.Log, cmd.ErrOrStderr())

	if a.pyroscopeAddr != "" {
		a.profiler, err = startProfiler(a.pyroscopeAddr, a.logger)
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) teardown() error {
	if a.profiler == nil {
		return nil
	}
	if err := a.profiler.Stop(); err != nil {
		return fmt.Errorf("stopping profiler: %w", err)
	}
	return nil
}

func setupLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func startProfiler(addr string, logger *slog.Logger) (*pyroscope.Profiler, error) {
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "tracelens",
		ServerAddress:   addr,
		Logger:          pyroscopeLogger{logger},
		Tags:            map[string]string{"version": version},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("starting pyroscope profiler: %w", err)
	}
	logger.Debug("pyroscope profiling started", "server", addr)
	return profiler, nil
}

// pyroscopeLogger routes profiler messages through slog.
type pyroscopeLogger struct{ l *slog.Logger }

func (p pyroscopeLogger) Infof(format string, args ...any)  { p.l.Info(fmt.Sprintf(format, args...)) }
func (p pyroscopeLogger) Debugf(format string, args ...any) { p.l.Debug(fmt.Sprintf(format, args...)) }
func (p pyroscopeLogger) Errorf(format string, args ...any) { p.l.Error(fmt.Sprintf(format, args...)) }

// loadTraces reads the file named by args, or stdin, and transforms every
// decoded trace.
func (a *app) loadTraces(cmd *cobra.Command, args []string, format string) ([]*tracemodel.Trace, error) {
	r := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0]) //nolint:gosec // user-supplied file path is expected
		if err != nil {
			return nil, fmt.Errorf("opening input: %w", err)
		}
		defer f.Close() //nolint:errcheck // best-effort close on read-only file
		r = f
	}

	raws, err := ingest.ParseTraces(r, ingest.Format(format))
	if err != nil {
		if errors.Is(err, ingest.ErrNoTraces) {
			return nil, fmt.Errorf("%w\n\nProvide a file or pipe stdin:\n  tracelens %s trace.json\n  cat trace.json | tracelens %s", err, cmd.Name(), cmd.Name())
		}
		return nil, err
	}

	traces := tracemodel.NewTransformer(a.cfg.TransformOptions(a.logger)).TransformAll(raws)
	if len(traces) == 0 {
		return nil, fmt.Errorf("no valid traces in input: all %d traces lack a trace id", len(raws))
	}
	for _, tr := range traces {
		if tr.OrphanSpanCount > 0 {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: trace %s has %d spans whose parent is not in the trace\n", tr.TraceID, tr.OrphanSpanCount)
		}
	}
	return traces, nil
}

func (a *app) groupKeys() (*tracemodel.GroupKeyDeriver, error) {
	return tracemodel.NewGroupKeyDeriver(a.cfg.GroupKeyOptions(a.logger))
}

func configCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(a.cfg); err != nil {
				return fmt.Errorf("marshalling YAML: %w", err)
			}
			return enc.Close()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "tracelens %s (commit: %s, built: %s)\n", version, commit, buildTime)
		},
	}
}
