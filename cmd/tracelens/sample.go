// Sample command: emits a reproducible synthetic Jaeger trace with injected anomalies
package main

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/andrewh/tracelens/pkg/tracemodel"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

type sampleOptions struct {
	spans      int
	duplicates int
	orphans    int
	seed       uint64
}

type sampleService struct {
	name       string
	operations []string
	kind       string
}

var sampleServices = []sampleService{
	{"frontend", []string{"GET /", "GET /cart", "POST /checkout"}, "server"},
	{"cart", []string{"GetCart", "AddItem"}, "server"},
	{"payments", []string{"Charge", "Refund"}, "client"},
	{"inventory", []string{"Reserve", "Lookup"}, "client"},
}

// sampleStart is the fixed epoch of generated traces, in microseconds.
const sampleStart = int64(1_700_000_000_000_000)

func sampleCmd() *cobra.Command {
	var opts sampleOptions

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Emit a synthetic Jaeger JSON trace",
		Long: "Emit a synthetic Jaeger JSON trace for trying out the other commands.\n\n" +
			"--duplicates adds spans that reuse an existing span id and repeat a tag,\n" +
			"--orphans adds spans whose parent is not part of the trace.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.spans < 1 {
				return fmt.Errorf("--spans must be at least 1, got %d", opts.spans)
			}
			if opts.duplicates < 0 || opts.orphans < 0 {
				return fmt.Errorf("--duplicates and --orphans must not be negative")
			}

			envelope := struct {
				Data []tracemodel.RawTrace `json:"data"`
			}{Data: []tracemodel.RawTrace{sampleTrace(opts)}}

			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(envelope)
		},
	}

	cmd.Flags().IntVar(&opts.spans, "spans", 8, "number of well-formed spans")
	cmd.Flags().IntVar(&opts.duplicates, "duplicates", 0, "number of spans reusing an existing span id")
	cmd.Flags().IntVar(&opts.orphans, "orphans", 0, "number of spans with a parent outside the trace")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "random seed; equal seeds give identical output")

	return cmd
}

func sampleTrace(opts sampleOptions) tracemodel.RawTrace {
	rng := rand.New(rand.NewPCG(opts.seed, 0)) //nolint:gosec // reproducible sample data

	var idSeed [32]byte
	binary.LittleEndian.PutUint64(idSeed[:], opts.seed)
	id, err := uuid.NewRandomFromReader(rand.NewChaCha8(idSeed))
	if err != nil {
		panic(fmt.Sprintf("chacha8 reader failed: %v", err))
	}
	traceID := strings.ReplaceAll(id.String(), "-", "")

	processes := make(map[string]tracemodel.RawProcess, len(sampleServices))
	for i, svc := range sampleServices {
		processes[processKey(i)] = tracemodel.RawProcess{
			ServiceName: svc.name,
			Tags: []tracemodel.KeyValue{
				{Key: "hostname", Type: "string", Value: fmt.Sprintf("%s-%d", svc.name, i+1)},
			},
		}
	}

	newSpanID := func() string { return fmt.Sprintf("%016x", rng.Uint64()) }
	spans := make([]tracemodel.RawSpan, 0, opts.spans+opts.duplicates+opts.orphans)

	for i := range opts.spans {
		svc := 0
		if i > 0 {
			svc = rng.IntN(len(sampleServices))
		}
		s := tracemodel.RawSpan{
			TraceID:       traceID,
			SpanID:        newSpanID(),
			ProcessID:     processKey(svc),
			OperationName: sampleServices[svc].operations[rng.IntN(len(sampleServices[svc].operations))],
			Tags: []tracemodel.KeyValue{
				{Key: "span.kind", Type: "string", Value: sampleServices[svc].kind},
				{Key: "http.status_code", Type: "int64", Value: float64(200)},
			},
		}
		if i == 0 {
			s.StartTime = sampleStart
			s.Duration = 50_000 + rng.Int64N(50_000)
		} else {
			parent := spans[rng.IntN(len(spans))]
			s.StartTime = parent.StartTime + rng.Int64N(max(parent.Duration/2, 1))
			s.Duration = 1 + rng.Int64N(max(parent.StartTime+parent.Duration-s.StartTime, 1))
			s.References = []tracemodel.RawReference{{RefType: tracemodel.RefChildOf, TraceID: traceID, SpanID: parent.SpanID}}
		}
		if rng.IntN(10) == 0 {
			s.Tags = append(s.Tags, tracemodel.KeyValue{Key: "error", Type: "bool", Value: true})
		}
		spans = append(spans, s)
	}

	for range opts.duplicates {
		src := spans[rng.IntN(opts.spans)]
		dup := src
		dup.StartTime = src.StartTime + 1 + rng.Int64N(1000)
		dup.Tags = slices.Clone(src.Tags)
		dup.Tags = append(dup.Tags, src.Tags[0])
		dup.Logs = []tracemodel.Log{{
			Timestamp: dup.StartTime,
			Fields:    []tracemodel.KeyValue{{Key: "event", Type: "string", Value: "retry"}},
		}}
		spans = append(spans, dup)
	}

	for range opts.orphans {
		svc := rng.IntN(len(sampleServices))
		spans = append(spans, tracemodel.RawSpan{
			TraceID:       traceID,
			SpanID:        newSpanID(),
			ProcessID:     processKey(svc),
			OperationName: sampleServices[svc].operations[0],
			StartTime:     sampleStart + rng.Int64N(10_000),
			Duration:      1 + rng.Int64N(10_000),
			References:    []tracemodel.RawReference{{RefType: tracemodel.RefChildOf, TraceID: traceID, SpanID: newSpanID()}},
		})
	}

	return tracemodel.RawTrace{TraceID: traceID, Processes: processes, Spans: spans}
}

func processKey(i int) string {
	return fmt.Sprintf("p%d", i+1)
}
