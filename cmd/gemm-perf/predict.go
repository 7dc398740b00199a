package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/llm-d-incubation/gemm-perf-model/internal/csvio"
	"github.com/llm-d-incubation/gemm-perf-model/internal/logger"
	"github.com/llm-d-incubation/gemm-perf-model/internal/metrics"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/analyzer"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/manager"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/tuner"
)

const separator = "========================================================================"

// prometheus textfile written next to the predictions
const metricsFileName = "metrics.prom"

type predictOptions struct {
	input     string
	outputDir string
	workers   int
	top       int
}

func newPredictCmd(root *rootOptions) *cobra.Command {
	opts := &predictOptions{}
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict runtimes of benchmarked GEMMs and compare with the measurements",
		RunE: func(cmd *cobra.Command, args []string) error {
			cd, err := root.load()
			if err != nil {
				return err
			}
			return runPredict(cmd, cd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.input, "input", "", "Benchmark CSV (one GEMM configuration per row)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", ".", "Directory for the predictions CSV and metrics textfile")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Parallel predictions (0 = config value or number of CPUs)")
	cmd.Flags().IntVar(&opts.top, "top", 5, "Highest and lowest ratio cases to summarize")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runPredict(cmd *cobra.Command, cd *config.ConfigData, opts *predictOptions) error {
	rows, err := readConfigs(opts.input)
	if err != nil {
		return err
	}
	model, err := analyzer.NewModelFromConfig(cd)
	if err != nil {
		return err
	}
	workers := opts.workers
	if workers == 0 {
		workers = cd.Workers
	}
	registry := prometheus.NewRegistry()
	mgr := manager.NewManager(model, workers, metrics.InitMetrics(registry))

	records, err := mgr.PredictAll(cmd.Context(), rows)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.input, err)
	}

	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return err
	}
	outPath := filepath.Join(opts.outputDir, fmt.Sprintf("predictions_%s.csv", model.Name()))
	if err := writeRecords(outPath, records, model.Name() == config.WavePersistentModelName); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	lowest, highest := manager.Extremes(records, opts.top)
	printCases(out, model, fmt.Sprintf("%d highest ratio cases", len(highest)), highest)
	printCases(out, model, fmt.Sprintf("%d lowest ratio cases", len(lowest)), lowest)
	fmt.Fprintln(out, separator)
	fmt.Fprintf(out, "ratio stats: %s\n", tuner.Summarize(records))

	metricsPath := filepath.Join(opts.outputDir, metricsFileName)
	if err := prometheus.WriteToTextfile(metricsPath, registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	logger.Log.Infow("predictions written", "rows", len(records), "model", model.Name(),
		"output", outPath, "metrics", metricsPath)
	return nil
}

func printCases(w io.Writer, model analyzer.PerfModel, title string, records []*analyzer.Record) {
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, separator)
	for _, r := range records {
		model.PrintSummary(w, r)
	}
}

func readConfigs(path string) ([]config.GemmConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input CSV: %w", err)
	}
	defer func() { _ = f.Close() }()
	rows, err := csvio.ReadConfigs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

func writeRecords(path string, records []*analyzer.Record, wave bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output CSV: %w", err)
	}
	if err := csvio.WriteRecords(f, records, wave); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
