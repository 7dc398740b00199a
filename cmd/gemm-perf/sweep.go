package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/llm-d-incubation/gemm-perf-model/internal/csvio"
	"github.com/llm-d-incubation/gemm-perf-model/internal/logger"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/core"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/sweep"
)

type sweepOptions struct {
	input  string
	dtype  string
	output string
}

func newSweepCmd(root *rootOptions) *cobra.Command {
	opts := &sweepOptions{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expand m,n,k problem shapes into the benchmark configuration grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			cd, err := root.load()
			if err != nil {
				return err
			}
			dtypes, err := core.NewDtypeTable(cd.DtypeSizes)
			if err != nil {
				return err
			}
			return runSweep(sweep.NewGenerator(cd.Sweep, dtypes), opts)
		},
	}
	cmd.Flags().StringVar(&opts.input, "input", "", "CSV of m,n,k problem shapes")
	cmd.Flags().StringVar(&opts.dtype, "dtype", "fp8", fmt.Sprintf("Input/output datatype %v", sweep.SupportedDtypes()))
	cmd.Flags().StringVar(&opts.output, "output", "", "Output CSV (default sweep_<dtype>.csv)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runSweep(g *sweep.Generator, opts *sweepOptions) error {
	in, err := os.Open(opts.input)
	if err != nil {
		return fmt.Errorf("open shapes CSV: %w", err)
	}
	defer func() { _ = in.Close() }()
	shapes, err := csvio.ReadShapes(in)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.input, err)
	}

	configs, err := g.Generate(shapes, opts.dtype)
	if err != nil {
		return err
	}

	output := opts.output
	if output == "" {
		output = fmt.Sprintf("sweep_%s.csv", opts.dtype)
	}
	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create sweep CSV: %w", err)
	}
	if err := csvio.WriteConfigs(out, configs); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", output, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	logger.Log.Infow("sweep written", "shapes", len(shapes), "configs", len(configs), "dtype", opts.dtype, "output", output)
	return nil
}
