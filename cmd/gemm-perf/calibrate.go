package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llm-d-incubation/gemm-perf-model/pkg/analyzer"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/core"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/manager"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/tuner"
)

type calibrateOptions struct {
	input   string
	workers int
	asJSON  bool
}

// Calibration report
type calibration struct {
	Model string              `json:"model"`
	GPU   string              `json:"gpu"`
	Stats tuner.RatioStats    `json:"stats"` // ratios of the model as configured
	Fit   *tuner.OverheadFit  `json:"fit"`   // fixed overhead fitted with the overhead option cleared
	Opts  config.ModelOptions `json:"suggestedModelOpts"`
}

func newCalibrateCmd(root *rootOptions) *cobra.Command {
	opts := &calibrateOptions{}
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Summarize prediction ratios and fit the fixed launch overhead",
		RunE: func(cmd *cobra.Command, args []string) error {
			cd, err := root.load()
			if err != nil {
				return err
			}
			return runCalibrate(cmd, cd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.input, "input", "", "Benchmark CSV with measured runtimes")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Parallel predictions (0 = config value or number of CPUs)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the report as JSON")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runCalibrate(cmd *cobra.Command, cd *config.ConfigData, opts *calibrateOptions) error {
	rows, err := readConfigs(opts.input)
	if err != nil {
		return err
	}
	acc, err := core.NewAcceleratorFromSpec(&cd.GPU)
	if err != nil {
		return err
	}
	dtypes, err := core.NewDtypeTable(cd.DtypeSizes)
	if err != nil {
		return err
	}
	workers := opts.workers
	if workers == 0 {
		workers = cd.Workers
	}

	predictWith := func(modelOpts config.ModelOptions) (analyzer.PerfModel, []*analyzer.Record, error) {
		model, err := analyzer.NewModel(cd.Model, acc, dtypes, modelOpts)
		if err != nil {
			return nil, nil, err
		}
		records, err := manager.NewManager(model, workers, nil).PredictAll(cmd.Context(), rows)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", opts.input, err)
		}
		return model, records, nil
	}

	model, records, err := predictWith(cd.ModelOpts)
	if err != nil {
		return err
	}
	noOverhead := cd.ModelOpts
	noOverhead.FixedOverheadCycles = nil
	_, bare, err := predictWith(noOverhead)
	if err != nil {
		return err
	}
	fit, err := tuner.FitFixedOverhead(bare, acc)
	if err != nil {
		return err
	}

	suggested := cd.ModelOpts
	suggested.FixedOverheadCycles = &fit.FixedOverheadCycles
	report := calibration{
		Model: model.Name(),
		GPU:   acc.Name(),
		Stats: tuner.Summarize(records),
		Fit:   fit,
		Opts:  suggested,
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(out, "model: %s on %s\n", report.Model, report.GPU)
	fmt.Fprintf(out, "ratio stats: %s\n", report.Stats)
	fmt.Fprintf(out, "fixed overhead fit: %s\n", report.Fit)
	return nil
}
