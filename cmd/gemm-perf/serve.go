package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/llm-d-incubation/gemm-perf-model/internal/metrics"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/analyzer"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/manager"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/rest"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions over REST (address from " + rest.RestHostEnvName + "/" + rest.RestPortEnvName + ")",
		RunE: func(cmd *cobra.Command, args []string) error {
			cd, err := root.load()
			if err != nil {
				return err
			}
			model, err := analyzer.NewModelFromConfig(cd)
			if err != nil {
				return err
			}
			if workers == 0 {
				workers = cd.Workers
			}
			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			mgr := manager.NewManager(model, workers, metrics.InitMetrics(registry))
			return rest.NewStateLessServer(mgr, cd, registry).Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel predictions per batch request (0 = config value or number of CPUs)")
	return cmd
}
