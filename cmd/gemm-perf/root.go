package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llm-d-incubation/gemm-perf-model/internal/logger"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
)

// preset used when no configuration file is given
const defaultGPUPreset = "B200"

type rootOptions struct {
	configPath string
	model      string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "gemm-perf",
		Short:        "Analytical runtime models for persistent GEMM kernels",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := logger.InitLogger(); err != nil {
				return fmt.Errorf("unable to initialize logger: %w", err)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Model configuration file (YAML or JSON); defaults to the "+defaultGPUPreset+" preset")
	cmd.PersistentFlags().StringVar(&opts.model, "model", "",
		fmt.Sprintf("Performance model, overrides the config (%s or %s)", config.RooflineModelName, config.WavePersistentModelName))

	cmd.AddCommand(
		newPredictCmd(opts),
		newSweepCmd(opts),
		newCalibrateCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

// Load the configuration named by the flags, applying the model override
func (o *rootOptions) load() (*config.ConfigData, error) {
	var cd *config.ConfigData
	if o.configPath != "" {
		var err error
		if cd, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	} else {
		cd = &config.ConfigData{GPUPreset: defaultGPUPreset}
		if err := cd.Complete(); err != nil {
			return nil, err
		}
	}
	if o.model != "" {
		cd.Model = o.model
	}
	if err := cd.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	logger.Log.Debugw("configuration loaded", "path", o.configPath, "model", cd.Model, "gpu", cd.GPU.Name)
	return cd, nil
}
