package config

import (
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"
)

// Load, complete, and validate a configuration file (YAML or JSON)
func Load(path string) (*ConfigData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cd, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cd, nil
}

// Parse, complete, and validate configuration bytes
func Parse(data []byte) (*ConfigData, error) {
	cd := &ConfigData{}
	if err := yaml.Unmarshal(data, cd); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cd.Complete(); err != nil {
		return nil, err
	}
	if err := cd.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cd, nil
}

// Fill in defaults: model name, preset hardware fields, built-in dtype sizes
func (cd *ConfigData) Complete() error {
	if cd.Model == "" {
		cd.Model = DefaultModelName
	}
	if cd.GPUPreset != "" {
		preset, ok := GPUPreset(cd.GPUPreset)
		if !ok {
			return fmt.Errorf("unknown gpu preset %q", cd.GPUPreset)
		}
		cd.GPU = mergeGPUSpec(preset, cd.GPU)
	}
	sizes := DefaultDtypeSizes()
	maps.Copy(sizes, cd.DtypeSizes)
	cd.DtypeSizes = sizes
	return nil
}

// non-zero fields of override win over base
func mergeGPUSpec(base, override GPUSpec) GPUSpec {
	if override.Name != "" {
		base.Name = override.Name
	}
	if override.NumSMs != 0 {
		base.NumSMs = override.NumSMs
	}
	if override.SMClockMHz != 0 {
		base.SMClockMHz = override.SMClockMHz
	}
	if override.DRAMBusWidth != 0 {
		base.DRAMBusWidth = override.DRAMBusWidth
	}
	if override.DRAMClockMHz != 0 {
		base.DRAMClockMHz = override.DRAMClockMHz
	}
	if base.MMAFlops == nil {
		base.MMAFlops = map[string]float64{}
	}
	maps.Copy(base.MMAFlops, override.MMAFlops)
	return base
}
