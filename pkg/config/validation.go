package config

import (
	"fmt"
	"math"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Validate a hardware description; all problems are reported together
func (g *GPUSpec) Validate() error {
	var errs []error
	if g.NumSMs <= 0 {
		errs = append(errs, fmt.Errorf("numSMs must be positive, got %d", g.NumSMs))
	}
	if !positiveFinite(g.SMClockMHz) {
		errs = append(errs, fmt.Errorf("smClockMHz must be positive, got %v", g.SMClockMHz))
	}
	if g.DRAMBusWidth <= 0 {
		errs = append(errs, fmt.Errorf("dramBusWidth must be positive, got %d", g.DRAMBusWidth))
	}
	if !positiveFinite(g.DRAMClockMHz) {
		errs = append(errs, fmt.Errorf("dramClockMHz must be positive, got %v", g.DRAMClockMHz))
	}
	if len(g.MMAFlops) == 0 {
		errs = append(errs, fmt.Errorf("mmaFlops table is empty"))
	}
	for dtype, flops := range g.MMAFlops {
		if !positiveFinite(flops) {
			errs = append(errs, fmt.Errorf("mmaFlops[%s] must be positive, got %v", dtype, flops))
		}
	}
	return utilerrors.NewAggregate(errs)
}

// Validate model options; unset options are always valid
func (o *ModelOptions) Validate() error {
	var errs []error
	if o.FixedOverheadCycles != nil && !nonNegativeFinite(*o.FixedOverheadCycles) {
		errs = append(errs, fmt.Errorf("fixedOverheadCycles must be non-negative, got %v", *o.FixedOverheadCycles))
	}
	if o.EpilogueMinLatency != nil && !nonNegativeFinite(*o.EpilogueMinLatency) {
		errs = append(errs, fmt.Errorf("epilogueMinLatency must be non-negative, got %v", *o.EpilogueMinLatency))
	}
	return utilerrors.NewAggregate(errs)
}

// Validate a dtype size table
func (t DtypeSizeTable) Validate() error {
	var errs []error
	for dtype, size := range t {
		if !positiveFinite(size) {
			errs = append(errs, fmt.Errorf("dtypeSizes[%s] must be positive, got %v", dtype, size))
		}
	}
	return utilerrors.NewAggregate(errs)
}

// Validate the whole configuration
func (cd *ConfigData) Validate() error {
	var errs []error
	switch cd.Model {
	case RooflineModelName, SOLModelAlias, WavePersistentModelName, WSPersistentGEMMModelAlias:
	default:
		errs = append(errs, fmt.Errorf("unknown model %q", cd.Model))
	}
	if err := cd.GPU.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gpu: %w", err))
	}
	if err := cd.ModelOpts.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("modelOpts: %w", err))
	}
	if err := cd.DtypeSizes.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cd.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be non-negative, got %d", cd.Workers))
	}
	return utilerrors.NewAggregate(errs)
}

func positiveFinite(x float64) bool {
	return x > 0 && !math.IsInf(x, 0) && !math.IsNaN(x)
}

func nonNegativeFinite(x float64) bool {
	return x >= 0 && !math.IsInf(x, 0) && !math.IsNaN(x)
}
