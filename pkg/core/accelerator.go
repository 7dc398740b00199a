package core

import (
	"fmt"
	"maps"
	"slices"

	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
)

// Read-only hardware description of a GPU, with derived peak rates
type Accelerator struct {
	spec config.GPUSpec

	smClockHz     float64 // SM clock (Hz)
	dramBandwidth float64 // peak DRAM bandwidth (bytes/sec)
}

// Create an accelerator from a validated copy of the spec
func NewAcceleratorFromSpec(spec *config.GPUSpec) (*Accelerator, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: missing gpu spec", ErrInvalidConfiguration)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: gpu %q: %v", ErrInvalidConfiguration, spec.Name, err)
	}
	g := &Accelerator{
		spec: *spec,
	}
	g.spec.MMAFlops = maps.Clone(spec.MMAFlops)
	g.calculate()
	return g, nil
}

// Calculate derived parameters
func (g *Accelerator) calculate() {
	g.smClockHz = g.spec.SMClockMHz * 1e6
	// double data rate, bits to bytes
	g.dramBandwidth = float64(g.spec.DRAMBusWidth) * 2 * g.spec.DRAMClockMHz * 1e6 / 8
}

func (g *Accelerator) Name() string {
	return g.spec.Name
}

func (g *Accelerator) NumSMs() int {
	return g.spec.NumSMs
}

// SM clock in Hz
func (g *Accelerator) SMClockHz() float64 {
	return g.smClockHz
}

// Peak DRAM bandwidth in bytes/sec
func (g *Accelerator) DRAMBandwidth() float64 {
	return g.dramBandwidth
}

// Peak MMA throughput per SM per cycle for a dtype
func (g *Accelerator) MMAFlops(dtype string) (float64, error) {
	flops, ok := g.spec.MMAFlops[config.NormalizeDtype(dtype)]
	if !ok {
		return 0, fmt.Errorf("%w: no mma throughput for %q on %s", ErrUnknownDtype, dtype, g.spec.Name)
	}
	return flops, nil
}

// Peak MMA throughput (FLOPs/sec) of a number of SMs for a dtype
func (g *Accelerator) MathThroughput(dtype string, sms int) (float64, error) {
	flops, err := g.MMAFlops(dtype)
	if err != nil {
		return 0, err
	}
	return g.smClockHz * float64(sms) * flops, nil
}

// Duration in seconds of a number of SM cycles
func (g *Accelerator) CyclesToSeconds(cycles float64) float64 {
	return cycles / g.smClockHz
}

// A copy of the spec
func (g *Accelerator) Spec() config.GPUSpec {
	spec := g.spec
	spec.MMAFlops = maps.Clone(g.spec.MMAFlops)
	return spec
}

func (g *Accelerator) String() string {
	dtypes := slices.Sorted(maps.Keys(g.spec.MMAFlops))
	return fmt.Sprintf("Accelerator: name=%s; sms=%d; smClk=%vMHz; dram={%dbit@%vMHz, %.1fGB/s}; mmaDtypes=%v",
		g.spec.Name, g.spec.NumSMs, g.spec.SMClockMHz, g.spec.DRAMBusWidth, g.spec.DRAMClockMHz,
		g.dramBandwidth/1e9, dtypes)
}
