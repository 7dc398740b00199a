package analyzer

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/core"
)

// resource bounding a roofline estimate
const (
	BoundMath = "MATH"
	BoundDRAM = "DRAM"
)

// resource limiting a wave of the persistent kernel
const (
	LimiterDMA      = "DMA"
	LimiterMath     = "MATH"
	LimiterEpilogue = "EPILOG"
)

// unit conversion of reported times
const usecPerSec = 1e6

// Performance model predicting the runtime of a GEMM kernel configuration.
// Implementations hold only construction-time configuration and are safe for concurrent use.
type PerfModel interface {
	// name of the model
	Name() string
	// predict the runtime of one configuration
	Predict(cfg *config.GemmConfig) (*Prediction, error)
	// write a human-readable summary of a prediction record
	PrintSummary(w io.Writer, r *Record)
}

// Result of a prediction; all times in usec
type Prediction struct {
	Model     string  `json:"model"`
	RuntimeUs float64 `json:"runtime"` // total predicted runtime

	// roofline estimate
	Bound  string  `json:"bound,omitempty"`
	MathUs float64 `json:"math,omitempty"`
	DRAMUs float64 `json:"dram,omitempty"`

	// persistent kernel phases
	FixedOverheadUs float64      `json:"fixedOverhead,omitempty"`
	FirstDMAUs      float64      `json:"firstDma,omitempty"`
	MainloopUs      float64      `json:"mainloopTotal,omitempty"`
	Mainloop        []WaveTiming `json:"mainloop,omitempty"`
	LastEpilogueUs  float64      `json:"lastEpilogue,omitempty"`

	// persistent kernel schedule
	Tiles       int `json:"tiles,omitempty"`       // CTA tiles
	FullWaveSMs int `json:"fullWaveSMs,omitempty"` // SMs occupied by a full wave
	FullWaves   int `json:"fullWaves,omitempty"`   // waves at full occupancy
	Remainder   int `json:"remainder,omitempty"`   // tiles in the final partial wave
}

// Resource times of one mainloop wave (usec)
type WaveTiming struct {
	DMAUs      float64 `json:"dma"`
	MathUs     float64 `json:"math"`
	EpilogueUs float64 `json:"epilogue"`
}

// Duration of a wave: its three resources overlap, the slowest gates completion
func (w WaveTiming) Duration() float64 {
	return max(w.DMAUs, w.MathUs, w.EpilogueUs)
}

// Resource gating the wave; ties go to the earlier of DMA, MATH, EPILOG
func (w WaveTiming) Limiter() string {
	switch w.Duration() {
	case w.DMAUs:
		return LimiterDMA
	case w.MathUs:
		return LimiterMath
	default:
		return LimiterEpilogue
	}
}

// A configuration, its prediction, and the comparison with the measured runtime
type Record struct {
	Index      int               `json:"rowIdx"`
	Config     config.GemmConfig `json:"config"`
	Prediction *Prediction       `json:"prediction"`
	ActualUs   float64           `json:"actualRuntime"`
	Ratio      float64           `json:"ratio"` // predicted / actual, NaN if actual unknown
}

// Create a record, computing the predicted to actual ratio
func NewRecord(index int, cfg *config.GemmConfig, pred *Prediction) *Record {
	ratio := math.NaN()
	if cfg.RuntimeUs > 0 {
		ratio = pred.RuntimeUs / cfg.RuntimeUs
	}
	return &Record{
		Index:      index,
		Config:     *cfg,
		Prediction: pred,
		ActualUs:   cfg.RuntimeUs,
		Ratio:      ratio,
	}
}

// Create a performance model by name
func NewModel(name string, acc *core.Accelerator, dtypes *core.DtypeTable, opts config.ModelOptions) (PerfModel, error) {
	if acc == nil || dtypes == nil {
		return nil, fmt.Errorf("%w: model %s needs an accelerator and a dtype table", core.ErrInvalidConfiguration, name)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidConfiguration, err)
	}
	switch name {
	case config.RooflineModelName, config.SOLModelAlias:
		return NewRooflineModel(acc, dtypes), nil
	case config.WavePersistentModelName, config.WSPersistentGEMMModelAlias:
		return NewWavePersistentModel(acc, dtypes, opts), nil
	default:
		return nil, fmt.Errorf("%w: unknown model class %q", core.ErrInvalidConfiguration, name)
	}
}

// Create the performance model described by a (completed) configuration
func NewModelFromConfig(cd *config.ConfigData) (PerfModel, error) {
	acc, err := core.NewAcceleratorFromSpec(&cd.GPU)
	if err != nil {
		return nil, err
	}
	dtypes, err := core.NewDtypeTable(cd.DtypeSizes)
	if err != nil {
		return nil, err
	}
	return NewModel(cd.Model, acc, dtypes, cd.ModelOpts)
}

// check problem dimensions common to all models
func checkProblem(p *config.ProblemSpec) error {
	if p.M < 0 || p.N < 0 || p.K < 0 {
		return fmt.Errorf("%w: negative problem dimensions (%d, %d, %d)", core.ErrInvalidConfiguration, p.M, p.N, p.K)
	}
	if p.SFVecSize < 0 {
		return fmt.Errorf("%w: negative scale-factor vector size %d", core.ErrInvalidConfiguration, p.SFVecSize)
	}
	return nil
}

func (p *Prediction) String() string {
	if p.Bound != "" {
		return fmt.Sprintf("{model=%s, runtime=%.3f, bound=%s, math=%.3f, dram=%.3f}",
			p.Model, p.RuntimeUs, p.Bound, p.MathUs, p.DRAMUs)
	}
	return fmt.Sprintf("{model=%s, runtime=%.3f, overhead=%.3f, firstDma=%.3f, mainloop=%.3f, waves=%d, lastEpilogue=%.3f}",
		p.Model, p.RuntimeUs, p.FixedOverheadUs, p.FirstDMAUs, p.MainloopUs, len(p.Mainloop), p.LastEpilogueUs)
}

func (w WaveTiming) String() string {
	return fmt.Sprintf("{dma=%.3f, math=%.3f, epilogue=%.3f}", w.DMAUs, w.MathUs, w.EpilogueUs)
}

// JSON has no NaN; an unknown ratio is encoded as null
func (r *Record) MarshalJSON() ([]byte, error) {
	type plain Record
	out := struct {
		*plain
		Ratio *float64 `json:"ratio"`
	}{plain: (*plain)(r)}
	if !math.IsNaN(r.Ratio) && !math.IsInf(r.Ratio, 0) {
		out.Ratio = &r.Ratio
	}
	return json.Marshal(out)
}
