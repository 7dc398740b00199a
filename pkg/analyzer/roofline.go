package analyzer

import (
	"fmt"
	"io"

	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/core"
)

// Speed-of-light model: max of pure compute time and pure memory time of the whole problem
type RooflineModel struct {
	acc    *core.Accelerator
	dtypes *core.DtypeTable
}

func NewRooflineModel(acc *core.Accelerator, dtypes *core.DtypeTable) *RooflineModel {
	return &RooflineModel{
		acc:    acc,
		dtypes: dtypes,
	}
}

func (rm *RooflineModel) Name() string {
	return config.RooflineModelName
}

func (rm *RooflineModel) Predict(cfg *config.GemmConfig) (*Prediction, error) {
	p := &cfg.ProblemSpec
	if err := checkProblem(p); err != nil {
		return nil, err
	}
	inDtype := config.NormalizeDtype(p.InDtype)
	outDtype := config.NormalizeDtype(p.OutDtype)

	inBytes, err := rm.dtypes.Bytes(inDtype)
	if err != nil {
		return nil, fmt.Errorf("in dtype: %w", err)
	}
	outBytes, err := rm.dtypes.Bytes(outDtype)
	if err != nil {
		return nil, fmt.Errorf("out dtype: %w", err)
	}
	mathSOL, err := rm.acc.MathThroughput(inDtype, rm.acc.NumSMs())
	if err != nil {
		return nil, err
	}

	m, n, k := float64(p.M), float64(p.N), float64(p.K)
	problemFlops := 2 * m * n * k
	problemBytes := (m*k+k*n)*inBytes + m*n*outBytes
	if p.IsBlockScaled() {
		sfBytes, err := rm.dtypes.Bytes(p.SFDtype)
		if err != nil {
			return nil, fmt.Errorf("sf dtype: %w", err)
		}
		sfBlocks := k / float64(p.SFVecSize)
		problemBytes += (m*sfBlocks + n*sfBlocks) * sfBytes
	}

	mathUs := problemFlops / mathSOL * usecPerSec
	dramUs := problemBytes / rm.acc.DRAMBandwidth() * usecPerSec

	// ties are DRAM bound
	bound := BoundDRAM
	if mathUs > dramUs {
		bound = BoundMath
	}
	return &Prediction{
		Model:     rm.Name(),
		RuntimeUs: max(mathUs, dramUs),
		Bound:     bound,
		MathUs:    mathUs,
		DRAMUs:    dramUs,
	}, nil
}

// Print the raw record
func (rm *RooflineModel) PrintSummary(w io.Writer, r *Record) {
	fmt.Fprintf(w, "{row=%d, m=%d, n=%d, k=%d, in=%s, out=%s, predicted=%.3f, actual=%.3f, ratio=%.4f, bound=%s, math=%.3f, dram=%.3f}\n",
		r.Index, r.Config.M, r.Config.N, r.Config.K, r.Config.InDtype, r.Config.OutDtype,
		r.Prediction.RuntimeUs, r.ActualUs, r.Ratio, r.Prediction.Bound, r.Prediction.MathUs, r.Prediction.DRAMUs)
}

func (rm *RooflineModel) String() string {
	return fmt.Sprintf("RooflineModel: {dram=%.1fGB/s, %s}", rm.acc.DRAMBandwidth()/1e9, rm.acc)
}
