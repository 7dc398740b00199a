package tuner

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/llm-d-incubation/gemm-perf-model/pkg/analyzer"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/core"
)

var ErrNoMeasurements = errors.New("no records with a measured runtime")

// Result of fitting a constant launch overhead to measured runtimes
type OverheadFit struct {
	FixedOverheadCycles float64 `json:"fixedOverheadCycles"` // least-squares offset, clamped at zero
	ResidualRMSUs       float64 `json:"residualRmsUs"`       // RMS of actual - (predicted + offset)
	Samples             int     `json:"samples"`
}

// Fit the constant offset between measured and predicted runtimes.
// Predictions should come from a model without a fixed overhead; the result is then the
// fixedOverheadCycles model option for the accelerator.
func FitFixedOverhead(records []*analyzer.Record, acc *core.Accelerator) (*OverheadFit, error) {
	if acc == nil {
		return nil, fmt.Errorf("%w: missing accelerator", core.ErrInvalidConfiguration)
	}
	residuals := make([]float64, 0, len(records))
	for _, r := range records {
		if r == nil || r.Prediction == nil || !(r.ActualUs > 0) {
			continue
		}
		residuals = append(residuals, r.ActualUs-r.Prediction.RuntimeUs)
	}
	n := len(residuals)
	if n == 0 {
		return nil, ErrNoMeasurements
	}

	// design matrix: one intercept column
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	a := mat.NewDense(n, 1, ones)
	b := mat.NewVecDense(n, residuals)

	var qr mat.QR
	qr.Factorize(a)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		return nil, fmt.Errorf("overhead fit: %w", err)
	}
	offsetUs := max(x.AtVec(0), 0)

	var fit mat.VecDense
	fit.ScaleVec(offsetUs, mat.NewVecDense(n, ones))
	fit.SubVec(b, &fit)
	rms := mat.Norm(&fit, 2) / math.Sqrt(float64(n))

	return &OverheadFit{
		FixedOverheadCycles: offsetUs / 1e6 * acc.SMClockHz(),
		ResidualRMSUs:       rms,
		Samples:             n,
	}, nil
}

func (f *OverheadFit) String() string {
	return fmt.Sprintf("{fixedOverheadCycles=%.1f, residualRms=%.3fus, samples=%d}",
		f.FixedOverheadCycles, f.ResidualRMSUs, f.Samples)
}
