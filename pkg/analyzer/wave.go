package analyzer

import (
	"fmt"
	"io"

	"k8s.io/utils/ptr"

	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/core"
)

// Model of a warp-specialized persistent GEMM kernel: one worker per SM pulls CTA tiles
// wave by wave, overlapping DMA, MMA and epilogue within each wave.
//
// runtime = fixed overhead + first wave DMA + sum of wave durations + last wave epilogue
type WavePersistentModel struct {
	acc    *core.Accelerator
	dtypes *core.DtypeTable
	opts   config.ModelOptions
}

func NewWavePersistentModel(acc *core.Accelerator, dtypes *core.DtypeTable, opts config.ModelOptions) *WavePersistentModel {
	return &WavePersistentModel{
		acc:    acc,
		dtypes: dtypes,
		opts:   opts,
	}
}

func (wm *WavePersistentModel) Name() string {
	return config.WavePersistentModelName
}

// kernel schedule derived from problem and tiling
type schedule struct {
	tiles       int // CTA tiles
	fullWaveSMs int
	fullWaves   int
	remainder   int
}

// If the cluster size doesn't evenly divide the SM count, fewer SMs are used per wave.
// This still isn't accurate for larger clusters.
func (wm *WavePersistentModel) schedule(p *config.ProblemSpec, t *config.TileConfig) schedule {
	cgaM := t.CTAM * t.ClusterM
	cgaN := t.CTAN * t.ClusterN
	cgaTiles := ceilDiv(p.M, cgaM) * ceilDiv(p.N, cgaN)
	clusterSMs := t.ClusterM * t.ClusterN
	fullWaveSMs := (wm.acc.NumSMs() / clusterSMs) * clusterSMs
	tiles := cgaTiles * clusterSMs
	return schedule{
		tiles:       tiles,
		fullWaveSMs: fullWaveSMs,
		fullWaves:   tiles / fullWaveSMs,
		remainder:   tiles % fullWaveSMs,
	}
}

func (wm *WavePersistentModel) Predict(cfg *config.GemmConfig) (*Prediction, error) {
	p := &cfg.ProblemSpec
	t := &cfg.TileConfig
	if err := wm.check(p, t); err != nil {
		return nil, err
	}
	inBytes, err := wm.dtypes.Bytes(p.InDtype)
	if err != nil {
		return nil, fmt.Errorf("in dtype: %w", err)
	}
	outBytes, err := wm.dtypes.Bytes(p.OutDtype)
	if err != nil {
		return nil, fmt.Errorf("out dtype: %w", err)
	}
	var sfBytes float64
	if p.IsBlockScaled() {
		if sfBytes, err = wm.dtypes.Bytes(p.SFDtype); err != nil {
			return nil, fmt.Errorf("sf dtype: %w", err)
		}
	}
	smMathSOL, err := wm.acc.MathThroughput(p.InDtype, 1)
	if err != nil {
		return nil, err
	}

	// K extent of one MMA instruction
	mmaK := config.MMAOperandBytes / inBytes
	sched := wm.schedule(p, t)
	w := &waveCalc{
		acc:      wm.acc,
		p:        p,
		t:        t,
		inBytes:  inBytes,
		outBytes: outBytes,
		sfBytes:  sfBytes,
		smMath:   smMathSOL,
		epAdjust: wm.acc.CyclesToSeconds(ptr.Deref(wm.opts.EpilogueMinLatency, 0)),
	}

	fixedOverhead := wm.acc.CyclesToSeconds(ptr.Deref(wm.opts.FixedOverheadCycles, 0))

	// first DMA
	firstWaveSMs := min(sched.tiles, sched.fullWaveSMs)
	firstDMA := w.dma(firstWaveSMs, mmaK)

	// mainloop
	waves := make([]int, 0, sched.fullWaves+1)
	for range sched.fullWaves {
		waves = append(waves, sched.fullWaveSMs)
	}
	if sched.remainder > 0 {
		waves = append(waves, sched.remainder)
	}
	mainloop := 0.0
	timings := make([]WaveTiming, 0, len(waves))
	var last waveTime
	for _, occupiedSMs := range waves {
		last = w.wave(occupiedSMs)
		mainloop += max(last.dma, last.math, last.epilogue)
		timings = append(timings, WaveTiming{
			DMAUs:      last.dma * usecPerSec,
			MathUs:     last.math * usecPerSec,
			EpilogueUs: last.epilogue * usecPerSec,
		})
	}

	// the last wave's output write drains after its compute
	lastEpilogue := last.epilogue

	runtime := fixedOverhead + firstDMA + mainloop + lastEpilogue
	return &Prediction{
		Model:           wm.Name(),
		RuntimeUs:       runtime * usecPerSec,
		FixedOverheadUs: fixedOverhead * usecPerSec,
		FirstDMAUs:      firstDMA * usecPerSec,
		MainloopUs:      mainloop * usecPerSec,
		Mainloop:        timings,
		LastEpilogueUs:  lastEpilogue * usecPerSec,
		Tiles:           sched.tiles,
		FullWaveSMs:     sched.fullWaveSMs,
		FullWaves:       sched.fullWaves,
		Remainder:       sched.remainder,
	}, nil
}

// check tiling parameters; zero extents would divide by zero
func (wm *WavePersistentModel) check(p *config.ProblemSpec, t *config.TileConfig) error {
	if err := checkProblem(p); err != nil {
		return err
	}
	if t.CTAM <= 0 || t.CTAN <= 0 {
		return fmt.Errorf("%w: cta shape (%d, %d) must be positive", core.ErrInvalidConfiguration, t.CTAM, t.CTAN)
	}
	if t.ClusterM <= 0 || t.ClusterN <= 0 {
		return fmt.Errorf("%w: cluster shape (%d, %d) must be positive", core.ErrInvalidConfiguration, t.ClusterM, t.ClusterN)
	}
	if clusterSMs := t.ClusterM * t.ClusterN; clusterSMs > wm.acc.NumSMs() {
		return fmt.Errorf("%w: cluster of %d SMs does not fit in %d SMs", core.ErrInvalidConfiguration, clusterSMs, wm.acc.NumSMs())
	}
	return nil
}

// per-call constants of the wave calculation; times in seconds
type waveCalc struct {
	acc      *core.Accelerator
	p        *config.ProblemSpec
	t        *config.TileConfig
	inBytes  float64
	outBytes float64
	sfBytes  float64
	smMath   float64 // FLOPs/sec of one SM
	epAdjust float64 // epilogue floor
}

// time to load the A and B tiles of extent kExt for a number of SMs;
// each operand is shared across the cluster extent of the other dimension
func (w *waveCalc) dma(sms int, kExt float64) float64 {
	ctaM, ctaN := float64(w.t.CTAM), float64(w.t.CTAN)
	aTile := ctaM * kExt * w.inBytes
	bTile := ctaN * kExt * w.inBytes
	var aSF, bSF float64
	if w.p.IsBlockScaled() {
		sfBlocks := kExt / float64(w.p.SFVecSize)
		aSF = ctaM * sfBlocks * w.sfBytes
		bSF = ctaN * sfBlocks * w.sfBytes
	}
	totalBytes := float64(sms) * ((aTile+aSF)/float64(w.t.ClusterN) + (bTile+bSF)/float64(w.t.ClusterM))
	return totalBytes / w.acc.DRAMBandwidth()
}

// resource times of one wave (seconds)
type waveTime struct {
	dma      float64
	math     float64
	epilogue float64
}

// resource times of one wave with a number of occupied SMs
func (w *waveCalc) wave(sms int) waveTime {
	k := float64(w.p.K)
	ctaM, ctaN := float64(w.t.CTAM), float64(w.t.CTAN)
	// compute is per CTA, so one SM's throughput
	mathFlops := 2 * ctaM * ctaN * k
	epilogueBytes := ctaM * ctaN * float64(sms) * w.outBytes
	return waveTime{
		dma:      w.dma(sms, k),
		math:     mathFlops / w.smMath,
		epilogue: w.epAdjust + epilogueBytes/w.acc.DRAMBandwidth(),
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Print a breakdown of the prediction with the limiting resource of the first and last waves
func (wm *WavePersistentModel) PrintSummary(w io.Writer, r *Record) {
	c := &r.Config
	pred := r.Prediction
	fmt.Fprintln(w, "========================================================================")
	fmt.Fprintf(w, "MNK %d %d %d\n", c.M, c.N, c.K)
	fmt.Fprintf(w, "CTA (%d %d)\n", c.CTAM, c.CTAN)
	fmt.Fprintf(w, "CLUSTER (%d %d)\n", c.ClusterM, c.ClusterN)
	fmt.Fprintf(w, "RATIO: %v\n", r.Ratio)
	fmt.Fprintf(w, "    predicted: %v\n", pred.RuntimeUs)
	fmt.Fprintf(w, "    actual: %v\n", r.ActualUs)

	fmt.Fprintln(w, "PROLOGUE")
	fmt.Fprintf(w, "    Overhead: %v\n", pred.FixedOverheadUs)
	fmt.Fprintf(w, "    DMA: %v\n", pred.FirstDMAUs)

	fmt.Fprintln(w, "MAINLOOP")
	fmt.Fprintf(w, "    Waves: %d full, %d remainder tiles\n", pred.FullWaves, pred.Remainder)
	if len(pred.Mainloop) == 0 {
		fmt.Fprintln(w, "    (no tiles)")
		return
	}
	first := pred.Mainloop[0]
	fmt.Fprintf(w, "    Limiter: %s\n", first.Limiter())
	printWave(w, first)
	if len(pred.Mainloop) > 1 {
		last := pred.Mainloop[len(pred.Mainloop)-1]
		fmt.Fprintln(w, "    Last Wave")
		fmt.Fprintf(w, "        Limiter: %s\n", last.Limiter())
		printWave(w, last)
	}
	fmt.Fprintln(w, "EPILOGUE")
	fmt.Fprintf(w, "    Drain: %v\n", pred.LastEpilogueUs)
}

func printWave(w io.Writer, t WaveTiming) {
	fmt.Fprintf(w, "        DMA: %v\n", t.DMAUs)
	fmt.Fprintf(w, "        MATH: %v\n", t.MathUs)
	fmt.Fprintf(w, "        EPILOG: %v\n", t.EpilogueUs)
}

func (wm *WavePersistentModel) String() string {
	return fmt.Sprintf("WavePersistentModel: {overheadCycles=%v, epilogueMinLatency=%v, %s}",
		ptr.Deref(wm.opts.FixedOverheadCycles, 0), ptr.Deref(wm.opts.EpilogueMinLatency, 0), wm.acc)
}
