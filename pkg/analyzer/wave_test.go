package analyzer

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/core"
)

const (
	testBW          = 3300e9       // bytes/sec
	testSMFlopsFP16 = 312e12 / 132 // FLOPs/sec of one SM
	testClockHz     = 1500e6       // SM clock
	relTol          = 1e-9         // relative tolerance of float comparisons
)

const blockScaledInDtype, sfDtype = "e2m1", "e8m0"

func waveModel(t *testing.T, opts config.ModelOptions) *WavePersistentModel {
	t.Helper()
	return NewWavePersistentModel(testAccelerator(t), core.DefaultDtypeTable(), opts)
}

func sumOfPhases(p *Prediction) float64 {
	total := p.FixedOverheadUs + p.FirstDMAUs + p.LastEpilogueUs
	for _, w := range p.Mainloop {
		total += w.Duration()
	}
	return total
}

func TestWavePersistentModel_SingleTile(t *testing.T) {
	model := waveModel(t, config.ModelOptions{})
	pred, err := model.Predict(gemm(128, 128, 128, "fp16", "fp16"))
	require.NoError(t, err)

	assert.Equal(t, 1, pred.Tiles)
	assert.Equal(t, 0, pred.FullWaves)
	assert.Equal(t, 1, pred.Remainder)
	assert.Equal(t, 132, pred.FullWaveSMs)
	require.Len(t, pred.Mainloop, 1)

	// mma_k = 32 / 2 = 16
	wantFirstDMA := (128*16*2 + 128*16*2) / testBW * 1e6
	wantDMA := (128*128*2 + 128*128*2) / testBW * 1e6
	wantMath := 2 * 128.0 * 128 * 128 / testSMFlopsFP16 * 1e6
	wantEpilogue := 128 * 128 * 2 / testBW * 1e6

	wave := pred.Mainloop[0]
	assert.InEpsilon(t, wantFirstDMA, pred.FirstDMAUs, relTol)
	assert.InEpsilon(t, wantDMA, wave.DMAUs, relTol)
	assert.InEpsilon(t, wantMath, wave.MathUs, relTol)
	assert.InEpsilon(t, wantEpilogue, wave.EpilogueUs, relTol)
	assert.Equal(t, LimiterMath, wave.Limiter())
	assert.Equal(t, wave.EpilogueUs, pred.LastEpilogueUs)
	assert.Zero(t, pred.FixedOverheadUs)
	assert.InEpsilon(t, wantFirstDMA+wantMath+wantEpilogue, pred.RuntimeUs, relTol)
}

func TestWavePersistentModel_Waves(t *testing.T) {
	model := waveModel(t, config.ModelOptions{})

	tests := []struct {
		name            string
		m, n            int
		ctaM, ctaN      int
		clusterM        int
		clusterN        int
		wantTiles       int
		wantFullWaveSMs int
		wantFullWaves   int
		wantRemainder   int
	}{
		{
			name: "fewer tiles than SMs",
			m:    1024, n: 1024, ctaM: 128, ctaN: 128, clusterM: 1, clusterN: 1,
			wantTiles: 64, wantFullWaveSMs: 132, wantFullWaves: 0, wantRemainder: 64,
		},
		{
			name: "exact multiple of a full wave",
			m:    132 * 128, n: 256, ctaM: 128, ctaN: 128, clusterM: 1, clusterN: 1,
			wantTiles: 264, wantFullWaveSMs: 132, wantFullWaves: 2, wantRemainder: 0,
		},
		{
			name: "full waves and a partial wave",
			m:    4096, n: 4096, ctaM: 128, ctaN: 128, clusterM: 1, clusterN: 1,
			wantTiles: 1024, wantFullWaveSMs: 132, wantFullWaves: 7, wantRemainder: 100,
		},
		{
			name: "2x2 cluster divides SM count",
			m:    4096, n: 4096, ctaM: 128, ctaN: 256, clusterM: 2, clusterN: 2,
			wantTiles: 512, wantFullWaveSMs: 132, wantFullWaves: 3, wantRemainder: 116,
		},
		{
			name: "cluster of 5 leaves SMs idle",
			m:    4096, n: 4096, ctaM: 128, ctaN: 128, clusterM: 5, clusterN: 1,
			// ceil(4096/640)=7 x 32 cluster tiles, 5 CTAs each
			wantTiles: 1120, wantFullWaveSMs: 130, wantFullWaves: 8, wantRemainder: 80,
		},
		{
			name: "partial cluster tiles are padded",
			m:    200, n: 100, ctaM: 128, ctaN: 64, clusterM: 2, clusterN: 1,
			wantTiles: 4, wantFullWaveSMs: 132, wantFullWaves: 0, wantRemainder: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := gemm(tt.m, tt.n, 2048, "fp16", "fp16")
			cfg.CTAM, cfg.CTAN = tt.ctaM, tt.ctaN
			cfg.ClusterM, cfg.ClusterN = tt.clusterM, tt.clusterN

			pred, err := model.Predict(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTiles, pred.Tiles)
			assert.Equal(t, tt.wantFullWaveSMs, pred.FullWaveSMs)
			assert.Equal(t, tt.wantFullWaves, pred.FullWaves)
			assert.Equal(t, tt.wantRemainder, pred.Remainder)

			wantWaves := tt.wantFullWaves
			if tt.wantRemainder > 0 {
				wantWaves++
			}
			require.Len(t, pred.Mainloop, wantWaves)
			assert.Equal(t, pred.Mainloop[len(pred.Mainloop)-1].EpilogueUs, pred.LastEpilogueUs)
			assert.InEpsilon(t, sumOfPhases(pred), pred.RuntimeUs, relTol)
		})
	}
}

func TestWavePersistentModel_ClusterSharing(t *testing.T) {
	model := waveModel(t, config.ModelOptions{})
	cfg := gemm(128*2, 128*2, 1024, "fp16", "fp16")
	cfg.ClusterM, cfg.ClusterN = 2, 2

	pred, err := model.Predict(cfg)
	require.NoError(t, err)
	require.Equal(t, 4, pred.Tiles)

	// each operand is multicast to the cluster extent of the other dimension
	aTile := 128.0 * 16 * 2
	bTile := 128.0 * 16 * 2
	wantFirstDMA := 4 * (aTile/2 + bTile/2) / testBW * 1e6
	assert.InEpsilon(t, wantFirstDMA, pred.FirstDMAUs, relTol)

	wantDMA := 4 * (128.0*1024*2/2 + 128.0*1024*2/2) / testBW * 1e6
	assert.InEpsilon(t, wantDMA, pred.Mainloop[0].DMAUs, relTol)
}

func TestWavePersistentModel_ModelOptions(t *testing.T) {
	cfg := gemm(4096, 4096, 4096, "fp16", "fp16")
	base, err := waveModel(t, config.ModelOptions{}).Predict(cfg)
	require.NoError(t, err)

	opts := config.ModelOptions{
		FixedOverheadCycles: ptr.To(3000.0),
		EpilogueMinLatency:  ptr.To(1500.0),
	}
	tuned, err := waveModel(t, opts).Predict(cfg)
	require.NoError(t, err)

	assert.InEpsilon(t, 3000/testClockHz*1e6, tuned.FixedOverheadUs, relTol)
	require.Len(t, tuned.Mainloop, len(base.Mainloop))
	for i := range tuned.Mainloop {
		assert.InEpsilon(t, base.Mainloop[i].EpilogueUs+1500/testClockHz*1e6, tuned.Mainloop[i].EpilogueUs, relTol)
	}
	assert.Greater(t, tuned.RuntimeUs, base.RuntimeUs)
	assert.InEpsilon(t, sumOfPhases(tuned), tuned.RuntimeUs, relTol)

	// zero cycles behaves as unset
	zero, err := waveModel(t, config.ModelOptions{FixedOverheadCycles: ptr.To(0.0)}).Predict(cfg)
	require.NoError(t, err)
	assert.Equal(t, base.RuntimeUs, zero.RuntimeUs)
}

func TestWavePersistentModel_BlockScaled(t *testing.T) {
	model := waveModel(t, config.ModelOptions{})
	cfg := gemm(256, 256, 1024, blockScaledInDtype, "fp32")
	cfg.SFDtype = sfDtype
	cfg.SFVecSize = 16

	pred, err := model.Predict(cfg)
	require.NoError(t, err)
	require.Equal(t, 4, pred.Tiles)

	// mma_k = 32 / 0.5 = 64 elements, 4 scale factors of 1 byte per row
	operand := 128.0 * 64 * 0.5
	sf := 128.0 * 64 / 16 * 1
	wantFirstDMA := 4 * (2 * (operand + sf)) / testBW * 1e6
	assert.InEpsilon(t, wantFirstDMA, pred.FirstDMAUs, relTol)

	wantEpilogue := 128 * 128 * 4 * 4 / testBW * 1e6
	assert.InEpsilon(t, wantEpilogue, pred.LastEpilogueUs, relTol)
}

func TestWavePersistentModel_DegenerateProblem(t *testing.T) {
	model := waveModel(t, config.ModelOptions{FixedOverheadCycles: ptr.To(1500.0)})
	for _, dims := range [][3]int{{0, 128, 128}, {128, 0, 128}, {0, 0, 0}} {
		pred, err := model.Predict(gemm(dims[0], dims[1], dims[2], "fp16", "fp16"))
		require.NoError(t, err)
		assert.Zero(t, pred.Tiles)
		assert.Empty(t, pred.Mainloop)
		assert.Zero(t, pred.FirstDMAUs)
		assert.Zero(t, pred.LastEpilogueUs)
		assert.InEpsilon(t, 1.0, pred.RuntimeUs, relTol)
	}

	// k=0 still schedules tiles, with no compute
	pred, err := model.Predict(gemm(256, 256, 0, "fp16", "fp16"))
	require.NoError(t, err)
	require.Len(t, pred.Mainloop, 1)
	assert.Zero(t, pred.Mainloop[0].MathUs)
	assert.Equal(t, LimiterEpilogue, pred.Mainloop[0].Limiter())
}

func TestWavePersistentModel_Errors(t *testing.T) {
	model := waveModel(t, config.ModelOptions{})

	tests := []struct {
		name    string
		mutate  func(*config.GemmConfig)
		wantErr error
	}{
		{"zero cluster", func(c *config.GemmConfig) { c.ClusterM = 0 }, core.ErrInvalidConfiguration},
		{"negative cluster", func(c *config.GemmConfig) { c.ClusterN = -2 }, core.ErrInvalidConfiguration},
		{"zero cta", func(c *config.GemmConfig) { c.CTAN = 0 }, core.ErrInvalidConfiguration},
		{"cluster larger than device", func(c *config.GemmConfig) { c.ClusterM, c.ClusterN = 16, 16 }, core.ErrInvalidConfiguration},
		{"negative m", func(c *config.GemmConfig) { c.M = -128 }, core.ErrInvalidConfiguration},
		{"negative sf vector", func(c *config.GemmConfig) { c.SFVecSize = -16 }, core.ErrInvalidConfiguration},
		{"unknown in dtype", func(c *config.GemmConfig) { c.InDtype = "fp6" }, core.ErrUnknownDtype},
		{"unknown out dtype", func(c *config.GemmConfig) { c.OutDtype = "int4" }, core.ErrUnknownDtype},
		{"unknown scale factor dtype", func(c *config.GemmConfig) {
			c.InDtype, c.OutDtype = "e2m1", "fp32"
			c.SFDtype, c.SFVecSize = "ue4m3", 16
		}, core.ErrUnknownDtype},
		{"missing scale factor dtype", func(c *config.GemmConfig) {
			c.InDtype, c.OutDtype = "e2m1", "fp32"
			c.SFDtype, c.SFVecSize = "", 32
		}, core.ErrUnknownDtype},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := gemm(1024, 1024, 1024, "fp16", "fp16")
			tt.mutate(cfg)
			_, err := model.Predict(cfg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWavePersistentModel_NonNegative(t *testing.T) {
	model := waveModel(t, config.ModelOptions{EpilogueMinLatency: ptr.To(200.0)})
	for _, m := range []int{1, 64, 1000, 8192} {
		for _, n := range []int{1, 256, 7168} {
			for _, k := range []int{0, 32, 7168} {
				for _, cluster := range []config.Shape{{M: 1, N: 1}, {M: 2, N: 1}, {M: 2, N: 2}, {M: 4, N: 4}} {
					cfg := gemm(m, n, k, "fp8", "fp16")
					cfg.ClusterM, cfg.ClusterN = cluster.M, cluster.N
					pred, err := model.Predict(cfg)
					require.NoError(t, err)
					assert.False(t, math.IsNaN(pred.RuntimeUs))
					assert.GreaterOrEqual(t, pred.RuntimeUs, 0.0)
					assert.GreaterOrEqual(t, pred.FirstDMAUs, 0.0)
					for _, w := range pred.Mainloop {
						assert.GreaterOrEqual(t, w.DMAUs, 0.0)
						assert.GreaterOrEqual(t, w.MathUs, 0.0)
						assert.GreaterOrEqual(t, w.EpilogueUs, 0.0)
					}
					assert.InDelta(t, sumOfPhases(pred), pred.RuntimeUs, 1e-9*max(1, pred.RuntimeUs))
				}
			}
		}
	}
}

func TestWavePersistentModel_PrintSummary(t *testing.T) {
	model := waveModel(t, config.ModelOptions{})

	cfg := gemm(4096, 4096, 4096, "fp16", "fp16")
	cfg.RuntimeUs = 600
	pred, err := model.Predict(cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	model.PrintSummary(&buf, NewRecord(0, cfg, pred))
	out := buf.String()
	assert.Contains(t, out, "MNK 4096 4096 4096")
	assert.Contains(t, out, "CTA (128 128)")
	assert.Contains(t, out, "CLUSTER (1 1)")
	// no operand reuse across waves, so full waves wait on DMA
	assert.Contains(t, out, "Limiter: DMA")
	assert.Contains(t, out, "Last Wave")

	buf.Reset()
	empty := gemm(0, 0, 0, "fp16", "fp16")
	pred, err = model.Predict(empty)
	require.NoError(t, err)
	model.PrintSummary(&buf, NewRecord(1, empty, pred))
	assert.Contains(t, buf.String(), "(no tiles)")
}

func TestWaveTiming_Limiter(t *testing.T) {
	tests := []struct {
		timing WaveTiming
		want   string
	}{
		{WaveTiming{DMAUs: 3, MathUs: 2, EpilogueUs: 1}, LimiterDMA},
		{WaveTiming{DMAUs: 1, MathUs: 3, EpilogueUs: 2}, LimiterMath},
		{WaveTiming{DMAUs: 1, MathUs: 2, EpilogueUs: 3}, LimiterEpilogue},
		{WaveTiming{DMAUs: 2, MathUs: 2, EpilogueUs: 2}, LimiterDMA},
		{WaveTiming{DMAUs: 1, MathUs: 2, EpilogueUs: 2}, LimiterMath},
	}
	for _, tt := range tests {
		if got := tt.timing.Limiter(); got != tt.want {
			t.Errorf("WaveTiming%v.Limiter() = %v, want %v", tt.timing, got, tt.want)
		}
	}
}
