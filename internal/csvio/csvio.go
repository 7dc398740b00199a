package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"

	"github.com/llm-d-incubation/gemm-perf-model/pkg/analyzer"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/sweep"
)

// Configuration columns, in the order the benchmark harness writes them
var ConfigColumns = []string{
	"in_dtype", "acc_dtype", "out_dtype", "sf_dtype", "sf_vec_size",
	"a_major", "b_major", "c_major",
	"mma_m", "mma_n", "cta_m", "cta_n", "cluster_m", "cluster_n",
	"m", "n", "k",
}

// measured runtime column (usec), optional on input
const RuntimeColumn = "runtime_us"

// prediction columns appended to every output row
var predictionColumns = []string{"row_idx", "actual_runtime", "predicted_runtime", "ratio"}

// phase breakdown columns of the persistent kernel model
var waveColumns = []string{
	"fixed_overhead", "first_dma", "mainloop", "last_epilogue",
	"tiles", "num_waves", "full_waves", "remainder",
	"first_wave_dma", "first_wave_math", "first_wave_epilogue",
	"last_wave_dma", "last_wave_math", "last_wave_epilogue",
}

// roofline columns
var boundColumns = []string{"bound", "math", "dram"}

// header index of a CSV file
type header map[string]int

func newHeader(row []string, required []string) (header, error) {
	h := header{}
	for i, name := range row {
		h[name] = i
	}
	var missing []string
	for _, name := range required {
		if _, ok := h[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns %v", missing)
	}
	return h, nil
}

// row parser; the first error sticks
type rowReader struct {
	h    header
	row  []string
	line int
	err  error
}

func (r *rowReader) strCol(col string) string {
	i, ok := r.h[col]
	if !ok || i >= len(r.row) {
		return ""
	}
	return r.row[i]
}

// required integer column
func (r *rowReader) intCol(col string) int {
	if r.err != nil {
		return 0
	}
	if r.strCol(col) == "" {
		r.err = fmt.Errorf("row %d: missing %s", r.line, col)
		return 0
	}
	return r.optIntCol(col)
}

// integer column where an empty cell reads as 0
func (r *rowReader) optIntCol(col string) int {
	if r.err != nil {
		return 0
	}
	s := r.strCol(col)
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		// integers written as floats, e.g. 0.0
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) || f < math.MinInt || f >= math.MaxInt {
			r.err = fmt.Errorf("row %d: invalid %s %q: %w", r.line, col, s, err)
			return 0
		}
		v = int(f)
	}
	return v
}

func (r *rowReader) floatCol(col string) float64 {
	if r.err != nil {
		return 0
	}
	s := r.strCol(col)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.err = fmt.Errorf("row %d: invalid %s %q: %w", r.line, col, s, err)
		return 0
	}
	return v
}

// Read GEMM configurations; the header names the columns, runtime_us is optional.
// Error messages give the line number in the file.
func ReadConfigs(in io.Reader) ([]config.GemmConfig, error) {
	rows, err := csv.NewReader(in).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read configs CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("configs CSV empty or missing header")
	}
	h, err := newHeader(rows[0], ConfigColumns)
	if err != nil {
		return nil, fmt.Errorf("configs CSV: %w", err)
	}

	configs := make([]config.GemmConfig, 0, len(rows)-1)
	for i, row := range rows[1:] { // Skip header
		r := &rowReader{h: h, row: row, line: i + 2}
		cfg := config.GemmConfig{
			ProblemSpec: config.ProblemSpec{
				M:         r.intCol("m"),
				N:         r.intCol("n"),
				K:         r.intCol("k"),
				InDtype:   r.strCol("in_dtype"),
				AccDtype:  r.strCol("acc_dtype"),
				OutDtype:  r.strCol("out_dtype"),
				SFDtype:   r.strCol("sf_dtype"),
				SFVecSize: r.optIntCol("sf_vec_size"),
				AMajor:    r.strCol("a_major"),
				BMajor:    r.strCol("b_major"),
				CMajor:    r.strCol("c_major"),
			},
			TileConfig: config.TileConfig{
				MMAM:     r.intCol("mma_m"),
				MMAN:     r.intCol("mma_n"),
				CTAM:     r.intCol("cta_m"),
				CTAN:     r.intCol("cta_n"),
				ClusterM: r.intCol("cluster_m"),
				ClusterN: r.intCol("cluster_n"),
			},
			RuntimeUs: r.floatCol(RuntimeColumn),
		}
		if r.err != nil {
			return nil, r.err
		}
		if cfg.InDtype == "" || cfg.OutDtype == "" {
			return nil, fmt.Errorf("row %d: in_dtype and out_dtype are required", r.line)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Read m,n,k problem shapes
func ReadShapes(in io.Reader) ([]sweep.MNK, error) {
	rows, err := csv.NewReader(in).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read shapes CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("shapes CSV empty or missing header")
	}
	h, err := newHeader(rows[0], []string{"m", "n", "k"})
	if err != nil {
		return nil, fmt.Errorf("shapes CSV: %w", err)
	}
	shapes := make([]sweep.MNK, 0, len(rows)-1)
	for i, row := range rows[1:] {
		r := &rowReader{h: h, row: row, line: i + 2}
		s := sweep.MNK{M: r.intCol("m"), N: r.intCol("n"), K: r.intCol("k")}
		if r.err != nil {
			return nil, r.err
		}
		shapes = append(shapes, s)
	}
	return shapes, nil
}

func configFields(c *config.GemmConfig) []string {
	return []string{
		c.InDtype, c.AccDtype, c.OutDtype, c.SFDtype, strconv.Itoa(c.SFVecSize),
		c.AMajor, c.BMajor, c.CMajor,
		strconv.Itoa(c.MMAM), strconv.Itoa(c.MMAN), strconv.Itoa(c.CTAM), strconv.Itoa(c.CTAN),
		strconv.Itoa(c.ClusterM), strconv.Itoa(c.ClusterN),
		strconv.Itoa(c.M), strconv.Itoa(c.N), strconv.Itoa(c.K),
	}
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Write configurations with an empty runtime column for the benchmark harness to fill
func WriteConfigs(out io.Writer, configs []config.GemmConfig) error {
	w := csv.NewWriter(out)
	if err := w.Write(append(slices.Clone(ConfigColumns), RuntimeColumn)); err != nil {
		return err
	}
	for i := range configs {
		runtime := ""
		if configs[i].RuntimeUs > 0 {
			runtime = formatFloat(configs[i].RuntimeUs)
		}
		if err := w.Write(append(configFields(&configs[i]), runtime)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Write prediction records: configuration, measured and predicted runtime, ratio, and
// either the wave phase breakdown or the roofline bound. Unknown ratios are left empty.
func WriteRecords(out io.Writer, records []*analyzer.Record, wave bool) error {
	w := csv.NewWriter(out)
	cols := slices.Concat(ConfigColumns, predictionColumns)
	if wave {
		cols = append(cols, waveColumns...)
	} else {
		cols = append(cols, boundColumns...)
	}
	if err := w.Write(cols); err != nil {
		return err
	}
	for _, r := range records {
		p := r.Prediction
		row := configFields(&r.Config)
		row = append(row,
			strconv.Itoa(r.Index), formatFloat(r.ActualUs), formatFloat(p.RuntimeUs), formatFloat(r.Ratio))
		if wave {
			row = append(row, waveFields(p)...)
		} else {
			row = append(row, p.Bound, formatFloat(p.MathUs), formatFloat(p.DRAMUs))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func waveFields(p *analyzer.Prediction) []string {
	var first, last analyzer.WaveTiming
	if n := len(p.Mainloop); n > 0 {
		first, last = p.Mainloop[0], p.Mainloop[n-1]
	}
	return []string{
		formatFloat(p.FixedOverheadUs), formatFloat(p.FirstDMAUs), formatFloat(p.MainloopUs), formatFloat(p.LastEpilogueUs),
		strconv.Itoa(p.Tiles), strconv.Itoa(len(p.Mainloop)), strconv.Itoa(p.FullWaves), strconv.Itoa(p.Remainder),
		formatFloat(first.DMAUs), formatFloat(first.MathUs), formatFloat(first.EpilogueUs),
		formatFloat(last.DMAUs), formatFloat(last.MathUs), formatFloat(last.EpilogueUs),
	}
}
