package manager

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/llm-d-incubation/gemm-perf-model/internal/logger"
	"github.com/llm-d-incubation/gemm-perf-model/internal/metrics"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/analyzer"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
)

// Evaluates GEMM configurations against one performance model
type Manager struct {
	model   analyzer.PerfModel
	workers int
	emitter *metrics.MetricsEmitter
}

// Create a manager; workers <= 0 uses one worker per CPU, a nil emitter disables metrics
func NewManager(model analyzer.PerfModel, workers int, emitter *metrics.MetricsEmitter) *Manager {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Manager{
		model:   model,
		workers: workers,
		emitter: emitter,
	}
}

func (m *Manager) Model() analyzer.PerfModel {
	return m.model
}

func (m *Manager) Workers() int {
	return m.workers
}

// Predict one configuration
func (m *Manager) Predict(index int, cfg *config.GemmConfig) (*analyzer.Record, error) {
	pred, err := m.model.Predict(cfg)
	if err != nil {
		m.emitter.EmitErrorMetrics(m.model.Name())
		return nil, err
	}
	r := analyzer.NewRecord(index, cfg, pred)
	m.emitter.EmitPredictionMetrics(pred.Model, pred.Bound, len(pred.Mainloop), r.Ratio)
	return r, nil
}

// Predict all rows in parallel; records keep input order.
// The first failing row cancels the rest of the batch.
func (m *Manager) PredictAll(ctx context.Context, rows []config.GemmConfig) ([]*analyzer.Record, error) {
	records := make([]*analyzer.Record, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := m.Predict(i, &rows[i])
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			records[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// the caller may cancel before any row fails
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Log.Debugw("batch predicted", "model", m.model.Name(), "rows", len(rows), "workers", m.workers)
	return records, nil
}

// Copy of records in ascending ratio order; unknown ratios sort last
func SortByRatio(records []*analyzer.Record) []*analyzer.Record {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b *analyzer.Record) int {
		aNaN, bNaN := math.IsNaN(a.Ratio), math.IsNaN(b.Ratio)
		switch {
		case aNaN && bNaN:
			return 0
		case aNaN:
			return 1
		case bNaN:
			return -1
		}
		return cmp.Compare(a.Ratio, b.Ratio)
	})
	return sorted
}

// The n records with the lowest ratio (ascending) and the n with the highest (descending).
// Records without a measured runtime are ignored.
func Extremes(records []*analyzer.Record, n int) (lowest, highest []*analyzer.Record) {
	sorted := SortByRatio(records)
	known := slices.IndexFunc(sorted, func(r *analyzer.Record) bool { return math.IsNaN(r.Ratio) })
	if known >= 0 {
		sorted = sorted[:known]
	}
	n = min(max(n, 0), len(sorted))
	lowest = slices.Clone(sorted[:n])
	highest = slices.Clone(sorted[len(sorted)-n:])
	slices.Reverse(highest)
	return lowest, highest
}
