package manager

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/llm-d-incubation/gemm-perf-model/internal/logger"
	"github.com/llm-d-incubation/gemm-perf-model/internal/metrics"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/analyzer"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/core"
)

func b200Model(name string) analyzer.PerfModel {
	spec, ok := config.GPUPreset("B200")
	Expect(ok).To(BeTrue())
	acc, err := core.NewAcceleratorFromSpec(&spec)
	Expect(err).NotTo(HaveOccurred())
	model, err := analyzer.NewModel(name, acc, core.DefaultDtypeTable(), config.ModelOptions{})
	Expect(err).NotTo(HaveOccurred())
	return model
}

func row(m, n, k int, runtimeUs float64) config.GemmConfig {
	return config.GemmConfig{
		ProblemSpec: config.ProblemSpec{
			M: m, N: n, K: k,
			InDtype:  "fp16",
			AccDtype: "fp32",
			OutDtype: "fp16",
		},
		TileConfig: config.TileConfig{
			MMAM: 256, MMAN: 128,
			CTAM: 128, CTAN: 128,
			ClusterM: 2, ClusterN: 1,
		},
		RuntimeUs: runtimeUs,
	}
}

func record(ratio float64) *analyzer.Record {
	return &analyzer.Record{Ratio: ratio}
}

var _ = Describe("Manager", func() {
	var (
		ctx      context.Context
		registry *prometheus.Registry
		emitter  *metrics.MetricsEmitter
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger.Log = zap.NewNop().Sugar()
		registry = prometheus.NewRegistry()
		emitter = metrics.InitMetrics(registry)
	})

	Context("When predicting a batch", func() {
		It("should keep input order and compute ratios", func() {
			mgr := NewManager(b200Model(config.WavePersistentModelName), 4, emitter)
			rows := make([]config.GemmConfig, 0, 64)
			for i := range 64 {
				rows = append(rows, row(256*(i+1), 1024, 512, float64(10*(i+1))))
			}
			rows[10].RuntimeUs = 0

			records, err := mgr.PredictAll(ctx, rows)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(len(rows)))
			for i, r := range records {
				Expect(r.Index).To(Equal(i))
				Expect(r.Config.M).To(Equal(rows[i].M))
				Expect(r.Prediction.Model).To(Equal(config.WavePersistentModelName))
				if i == 10 {
					Expect(math.IsNaN(r.Ratio)).To(BeTrue())
					continue
				}
				Expect(r.Ratio).To(BeNumerically("~", r.Prediction.RuntimeUs/rows[i].RuntimeUs, 1e-12))
			}

			Expect(counterSum(registry, metrics.PredictionsTotalName)).To(BeNumerically("==", 64))
		})

		It("should match sequential prediction", func() {
			model := b200Model(config.RooflineModelName)
			rows := []config.GemmConfig{row(16, 8192, 8192, 50), row(8192, 8192, 8192, 900), row(128, 128, 128, 3)}

			parallel, err := NewManager(model, 3, nil).PredictAll(ctx, rows)
			Expect(err).NotTo(HaveOccurred())
			sequential, err := NewManager(model, 1, nil).PredictAll(ctx, rows)
			Expect(err).NotTo(HaveOccurred())
			for i := range rows {
				Expect(parallel[i].Prediction).To(Equal(sequential[i].Prediction))
			}
			Expect(parallel[0].Prediction.Bound).To(Equal(analyzer.BoundDRAM))
			Expect(parallel[1].Prediction.Bound).To(Equal(analyzer.BoundMath))
		})

		It("should return an empty result for no rows", func() {
			records, err := NewManager(b200Model(config.RooflineModelName), 0, nil).PredictAll(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})

		It("should name the failing row", func() {
			mgr := NewManager(b200Model(config.RooflineModelName), 2, emitter)
			rows := []config.GemmConfig{row(128, 128, 128, 1), row(128, 128, 128, 1), row(128, 128, 128, 1)}
			rows[2].InDtype = "int4"

			records, err := mgr.PredictAll(ctx, rows)
			Expect(err).To(MatchError(core.ErrUnknownDtype))
			Expect(err.Error()).To(ContainSubstring("row 2"))
			Expect(records).To(BeNil())
			Expect(counterSum(registry, metrics.PredictionErrorsTotalName)).To(BeNumerically("==", 1))
		})

		It("should stop on a cancelled context", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := NewManager(b200Model(config.RooflineModelName), 2, nil).PredictAll(cancelled, []config.GemmConfig{row(128, 128, 128, 1)})
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Context("When ranking records", func() {
		records := []*analyzer.Record{record(1.2), record(math.NaN()), record(0.5), record(3.0), record(0.9)}

		It("should sort by ratio with unknown ratios last", func() {
			sorted := SortByRatio(records)
			Expect(sorted).To(HaveLen(5))
			Expect(sorted[0].Ratio).To(Equal(0.5))
			Expect(sorted[3].Ratio).To(Equal(3.0))
			Expect(math.IsNaN(sorted[4].Ratio)).To(BeTrue())
			// input untouched
			Expect(records[0].Ratio).To(Equal(1.2))
		})

		It("should report the lowest and highest ratios", func() {
			lowest, highest := Extremes(records, 2)
			Expect(lowest).To(HaveLen(2))
			Expect(lowest[0].Ratio).To(Equal(0.5))
			Expect(lowest[1].Ratio).To(Equal(0.9))
			Expect(highest).To(HaveLen(2))
			Expect(highest[0].Ratio).To(Equal(3.0))
			Expect(highest[1].Ratio).To(Equal(1.2))
		})

		It("should cap the count at the known records", func() {
			lowest, highest := Extremes(records, 10)
			Expect(lowest).To(HaveLen(4))
			Expect(highest).To(HaveLen(4))
			Expect(highest[3].Ratio).To(Equal(0.5))

			lowest, highest = Extremes(records, -1)
			Expect(lowest).To(BeEmpty())
			Expect(highest).To(BeEmpty())
		})
	})
})

// sum over all series of a counter family
func counterSum(registry *prometheus.Registry, name string) float64 {
	families, err := registry.Gather()
	Expect(err).NotTo(HaveOccurred())
	sum := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}
