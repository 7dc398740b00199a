package sweep

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/core"
)

var ErrUnsupportedDtype = errors.New("unsupported sweep dtype")

// Problem dimensions of one sweep row, before padding
type MNK struct {
	M int `json:"m" yaml:"m"`
	N int `json:"n" yaml:"n"`
	K int `json:"k" yaml:"k"`
}

// Operand, output and scale-factor types benchmarked for a sweep dtype
type Recipe struct {
	Name      string
	InDtype   string
	OutDtype  string
	SFDtype   string
	SFVecSize int
}

func (r Recipe) IsBlockScaled() bool {
	return r.SFVecSize > 0
}

// block-scaled formats write fp32 output
var blockScaledRecipes = map[string]Recipe{
	"mxfp8": {Name: "mxfp8", InDtype: "e4m3", OutDtype: "fp32", SFDtype: "e8m0", SFVecSize: 32},
	"mxfp4": {Name: "mxfp4", InDtype: "e2m1", OutDtype: "fp32", SFDtype: "e8m0", SFVecSize: 32},
	"nvfp4": {Name: "nvfp4", InDtype: "e2m1", OutDtype: "fp32", SFDtype: "e8m0", SFVecSize: 16},
}

// plain formats use the same input and output type
var plainDtypes = []string{"fp32", "fp16", "fp8"}

// Sweep dtypes accepted by RecipeFor
func SupportedDtypes() []string {
	names := slices.Clone(plainDtypes)
	for name := range blockScaledRecipes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Recipe of a sweep dtype
func RecipeFor(dtype string) (Recipe, error) {
	if recipe, ok := blockScaledRecipes[dtype]; ok {
		return recipe, nil
	}
	if slices.Contains(plainDtypes, dtype) {
		return Recipe{Name: dtype, InDtype: dtype, OutDtype: dtype}, nil
	}
	// mx and nv prefixes are reserved for block-scaled formats
	if strings.HasPrefix(dtype, "mx") || strings.HasPrefix(dtype, "nv") {
		return Recipe{}, fmt.Errorf("%w: block-scaled %q", ErrUnsupportedDtype, dtype)
	}
	return Recipe{}, fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedDtype, dtype, SupportedDtypes())
}

// Pad every dimension to the element alignment for elements of the given size.
// Only the contiguous dimension needs alignment, all are padded for simplicity.
func PadMNK(m, n, k int, bytes float64) (int, int, int) {
	alignment := int(math.Round(config.ElementAlignmentBytes / bytes))
	if alignment <= 1 {
		return m, n, k
	}
	align := func(x int) int {
		return (x + alignment - 1) / alignment * alignment
	}
	return align(m), align(n), align(k)
}

// Builds benchmark grids over CTA and cluster shapes
type Generator struct {
	ctaShapes            []config.Shape
	blockScaledCTAShapes []config.Shape
	clusterShapes        []config.Shape
	dtypes               *core.DtypeTable
}

// Create a generator; empty fields of spec (or a nil spec) use the default shapes
func NewGenerator(spec *config.SweepSpec, dtypes *core.DtypeTable) *Generator {
	g := &Generator{
		ctaShapes:            config.DefaultCTAShapes,
		blockScaledCTAShapes: config.DefaultBlockScaledCTAShapes,
		clusterShapes:        config.DefaultClusterShapes,
		dtypes:               dtypes,
	}
	if g.dtypes == nil {
		g.dtypes = core.DefaultDtypeTable()
	}
	if spec == nil {
		return g
	}
	if len(spec.CTAShapes) > 0 {
		g.ctaShapes = spec.CTAShapes
	}
	if len(spec.BlockScaledCTAShapes) > 0 {
		g.blockScaledCTAShapes = spec.BlockScaledCTAShapes
	}
	if len(spec.ClusterShapes) > 0 {
		g.clusterShapes = spec.ClusterShapes
	}
	return g
}

// Generate the grid with the default shapes
func Generate(shapes []MNK, dtype string) ([]config.GemmConfig, error) {
	return NewGenerator(nil, nil).Generate(shapes, dtype)
}

// Generate one configuration per problem, CTA shape and cluster shape, in that nesting order.
// The 2-CTA MMA spans twice the CTA tile in M.
func (g *Generator) Generate(shapes []MNK, dtype string) ([]config.GemmConfig, error) {
	recipe, err := RecipeFor(dtype)
	if err != nil {
		return nil, err
	}
	bytes, err := g.dtypes.Bytes(recipe.Name)
	if err != nil {
		return nil, err
	}
	ctaShapes := g.ctaShapes
	if recipe.IsBlockScaled() {
		ctaShapes = g.blockScaledCTAShapes
	}

	configs := make([]config.GemmConfig, 0, len(shapes)*len(ctaShapes)*len(g.clusterShapes))
	for i, s := range shapes {
		if s.M < 0 || s.N < 0 || s.K < 0 {
			return nil, fmt.Errorf("%w: shape %d has negative dimensions (%d, %d, %d)",
				core.ErrInvalidConfiguration, i, s.M, s.N, s.K)
		}
		m, n, k := PadMNK(s.M, s.N, s.K, bytes)
		for _, cta := range ctaShapes {
			for _, cluster := range g.clusterShapes {
				configs = append(configs, config.GemmConfig{
					ProblemSpec: config.ProblemSpec{
						M: m, N: n, K: k,
						InDtype:   recipe.InDtype,
						AccDtype:  config.DefaultAccDtype,
						OutDtype:  recipe.OutDtype,
						SFDtype:   recipe.SFDtype,
						SFVecSize: recipe.SFVecSize,
						AMajor:    config.DefaultAMajor,
						BMajor:    config.DefaultBMajor,
						CMajor:    config.DefaultCMajor,
					},
					TileConfig: config.TileConfig{
						MMAM:     2 * cta.M,
						MMAN:     cta.N,
						CTAM:     cta.M,
						CTAN:     cta.N,
						ClusterM: cluster.M,
						ClusterN: cluster.N,
					},
				})
			}
		}
	}
	return configs, nil
}
