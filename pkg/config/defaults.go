package config

import "maps"

/**
 * Model names
 */

const RooflineModelName = "RooflineModel"
const WavePersistentModelName = "WavePersistentModel"

// names used by earlier calibration scripts, still accepted
const SOLModelAlias = "SOLModel"
const WSPersistentGEMMModelAlias = "WSPersistentGEMMModel"

// model used when the configuration does not name one
const DefaultModelName = WavePersistentModelName

/**
 * Hardware constants
 */

// bytes per MMA instruction operand slice along K
const MMAOperandBytes = 32

// contiguous dimension alignment required by the TMA unit (bytes)
const ElementAlignmentBytes = 16

/**
 * Data types
 */

// generic buckets for narrow precision encodings
const (
	FP4 = "fp4"
	FP8 = "fp8"
)

// encodings folded into a generic bucket before any size or throughput lookup
var dtypeAliases = map[string]string{
	"e2m1": FP4,
	"e3m2": FP8,
}

var defaultDtypeSizes = DtypeSizeTable{
	"mxfp8": 1,
	"mxfp4": 0.5,
	"nvfp4": 0.5,
	"fp4":   0.5,
	"e2m1":  0.5,
	"e4m3":  1,
	"e3m2":  1,
	"e8m0":  1,
	"fp8":   1,
	"fp16":  2,
	"bf16":  2,
	"fp32":  4,
}

// Fresh copy of the built-in dtype size table
func DefaultDtypeSizes() DtypeSizeTable {
	return maps.Clone(defaultDtypeSizes)
}

// Map an encoding name to the bucket used for lookups
func NormalizeDtype(dtype string) string {
	if bucket, ok := dtypeAliases[dtype]; ok {
		return bucket
	}
	return dtype
}

/**
 * GPU presets
 */

// Approximate dense tensor-core figures; clocks are sustained rather than boost.
var gpuPresets = map[string]GPUSpec{
	"B200": {
		Name:         "B200",
		NumSMs:       148,
		SMClockMHz:   1965,
		DRAMBusWidth: 8192,
		DRAMClockMHz: 3996,
		MMAFlops: map[string]float64{
			"fp32": 4096,
			"fp16": 8192,
			"bf16": 8192,
			"fp8":  16384,
			"e4m3": 16384,
			"fp4":  32768,
		},
	},
	"H100-SXM": {
		Name:         "H100-SXM",
		NumSMs:       132,
		SMClockMHz:   1830,
		DRAMBusWidth: 5120,
		DRAMClockMHz: 2619,
		MMAFlops: map[string]float64{
			"fp32": 2048,
			"fp16": 4096,
			"bf16": 4096,
			"fp8":  8192,
			"e4m3": 8192,
		},
	},
}

// Built-in accelerator by name
func GPUPreset(name string) (GPUSpec, bool) {
	spec, ok := gpuPresets[name]
	if !ok {
		return GPUSpec{}, false
	}
	spec.MMAFlops = maps.Clone(spec.MMAFlops)
	return spec, true
}

/**
 * Sweep defaults
 */

var DefaultCTAShapes = []Shape{
	{64, 64}, {64, 128}, {64, 192}, {64, 256},
	{128, 64}, {128, 128}, {128, 192}, {128, 256},
}

var DefaultBlockScaledCTAShapes = []Shape{
	{128, 64}, {128, 128}, {128, 192}, {128, 256},
}

var DefaultClusterShapes = []Shape{
	{2, 1}, {2, 2},
}

// accumulator type used by every sweep entry
const DefaultAccDtype = "fp32"

// operand and output layouts used by every sweep entry
const (
	DefaultAMajor = "k"
	DefaultBMajor = "k"
	DefaultCMajor = "n"
)
