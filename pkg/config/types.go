package config

// Data read from a model configuration file
type ConfigData struct {
	Model      string         `json:"model" yaml:"model"`                               // name of performance model
	GPU        GPUSpec        `json:"gpu" yaml:"gpu"`                                   // target accelerator
	GPUPreset  string         `json:"gpuPreset,omitempty" yaml:"gpuPreset,omitempty"`   // name of built-in accelerator (non-zero gpu fields override it)
	ModelOpts  ModelOptions   `json:"modelOpts" yaml:"modelOpts"`                       // model tunables
	DtypeSizes DtypeSizeTable `json:"dtypeSizes,omitempty" yaml:"dtypeSizes,omitempty"` // extra or overriding dtype sizes
	Server     *ServerSpec    `json:"server,omitempty" yaml:"server,omitempty"`         // REST server settings
	Sweep      *SweepSpec     `json:"sweep,omitempty" yaml:"sweep,omitempty"`           // benchmark sweep settings
	Workers    int            `json:"workers,omitempty" yaml:"workers,omitempty"`       // parallel predictions (0 = number of CPUs)
}

// Specifications of a GPU (hardware description)
type GPUSpec struct {
	Name         string             `json:"name" yaml:"name"`                 // name of accelerator (e.g. B200)
	NumSMs       int                `json:"numSMs" yaml:"numSMs"`             // number of streaming multiprocessors
	SMClockMHz   float64            `json:"smClockMHz" yaml:"smClockMHz"`     // SM clock
	DRAMBusWidth int                `json:"dramBusWidth" yaml:"dramBusWidth"` // bits
	DRAMClockMHz float64            `json:"dramClockMHz" yaml:"dramClockMHz"` // DRAM clock (double data rate)
	MMAFlops     map[string]float64 `json:"mmaFlops" yaml:"mmaFlops"`         // dtype -> peak FLOPs/cycle/SM
}

// Tunables of a performance model; nil fields mean no adjustment
type ModelOptions struct {
	FixedOverheadCycles *float64 `json:"fixedOverheadCycles,omitempty" yaml:"fixedOverheadCycles,omitempty"` // constant startup latency (cycles)
	EpilogueMinLatency  *float64 `json:"epilogueMinLatency,omitempty" yaml:"epilogueMinLatency,omitempty"`   // floor added to each wave epilogue (cycles)
}

// Storage size of numeric types in bytes (fractional for packed sub-byte types)
type DtypeSizeTable map[string]float64

// One GEMM instance; dimensions are already padded to the element alignment
type ProblemSpec struct {
	M         int    `json:"m" yaml:"m"`
	N         int    `json:"n" yaml:"n"`
	K         int    `json:"k" yaml:"k"`
	InDtype   string `json:"inDtype" yaml:"inDtype"`
	AccDtype  string `json:"accDtype" yaml:"accDtype"`
	OutDtype  string `json:"outDtype" yaml:"outDtype"`
	SFDtype   string `json:"sfDtype,omitempty" yaml:"sfDtype,omitempty"`     // scale-factor type (block-scaled only)
	SFVecSize int    `json:"sfVecSize,omitempty" yaml:"sfVecSize,omitempty"` // elements sharing one scale factor (0 = not block-scaled)
	AMajor    string `json:"aMajor,omitempty" yaml:"aMajor,omitempty"`       // layouts are carried but not used in timing
	BMajor    string `json:"bMajor,omitempty" yaml:"bMajor,omitempty"`
	CMajor    string `json:"cMajor,omitempty" yaml:"cMajor,omitempty"`
}

// Kernel scheduling parameters
type TileConfig struct {
	MMAM     int `json:"mmaM" yaml:"mmaM"`
	MMAN     int `json:"mmaN" yaml:"mmaN"`
	CTAM     int `json:"ctaM" yaml:"ctaM"`
	CTAN     int `json:"ctaN" yaml:"ctaN"`
	ClusterM int `json:"clusterM" yaml:"clusterM"`
	ClusterN int `json:"clusterN" yaml:"clusterN"`
}

// A problem, the kernel tiling used to run it, and (optionally) its measured runtime
type GemmConfig struct {
	ProblemSpec `yaml:",inline"`
	TileConfig  `yaml:",inline"`
	RuntimeUs   float64 `json:"runtimeUs,omitempty" yaml:"runtimeUs,omitempty"` // measured runtime (usec), 0 if unknown
}

// Specifications of the REST server
type ServerSpec struct {
	Host string `json:"host" yaml:"host"`
	Port string `json:"port" yaml:"port"`
}

// Extents of a tile (CTA or cluster) in the M and N dimensions
type Shape struct {
	M int `json:"m" yaml:"m"`
	N int `json:"n" yaml:"n"`
}

// Specifications of a benchmark sweep
type SweepSpec struct {
	CTAShapes            []Shape `json:"ctaShapes,omitempty" yaml:"ctaShapes,omitempty"`
	BlockScaledCTAShapes []Shape `json:"blockScaledCTAShapes,omitempty" yaml:"blockScaledCTAShapes,omitempty"`
	ClusterShapes        []Shape `json:"clusterShapes,omitempty" yaml:"clusterShapes,omitempty"`
}

// Whether the problem uses a block-scaled (microscaling) format
func (p *ProblemSpec) IsBlockScaled() bool {
	return p.SFVecSize > 0
}
