package core

import (
	"fmt"
	"maps"

	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
)

// Read-only lookup of dtype storage sizes
type DtypeTable struct {
	sizes config.DtypeSizeTable
}

// Create a dtype table from a copy of the given sizes
func NewDtypeTable(sizes config.DtypeSizeTable) (*DtypeTable, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("%w: empty dtype size table", ErrInvalidConfiguration)
	}
	if err := sizes.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return &DtypeTable{sizes: maps.Clone(sizes)}, nil
}

// Dtype table holding the built-in sizes
func DefaultDtypeTable() *DtypeTable {
	return &DtypeTable{sizes: config.DefaultDtypeSizes()}
}

// Storage size (bytes per element) of a dtype
func (t *DtypeTable) Bytes(dtype string) (float64, error) {
	size, ok := t.sizes[config.NormalizeDtype(dtype)]
	if !ok {
		return 0, fmt.Errorf("%w: no size for %q", ErrUnknownDtype, dtype)
	}
	return size, nil
}

func (t *DtypeTable) Len() int {
	return len(t.sizes)
}
