package codegen

import (
	"fmt"

	"tvmc/internal/config"
)

// ---------------------------------------------------------------------------
// Target: fixed VM limits the backend lays data out against
// ---------------------------------------------------------------------------

// Target holds the VM capacity constants. They are configuration, never
// computed: cell boundaries must be identical across compilations.
type Target struct {
	CellBits       int // data bits per cell
	CellRefs       int // references per cell
	ArrayKeyLength int // key width of the index => element dictionary
	AddressBits    int // bits of a standard internal address
	DictValueBits  int // key plus value budget of a dictionary leaf
}

// DefaultTarget returns the limits of the standard VM configuration.
func DefaultTarget() *Target {
	return TargetFromConfig(config.Default())
}

// TargetFromConfig reads the VM section of cfg.
func TargetFromConfig(cfg *config.Config) *Target {
	return &Target{
		CellBits:       cfg.VM.CellBits,
		CellRefs:       cfg.VM.CellRefs,
		ArrayKeyLength: cfg.VM.ArrayKeyLength,
		AddressBits:    cfg.VM.AddressBits,
		DictValueBits:  cfg.VM.DictValueBits,
	}
}

// CellCapacity is the capacity of an ordinary cell.
func (t *Target) CellCapacity() Capacity {
	return Capacity{Bits: t.CellBits, Refs: t.CellRefs}
}

// DictValueCapacity is the capacity available to a mapping value stored
// inline in a dictionary leaf.
func (t *Target) DictValueCapacity() Capacity {
	return Capacity{Bits: t.DictValueBits, Refs: t.CellRefs}
}

func (t *Target) String() string {
	return fmt.Sprintf("cell=%db/%dr arrayKey=%d address=%d dictValue=%d",
		t.CellBits, t.CellRefs, t.ArrayKeyLength, t.AddressBits, t.DictValueBits)
}

// Capacity is a bits/references budget of one cell.
type Capacity struct {
	Bits int
	Refs int
}
