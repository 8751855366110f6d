// Package cell implements the Cell type (spec §3): a creature's CPU,
// memory regions, and demographic bookkeeping. Cells live in the
// Simulation's arena keyed by ID; this package holds no references to the
// scheduler, reaper, or genebank - only the integer IDs those own (spec
// §9 "arena + integer IDs").
package cell

import (
	"tierra/internal/cpu"
	"tierra/internal/region"
)

// ID is a stable, monotonically increasing cell identifier.
type ID int64

// Demographics tracks a cell's life history (spec §3).
type Demographics struct {
	BirthInstruction             uint64
	InstructionsExecuted         uint64
	MovCount                     int
	OffspringCount               int
	Mutations                    int
	GenotypeName                 string
	ParentGenotypeName           string
	LastReproductionInstruction  uint64
}

// Cell is one independently scheduled creature.
type Cell struct {
	ID             ID
	MotherRegion   region.Region
	DaughterRegion region.Region // Length == 0 means "None"
	CPU            cpu.CPU
	Demographics   Demographics

	// SlicePosition and ReaperPosition are not set or read by any package;
	// the queues in internal/scheduler and internal/reaper keep their own
	// ID-to-index maps, and these fields stay at their zero value.
	SlicePosition  int
	ReaperPosition int

	// ErrorCount accumulates E-flag occurrences across this cell's life,
	// consumed by the reaper's age/error ranking (spec §4.4).
	ErrorCount int
}

// New creates a cell occupying motherRegion, with a fresh CPU whose IP
// starts at the region's first address.
func New(id ID, motherRegion region.Region, birthInstruction uint64) *Cell {
	return &Cell{
		ID:           id,
		MotherRegion: motherRegion,
		CPU:          cpu.New(motherRegion.Start),
		Demographics: Demographics{BirthInstruction: birthInstruction, LastReproductionInstruction: birthInstruction},
	}
}

// HasDaughter reports whether a daughter region is currently attached.
func (c *Cell) HasDaughter() bool { return !c.DaughterRegion.None() }

// MovProportion returns mov_count / daughter_region.length, or 0 if there is
// no daughter region (spec §4.2 divide precondition).
func (c *Cell) MovProportion() float64 {
	if !c.HasDaughter() {
		return 0
	}
	return float64(c.Demographics.MovCount) / float64(c.DaughterRegion.Length)
}

// Age returns the number of global instructions elapsed since birth.
func (c *Cell) Age(nowInstructionCount uint64) uint64 {
	if nowInstructionCount < c.Demographics.BirthInstruction {
		return 0
	}
	return nowInstructionCount - c.Demographics.BirthInstruction
}

// Snapshot is a value-typed, reference-free copy of a Cell for external
// consumers (spec §5 "copy-out snapshots").
type Snapshot struct {
	ID             ID
	MotherRegion   region.Region
	DaughterRegion region.Region
	AX, BX, CX, DX int32
	IP, SP         int
	FlagE, FlagS, FlagZ bool
	Demographics   Demographics
}

// Snapshot copies out a value-typed view of c with no references into live
// state.
func (c *Cell) Snapshot() Snapshot {
	return Snapshot{
		ID:             c.ID,
		MotherRegion:   c.MotherRegion,
		DaughterRegion: c.DaughterRegion,
		AX:             c.CPU.AX,
		BX:             c.CPU.BX,
		CX:             c.CPU.CX,
		DX:             c.CPU.DX,
		IP:             c.CPU.IP,
		SP:             c.CPU.SP,
		FlagE:          c.CPU.Flags.E,
		FlagS:          c.CPU.Flags.S,
		FlagZ:          c.CPU.Flags.Z,
		Demographics:   c.Demographics,
	}
}
