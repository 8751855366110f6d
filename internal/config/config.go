// Package config holds the flat configuration record described in spec §6.
// Parsing configuration files is explicitly out of scope (spec §1); this
// package only defines the record and its validation.
package config

import "tierra/internal/errtax"

// Config is the flat set of recognized simulation options from spec §6.
// Every field carries its documented default via Default().
type Config struct {
	// Soup/time
	SoupSize     int
	SliceSize    int
	SizDepSlice  bool
	SlicePow     float64
	SliceStyle   int
	SlicFixFrac  float64
	SlicRanFrac  float64

	// Mutation
	GenPerBkgMut int
	GenPerFlaw   int
	GenPerMovMut int
	GenPerDivMut int
	MutBitProp   float64

	// Genetic operators (all "generations per event" denominators).
	// GenPerCroIns is recognized and validated but unused: spec §4.5
	// describes exactly one instruction-crossover operator, "same-size
	// swap with a random same-size living genome" (gen_per_cro_ins_sam_siz
	// below); a second, size-mismatched crossover variant under this name
	// is not specified (see DESIGN.md).
	GenPerCroInsSamSiz int
	GenPerInsIns       int
	GenPerDelIns       int
	GenPerCroIns       int
	GenPerDelSeg       int
	GenPerInsSeg       int
	GenPerCroSeg       int

	// Allocator. MalSamSiz is recognized and validated but not consulted by
	// the allocator (see DESIGN.md) - no documented mal_mode variant in
	// spec §4.1 biases block selection by the mother's own size.
	MalMode       int
	MalReapTol    int
	MalTol        int
	MaxFreeBlocks int
	MalSamSiz     int

	// Cells
	MinCellSize    int
	MinGenMemSiz   int
	MinTemplSize   int
	MovPropThrDiv  float64
	SearchLimit    int

	// Reaper
	ReapRndProp float64
	LazyTol     int
	DropDead    int

	// Division
	DivSameGen  bool
	DivSameSiz  bool

	// Disturbance
	DistFreq   float64
	DistProp   float64
	EjectRate  float64

	// Protection: bit-sets {execute=1, write=2, read=4}
	MemModeFree int
	MemModeMine int
	MemModeProt int

	// Genebank
	DiskBank   bool
	SaveFreq   int
	SavMinNum  int
	SavThrMem  float64
	SavThrPop  float64
	// DiskBankDSN selects the genebank checkpoint backend, e.g.
	// "sqlite://tierra.db", "sqlite3://tierra.db", "postgres://...",
	// "mysql://...", "sqlserver://..." (see internal/genebank/store).
	// Empty with DiskBank true defaults to an in-process sqlite file.
	DiskBankDSN string

	// Initial. NewSoup=false selects resuming a previously dumped soup
	// image instead of starting empty; loading a dump is part of the
	// out-of-scope genome/soup file format (spec §1 Non-goals), so
	// Simulation.New always builds a fresh soup (see DESIGN.md).
	Seed    int64
	NewSoup bool
}

// Protection mask bits (spec §4.1).
const (
	ProtExecute = 1
	ProtWrite   = 2
	ProtRead    = 4
)

// Default returns spec §6's documented defaults.
func Default() Config {
	return Config{
		SoupSize:    60000,
		SliceSize:   25,
		SizDepSlice: false,
		SlicePow:    1.0,
		SliceStyle:  2,
		SlicFixFrac: 0.0,
		SlicRanFrac: 2.0,

		GenPerBkgMut: 32,
		GenPerFlaw:   32,
		GenPerMovMut: 0,
		GenPerDivMut: 32,
		MutBitProp:   0.2,

		GenPerCroInsSamSiz: 32,
		GenPerInsIns:       32,
		GenPerDelIns:       32,
		GenPerCroIns:       32,
		GenPerDelSeg:       32,
		GenPerInsSeg:       32,
		GenPerCroSeg:       32,

		MalMode:       1,
		MalReapTol:    1,
		MalTol:        20,
		MaxFreeBlocks: 800,
		MalSamSiz:     0,

		MinCellSize:   12,
		MinGenMemSiz:  12,
		MinTemplSize:  1,
		MovPropThrDiv: 0.7,
		SearchLimit:   5,

		ReapRndProp: 0.3,
		LazyTol:     10,
		DropDead:    5,

		DivSameGen: false,
		DivSameSiz: false,

		DistFreq:  -0.3,
		DistProp:  0.2,
		EjectRate: 0,

		MemModeFree: 0,
		MemModeMine: 0,
		MemModeProt: ProtWrite,

		DiskBank:  true,
		SaveFreq:  100,
		SavMinNum: 10,
		SavThrMem: 0.02,
		SavThrPop: 0.02,

		Seed:    0,
		NewSoup: true,
	}
}

// Validate implements spec §7's ConfigError: it refuses combinations that
// cannot be initialized safely, before any tick runs.
func (c Config) Validate() error {
	switch {
	case c.SoupSize <= 0:
		return errtax.NewConfigError("soup_size", "must be positive")
	case c.SliceSize <= 0:
		return errtax.NewConfigError("slice_size", "must be positive")
	case c.MinCellSize <= 0:
		return errtax.NewConfigError("min_cell_size", "must be positive")
	case c.MinCellSize > c.SoupSize:
		return errtax.NewConfigError("min_cell_size", "cannot exceed soup_size")
	case c.MaxFreeBlocks <= 0:
		return errtax.NewConfigError("max_free_blocks", "must be positive")
	case c.SliceStyle < 0 || c.SliceStyle > 2:
		return errtax.NewConfigError("slice_style", "must be 0, 1, or 2")
	case c.MalMode < 0:
		return errtax.NewConfigError("mal_mode", "must be non-negative")
	case c.MalReapTol != 0 && c.MalReapTol != 1:
		return errtax.NewConfigError("mal_reap_tol", "must be 0 or 1")
	case c.MovPropThrDiv < 0 || c.MovPropThrDiv > 1:
		return errtax.NewConfigError("mov_prop_thr_div", "must be in [0,1]")
	case c.SearchLimit <= 0:
		return errtax.NewConfigError("search_limit", "must be positive")
	case c.DropDead <= 0:
		return errtax.NewConfigError("drop_dead", "must be positive")
	case c.DistProp < 0 || c.DistProp > 1:
		return errtax.NewConfigError("dist_prop", "must be in [0,1]")
	case c.ReapRndProp < 0 || c.ReapRndProp > 1:
		return errtax.NewConfigError("reap_rnd_prop", "must be in [0,1]")
	}
	return nil
}
