// Package mutation implements the stochastic variation operators of spec
// §4.5: cosmic-ray bit flips, copy mutation inside movii, execution flaws,
// and the genetic operators triggered on divide.
//
// This package never touches the event bus itself: every Maybe*/Apply*
// method reports what it did via a return value, and the caller (in
// internal/instructionset or internal/simulation, which already know which
// cell is running) emits the corresponding MUTATION event with the right
// cell_id. Keeping mutation decision-making separate from event plumbing
// mirrors the teacher's own small, single-purpose packages (e.g.
// internal/errors knows nothing about where its errors get logged).
package mutation

import (
	"tierra/internal/config"
	"tierra/internal/cpu"
	"tierra/internal/rng"
	"tierra/internal/soup"
)

// GeneticPool is the subset of Genebank the divide-time crossover operators
// need: a uniformly-chosen, currently-living genome of the given size to
// cross with. Expressed as an interface here (rather than importing
// genebank directly) to keep mutation decoupled from the registry's
// lifecycle and avoid a needless dependency.
type GeneticPool interface {
	RandomSameSizeGenome(size int) ([]byte, bool)
}

// Engine computes per-instruction mutation rates from "generations per
// event" config settings and the current mean cell size, and applies the
// resulting operators (spec §4.5).
type Engine struct {
	cfg config.Config
	rng *rng.Source
}

// NewEngine builds a mutation Engine.
func NewEngine(cfg config.Config, r *rng.Source) *Engine {
	return &Engine{cfg: cfg, rng: r}
}

// rate converts a "generations per event" denominator and the current mean
// cell size into a per-instruction probability. 0 disables the effect
// entirely (spec §4.5).
func rate(genPerEvent int, meanCellSize float64) float64 {
	if genPerEvent <= 0 || meanCellSize <= 0 {
		return 0
	}
	return 1 / (float64(genPerEvent) * meanCellSize)
}

// perDivideRate converts a "generations per event" denominator into a flat
// per-divide probability, independent of genome length: spec §4.5 gives the
// six divide-time genetic operators a bare 1/gen_per_X chance each divide,
// distinct from rate's per-instruction 1/(gen_per_X * mean_cell_size) used
// for cosmic-ray/flaw/copy mutation. 0 disables the operator entirely.
func perDivideRate(genPerEvent int) float64 {
	if genPerEvent <= 0 {
		return 0
	}
	return 1 / float64(genPerEvent)
}

// CosmicRayRate returns the per-instruction cosmic-ray probability for the
// current mean cell size.
func (e *Engine) CosmicRayRate(meanCellSize float64) float64 {
	return rate(e.cfg.GenPerBkgMut, meanCellSize)
}

// FlawRate returns the per-instruction execution-flaw probability.
func (e *Engine) FlawRate(meanCellSize float64) float64 {
	return rate(e.cfg.GenPerFlaw, meanCellSize)
}

// CopyMutationRate returns the per-movii copy-mutation probability.
func (e *Engine) CopyMutationRate(meanCellSize float64) float64 {
	return rate(e.cfg.GenPerMovMut, meanCellSize)
}

// MaybeCosmicRay flips a random bit at a random soup address, bypassing
// protection entirely, with probability CosmicRayRate(meanCellSize). It is
// evaluated once per instruction executed, independent of which cell is
// running (spec §4.5).
func (e *Engine) MaybeCosmicRay(s *soup.Soup, meanCellSize float64) bool {
	if !e.rng.Chance(e.CosmicRayRate(meanCellSize)) {
		return false
	}
	addr := e.rng.Intn(s.Size())
	bit := uint(e.rng.Intn(5))
	s.FlipBit(addr, bit)
	return true
}

// MaybeCorruptCopy implements the copy mutation inside movii (spec §4.2
// opcode 26, §4.5): with probability CopyMutationRate, the byte about to be
// written is corrupted - with probability mut_bit_prop a single random bit
// of the source byte is flipped, otherwise the byte is replaced with a
// uniformly random opcode. Returns the (possibly corrupted) byte to write
// and whether corruption occurred.
func (e *Engine) MaybeCorruptCopy(srcByte byte, meanCellSize float64) (byte, bool) {
	if !e.rng.Chance(e.CopyMutationRate(meanCellSize)) {
		return srcByte, false
	}
	if e.rng.Chance(e.cfg.MutBitProp) {
		bit := uint(e.rng.Intn(5))
		return (srcByte ^ (1 << bit)) & 0x1F, true
	}
	return e.rng.Opcode(), true
}

// MaybeFlaw perturbs the just-written register value by +/-1 with
// probability FlawRate(meanCellSize) (spec §4.2 "Execution flaws", §4.5,
// and the Open Question decision in SPEC_FULL.md §13.2 on which opcodes are
// flaw-eligible). Call only immediately after an instruction wrote reg.
func (e *Engine) MaybeFlaw(c *cpu.CPU, reg cpu.Register, meanCellSize float64) bool {
	if !e.rng.Chance(e.FlawRate(meanCellSize)) {
		return false
	}
	delta := int32(1)
	if e.rng.Bool() {
		delta = -1
	}
	c.Set(reg, c.Get(reg)+delta)
	return true
}

// DivideMutationRate returns the per-divide bit-flip probability applied
// directly to the daughter genome, using the same per-instruction-style
// formula as CosmicRayRate/FlawRate/CopyMutationRate (spec §6
// gen_per_div_mut), but evaluated once per divide rather than once per
// instruction executed.
func (e *Engine) DivideMutationRate(meanCellSize float64) float64 {
	return rate(e.cfg.GenPerDivMut, meanCellSize)
}

// MaybeDivideMutation flips one random bit of one random byte in genome
// with probability DivideMutationRate(meanCellSize). Applied once per
// successful divide, independent of and in addition to the six named
// genetic operators in ApplyDivideOperators. Returns the possibly-mutated
// genome (a fresh copy when a flip occurs; genome itself otherwise) and
// whether a flip occurred.
func (e *Engine) MaybeDivideMutation(genome []byte, meanCellSize float64) ([]byte, bool) {
	if len(genome) == 0 || !e.rng.Chance(e.DivideMutationRate(meanCellSize)) {
		return genome, false
	}
	out := append([]byte(nil), genome...)
	pos := e.rng.Intn(len(out))
	bit := uint(e.rng.Intn(5))
	out[pos] = (out[pos] ^ (1 << bit)) & 0x1F
	return out, true
}

// GeneticOperator names one of the six divide-time operators (spec §4.5).
type GeneticOperator string

const (
	OpInsIns GeneticOperator = "ins_ins" // instruction insertion
	OpDelIns GeneticOperator = "del_ins" // instruction deletion
	OpCroIns GeneticOperator = "cro_ins" // instruction-level crossover
	OpDelSeg GeneticOperator = "del_seg" // segment deletion
	OpInsSeg GeneticOperator = "ins_seg" // segment insertion
	OpCroSeg GeneticOperator = "cro_seg" // segment crossover
)

// ApplyDivideOperators independently rolls each of the six genetic
// operators against genome (a copy of the daughter's genome, owned by the
// caller) and returns the possibly-modified genome plus the list of
// operators that fired, in the order they were tried. Each operator acts
// on the result of the previous one. The caller is responsible for
// reconciling any resulting length change against daughter_region.Length
// (spec §4.5's reallocation-or-abort rule) and for emitting one MUTATION
// event per returned operator; this function never fails, it only
// proposes a new genome.
func (e *Engine) ApplyDivideOperators(genome []byte, pool GeneticPool) ([]byte, []GeneticOperator) {
	out := append([]byte(nil), genome...)
	var applied []GeneticOperator

	if e.rng.Chance(perDivideRate(e.cfg.GenPerInsIns)) {
		out = insertInstruction(out, e.rng)
		applied = append(applied, OpInsIns)
	}
	if len(out) > 1 && e.rng.Chance(perDivideRate(e.cfg.GenPerDelIns)) {
		out = deleteInstruction(out, e.rng)
		applied = append(applied, OpDelIns)
	}
	if e.rng.Chance(perDivideRate(e.cfg.GenPerCroInsSamSiz)) {
		if mate, ok := pool.RandomSameSizeGenome(len(out)); ok {
			out = crossoverInstruction(out, mate, e.rng)
			applied = append(applied, OpCroIns)
		}
	}
	if e.rng.Chance(perDivideRate(e.cfg.GenPerDelSeg)) {
		if next, ok := deleteSegment(out, e.rng); ok {
			out = next
			applied = append(applied, OpDelSeg)
		}
	}
	if e.rng.Chance(perDivideRate(e.cfg.GenPerInsSeg)) {
		out = insertSegment(out, e.rng)
		applied = append(applied, OpInsSeg)
	}
	if e.rng.Chance(perDivideRate(e.cfg.GenPerCroSeg)) {
		if mate, ok := pool.RandomSameSizeGenome(len(out)); ok {
			if next, ok2 := crossoverSegment(out, mate, e.rng); ok2 {
				out = next
				applied = append(applied, OpCroSeg)
			}
		}
	}

	return out, applied
}

// -- instruction-level operators --

func insertInstruction(genome []byte, r *rng.Source) []byte {
	pos := r.Intn(len(genome) + 1)
	out := make([]byte, 0, len(genome)+1)
	out = append(out, genome[:pos]...)
	out = append(out, r.Opcode())
	out = append(out, genome[pos:]...)
	return out
}

func deleteInstruction(genome []byte, r *rng.Source) []byte {
	pos := r.Intn(len(genome))
	out := make([]byte, 0, len(genome)-1)
	out = append(out, genome[:pos]...)
	out = append(out, genome[pos+1:]...)
	return out
}

func crossoverInstruction(genome, mate []byte, r *rng.Source) []byte {
	if len(genome) != len(mate) || len(genome) == 0 {
		return genome
	}
	pos := r.Intn(len(genome))
	out := append([]byte(nil), genome...)
	out[pos] = mate[pos]
	return out
}

// -- segment-level operators: a segment is a maximal run of identical
// opcodes, delimited wherever the opcode changes (spec §4.5 "NOP-bounded
// segments" - in practice template nop0/nop1 runs form their own segments
// and surrounding non-template code forms others). --

type segment struct {
	start, length int
}

func segments(genome []byte) []segment {
	if len(genome) == 0 {
		return nil
	}
	var segs []segment
	segStart := 0
	for i := 1; i <= len(genome); i++ {
		if i == len(genome) || genome[i] != genome[segStart] {
			segs = append(segs, segment{start: segStart, length: i - segStart})
			segStart = i
		}
	}
	return segs
}

func deleteSegment(genome []byte, r *rng.Source) ([]byte, bool) {
	segs := segments(genome)
	if len(segs) <= 1 {
		return genome, false
	}
	s := segs[r.Intn(len(segs))]
	out := make([]byte, 0, len(genome)-s.length)
	out = append(out, genome[:s.start]...)
	out = append(out, genome[s.start+s.length:]...)
	return out, true
}

func insertSegment(genome []byte, r *rng.Source) []byte {
	segs := segments(genome)
	if len(segs) == 0 {
		return genome
	}
	src := segs[r.Intn(len(segs))]
	piece := genome[src.start : src.start+src.length]
	pos := r.Intn(len(genome) + 1)
	out := make([]byte, 0, len(genome)+len(piece))
	out = append(out, genome[:pos]...)
	out = append(out, piece...)
	out = append(out, genome[pos:]...)
	return out
}

func crossoverSegment(genome, mate []byte, r *rng.Source) ([]byte, bool) {
	segs := segments(genome)
	mateSegs := segments(mate)
	if len(segs) == 0 || len(mateSegs) == 0 {
		return genome, false
	}
	a := segs[r.Intn(len(segs))]
	b := mateSegs[r.Intn(len(mateSegs))]
	out := make([]byte, 0, len(genome)-a.length+b.length)
	out = append(out, genome[:a.start]...)
	out = append(out, mate[b.start:b.start+b.length]...)
	out = append(out, genome[a.start+a.length:]...)
	return out, true
}
