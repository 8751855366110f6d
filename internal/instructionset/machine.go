// Package instructionset (continued): dispatch, the Lifecycle seam back
// into the simulation, and the 32 opcode handlers (spec §4.2). Dispatch
// uses an opcode-indexed array of handlers rather than a type switch or
// per-instruction virtual call, per spec §9's design note.
package instructionset

import (
	"tierra/internal/cell"
	"tierra/internal/config"
	"tierra/internal/cpu"
	"tierra/internal/eventbus"
	"tierra/internal/genebank"
	"tierra/internal/mutation"
	"tierra/internal/region"
	"tierra/internal/rng"
	"tierra/internal/soup"
)

// Lifecycle is the seam between instruction dispatch and the owning
// Simulation: the handful of whole-population operations (killing a cell
// to make room, birthing a new one, reading the global instruction clock
// and mean cell size) that dispatch cannot perform on its own without
// importing the scheduler/reaper/simulation packages those operations
// live in. Simulation implements this interface; instructionset only ever
// sees it through this local, minimal declaration, so there is no import
// cycle.
type Lifecycle interface {
	// ReapForSpace selects a cell per the spec §4.4 allocation-failure
	// reaping policy and kills it, freeing its memory back to Soup. hint
	// is the mal instruction's own region as a proximity hint for
	// mal_reap_tol=1; it reports whether a cell was killed.
	ReapForSpace(hint region.Region) bool
	// BirthCell inserts a newly divided cell into the scheduler tail and
	// the reaper tail (spec §4.2 divide step 4).
	BirthCell(c *cell.Cell)
	// NextCellID returns the next monotonic cell ID.
	NextCellID() cell.ID
	// InstructionCount returns the simulation's global instruction
	// counter.
	InstructionCount() uint64
	// MeanCellSize returns the current population mean cell size.
	MeanCellSize() float64
}

// Machine bundles everything instruction dispatch needs: the soup, the
// mutation engine, the genebank, the event bus, config, RNG, and the
// Lifecycle seam.
type Machine struct {
	Soup      *soup.Soup
	Genebank  *genebank.Genebank
	Mutation  *mutation.Engine
	Bus       *eventbus.Bus
	Config    config.Config
	RNG       *rng.Source
	Lifecycle Lifecycle
}

// handler executes one opcode's effect on c. It returns ipSet=true if it
// has already placed the correct next IP into c.CPU.IP (template-using
// instructions, which redirect or skip past their template); otherwise the
// caller advances IP by one step (two for a not-taken ifz).
type handler func(m *Machine, c *cell.Cell) (ipSet bool)

var table [NumOpcodes]handler

func init() {
	table[Nop0] = opNop
	table[Nop1] = opNop
	table[Not0] = opNot0
	table[Shl] = opShl
	table[Zero] = opZero
	table[Ifz] = opIfz
	table[SubCAB] = opSubCAB
	table[SubAAC] = opSubAAC
	table[IncA] = opIncA
	table[IncB] = opIncB
	table[DecC] = opDecC
	table[IncC] = opIncC
	table[PushA] = opPush(cpu.RegA)
	table[PushB] = opPush(cpu.RegB)
	table[PushC] = opPush(cpu.RegC)
	table[PushD] = opPush(cpu.RegD)
	table[PopA] = opPop(cpu.RegA)
	table[PopB] = opPop(cpu.RegB)
	table[PopC] = opPop(cpu.RegC)
	table[PopD] = opPop(cpu.RegD)
	table[Jmpo] = opJmpo
	table[Jmpb] = opJmpb
	table[Call] = opCall
	table[Ret] = opRet
	table[MovDC] = opMovDC
	table[MovBA] = opMovBA
	table[Movii] = opMovii
	table[Adro] = opAdro
	table[Adrb] = opAdrb
	table[Adrf] = opAdrf
	table[Mal] = opMal
	table[Divide] = opDivide
}

// Step fetches, dispatches, and advances past exactly one instruction on c.
// It is the sole entry point the scheduler's slice loop calls (spec §4.3,
// §4.7).
func (m *Machine) Step(c *cell.Cell) {
	size := m.Soup.Size()
	ip := c.CPU.IP
	if !allowed(ip, c, m.Soup, m.Config, config.ProtExecute) {
		c.CPU.Fault(cpu.FaultProtectionViolation)
		c.CPU.IP = region.Mod(ip+1, size)
		c.ErrorCount++
		return
	}
	op := OpCode(m.Soup.Read(ip))
	h := table[op]
	skipNext := false
	if op == Ifz {
		skipNext = c.CPU.CX != 0
	}
	c.CPU.Flags.E = false
	ipSet := h(m, c)
	if c.CPU.Flags.E {
		c.ErrorCount++
	}
	if !ipSet {
		step := 1
		if skipNext {
			step = 2
		}
		c.CPU.IP = region.Mod(c.CPU.IP+step, size)
	}
	c.Demographics.InstructionsExecuted++

	if m.Mutation.MaybeCosmicRay(m.Soup, m.Lifecycle.MeanCellSize()) && m.Bus != nil {
		m.Bus.Emit(eventbus.Event{Kind: eventbus.Mutation, MutationKind: eventbus.MutCosmic, CellID: c.ID})
	}
}

// flaw rolls an execution flaw against reg's just-written value and, if it
// fired, emits the MUTATION event (spec §4.5, §6).
func flaw(m *Machine, c *cell.Cell, reg cpu.Register) {
	if m.Mutation.MaybeFlaw(&c.CPU, reg, m.Lifecycle.MeanCellSize()) && m.Bus != nil {
		m.Bus.Emit(eventbus.Event{Kind: eventbus.Mutation, MutationKind: eventbus.MutFlaw, CellID: c.ID})
	}
}

func opNop(m *Machine, c *cell.Cell) bool { return false }

func opNot0(m *Machine, c *cell.Cell) bool {
	c.CPU.Set(cpu.RegC, c.CPU.CX^1)
	flaw(m, c, cpu.RegC)
	return false
}

func opShl(m *Machine, c *cell.Cell) bool {
	c.CPU.Set(cpu.RegC, c.CPU.CX<<1)
	flaw(m, c, cpu.RegC)
	return false
}

func opZero(m *Machine, c *cell.Cell) bool {
	c.CPU.Set(cpu.RegC, 0)
	flaw(m, c, cpu.RegC)
	return false
}

func opIfz(m *Machine, c *cell.Cell) bool { return false }

func opSubCAB(m *Machine, c *cell.Cell) bool {
	c.CPU.Set(cpu.RegC, c.CPU.AX-c.CPU.BX)
	flaw(m, c, cpu.RegC)
	return false
}

func opSubAAC(m *Machine, c *cell.Cell) bool {
	c.CPU.Set(cpu.RegA, c.CPU.AX-c.CPU.CX)
	flaw(m, c, cpu.RegA)
	return false
}

func opIncA(m *Machine, c *cell.Cell) bool {
	c.CPU.Set(cpu.RegA, c.CPU.AX+1)
	flaw(m, c, cpu.RegA)
	return false
}

func opIncB(m *Machine, c *cell.Cell) bool {
	c.CPU.Set(cpu.RegB, c.CPU.BX+1)
	flaw(m, c, cpu.RegB)
	return false
}

func opDecC(m *Machine, c *cell.Cell) bool {
	c.CPU.Set(cpu.RegC, c.CPU.CX-1)
	flaw(m, c, cpu.RegC)
	return false
}

func opIncC(m *Machine, c *cell.Cell) bool {
	c.CPU.Set(cpu.RegC, c.CPU.CX+1)
	flaw(m, c, cpu.RegC)
	return false
}

func opPush(r cpu.Register) handler {
	return func(m *Machine, c *cell.Cell) bool {
		c.CPU.Push(c.CPU.Get(r))
		return false
	}
}

func opPop(r cpu.Register) handler {
	return func(m *Machine, c *cell.Cell) bool {
		if v, ok := c.CPU.Pop(); ok {
			c.CPU.Set(r, v)
		}
		return false
	}
}

// templateJump implements jmpo/jmpb: read the template after the
// instruction, search for its complement, and set IP either to the match
// address (success) or past the consumed template with E set (failure).
func templateJump(m *Machine, c *cell.Cell, dir searchDir, fault cpu.Fault) bool {
	size := m.Soup.Size()
	tmpl, afterTmpl := m.readTemplate(region.Mod(c.CPU.IP+1, size))
	matchAddr, _, found := m.findComplement(afterTmpl, tmpl, dir)
	if !found {
		c.CPU.Fault(fault)
		c.CPU.IP = afterTmpl
		return true
	}
	c.CPU.IP = matchAddr
	return true
}

func opJmpo(m *Machine, c *cell.Cell) bool {
	return templateJump(m, c, dirOutward, cpu.FaultTemplateNotFound)
}

func opJmpb(m *Machine, c *cell.Cell) bool {
	return templateJump(m, c, dirBackward, cpu.FaultTemplateNotFound)
}

func opCall(m *Machine, c *cell.Cell) bool {
	size := m.Soup.Size()
	tmpl, afterTmpl := m.readTemplate(region.Mod(c.CPU.IP+1, size))
	matchAddr, _, found := m.findComplement(afterTmpl, tmpl, dirOutward)
	if !found {
		c.CPU.Fault(cpu.FaultTemplateNotFound)
		c.CPU.IP = afterTmpl
		return true
	}
	c.CPU.Push(int32(afterTmpl))
	c.CPU.IP = matchAddr
	return true
}

func opRet(m *Machine, c *cell.Cell) bool {
	v, ok := c.CPU.Pop()
	if !ok {
		c.CPU.Fault(cpu.FaultRetUnderflow)
		return false
	}
	c.CPU.IP = region.Mod(int(v), m.Soup.Size())
	return true
}

func opMovDC(m *Machine, c *cell.Cell) bool {
	c.CPU.Set(cpu.RegD, c.CPU.CX)
	flaw(m, c, cpu.RegD)
	return false
}

func opMovBA(m *Machine, c *cell.Cell) bool {
	c.CPU.Set(cpu.RegB, c.CPU.AX)
	flaw(m, c, cpu.RegB)
	return false
}

func opMovii(m *Machine, c *cell.Cell) bool {
	src := int(c.CPU.BX)
	dst := int(c.CPU.AX)
	if !allowed(src, c, m.Soup, m.Config, config.ProtRead) {
		c.CPU.Fault(cpu.FaultProtectionViolation)
		return false
	}
	if !allowed(dst, c, m.Soup, m.Config, config.ProtWrite) {
		c.CPU.Fault(cpu.FaultProtectionViolation)
		return false
	}
	if !c.DaughterRegion.Contains(dst, m.Soup.Size()) {
		c.CPU.Fault(cpu.FaultMovProtected)
		return false
	}
	b := m.Soup.Read(src)
	if mutated, did := m.Mutation.MaybeCorruptCopy(b, m.Lifecycle.MeanCellSize()); did {
		b = mutated
		c.Demographics.Mutations++
		if m.Bus != nil {
			m.Bus.Emit(eventbus.Event{Kind: eventbus.Mutation, MutationKind: eventbus.MutCopy, CellID: c.ID})
		}
	}
	m.Soup.Write(dst, b)
	c.Demographics.MovCount++
	return false
}

// templateAddr implements adro/adrb/adrf: ax = match address, cx = template
// length, no control transfer - execution simply continues past the
// consumed template.
func templateAddr(m *Machine, c *cell.Cell, dir searchDir) bool {
	size := m.Soup.Size()
	tmpl, afterTmpl := m.readTemplate(region.Mod(c.CPU.IP+1, size))
	matchAddr, length, found := m.findComplement(afterTmpl, tmpl, dir)
	if !found {
		c.CPU.Fault(cpu.FaultTemplateNotFound)
		c.CPU.IP = afterTmpl
		return true
	}
	c.CPU.Set(cpu.RegA, int32(matchAddr))
	c.CPU.Set(cpu.RegC, int32(length))
	c.CPU.IP = afterTmpl
	return true
}

func opAdro(m *Machine, c *cell.Cell) bool { return templateAddr(m, c, dirOutward) }
func opAdrb(m *Machine, c *cell.Cell) bool { return templateAddr(m, c, dirBackward) }
func opAdrf(m *Machine, c *cell.Cell) bool { return templateAddr(m, c, dirForward) }

func opMal(m *Machine, c *cell.Cell) bool {
	length := int(c.CPU.CX)
	policy, near := allocPolicy(m.Config.MalMode, c)
	r, err := m.Soup.Allocate(length, policy, near)
	if err != nil {
		if m.Lifecycle.ReapForSpace(c.MotherRegion) {
			r, err = m.Soup.Allocate(length, policy, near)
		}
	}
	if err != nil {
		c.CPU.Fault(cpu.FaultNoSpace)
		return false
	}
	c.CPU.Set(cpu.RegA, int32(r.Start))
	c.DaughterRegion = r
	return false
}

func allocPolicy(mode int, c *cell.Cell) (soup.Policy, *int) {
	near := c.MotherRegion.Start
	switch mode {
	case 0:
		return soup.FirstFit, nil
	case 1:
		return soup.BetterFit, nil
	case 2:
		return soup.Random, nil
	case 3:
		return soup.NearParent, &near
	case 4:
		return soup.NearAddress, &near
	default:
		return soup.BetterFit, nil
	}
}

func opDivide(m *Machine, c *cell.Cell) bool {
	if !divideAllowed(m, c) {
		c.CPU.Fault(cpu.FaultDividePrecondition)
		return false
	}

	daughter := c.DaughterRegion
	genome := make([]byte, daughter.Length)
	for i := range genome {
		genome[i] = m.Soup.Read(region.Mod(daughter.Start+i, m.Soup.Size()))
	}

	mutated, applied := m.Mutation.ApplyDivideOperators(genome, m.Genebank)
	divideMutated, divideMutationFired := m.Mutation.MaybeDivideMutation(mutated, m.Lifecycle.MeanCellSize())
	final, finalRegion, ok := m.reconcileLength(daughter, divideMutated)
	if !ok {
		final, finalRegion = genome, daughter
		applied = nil
		divideMutationFired = false
	}
	for i, b := range final {
		m.Soup.Write(region.Mod(finalRegion.Start+i, m.Soup.Size()), b)
	}

	daughterCell := cell.New(m.Lifecycle.NextCellID(), finalRegion, m.Lifecycle.InstructionCount())
	gt, created := m.Genebank.Register(final, c.Demographics.GenotypeName, m.Lifecycle.InstructionCount())
	daughterCell.Demographics.GenotypeName = gt.Name
	daughterCell.Demographics.ParentGenotypeName = c.Demographics.GenotypeName

	if created && m.Bus != nil {
		m.Bus.Emit(eventbus.Event{Kind: eventbus.NewGenotype, GenotypeName: gt.Name})
	}
	m.Lifecycle.BirthCell(daughterCell)
	if m.Bus != nil {
		m.Bus.Emit(eventbus.Event{Kind: eventbus.CellBorn, CellID: daughterCell.ID, ParentID: c.ID, GenotypeName: gt.Name})
		for _, op := range applied {
			m.Bus.Emit(eventbus.Event{Kind: eventbus.Mutation, MutationKind: eventbus.MutationKind("genetic:" + string(op)), CellID: daughterCell.ID})
		}
		if divideMutationFired {
			m.Bus.Emit(eventbus.Event{Kind: eventbus.Mutation, MutationKind: eventbus.MutDivide, CellID: daughterCell.ID})
		}
	}

	c.Demographics.OffspringCount++
	c.Demographics.LastReproductionInstruction = m.Lifecycle.InstructionCount()
	c.Demographics.MovCount = 0
	c.DaughterRegion = region.Region{}
	return false
}

func divideAllowed(m *Machine, c *cell.Cell) bool {
	if !c.HasDaughter() {
		return false
	}
	if c.MovProportion() < m.Config.MovPropThrDiv {
		return false
	}
	if c.DaughterRegion.Length < m.Config.MinCellSize {
		return false
	}
	if c.MotherRegion.Length < m.Config.MinGenMemSiz {
		return false
	}
	if m.Config.DivSameSiz && c.DaughterRegion.Length != c.MotherRegion.Length {
		return false
	}
	if m.Config.DivSameGen {
		motherGenome := make([]byte, c.MotherRegion.Length)
		for i := range motherGenome {
			motherGenome[i] = m.Soup.Read(region.Mod(c.MotherRegion.Start+i, m.Soup.Size()))
		}
		daughterGenome := make([]byte, c.DaughterRegion.Length)
		for i := range daughterGenome {
			daughterGenome[i] = m.Soup.Read(region.Mod(c.DaughterRegion.Start+i, m.Soup.Size()))
		}
		if !genomeEqual(motherGenome, daughterGenome) {
			return false
		}
	}
	return true
}

func genomeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// reconcileLength adjusts the daughter region to match a genetic operator's
// new length, growing into adjacent free tail space or shrinking back into
// it (spec §4.5). On growth that cannot be satisfied, it reports ok=false
// and the caller discards every operator's effect for this divide, leaving
// the original genome and region untouched.
func (m *Machine) reconcileLength(daughter region.Region, genome []byte) (final []byte, finalRegion region.Region, ok bool) {
	delta := len(genome) - daughter.Length
	if delta == 0 {
		return genome, daughter, true
	}
	if delta < 0 {
		shrunk := region.Region{Start: daughter.Start, Length: len(genome)}
		freed := region.Region{Start: region.Mod(daughter.Start+len(genome), m.Soup.Size()), Length: -delta}
		m.Soup.Free(freed)
		return genome, shrunk, true
	}
	tailStart := region.Mod(daughter.Start+daughter.Length, m.Soup.Size())
	if _, err := m.Soup.AllocateAt(tailStart, delta); err != nil {
		// The delta bytes right after the daughter are not all free.
		return nil, region.Region{}, false
	}
	return genome, region.Region{Start: daughter.Start, Length: daughter.Length + delta}, true
}
