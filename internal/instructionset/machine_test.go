package instructionset

import (
	"testing"

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

// recordingLifecycle is a Lifecycle fake that records BirthCell calls and
// returns canned values for everything else, for tests that drive opMal and
// opDivide directly.
type recordingLifecycle struct {
	meanSize    float64
	nextID      cell.ID
	instrCount  uint64
	reapResult  bool
	reapCalled  bool
	born        []*cell.Cell
}

func (r *recordingLifecycle) ReapForSpace(_ region.Region) bool {
	r.reapCalled = true
	return r.reapResult
}
func (r *recordingLifecycle) BirthCell(c *cell.Cell)   { r.born = append(r.born, c) }
func (r *recordingLifecycle) NextCellID() cell.ID      { r.nextID++; return r.nextID }
func (r *recordingLifecycle) InstructionCount() uint64 { return r.instrCount }
func (r *recordingLifecycle) MeanCellSize() float64    { return r.meanSize }

func newFullMachine(soupSize int, cfg config.Config) (*Machine, *recordingLifecycle) {
	s := soup.New(soupSize, 10, 5, rng.New(1))
	lc := &recordingLifecycle{meanSize: float64(soupSize)}
	return &Machine{
		Soup:      s,
		Genebank:  genebank.New(rng.New(1)),
		Mutation:  mutation.NewEngine(cfg, rng.New(1)),
		Config:    cfg,
		RNG:       rng.New(1),
		Lifecycle: lc,
	}, lc
}

func TestStepAdvancesIPByOne(t *testing.T) {
	cfg := config.Default()
	m, _ := newFullMachine(20, cfg)
	mother, err := m.Soup.AllocateAt(0, 10)
	if err != nil {
		t.Fatalf("AllocateAt: %v", err)
	}
	m.Soup.Write(0, byte(IncA))
	c := cell.New(1, mother, 0)
	m.Step(c)
	if c.CPU.IP != 1 {
		t.Errorf("IP = %d, want 1", c.CPU.IP)
	}
	if c.CPU.AX != 1 {
		t.Errorf("AX = %d, want 1 (incA)", c.CPU.AX)
	}
	if c.Demographics.InstructionsExecuted != 1 {
		t.Errorf("InstructionsExecuted = %d, want 1", c.Demographics.InstructionsExecuted)
	}
}

func TestStepProtectionFaultStillAdvances(t *testing.T) {
	cfg := config.Default()
	cfg.MemModeProt = config.ProtExecute
	m, _ := newFullMachine(20, cfg)
	mother, _ := m.Soup.AllocateAt(0, 5)
	other, _ := m.Soup.AllocateAt(10, 5)
	m.Soup.Write(10, byte(IncA))
	c := cell.New(1, mother, 0)
	c.CPU.IP = other.Start

	m.Step(c)
	if !c.CPU.Flags.E {
		t.Errorf("expected E flag set on protection fault")
	}
	if c.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", c.ErrorCount)
	}
	if c.CPU.IP != region.Mod(other.Start+1, m.Soup.Size()) {
		t.Errorf("IP should still advance past the faulting address")
	}
}

func TestStepIfzSkipsNextWhenNonzero(t *testing.T) {
	cfg := config.Default()
	m, _ := newFullMachine(20, cfg)
	mother, _ := m.Soup.AllocateAt(0, 10)
	m.Soup.Write(0, byte(Ifz))
	m.Soup.Write(1, byte(IncA)) // should be skipped
	m.Soup.Write(2, byte(IncB))
	c := cell.New(1, mother, 0)
	c.CPU.Set(cpu.RegC, 1) // cx != 0

	m.Step(c)
	if c.CPU.IP != 2 {
		t.Errorf("IP = %d, want 2 (ifz with cx!=0 skips one)", c.CPU.IP)
	}
}

func TestStepIfzExecutesNextWhenZero(t *testing.T) {
	cfg := config.Default()
	m, _ := newFullMachine(20, cfg)
	mother, _ := m.Soup.AllocateAt(0, 10)
	m.Soup.Write(0, byte(Ifz))
	m.Soup.Write(1, byte(IncA))
	c := cell.New(1, mother, 0)
	// cx == 0 by default

	m.Step(c)
	if c.CPU.IP != 1 {
		t.Errorf("IP = %d, want 1 (ifz with cx==0 falls through)", c.CPU.IP)
	}
}

func TestOpMalAllocatesAndSetsDaughter(t *testing.T) {
	cfg := config.Default()
	cfg.MalMode = 0 // FirstFit
	m, lc := newFullMachine(100, cfg)
	mother, _ := m.Soup.AllocateAt(0, 10)
	c := cell.New(1, mother, 0)
	c.CPU.Set(cpu.RegC, 10)

	table[Mal](m, c)
	if c.CPU.Flags.E {
		t.Fatalf("opMal should not fault when space is available")
	}
	if c.DaughterRegion.Length != 10 {
		t.Errorf("DaughterRegion.Length = %d, want 10", c.DaughterRegion.Length)
	}
	if lc.reapCalled {
		t.Errorf("ReapForSpace should not be called when the first allocation succeeds")
	}
}

func TestOpMalReapsOnFailureThenFaults(t *testing.T) {
	cfg := config.Default()
	m, lc := newFullMachine(10, cfg)
	mother, _ := m.Soup.AllocateAt(0, 10) // whole soup occupied, no free space
	c := cell.New(1, mother, 0)
	c.CPU.Set(cpu.RegC, 5)
	lc.reapResult = false // reaping doesn't free anything in this soup stub

	table[Mal](m, c)
	if !lc.reapCalled {
		t.Errorf("ReapForSpace should be called after the first allocation fails")
	}
	if !c.CPU.Flags.E {
		t.Errorf("opMal should fault when no space is available even after reaping")
	}
}

func TestOpDivideRejectsWithoutDaughter(t *testing.T) {
	cfg := config.Default()
	m, _ := newFullMachine(50, cfg)
	mother, _ := m.Soup.AllocateAt(0, 10)
	c := cell.New(1, mother, 0)

	table[Divide](m, c)
	if !c.CPU.Flags.E {
		t.Errorf("divide without a daughter region should fault")
	}
}

func TestOpDivideBirthsDaughterCell(t *testing.T) {
	cfg := config.Default()
	cfg.MovPropThrDiv = 0
	cfg.MinCellSize = 1
	cfg.MinGenMemSiz = 1
	cfg.GenPerInsIns = 0
	cfg.GenPerDelIns = 0
	cfg.GenPerCroInsSamSiz = 0
	cfg.GenPerDelSeg = 0
	cfg.GenPerInsSeg = 0
	cfg.GenPerCroSeg = 0
	m, lc := newFullMachine(50, cfg)
	mother, _ := m.Soup.AllocateAt(0, 5)
	daughter, _ := m.Soup.AllocateAt(10, 5)
	for i := 0; i < 5; i++ {
		m.Soup.Write(10+i, byte(IncA))
	}
	c := cell.New(1, mother, 0)
	c.DaughterRegion = daughter
	c.Demographics.MovCount = 5 // MovProportion = 1, clears the threshold

	table[Divide](m, c)
	if c.CPU.Flags.E {
		t.Fatalf("divide should not fault when all preconditions are met")
	}
	if len(lc.born) != 1 {
		t.Fatalf("expected exactly one daughter cell born, got %d", len(lc.born))
	}
	if c.DaughterRegion.Length != 0 {
		t.Errorf("mother's DaughterRegion should be cleared after divide")
	}
	if c.Demographics.OffspringCount != 1 {
		t.Errorf("OffspringCount = %d, want 1", c.Demographics.OffspringCount)
	}
	if c.Demographics.MovCount != 0 {
		t.Errorf("MovCount should reset to 0 after divide")
	}
}

func TestOpDivideAppliesDivideMutationAtRateOne(t *testing.T) {
	cfg := config.Default()
	cfg.MovPropThrDiv = 0
	cfg.MinCellSize = 1
	cfg.MinGenMemSiz = 1
	cfg.GenPerInsIns = 0
	cfg.GenPerDelIns = 0
	cfg.GenPerCroInsSamSiz = 0
	cfg.GenPerDelSeg = 0
	cfg.GenPerInsSeg = 0
	cfg.GenPerCroSeg = 0
	cfg.GenPerDivMut = 1 // rate(1, meanSize) == 1/meanSize; meanSize set to 1 below
	m, lc := newFullMachine(50, cfg)
	lc.meanSize = 1
	m.Bus = eventbus.New()
	var mutationEvents []eventbus.Event
	m.Bus.Subscribe(eventbus.ObserverFunc(func(e eventbus.Event) {
		if e.Kind == eventbus.Mutation {
			mutationEvents = append(mutationEvents, e)
		}
	}))

	mother, _ := m.Soup.AllocateAt(0, 5)
	daughter, _ := m.Soup.AllocateAt(10, 5)
	for i := 0; i < 5; i++ {
		m.Soup.Write(10+i, byte(IncA))
	}
	c := cell.New(1, mother, 0)
	c.DaughterRegion = daughter
	c.Demographics.MovCount = 5

	table[Divide](m, c)
	if c.CPU.Flags.E {
		t.Fatalf("divide should not fault when all preconditions are met")
	}
	if len(lc.born) != 1 {
		t.Fatalf("expected exactly one daughter cell born, got %d", len(lc.born))
	}
	found := false
	for _, e := range mutationEvents {
		if e.MutationKind == eventbus.MutDivide {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a MUTATION event with kind %q, got %v", eventbus.MutDivide, mutationEvents)
	}
}

func TestDivideAllowedRejectsBelowMovThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.MovPropThrDiv = 0.9
	m, _ := newFullMachine(50, cfg)
	mother, _ := m.Soup.AllocateAt(0, 10)
	daughter, _ := m.Soup.AllocateAt(20, 10)
	c := cell.New(1, mother, 0)
	c.DaughterRegion = daughter
	c.Demographics.MovCount = 1 // proportion 0.1, below 0.9

	if divideAllowed(m, c) {
		t.Errorf("divideAllowed should reject a cell below mov_prop_thr_div")
	}
}

func TestDivideAllowedRejectsBelowMinCellSize(t *testing.T) {
	cfg := config.Default()
	cfg.MovPropThrDiv = 0
	cfg.MinCellSize = 100
	m, _ := newFullMachine(50, cfg)
	mother, _ := m.Soup.AllocateAt(0, 10)
	daughter, _ := m.Soup.AllocateAt(20, 10)
	c := cell.New(1, mother, 0)
	c.DaughterRegion = daughter

	if divideAllowed(m, c) {
		t.Errorf("divideAllowed should reject a daughter smaller than min_cell_size")
	}
}

func TestDivideAllowedRejectsBelowMinGenMemSiz(t *testing.T) {
	cfg := config.Default()
	cfg.MovPropThrDiv = 0
	cfg.MinCellSize = 1
	cfg.MinGenMemSiz = 100
	m, _ := newFullMachine(50, cfg)
	mother, _ := m.Soup.AllocateAt(0, 10)
	daughter, _ := m.Soup.AllocateAt(20, 10)
	c := cell.New(1, mother, 0)
	c.DaughterRegion = daughter

	if divideAllowed(m, c) {
		t.Errorf("divideAllowed should reject when the mother's own region is below min_gen_mem_siz")
	}
}

func TestDivideAllowedDivSameSiz(t *testing.T) {
	cfg := config.Default()
	cfg.MovPropThrDiv = 0
	cfg.MinCellSize = 1
	cfg.MinGenMemSiz = 1
	cfg.DivSameSiz = true
	m, _ := newFullMachine(50, cfg)
	mother, _ := m.Soup.AllocateAt(0, 10)
	daughter, _ := m.Soup.AllocateAt(20, 5) // different size from mother
	c := cell.New(1, mother, 0)
	c.DaughterRegion = daughter

	if divideAllowed(m, c) {
		t.Errorf("divideAllowed should reject differing sizes when div_same_siz is set")
	}
}

func TestReconcileLengthNoChange(t *testing.T) {
	cfg := config.Default()
	m, _ := newFullMachine(50, cfg)
	daughter, _ := m.Soup.AllocateAt(0, 10)
	genome := make([]byte, 10)

	final, finalRegion, ok := m.reconcileLength(daughter, genome)
	if !ok {
		t.Fatalf("reconcileLength should succeed with no length change")
	}
	if finalRegion != daughter {
		t.Errorf("finalRegion should equal daughter unchanged")
	}
	if len(final) != 10 {
		t.Errorf("final length = %d, want 10", len(final))
	}
}

func TestReconcileLengthShrinks(t *testing.T) {
	cfg := config.Default()
	m, _ := newFullMachine(50, cfg)
	daughter, _ := m.Soup.AllocateAt(0, 10)
	genome := make([]byte, 7)

	_, finalRegion, ok := m.reconcileLength(daughter, genome)
	if !ok {
		t.Fatalf("reconcileLength should succeed on shrink")
	}
	if finalRegion.Length != 7 {
		t.Errorf("finalRegion.Length = %d, want 7", finalRegion.Length)
	}
	// The freed 3 bytes [7,10) coalesce with the free tail [10,50).
	freedBack := false
	for _, b := range m.Soup.FreeBlocks() {
		if b.Start == 7 && b.Length == 43 {
			freedBack = true
		}
	}
	if !freedBack {
		t.Errorf("shrinking should free the trailing 3 bytes back to the soup, merged with the free tail into {7 43}; got %v", m.Soup.FreeBlocks())
	}
}

func TestReconcileLengthGrowsIntoFreeTail(t *testing.T) {
	cfg := config.Default()
	m, _ := newFullMachine(50, cfg)
	daughter, _ := m.Soup.AllocateAt(0, 10) // tail [10,50) stays free
	genome := make([]byte, 15)

	_, finalRegion, ok := m.reconcileLength(daughter, genome)
	if !ok {
		t.Fatalf("reconcileLength should succeed growing into free tail space")
	}
	if finalRegion.Length != 15 {
		t.Errorf("finalRegion.Length = %d, want 15", finalRegion.Length)
	}
}

func TestReconcileLengthFailsWhenTailIsOccupied(t *testing.T) {
	cfg := config.Default()
	m, _ := newFullMachine(50, cfg)
	daughter, _ := m.Soup.AllocateAt(0, 10)
	if _, err := m.Soup.AllocateAt(10, 5); err != nil {
		t.Fatalf("AllocateAt: %v", err)
	}
	genome := make([]byte, 15)

	_, _, ok := m.reconcileLength(daughter, genome)
	if ok {
		t.Errorf("reconcileLength should fail growing when the tail is already occupied")
	}
}
